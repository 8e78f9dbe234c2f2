package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/internal/metrics"
	"github.com/mysteryisfun/Voice-platform/internal/storage/models"
	"github.com/mysteryisfun/Voice-platform/pkg/circuitbreaker"
	"github.com/mysteryisfun/Voice-platform/pkg/logger"
	"github.com/mysteryisfun/Voice-platform/pkg/retry"
)

// MaxQuestions is the hard ceiling on interview questions. The model may
// signal completion earlier but never extends past this.
const MaxQuestions = 5

// FirstQuestion opens every interview; it needs no model call.
const FirstQuestion = "What is your company name and what is your main business or service?"

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(apiKey, model, embeddingModel string, temperature float32, maxTokens int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.String("embedding_model", embeddingModel),
	)

	return &Client{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		temperature:    temperature,
		maxTokens:      maxTokens,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}

			return nil
		})
	})

	if err != nil {
		metrics.LLMRequests.WithLabelValues("completion", "error").Inc()
		return nil, err
	}

	metrics.LLMRequests.WithLabelValues("completion", "ok").Inc()
	return result, nil
}

func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var embedding []float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input: []string{text},
					Model: openai.EmbeddingModel(c.embeddingModel),
				},
			)

			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}

			embedding = make([]float32, len(resp.Data[0].Embedding))
			copy(embedding, resp.Data[0].Embedding)

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return embedding, nil
}

func (c *Client) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var embeddings [][]float32

	batchSize := 100
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]

		err := c.cb.Execute(ctx, func() error {
			return retry.Do(ctx, c.retryConfig, func() error {
				resp, err := c.client.CreateEmbeddings(
					ctx,
					openai.EmbeddingRequest{
						Input: batch,
						Model: openai.EmbeddingModel(c.embeddingModel),
					},
				)

				if err != nil {
					return fmt.Errorf("failed to generate batch embeddings: %w", err)
				}

				for _, data := range resp.Data {
					embedding := make([]float32, len(data.Embedding))
					copy(embedding, data.Embedding)
					embeddings = append(embeddings, embedding)
				}

				return nil
			})
		})

		if err != nil {
			return nil, err
		}
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}

// NextQuestion asks the model for the next interview question given the
// conversation so far. The ceiling is enforced here as well as in the
// interview engine so a confused model can never extend the interview.
func (c *Client) NextQuestion(ctx context.Context, history []models.QuestionAnswer, initialContext string) (*QuestionPayload, error) {
	if len(history) >= MaxQuestions {
		return &QuestionPayload{
			IsComplete: true,
			Reasoning:  "question ceiling reached",
		}, nil
	}

	systemPrompt := `You are conducting a focused business onboarding interview for voice agent creation.

Ask ONLY essential questions to create a functional voice agent:
1. Company name and main business
2. Primary service/product offered
3. Target customers (who calls)
4. Voice agent's main purpose (support, sales, booking, info)
5. Key business hours or availability

Rules:
- Ask ONE specific, essential question
- Never repeat a question already answered
- Keep questions short and direct
- COMPLETE after 5 questions maximum
- If you have enough info to create an agent, indicate completion

Return JSON: {"question": "...", "is_complete": false, "reasoning": "why this question"}
OR {"question": null, "is_complete": true, "reasoning": "sufficient information gathered"}`

	var conversation strings.Builder
	if initialContext != "" {
		fmt.Fprintf(&conversation, "Initial context: %s\n\n", initialContext)
	}
	for i, qa := range history {
		fmt.Fprintf(&conversation, "Q%d: %s\nA%d: %s\n", i+1, qa.Question, i+1, qa.Answer)
	}

	userPrompt := fmt.Sprintf(`Conversation so far:
%s
Current question count: %d of %d maximum

Generate the next question or indicate completion. Return valid JSON only.`,
		conversation.String(), len(history), MaxQuestions)

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.3,
		MaxTokens:    200,
	})

	if err != nil {
		logger.Warn("Next question generation failed, using fallback", zap.Error(err))
		return fallbackQuestion(len(history)), nil
	}

	payload, err := decodeQuestionPayload(resp.Content)
	if err != nil {
		logger.Warn("Question payload rejected", zap.Error(err), zap.String("raw", resp.Content))
		return nil, err
	}

	return payload, nil
}

// GenerateSystemPrompt synthesizes the agent's system prompt from the
// interview plus the declared identity, voice and tools configuration. A
// model failure falls back to a deterministic template so finalize never
// blocks on the LLM.
func (c *Client) GenerateSystemPrompt(ctx context.Context, p PromptComponents) (string, error) {
	systemPrompt := "You are creating a system prompt for a voice agent. Make it comprehensive, professional, and actionable."

	var qaContext strings.Builder
	for _, qa := range p.History {
		fmt.Fprintf(&qaContext, "Q: %s\nA: %s\n", qa.Question, qa.Answer)
	}

	userPrompt := fmt.Sprintf(`Business Information from Onboarding:
%s
Generate a comprehensive system prompt for a voice agent with the following configuration:

Agent Identity:
- Name: %s
- Role: %s
- Company: %s
- Greeting: %s

Voice & Personality:
- Voice: %s
- Personality: %s
- Tone: %s
- Response Style: %s

Available Tools:
- %s

The prompt should define the agent's role and purpose, include
company-specific information, set personality and tone guidelines, list the
available tools, and include conversation guidelines and boundaries.`,
		qaContext.String(),
		p.AgentName, p.AgentRole, p.CompanyName, orDefault(p.Greeting, "Default greeting"),
		p.VoiceID, p.Personality, p.Tone, p.ResponseStyle,
		strings.Join(p.EnabledTools, ", "),
	)

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.7,
		MaxTokens:    1000,
	})

	if err != nil {
		logger.Warn("System prompt generation failed, using fallback", zap.Error(err))
		return p.fallbackPrompt(), nil
	}

	return strings.TrimSpace(resp.Content), nil
}

// PromptComponents consolidates everything the prompt synthesis needs.
type PromptComponents struct {
	History       []models.QuestionAnswer
	AgentName     string
	AgentRole     string
	CompanyName   string
	Greeting      string
	VoiceID       string
	Personality   string
	Tone          string
	ResponseStyle string
	EnabledTools  []string
}

func (p PromptComponents) fallbackPrompt() string {
	greeting := p.Greeting
	if greeting == "" {
		greeting = fmt.Sprintf("Hello! I'm %s, how can I help you today?", p.AgentName)
	}

	return fmt.Sprintf(`You are %s, a %s voice assistant for %s working as a %s.

Your role is to:
- Greet customers with: "%s"
- Use a %s tone with %s responses
- Answer questions about %s using your knowledge base
- Provide excellent customer service

Available tools: %s

Always be helpful, accurate, and professional. If you cannot help with
something, offer to connect the caller with a human representative.`,
		p.AgentName, p.Personality, p.CompanyName, p.AgentRole,
		greeting, p.Tone, p.ResponseStyle, p.CompanyName,
		strings.Join(p.EnabledTools, ", "),
	)
}

// fallbackQuestions keep the interview moving when the model is unreachable.
var fallbackQuestions = []string{
	"What are your main products or services?",
	"Who is your target audience or typical customer?",
	"What would you want your voice agent to help customers with?",
	"What are your business hours when the agent should be available?",
	"Are there any specific topics the agent should avoid or emphasize?",
}

func fallbackQuestion(asked int) *QuestionPayload {
	if asked >= len(fallbackQuestions) || asked >= MaxQuestions {
		return &QuestionPayload{IsComplete: true, Reasoning: "fallback completion"}
	}
	return &QuestionPayload{
		Question:  fallbackQuestions[asked],
		Reasoning: "fallback question due to API issue",
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
