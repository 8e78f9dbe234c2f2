package builder

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/internal/llm"
	"github.com/mysteryisfun/Voice-platform/internal/storage/models"
	"github.com/mysteryisfun/Voice-platform/internal/storage/sqlite"
	"github.com/mysteryisfun/Voice-platform/pkg/logger"
)

type PromptGenerator interface {
	GenerateSystemPrompt(ctx context.Context, p llm.PromptComponents) (string, error)
}

// Builder turns a finished interview into a configured agent: it folds the
// Q&A history and the chosen identity, voice and tools into prompt
// components, asks the model for a system prompt, and persists the result.
type Builder struct {
	db  *sqlite.Client
	llm PromptGenerator
}

func NewBuilder(db *sqlite.Client, generator PromptGenerator) *Builder {
	return &Builder{db: db, llm: generator}
}

type Identity struct {
	AgentName string `json:"agent_name"`
	AgentRole string `json:"agent_role"`
	Greeting  string `json:"greeting"`
	Industry  string `json:"industry"`
}

type VoiceSettings struct {
	VoiceID       string `json:"voice_id"`
	Personality   string `json:"personality"`
	Tone          string `json:"tone"`
	ResponseStyle string `json:"response_style"`
}

// Finalize is idempotent: a session owns exactly one agent row, and calling
// it again rewrites that row rather than inserting another.
func (b *Builder) Finalize(ctx context.Context, sessionID int64, identity Identity, voice VoiceSettings, tools []string) (*models.Agent, error) {
	session, err := b.db.GetSession(sessionID)
	if err != nil {
		return nil, err
	}

	companyName := extractCompanyName(session.QuestionsAndAnswers)

	components := llm.PromptComponents{
		History:       session.QuestionsAndAnswers,
		AgentName:     identity.AgentName,
		AgentRole:     identity.AgentRole,
		CompanyName:   companyName,
		Greeting:      identity.Greeting,
		VoiceID:       voice.VoiceID,
		Personality:   voice.Personality,
		Tone:          voice.Tone,
		ResponseStyle: voice.ResponseStyle,
		EnabledTools:  tools,
	}

	systemPrompt, err := b.llm.GenerateSystemPrompt(ctx, components)
	if err != nil {
		return nil, err
	}

	agent, err := b.db.GetAgent(session.AgentID)
	if err != nil {
		return nil, err
	}

	agent.Name = identity.AgentName
	agent.CompanyName = companyName
	agent.Industry = identity.Industry
	agent.AgentRole = identity.AgentRole
	agent.Greeting = identity.Greeting
	agent.VoiceID = voice.VoiceID
	agent.Personality = voice.Personality
	agent.Tone = voice.Tone
	agent.ResponseStyle = voice.ResponseStyle
	agent.EnabledTools = tools
	agent.SystemPrompt = systemPrompt
	agent.Status = models.AgentStatusConfigured

	if err := b.db.CompleteSession(sessionID, agent); err != nil {
		return nil, err
	}

	logger.Info("Agent configured",
		zap.Int64("session_id", sessionID),
		zap.Int64("agent_id", agent.ID),
		zap.String("agent_name", agent.Name),
	)

	return agent, nil
}

// extractCompanyName pulls the company name from the first answer whose
// question mentions the company. The opening question always does.
func extractCompanyName(history []models.QuestionAnswer) string {
	for _, qa := range history {
		if strings.Contains(strings.ToLower(qa.Question), "company") {
			return strings.TrimSpace(qa.Answer)
		}
	}
	return ""
}
