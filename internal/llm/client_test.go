package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mysteryisfun/Voice-platform/pkg/circuitbreaker"
	"github.com/mysteryisfun/Voice-platform/pkg/retry"
)

// newStubbedClient points the OpenAI client at a local server so Complete
// can be exercised against arbitrary API responses.
func newStubbedClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = server.URL + "/v1"

	return &Client{
		client:         openai.NewClientWithConfig(cfg),
		model:          "gpt-4o-mini",
		embeddingModel: "text-embedding-3-small",
		temperature:    0.7,
		maxTokens:      256,
		cb: circuitbreaker.New("llm-test", circuitbreaker.Config{
			MaxRequests:      5,
			Interval:         time.Minute,
			Timeout:          time.Second,
			FailureThreshold: 100,
			SuccessThreshold: 1,
		}),
		retryConfig: retry.Config{
			MaxAttempts:  1,
			InitialDelay: time.Millisecond,
		},
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	client := newStubbedClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","choices":[],"usage":{"prompt_tokens":1,"completion_tokens":0,"total_tokens":1}}`))
	})

	_, err := client.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "system",
		UserPrompt:   "user",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestCompleteReturnsContent(t *testing.T) {
	client := newStubbedClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cmpl-2","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`))
	})

	resp, err := client.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "system",
		UserPrompt:   "user",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 7, resp.Usage.TotalTokens)
}
