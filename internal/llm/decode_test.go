package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeQuestionPayload(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		payload, err := decodeQuestionPayload(`{"question": "What industry are you in?", "is_complete": false, "reasoning": "need industry"}`)
		require.NoError(t, err)
		assert.Equal(t, "What industry are you in?", payload.Question)
		assert.False(t, payload.IsComplete)
	})

	t.Run("completion signal", func(t *testing.T) {
		payload, err := decodeQuestionPayload(`{"question": "", "is_complete": true, "reasoning": "enough context"}`)
		require.NoError(t, err)
		assert.True(t, payload.IsComplete)
		assert.Equal(t, "enough context", payload.Reasoning)
	})

	t.Run("markdown fence stripped", func(t *testing.T) {
		raw := "```json\n{\"question\": \"Who are your customers?\", \"is_complete\": false}\n```"
		payload, err := decodeQuestionPayload(raw)
		require.NoError(t, err)
		assert.Equal(t, "Who are your customers?", payload.Question)
	})

	t.Run("single envelope unwrapped", func(t *testing.T) {
		raw := `{"response": {"question": "What are your hours?", "is_complete": false}}`
		payload, err := decodeQuestionPayload(raw)
		require.NoError(t, err)
		assert.Equal(t, "What are your hours?", payload.Question)
	})

	t.Run("double nesting rejected", func(t *testing.T) {
		raw := `{"response": {"response": {"question": "Q?", "is_complete": false}}}`
		_, err := decodeQuestionPayload(raw)
		assert.Error(t, err)
	})

	t.Run("no question and not complete rejected", func(t *testing.T) {
		_, err := decodeQuestionPayload(`{"question": "", "is_complete": false}`)
		assert.Error(t, err)
	})

	t.Run("non-json rejected", func(t *testing.T) {
		_, err := decodeQuestionPayload(`Sure! Here is the next question: what do you sell?`)
		assert.Error(t, err)
	})
}

func TestFallbackQuestion(t *testing.T) {
	for i := 0; i < MaxQuestions; i++ {
		q := fallbackQuestion(i)
		require.NotNil(t, q)
		assert.NotEmpty(t, q.Question)
		assert.False(t, q.IsComplete)
	}

	done := fallbackQuestion(MaxQuestions)
	require.NotNil(t, done)
	assert.True(t, done.IsComplete)
}
