package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mysteryisfun/Voice-platform/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, client.InitSchema())
	t.Cleanup(func() { client.Close() })

	return client
}

func TestCreateAgentAndSession(t *testing.T) {
	client := newTestClient(t)

	agentID, sessionID, err := client.CreateAgentAndSession("we sell plants")
	require.NoError(t, err)
	assert.Greater(t, agentID, int64(0))
	assert.Greater(t, sessionID, int64(0))

	session, err := client.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, agentID, session.AgentID)
	assert.Equal(t, models.SessionStatusStarted, session.Status)
	assert.Equal(t, 1, session.CurrentQuestionNumber)
	assert.Equal(t, "we sell plants", session.InitialContext)
	assert.Empty(t, session.QuestionsAndAnswers)

	agent, err := client.GetAgent(agentID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusCreated, agent.Status)
}

func TestGetSessionNotFound(t *testing.T) {
	client := newTestClient(t)

	_, err := client.GetSession(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAppendAnswerAdvancesCounter(t *testing.T) {
	client := newTestClient(t)

	_, sessionID, err := client.CreateAgentAndSession("")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		session, err := client.AppendAnswer(sessionID, i, models.QuestionAnswer{
			Question: "q",
			Answer:   "a",
			Number:   i,
			AskedAt:  time.Now(),
		})
		require.NoError(t, err)
		assert.Equal(t, i+1, session.CurrentQuestionNumber)
		assert.Len(t, session.QuestionsAndAnswers, i)
		assert.Equal(t, models.SessionStatusInProgress, session.Status)
	}
}

func TestAppendAnswerStaleNumber(t *testing.T) {
	client := newTestClient(t)

	_, sessionID, err := client.CreateAgentAndSession("")
	require.NoError(t, err)

	qa := models.QuestionAnswer{Question: "q", Answer: "a", Number: 1}
	_, err = client.AppendAnswer(sessionID, 1, qa)
	require.NoError(t, err)

	// Replaying the same question number must be rejected.
	_, err = client.AppendAnswer(sessionID, 1, qa)
	assert.ErrorIs(t, err, ErrStaleQuestion)

	// So must a number from the future.
	_, err = client.AppendAnswer(sessionID, 5, qa)
	assert.ErrorIs(t, err, ErrStaleQuestion)

	session, err := client.GetSession(sessionID)
	require.NoError(t, err)
	assert.Len(t, session.QuestionsAndAnswers, 1)
	assert.Equal(t, 2, session.CurrentQuestionNumber)
}

func TestUpdateProcessingStatusPartial(t *testing.T) {
	client := newTestClient(t)

	_, sessionID, err := client.CreateAgentAndSession("")
	require.NoError(t, err)

	require.NoError(t, client.UpdateProcessingStatus(sessionID, models.StepStatusSucceeded, "", ""))

	session, err := client.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusSucceeded, session.WebScrapingStatus)
	assert.Equal(t, models.StepStatusPending, session.DocumentStatus)
	assert.Equal(t, models.StepStatusPending, session.VectorStatus)

	require.NoError(t, client.UpdateProcessingStatus(sessionID, "", models.StepStatusSkipped, models.StepStatusFailed))

	session, err = client.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusSucceeded, session.WebScrapingStatus)
	assert.Equal(t, models.StepStatusSkipped, session.DocumentStatus)
	assert.Equal(t, models.StepStatusFailed, session.VectorStatus)
}

func TestUpdateProcessingStatusKeepsCompletedSession(t *testing.T) {
	client := newTestClient(t)

	agentID, sessionID, err := client.CreateAgentAndSession("")
	require.NoError(t, err)

	agent := &models.Agent{
		ID:     agentID,
		Name:   "Ava",
		Status: models.AgentStatusConfigured,
	}
	require.NoError(t, client.CompleteSession(sessionID, agent))

	// A slow ingestion task finishing after completion records its source
	// statuses without reopening the session.
	require.NoError(t, client.UpdateProcessingStatus(sessionID, models.StepStatusSucceeded, "", models.StepStatusSucceeded))

	session, err := client.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.Equal(t, models.StepStatusSucceeded, session.WebScrapingStatus)
	assert.Equal(t, models.StepStatusSucceeded, session.VectorStatus)
}

func TestCompleteSessionRewritesAgent(t *testing.T) {
	client := newTestClient(t)

	agentID, sessionID, err := client.CreateAgentAndSession("")
	require.NoError(t, err)

	agent := &models.Agent{
		ID:           agentID,
		Name:         "Ava",
		CompanyName:  "Acme Plants",
		EnabledTools: []string{"faq", "booking"},
		SystemPrompt: "You are Ava.",
		Status:       models.AgentStatusConfigured,
	}
	require.NoError(t, client.CompleteSession(sessionID, agent))

	stored, err := client.GetAgent(agentID)
	require.NoError(t, err)
	assert.Equal(t, "Ava", stored.Name)
	assert.Equal(t, []string{"faq", "booking"}, stored.EnabledTools)
	assert.Equal(t, models.AgentStatusConfigured, stored.Status)

	session, err := client.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	require.NotNil(t, session.CompletedAt)

	// Completing again rewrites the same row.
	agent.Name = "Ava v2"
	require.NoError(t, client.CompleteSession(sessionID, agent))

	agents, err := client.ListAgents()
	require.NoError(t, err)
	assert.Len(t, agents, 1)
	assert.Equal(t, "Ava v2", agents[0].Name)
}

func TestDeleteAgentCascades(t *testing.T) {
	client := newTestClient(t)

	agentID, sessionID, err := client.CreateAgentAndSession("")
	require.NoError(t, err)

	require.NoError(t, client.InsertKnowledgeChunk(&models.KnowledgeChunk{
		AgentID:    agentID,
		ChunkID:    "agent_1_chunk_0",
		SourceType: "website",
		SourceURL:  "https://example.com",
		Content:    "hello",
	}))

	count, err := client.CountKnowledgeChunks(agentID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, client.DeleteAgent(agentID))

	_, err = client.GetAgent(agentID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.GetSession(sessionID)
	assert.ErrorIs(t, err, ErrNotFound)

	count, err = client.CountKnowledgeChunks(agentID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestInsertKnowledgeChunkUpsert(t *testing.T) {
	client := newTestClient(t)

	agentID, _, err := client.CreateAgentAndSession("")
	require.NoError(t, err)

	chunk := &models.KnowledgeChunk{
		AgentID:    agentID,
		ChunkID:    "agent_1_chunk_0",
		SourceType: "website",
		Content:    "first",
	}
	require.NoError(t, client.InsertKnowledgeChunk(chunk))

	chunk.Content = "rewritten"
	require.NoError(t, client.InsertKnowledgeChunk(chunk))

	count, err := client.CountKnowledgeChunks(agentID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestVoiceSessions(t *testing.T) {
	client := newTestClient(t)

	agentID, _, err := client.CreateAgentAndSession("")
	require.NoError(t, err)

	id, err := client.InsertVoiceSession(&models.VoiceSession{
		AgentID:        agentID,
		RoomName:       "agent-1-abcd1234",
		Participant:    "user-1",
		Status:         "created",
		TokenExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	sessions, err := client.ListVoiceSessions(agentID, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "agent-1-abcd1234", sessions[0].RoomName)
}
