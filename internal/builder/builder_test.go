package builder

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mysteryisfun/Voice-platform/internal/llm"
	"github.com/mysteryisfun/Voice-platform/internal/storage/models"
	"github.com/mysteryisfun/Voice-platform/internal/storage/sqlite"
)

type fakeGenerator struct {
	prompt string
	err    error
	seen   llm.PromptComponents
}

func (f *fakeGenerator) GenerateSystemPrompt(ctx context.Context, p llm.PromptComponents) (string, error) {
	f.seen = p
	if f.err != nil {
		return "", f.err
	}
	return f.prompt, nil
}

func newTestBuilder(t *testing.T, generator PromptGenerator) (*Builder, *sqlite.Client, int64, int64) {
	t.Helper()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	agentID, sessionID, err := db.CreateAgentAndSession("")
	require.NoError(t, err)

	_, err = db.AppendAnswer(sessionID, 1, models.QuestionAnswer{
		Question: llm.FirstQuestion,
		Answer:   "Acme Plants, we sell houseplants",
		Number:   1,
		AskedAt:  time.Now(),
	})
	require.NoError(t, err)

	return NewBuilder(db, generator), db, agentID, sessionID
}

func TestFinalizeConfiguresAgent(t *testing.T) {
	generator := &fakeGenerator{prompt: "You are Ava, the Acme Plants assistant."}
	b, db, agentID, sessionID := newTestBuilder(t, generator)

	agent, err := b.Finalize(context.Background(), sessionID,
		Identity{AgentName: "Ava", AgentRole: "support", Greeting: "Hi!", Industry: "retail"},
		VoiceSettings{VoiceID: "nova", Personality: "warm", Tone: "friendly", ResponseStyle: "concise"},
		[]string{"faq"},
	)
	require.NoError(t, err)

	assert.Equal(t, agentID, agent.ID)
	assert.Equal(t, models.AgentStatusConfigured, agent.Status)
	assert.Equal(t, "Acme Plants, we sell houseplants", agent.CompanyName)
	assert.Equal(t, generator.prompt, agent.SystemPrompt)

	// The interview history reached the prompt generator.
	assert.Len(t, generator.seen.History, 1)
	assert.Equal(t, "Ava", generator.seen.AgentName)

	session, err := db.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, session.Status)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	b, db, agentID, sessionID := newTestBuilder(t, &fakeGenerator{prompt: "prompt"})

	identity := Identity{AgentName: "Ava"}
	voice := VoiceSettings{VoiceID: "nova"}

	first, err := b.Finalize(context.Background(), sessionID, identity, voice, nil)
	require.NoError(t, err)

	second, err := b.Finalize(context.Background(), sessionID, identity, voice, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	agents, err := db.ListAgents()
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, agentID, agents[0].ID)
}

func TestFinalizePropagatesGeneratorError(t *testing.T) {
	b, _, _, sessionID := newTestBuilder(t, &fakeGenerator{err: errors.New("model down")})

	_, err := b.Finalize(context.Background(), sessionID, Identity{}, VoiceSettings{}, nil)
	assert.Error(t, err)
}

func TestFinalizeUnknownSession(t *testing.T) {
	b, _, _, _ := newTestBuilder(t, &fakeGenerator{prompt: "p"})

	_, err := b.Finalize(context.Background(), 9999, Identity{}, VoiceSettings{}, nil)
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestExtractCompanyName(t *testing.T) {
	history := []models.QuestionAnswer{
		{Question: "What do you sell?", Answer: "shoes"},
		{Question: "What is your company name?", Answer: "  Solemates  "},
	}
	assert.Equal(t, "Solemates", extractCompanyName(history))

	assert.Empty(t, extractCompanyName(nil))
	assert.Empty(t, extractCompanyName([]models.QuestionAnswer{{Question: "Anything?", Answer: "no"}}))
}
