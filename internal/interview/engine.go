package interview

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/internal/llm"
	"github.com/mysteryisfun/Voice-platform/internal/storage/models"
	"github.com/mysteryisfun/Voice-platform/internal/storage/sqlite"
	"github.com/mysteryisfun/Voice-platform/pkg/logger"
)

var ErrEmptyAnswer = errors.New("answer must not be empty")

type Questioner interface {
	NextQuestion(ctx context.Context, history []models.QuestionAnswer, initialContext string) (*llm.QuestionPayload, error)
}

// Engine drives the onboarding interview: a fixed opening question, then
// LLM-generated follow-ups, capped at llm.MaxQuestions accepted answers.
type Engine struct {
	db  *sqlite.Client
	llm Questioner
}

func NewEngine(db *sqlite.Client, questioner Questioner) *Engine {
	return &Engine{db: db, llm: questioner}
}

type StartResult struct {
	SessionID     int64  `json:"session_id"`
	AgentID       int64  `json:"agent_id"`
	FirstQuestion string `json:"first_question"`
}

type AnswerResult struct {
	NextQuestion   string `json:"next_question,omitempty"`
	QuestionNumber int    `json:"question_number,omitempty"`
	IsComplete     bool   `json:"is_complete"`
}

// Start creates the agent and session rows and seeds the fixed first
// question. No LLM call happens here.
func (e *Engine) Start(ctx context.Context, initialContext string) (*StartResult, error) {
	agentID, sessionID, err := e.db.CreateAgentAndSession(initialContext)
	if err != nil {
		return nil, err
	}

	if err := e.db.SetCurrentQuestion(sessionID, llm.FirstQuestion); err != nil {
		return nil, err
	}

	logger.Info("Onboarding session started",
		zap.Int64("session_id", sessionID),
		zap.Int64("agent_id", agentID),
	)

	return &StartResult{
		SessionID:     sessionID,
		AgentID:       agentID,
		FirstQuestion: llm.FirstQuestion,
	}, nil
}

// SubmitAnswer records the answer for the question the caller believes is
// current. questionNumber must match the session's current question number;
// a mismatch returns sqlite.ErrStaleQuestion so the client can re-sync. The
// answer is persisted before the next question is requested, so a crash
// loses at most the in-flight turn.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID int64, questionNumber int, answer string) (*AnswerResult, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, ErrEmptyAnswer
	}

	session, err := e.db.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if questionNumber != session.CurrentQuestionNumber {
		return nil, sqlite.ErrStaleQuestion
	}

	// A previous turn may have committed its answer but failed to obtain
	// the follow-up question. Recover it before accepting this answer so
	// the history never records an empty question.
	if session.CurrentQuestion == "" {
		question, err := e.regenerateQuestion(ctx, session)
		if err != nil {
			return nil, err
		}
		if question == "" {
			return &AnswerResult{IsComplete: true}, nil
		}
	}

	qa := models.QuestionAnswer{
		Question: session.CurrentQuestion,
		Answer:   answer,
		Number:   questionNumber,
		AskedAt:  time.Now(),
	}

	session, err = e.db.AppendAnswer(sessionID, questionNumber, qa)
	if err != nil {
		return nil, err
	}

	if len(session.QuestionsAndAnswers) >= llm.MaxQuestions {
		logger.Info("Interview complete: question ceiling reached",
			zap.Int64("session_id", sessionID),
		)
		return &AnswerResult{IsComplete: true}, nil
	}

	payload, err := e.llm.NextQuestion(ctx, session.QuestionsAndAnswers, session.InitialContext)
	if err != nil {
		// The answer is already committed and the counter has advanced.
		// Clear the now-stale question so the next status poll or answer
		// regenerates it instead of re-serving the answered one.
		if clearErr := e.db.SetCurrentQuestion(sessionID, ""); clearErr != nil {
			logger.Warn("Failed to clear stale question",
				zap.Int64("session_id", sessionID),
				zap.Error(clearErr),
			)
		}
		return nil, err
	}
	if payload.IsComplete {
		logger.Info("Interview complete: model signalled completion",
			zap.Int64("session_id", sessionID),
			zap.String("reasoning", payload.Reasoning),
		)
		return &AnswerResult{IsComplete: true}, nil
	}

	if err := e.db.SetCurrentQuestion(sessionID, payload.Question); err != nil {
		return nil, err
	}

	return &AnswerResult{
		NextQuestion:   payload.Question,
		QuestionNumber: questionNumber + 1,
		IsComplete:     false,
	}, nil
}

// PendingQuestion returns the question awaiting an answer, regenerating it
// when a previous turn committed its answer but the follow-up was lost.
// Returns the empty string once the interview is past the question ceiling.
func (e *Engine) PendingQuestion(ctx context.Context, session *models.OnboardingSession) (string, error) {
	if session.CurrentQuestion != "" || len(session.QuestionsAndAnswers) >= llm.MaxQuestions {
		return session.CurrentQuestion, nil
	}
	return e.regenerateQuestion(ctx, session)
}

func (e *Engine) regenerateQuestion(ctx context.Context, session *models.OnboardingSession) (string, error) {
	payload, err := e.llm.NextQuestion(ctx, session.QuestionsAndAnswers, session.InitialContext)
	if err != nil {
		return "", err
	}
	if payload.IsComplete {
		return "", nil
	}

	if err := e.db.SetCurrentQuestion(session.ID, payload.Question); err != nil {
		return "", err
	}
	session.CurrentQuestion = payload.Question

	logger.Info("Regenerated pending question",
		zap.Int64("session_id", session.ID),
		zap.Int("question_number", session.CurrentQuestionNumber),
	)
	return payload.Question, nil
}

// Progress reports how far along the interview is, as a percentage of the
// question ceiling.
func Progress(session *models.OnboardingSession) int {
	answered := len(session.QuestionsAndAnswers)
	if answered >= llm.MaxQuestions {
		return 100
	}
	return answered * 100 / llm.MaxQuestions
}
