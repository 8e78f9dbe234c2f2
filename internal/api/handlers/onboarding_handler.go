package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/internal/builder"
	"github.com/mysteryisfun/Voice-platform/internal/ingestion"
	"github.com/mysteryisfun/Voice-platform/internal/interview"
	"github.com/mysteryisfun/Voice-platform/internal/metrics"
	"github.com/mysteryisfun/Voice-platform/internal/storage/models"
	"github.com/mysteryisfun/Voice-platform/internal/storage/sqlite"
	"github.com/mysteryisfun/Voice-platform/pkg/logger"
)

type OnboardingHandler struct {
	engine  *interview.Engine
	builder *builder.Builder
	tracker *ingestion.Tracker
	db      *sqlite.Client
}

func NewOnboardingHandler(engine *interview.Engine, agentBuilder *builder.Builder, tracker *ingestion.Tracker, db *sqlite.Client) *OnboardingHandler {
	return &OnboardingHandler{
		engine:  engine,
		builder: agentBuilder,
		tracker: tracker,
		db:      db,
	}
}

func (h *OnboardingHandler) HandleStart(c *fiber.Ctx) error {
	var req struct {
		InitialContext string `json:"initial_context"`
	}
	// Body is optional; an empty start is valid.
	_ = c.BodyParser(&req)

	result, err := h.engine.Start(c.Context(), req.InitialContext)
	if err != nil {
		logger.Error("Failed to start onboarding", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start onboarding",
		})
	}

	metrics.SessionsStarted.Inc()

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *OnboardingHandler) HandleAnswer(c *fiber.Ctx) error {
	var req struct {
		SessionID      int64  `json:"session_id"`
		QuestionNumber int    `json:"question_number"`
		Answer         string `json:"answer"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.SessionID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}

	result, err := h.engine.SubmitAnswer(c.Context(), req.SessionID, req.QuestionNumber, req.Answer)
	switch {
	case errors.Is(err, interview.ErrEmptyAnswer):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "answer must not be empty",
		})
	case errors.Is(err, sqlite.ErrStaleQuestion):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "question_number does not match the current question",
		})
	case errors.Is(err, sqlite.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "session not found",
		})
	case err != nil:
		logger.Error("Failed to submit answer",
			zap.Int64("session_id", req.SessionID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process answer",
		})
	}

	metrics.QuestionsAnswered.Inc()

	return c.JSON(result)
}

func (h *OnboardingHandler) HandleStatus(c *fiber.Ctx) error {
	sessionID, err := strconv.ParseInt(c.Params("sessionID"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid session id",
		})
	}

	session, err := h.db.GetSession(sessionID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "session not found",
		})
	}
	if err != nil {
		logger.Error("Failed to load session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load session",
		})
	}

	currentQuestion := session.CurrentQuestion
	if session.Status == models.SessionStatusStarted || session.Status == models.SessionStatusInProgress {
		q, err := h.engine.PendingQuestion(c.Context(), session)
		if err != nil {
			logger.Warn("Failed to regenerate pending question",
				zap.Int64("session_id", session.ID),
				zap.Error(err),
			)
		} else {
			currentQuestion = q
		}
	}

	resp := fiber.Map{
		"session_id":              session.ID,
		"agent_id":                session.AgentID,
		"status":                  session.Status,
		"current_question":        currentQuestion,
		"current_question_number": session.CurrentQuestionNumber,
		"questions_answered":      len(session.QuestionsAndAnswers),
		"progress_percent":        interview.Progress(session),
		"web_scraping_status":     session.WebScrapingStatus,
		"document_status":         session.DocumentStatus,
		"vector_status":           session.VectorStatus,
	}

	if task, ok := h.tracker.GetBySession(sessionID); ok {
		resp["ingestion_task"] = task
	}

	return c.JSON(resp)
}

func (h *OnboardingHandler) HandleComplete(c *fiber.Ctx) error {
	var req struct {
		SessionID int64                 `json:"session_id"`
		Identity  builder.Identity      `json:"identity"`
		Voice     builder.VoiceSettings `json:"voice"`
		Tools     []string              `json:"enabled_tools"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.SessionID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}

	agent, err := h.builder.Finalize(c.Context(), req.SessionID, req.Identity, req.Voice, req.Tools)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "session not found",
		})
	}
	if err != nil {
		logger.Error("Failed to finalize agent",
			zap.Int64("session_id", req.SessionID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to complete onboarding",
		})
	}

	return c.JSON(fiber.Map{
		"agent_id":      agent.ID,
		"status":        agent.Status,
		"system_prompt": agent.SystemPrompt,
	})
}
