package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/internal/metrics"
	"github.com/mysteryisfun/Voice-platform/internal/storage/sqlite"
	"github.com/mysteryisfun/Voice-platform/internal/voice"
	"github.com/mysteryisfun/Voice-platform/pkg/logger"
)

type VoiceHandler struct {
	facade *voice.Facade
}

func NewVoiceHandler(facade *voice.Facade) *VoiceHandler {
	return &VoiceHandler{facade: facade}
}

func (h *VoiceHandler) HandleCreateSession(c *fiber.Ctx) error {
	agentID, err := strconv.ParseInt(c.Params("agentID"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid agent id",
		})
	}

	var req struct {
		Participant string `json:"participant"`
	}
	// Optional body; a participant identity is generated when absent.
	_ = c.BodyParser(&req)

	session, err := h.facade.CreateSession(c.Context(), agentID, req.Participant)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "agent not found",
		})
	}
	if err != nil {
		logger.Error("Failed to create voice session",
			zap.Int64("agent_id", agentID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create voice session",
		})
	}

	metrics.VoiceSessionsCreated.Inc()

	return c.Status(fiber.StatusCreated).JSON(session)
}

func (h *VoiceHandler) HandleListSessions(c *fiber.Ctx) error {
	agentID, err := strconv.ParseInt(c.Params("agentID"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid agent id",
		})
	}

	limit := c.QueryInt("limit", 50)

	sessions, err := h.facade.ListSessions(c.Context(), agentID, limit)
	if err != nil {
		logger.Error("Failed to list voice sessions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list voice sessions",
		})
	}

	return c.JSON(fiber.Map{
		"agent_id": agentID,
		"sessions": sessions,
		"count":    len(sessions),
	})
}
