package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/internal/knowledge"
	"github.com/mysteryisfun/Voice-platform/internal/storage/models"
	"github.com/mysteryisfun/Voice-platform/internal/storage/sqlite"
	"github.com/mysteryisfun/Voice-platform/pkg/logger"
)

type AgentsHandler struct {
	db    *sqlite.Client
	store *knowledge.Store
}

func NewAgentsHandler(db *sqlite.Client, store *knowledge.Store) *AgentsHandler {
	return &AgentsHandler{db: db, store: store}
}

func (h *AgentsHandler) HandleList(c *fiber.Ctx) error {
	agents, err := h.db.ListAgents()
	if err != nil {
		logger.Error("Failed to list agents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list agents",
		})
	}

	return c.JSON(fiber.Map{
		"agents": agents,
		"count":  len(agents),
	})
}

func (h *AgentsHandler) HandleGet(c *fiber.Ctx) error {
	agentID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid agent id",
		})
	}

	agent, err := h.db.GetAgent(agentID)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "agent not found",
		})
	}
	if err != nil {
		logger.Error("Failed to get agent", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get agent",
		})
	}

	return c.JSON(agent)
}

func (h *AgentsHandler) HandleUpdateStatus(c *fiber.Ctx) error {
	agentID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid agent id",
		})
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	switch req.Status {
	case models.AgentStatusActive, models.AgentStatusInactive:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "status must be active or inactive",
		})
	}

	err = h.db.UpdateAgentStatus(agentID, req.Status)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "agent not found",
		})
	}
	if err != nil {
		logger.Error("Failed to update agent status", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update agent status",
		})
	}

	return c.JSON(fiber.Map{
		"agent_id": agentID,
		"status":   req.Status,
	})
}

// HandleDelete removes the agent row, its chunk rows and its vector
// namespace. The namespace drop happens first so a failure leaves the row
// intact for a retry.
func (h *AgentsHandler) HandleDelete(c *fiber.Ctx) error {
	agentID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid agent id",
		})
	}

	if _, err := h.db.GetAgent(agentID); errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "agent not found",
		})
	}

	if err := h.store.Drop(c.Context(), agentID); err != nil {
		logger.Error("Failed to drop knowledge namespace",
			zap.Int64("agent_id", agentID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete agent knowledge",
		})
	}

	if err := h.db.DeleteAgent(agentID); err != nil {
		logger.Error("Failed to delete agent", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete agent",
		})
	}

	logger.Info("Agent deleted", zap.Int64("agent_id", agentID))

	return c.JSON(fiber.Map{
		"agent_id": agentID,
		"deleted":  true,
	})
}
