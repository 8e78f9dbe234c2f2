package handlers

import (
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/internal/ingestion"
	"github.com/mysteryisfun/Voice-platform/pkg/logger"
)

type StatusStreamHandler struct {
	tracker *ingestion.Tracker
}

func NewStatusStreamHandler(tracker *ingestion.Tracker) *StatusStreamHandler {
	return &StatusStreamHandler{tracker: tracker}
}

// HandleConnection streams ingestion task updates for a session until the
// task reaches a terminal state or the client disconnects. The session ID
// is resolved in the upgrade middleware and stashed in locals.
func (h *StatusStreamHandler) HandleConnection(c *websocket.Conn) {
	sessionID, _ := c.Locals("sessionID").(int64)

	logger.Info("Status stream opened", zap.Int64("session_id", sessionID))

	defer func() {
		c.Close()
		logger.Info("Status stream closed", zap.Int64("session_id", sessionID))
	}()

	task, ok := h.tracker.GetBySession(sessionID)
	if !ok {
		h.send(c, map[string]interface{}{
			"type":       "status",
			"session_id": sessionID,
			"status":     "no_task",
		})
		return
	}

	updates, cancel := h.tracker.Subscribe(task.ID)
	defer cancel()

	for update := range updates {
		if !h.send(c, map[string]interface{}{
			"type": "task_update",
			"task": update,
		}) {
			return
		}
	}
}

func (h *StatusStreamHandler) send(c *websocket.Conn, payload map[string]interface{}) bool {
	if err := c.WriteJSON(payload); err != nil {
		logger.Debug("Status stream write failed", zap.Error(err))
		return false
	}
	return true
}
