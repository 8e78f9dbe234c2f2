package handlers

import (
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/internal/ingestion"
	"github.com/mysteryisfun/Voice-platform/internal/knowledge"
	"github.com/mysteryisfun/Voice-platform/internal/metrics"
	"github.com/mysteryisfun/Voice-platform/internal/storage/sqlite"
	"github.com/mysteryisfun/Voice-platform/pkg/logger"
)

const maxUploadBytes = 20 << 20 // 20 MiB

type DataHandler struct {
	coordinator *ingestion.Coordinator
	store       *knowledge.Store
}

func NewDataHandler(coordinator *ingestion.Coordinator, store *knowledge.Store) *DataHandler {
	return &DataHandler{
		coordinator: coordinator,
		store:       store,
	}
}

// HandleProcessData accepts a multipart form with website_url and/or
// pdf_file, launches the ingestion task, and acknowledges immediately.
func (h *DataHandler) HandleProcessData(c *fiber.Ctx) error {
	sessionID, err := strconv.ParseInt(c.Params("sessionID"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid session id",
		})
	}

	websiteURL := c.FormValue("website_url")

	var pdfData []byte
	var pdfFilename string
	if fileHeader, err := c.FormFile("pdf_file"); err == nil && fileHeader != nil {
		if fileHeader.Size > maxUploadBytes {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "pdf_file exceeds the upload limit",
			})
		}
		file, err := fileHeader.Open()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "failed to open uploaded file",
			})
		}
		pdfData, err = io.ReadAll(file)
		file.Close()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "failed to read uploaded file",
			})
		}
		pdfFilename = fileHeader.Filename
	}

	if websiteURL == "" && len(pdfData) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "provide website_url or pdf_file",
		})
	}

	taskID, err := h.coordinator.Process(c.Context(), sessionID, websiteURL, pdfData, pdfFilename)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "session not found",
		})
	}
	if err != nil {
		logger.Error("Failed to start ingestion",
			zap.Int64("session_id", sessionID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start data processing",
		})
	}

	metrics.IngestionTasksStarted.Inc()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"task_id": taskID,
		"status":  string(ingestion.TaskPending),
	})
}

func (h *DataHandler) HandleKnowledgeQuery(c *fiber.Ctx) error {
	agentID, err := strconv.ParseInt(c.Params("agentID"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid agent id",
		})
	}

	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query is required",
		})
	}

	limit := c.QueryInt("limit", 5)

	results, err := h.store.Query(c.Context(), agentID, query, limit)
	if err != nil {
		logger.Error("Knowledge query failed",
			zap.Int64("agent_id", agentID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to query knowledge base",
		})
	}

	return c.JSON(fiber.Map{
		"agent_id": agentID,
		"query":    query,
		"results":  results,
	})
}

func (h *DataHandler) HandleKnowledgeStats(c *fiber.Ctx) error {
	agentID, err := strconv.ParseInt(c.Params("agentID"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid agent id",
		})
	}

	stats, err := h.store.Stats(c.Context(), agentID)
	if err != nil {
		logger.Error("Failed to load knowledge stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load knowledge stats",
		})
	}

	return c.JSON(stats)
}
