package ingestion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/internal/document"
	"github.com/mysteryisfun/Voice-platform/internal/metrics"
	"github.com/mysteryisfun/Voice-platform/internal/scraper/tavily"
	"github.com/mysteryisfun/Voice-platform/internal/storage/models"
	"github.com/mysteryisfun/Voice-platform/internal/storage/sqlite"
	"github.com/mysteryisfun/Voice-platform/pkg/logger"
)

const (
	SourceWebsite = "website"
	SourcePDF     = "pdf"
)

type Scraper interface {
	Crawl(ctx context.Context, url string) (*tavily.CrawlResult, error)
}

type Extractor interface {
	Supported(filename string) bool
	ExtractText(ctx context.Context, data []byte, filename string) (*document.Extraction, error)
}

type Store interface {
	Upsert(ctx context.Context, agentID int64, chunks []models.KnowledgeChunk) error
}

// Coordinator runs ingestion for one session as a detached task: scrape the
// website, extract the PDF, chunk everything, store it in the agent's
// knowledge namespace. Each source is best effort; a failure marks its
// status and the other source continues.
type Coordinator struct {
	db        *sqlite.Client
	scraper   Scraper
	extractor Extractor
	store     Store
	chunker   *Chunker
	tracker   *Tracker
	timeout   time.Duration
}

func NewCoordinator(db *sqlite.Client, scraper Scraper, extractor Extractor, store Store, chunker *Chunker, timeout time.Duration) *Coordinator {
	return &Coordinator{
		db:        db,
		scraper:   scraper,
		extractor: extractor,
		store:     store,
		chunker:   chunker,
		tracker:   NewTracker(),
		timeout:   timeout,
	}
}

func (c *Coordinator) Tracker() *Tracker {
	return c.tracker
}

// Process validates the session and launches the ingestion task. It returns
// the task ID immediately; progress is observable through the tracker and
// the session row's per-source statuses.
func (c *Coordinator) Process(ctx context.Context, sessionID int64, websiteURL string, pdfData []byte, pdfFilename string) (string, error) {
	session, err := c.db.GetSession(sessionID)
	if err != nil {
		return "", err
	}

	task := c.tracker.Create(sessionID)

	if err := c.db.UpdateSessionStatus(sessionID, models.SessionStatusProcessingData); err != nil {
		logger.Warn("Failed to mark session processing", zap.Error(err))
	}

	go c.run(task.ID, session.AgentID, sessionID, websiteURL, pdfData, pdfFilename)

	logger.Info("Ingestion task started",
		zap.String("task_id", task.ID),
		zap.Int64("session_id", sessionID),
		zap.Bool("has_website", websiteURL != ""),
		zap.Bool("has_pdf", len(pdfData) > 0),
	)

	return task.ID, nil
}

func (c *Coordinator) run(taskID string, agentID, sessionID int64, websiteURL string, pdfData []byte, pdfFilename string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	c.tracker.SetRunning(taskID)

	chunks := make([]models.KnowledgeChunk, 0)
	anySourceFailed := false

	webStatus := models.StepStatusSkipped
	if websiteURL != "" {
		webChunks, err := c.ingestWebsite(ctx, agentID, websiteURL)
		if err != nil {
			logger.Error("Website ingestion failed",
				zap.Int64("session_id", sessionID),
				zap.String("url", websiteURL),
				zap.Error(err),
			)
			webStatus = models.StepStatusFailed
			anySourceFailed = true
		} else {
			webStatus = models.StepStatusSucceeded
			chunks = append(chunks, webChunks...)
		}
	}
	c.updateStepStatus(sessionID, webStatus, "", "")

	docStatus := models.StepStatusSkipped
	if len(pdfData) > 0 {
		docChunks, skipped, err := c.ingestDocument(ctx, agentID, pdfData, pdfFilename)
		switch {
		case err != nil:
			logger.Error("Document ingestion failed",
				zap.Int64("session_id", sessionID),
				zap.String("filename", pdfFilename),
				zap.Error(err),
			)
			docStatus = models.StepStatusFailed
			anySourceFailed = true
		case skipped:
			// Unsupported format: the upload was ignored, not processed.
		default:
			docStatus = models.StepStatusSucceeded
			chunks = append(chunks, docChunks...)
		}
	}
	c.updateStepStatus(sessionID, "", docStatus, "")

	// Re-index sequentially across sources before storing.
	for i := range chunks {
		chunks[i].ChunkIndex = i
		chunks[i].ChunkID = fmt.Sprintf("agent_%d_chunk_%d", agentID, i)
	}

	vectorStatus := models.StepStatusSkipped
	if len(chunks) > 0 {
		vectorStatus = models.StepStatusSucceeded
		if err := c.store.Upsert(ctx, agentID, chunks); err != nil {
			logger.Error("Knowledge store upsert failed",
				zap.Int64("agent_id", agentID),
				zap.Error(err),
			)
			vectorStatus = models.StepStatusFailed
			anySourceFailed = true
			chunks = nil
		}
	}
	c.updateStepStatus(sessionID, "", "", vectorStatus)

	if anySourceFailed && len(chunks) == 0 {
		c.tracker.SetFailed(taskID, "no knowledge stored: all sources failed")
		metrics.IngestionTaskOutcome.WithLabelValues("failed").Inc()
		return
	}

	c.tracker.SetSucceeded(taskID, len(chunks))
	metrics.IngestionTaskOutcome.WithLabelValues("succeeded").Inc()
	metrics.ChunksStored.Add(float64(len(chunks)))

	logger.Info("Ingestion task finished",
		zap.String("task_id", taskID),
		zap.Int64("agent_id", agentID),
		zap.Int("chunks_stored", len(chunks)),
	)
}

func (c *Coordinator) ingestWebsite(ctx context.Context, agentID int64, websiteURL string) ([]models.KnowledgeChunk, error) {
	result, err := c.scraper.Crawl(ctx, websiteURL)
	if err != nil {
		return nil, fmt.Errorf("crawl failed: %w", err)
	}

	texts := c.chunker.Chunk(result.Content)
	chunks := make([]models.KnowledgeChunk, 0, len(texts))
	for _, text := range texts {
		chunks = append(chunks, models.KnowledgeChunk{
			AgentID:    agentID,
			SourceType: SourceWebsite,
			SourceURL:  websiteURL,
			Content:    text,
		})
	}

	logger.Info("Website content chunked",
		zap.Int64("agent_id", agentID),
		zap.Int("pages", result.PagesFound),
		zap.Int("chunks", len(chunks)),
	)
	return chunks, nil
}

func (c *Coordinator) ingestDocument(ctx context.Context, agentID int64, data []byte, filename string) ([]models.KnowledgeChunk, bool, error) {
	if !c.extractor.Supported(filename) {
		logger.Warn("Unsupported document type skipped", zap.String("filename", filename))
		return nil, true, nil
	}

	extraction, err := c.extractor.ExtractText(ctx, data, filename)
	if err != nil {
		return nil, false, fmt.Errorf("text extraction failed: %w", err)
	}

	texts := c.chunker.Chunk(extraction.Content)
	chunks := make([]models.KnowledgeChunk, 0, len(texts))
	for _, text := range texts {
		chunks = append(chunks, models.KnowledgeChunk{
			AgentID:    agentID,
			SourceType: SourcePDF,
			SourceURL:  filename,
			Content:    text,
		})
	}

	logger.Info("Document content chunked",
		zap.Int64("agent_id", agentID),
		zap.Int("pages", extraction.TotalPages),
		zap.Int("chunks", len(chunks)),
	)
	return chunks, false, nil
}

func (c *Coordinator) updateStepStatus(sessionID int64, web, doc, vector string) {
	if err := c.db.UpdateProcessingStatus(sessionID, web, doc, vector); err != nil {
		logger.Warn("Failed to persist processing status",
			zap.Int64("session_id", sessionID),
			zap.Error(err),
		)
	}
}
