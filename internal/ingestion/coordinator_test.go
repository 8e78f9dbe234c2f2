package ingestion

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mysteryisfun/Voice-platform/internal/document"
	"github.com/mysteryisfun/Voice-platform/internal/scraper/tavily"
	"github.com/mysteryisfun/Voice-platform/internal/storage/models"
	"github.com/mysteryisfun/Voice-platform/internal/storage/sqlite"
)

type fakeScraper struct {
	content string
	err     error
}

func (f *fakeScraper) Crawl(ctx context.Context, url string) (*tavily.CrawlResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &tavily.CrawlResult{Content: f.content, PagesFound: 1}, nil
}

type fakeExtractor struct {
	content string
	err     error
}

func (f *fakeExtractor) Supported(filename string) bool {
	return filepath.Ext(filename) == ".pdf"
}

func (f *fakeExtractor) ExtractText(ctx context.Context, data []byte, filename string) (*document.Extraction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &document.Extraction{Filename: filename, Content: f.content, TotalPages: 1}, nil
}

type fakeStore struct {
	mu      sync.Mutex
	chunks  []models.KnowledgeChunk
	agentID int64
	err     error
}

func (f *fakeStore) Upsert(ctx context.Context, agentID int64, chunks []models.KnowledgeChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.agentID = agentID
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeStore) storedAgent() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agentID
}

func (f *fakeStore) stored() []models.KnowledgeChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.KnowledgeChunk, len(f.chunks))
	copy(out, f.chunks)
	return out
}

func newTestCoordinator(t *testing.T, scraper Scraper, extractor Extractor, store Store) (*Coordinator, *sqlite.Client, int64, int64) {
	t.Helper()

	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	agentID, sessionID, err := db.CreateAgentAndSession("")
	require.NoError(t, err)

	coordinator := NewCoordinator(db, scraper, extractor, store, NewChunker(200, 40), 30*time.Second)
	return coordinator, db, agentID, sessionID
}

func waitForTask(t *testing.T, coordinator *Coordinator, taskID string) Task {
	t.Helper()

	var task Task
	require.Eventually(t, func() bool {
		current, ok := coordinator.Tracker().Get(taskID)
		if !ok {
			return false
		}
		task = current
		return task.Status == TaskSucceeded || task.Status == TaskFailed
	}, 5*time.Second, 10*time.Millisecond)

	return task
}

func TestProcessWebsiteOnly(t *testing.T) {
	store := &fakeStore{}
	coordinator, db, agentID, sessionID := newTestCoordinator(t,
		&fakeScraper{content: "We sell handmade furniture. Every piece is built to order in our workshop."},
		&fakeExtractor{},
		store,
	)

	taskID, err := coordinator.Process(context.Background(), sessionID, "https://example.com", nil, "")
	require.NoError(t, err)

	task := waitForTask(t, coordinator, taskID)
	assert.Equal(t, TaskSucceeded, task.Status)
	assert.Greater(t, task.ChunksStored, 0)

	chunks := store.stored()
	require.NotEmpty(t, chunks)
	assert.Equal(t, agentID, store.storedAgent())
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, SourceWebsite, chunk.SourceType)
		assert.NotEmpty(t, chunk.ChunkID)
	}

	session, err := db.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusSucceeded, session.WebScrapingStatus)
	assert.Equal(t, models.StepStatusSkipped, session.DocumentStatus)
	assert.Equal(t, models.StepStatusSucceeded, session.VectorStatus)
}

func TestProcessScrapeFailureStoresNothing(t *testing.T) {
	store := &fakeStore{}
	coordinator, db, _, sessionID := newTestCoordinator(t,
		&fakeScraper{err: errors.New("crawl exploded")},
		&fakeExtractor{},
		store,
	)

	taskID, err := coordinator.Process(context.Background(), sessionID, "https://example.com", nil, "")
	require.NoError(t, err)

	task := waitForTask(t, coordinator, taskID)
	assert.Equal(t, TaskFailed, task.Status)
	assert.NotEmpty(t, task.Error)
	assert.Empty(t, store.stored())

	session, err := db.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusFailed, session.WebScrapingStatus)
}

func TestProcessBothSourcesReindexed(t *testing.T) {
	store := &fakeStore{}
	coordinator, _, _, sessionID := newTestCoordinator(t,
		&fakeScraper{content: "Website copy about our services and pricing."},
		&fakeExtractor{content: "Brochure text about the company history."},
		store,
	)

	taskID, err := coordinator.Process(context.Background(), sessionID, "https://example.com", []byte("%PDF-"), "brochure.pdf")
	require.NoError(t, err)

	task := waitForTask(t, coordinator, taskID)
	require.Equal(t, TaskSucceeded, task.Status)

	chunks := store.stored()
	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
	}
}

func TestProcessUnsupportedDocumentSkipped(t *testing.T) {
	store := &fakeStore{}
	coordinator, db, _, sessionID := newTestCoordinator(t,
		&fakeScraper{content: "Some website content to keep the task alive."},
		&fakeExtractor{content: "should never be read"},
		store,
	)

	taskID, err := coordinator.Process(context.Background(), sessionID, "https://example.com", []byte("plain text"), "notes.txt")
	require.NoError(t, err)

	task := waitForTask(t, coordinator, taskID)
	assert.Equal(t, TaskSucceeded, task.Status)

	for _, chunk := range store.stored() {
		assert.Equal(t, SourceWebsite, chunk.SourceType)
	}

	// The ignored upload is reported as skipped, not as processed work.
	session, err := db.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusSkipped, session.DocumentStatus)
}

func TestProcessUnknownSession(t *testing.T) {
	coordinator, _, _, _ := newTestCoordinator(t, &fakeScraper{}, &fakeExtractor{}, &fakeStore{})

	_, err := coordinator.Process(context.Background(), 9999, "https://example.com", nil, "")
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestProcessStoreFailureMarksVectorFailed(t *testing.T) {
	store := &fakeStore{err: errors.New("vector store down")}
	coordinator, db, _, sessionID := newTestCoordinator(t,
		&fakeScraper{content: "Content that chunks fine but cannot be stored."},
		&fakeExtractor{},
		store,
	)

	taskID, err := coordinator.Process(context.Background(), sessionID, "https://example.com", nil, "")
	require.NoError(t, err)

	task := waitForTask(t, coordinator, taskID)
	assert.Equal(t, TaskFailed, task.Status)

	session, err := db.GetSession(sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusFailed, session.VectorStatus)
}
