package knowledge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/internal/metrics"
	"github.com/mysteryisfun/Voice-platform/internal/storage/models"
	"github.com/mysteryisfun/Voice-platform/internal/storage/sqlite"
	"github.com/mysteryisfun/Voice-platform/internal/vector/milvus"
	"github.com/mysteryisfun/Voice-platform/pkg/logger"
	"github.com/mysteryisfun/Voice-platform/pkg/utils"
)

const (
	embeddingCacheTTL = 24 * time.Hour
	queryCacheTTL     = 10 * time.Minute
)

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type Index interface {
	Insert(ctx context.Context, chunks []milvus.Chunk) error
	Search(ctx context.Context, agentID int64, queryEmbedding []float32, topK int) ([]milvus.SearchResult, error)
	DeleteAgent(ctx context.Context, agentID int64) error
}

type Cache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
	GetKnowledgeQuery(ctx context.Context, agentID int64, queryHash string, results interface{}) (bool, error)
	SetKnowledgeQuery(ctx context.Context, agentID int64, queryHash string, results interface{}, ttl time.Duration) error
	InvalidateAgentCache(ctx context.Context, agentID int64) error
}

type Result struct {
	ChunkID    string  `json:"chunk_id"`
	Text       string  `json:"text"`
	SourceType string  `json:"source_type"`
	SourceURL  string  `json:"source_url"`
	Score      float32 `json:"score"`
}

type AgentStats struct {
	AgentID    int64 `json:"agent_id"`
	ChunkCount int   `json:"chunk_count"`
}

// Store is the agent knowledge base: embeddings in the vector index, chunk
// rows in SQLite, with a redis cache in front of embeddings and query
// results. The cache may be nil; everything degrades to direct calls.
type Store struct {
	index    Index
	embedder Embedder
	cache    Cache
	db       *sqlite.Client
}

func NewStore(index Index, embedder Embedder, cache Cache, db *sqlite.Client) *Store {
	return &Store{
		index:    index,
		embedder: embedder,
		cache:    cache,
		db:       db,
	}
}

// Upsert embeds the chunks and writes them to the agent's namespace. Chunk
// IDs are deterministic per (agent, index) so re-ingestion overwrites rather
// than duplicates.
func (s *Store) Upsert(ctx context.Context, agentID int64, chunks []models.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	embeddings, err := s.embedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks))
	}

	vectorChunks := make([]milvus.Chunk, len(chunks))
	for i, chunk := range chunks {
		vectorChunks[i] = milvus.Chunk{
			ChunkID:    chunk.ChunkID,
			AgentID:    agentID,
			Embedding:  embeddings[i],
			Text:       chunk.Content,
			SourceType: chunk.SourceType,
			SourceURL:  chunk.SourceURL,
			ChunkIndex: int64(chunk.ChunkIndex),
		}
	}

	if err := s.index.Insert(ctx, vectorChunks); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}

	for i := range chunks {
		chunks[i].AgentID = agentID
		if err := s.db.InsertKnowledgeChunk(&chunks[i]); err != nil {
			logger.Warn("Failed to persist chunk row",
				zap.String("chunk_id", chunks[i].ChunkID),
				zap.Error(err),
			)
		}
	}

	s.invalidate(ctx, agentID)

	logger.Info("Knowledge upserted",
		zap.Int64("agent_id", agentID),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

// Query returns the topK most relevant chunks for the agent, best first.
func (s *Store) Query(ctx context.Context, agentID int64, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = 5
	}

	queryHash := utils.HashString(fmt.Sprintf("%s|%d", query, topK))
	if s.cache != nil {
		var cached []Result
		hit, err := s.cache.GetKnowledgeQuery(ctx, agentID, queryHash, &cached)
		if err != nil {
			logger.Warn("Knowledge cache read failed", zap.Error(err))
		}
		if hit {
			metrics.CacheHits.WithLabelValues("knowledge").Inc()
			return cached, nil
		}
		metrics.CacheMisses.WithLabelValues("knowledge").Inc()
	}

	start := time.Now()

	embedding, err := s.embedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	searchResults, err := s.index.Search(ctx, agentID, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge: %w", err)
	}

	results := make([]Result, 0, len(searchResults))
	for _, sr := range searchResults {
		results = append(results, Result{
			ChunkID:    sr.ChunkID,
			Text:       sr.Text,
			SourceType: sr.SourceType,
			SourceURL:  sr.SourceURL,
			Score:      sr.Score,
		})
	}

	metrics.KnowledgeQueryDuration.Observe(time.Since(start).Seconds())

	if s.cache != nil {
		if err := s.cache.SetKnowledgeQuery(ctx, agentID, queryHash, results, queryCacheTTL); err != nil {
			logger.Warn("Knowledge cache write failed", zap.Error(err))
		}
	}

	return results, nil
}

// Drop deletes every chunk in the agent's namespace, index and rows both.
func (s *Store) Drop(ctx context.Context, agentID int64) error {
	if err := s.index.DeleteAgent(ctx, agentID); err != nil {
		return fmt.Errorf("failed to drop namespace: %w", err)
	}

	if err := s.db.DeleteKnowledgeChunks(agentID); err != nil {
		return fmt.Errorf("failed to delete chunk rows: %w", err)
	}

	s.invalidate(ctx, agentID)

	logger.Info("Knowledge namespace dropped", zap.Int64("agent_id", agentID))
	return nil
}

func (s *Store) Stats(ctx context.Context, agentID int64) (*AgentStats, error) {
	count, err := s.db.CountKnowledgeChunks(agentID)
	if err != nil {
		return nil, err
	}
	return &AgentStats{AgentID: agentID, ChunkCount: count}, nil
}

func (s *Store) embedText(ctx context.Context, text string) ([]float32, error) {
	textHash := utils.HashString(text)
	if s.cache != nil {
		embedding, hit, err := s.cache.GetEmbedding(ctx, textHash)
		if err != nil {
			logger.Warn("Embedding cache read failed", zap.Error(err))
		}
		if hit {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return embedding, nil
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetEmbedding(ctx, textHash, embedding, embeddingCacheTTL); err != nil {
			logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}
	return embedding, nil
}

func (s *Store) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	missing := make([]string, 0, len(texts))
	missingIdx := make([]int, 0, len(texts))

	for i, text := range texts {
		if s.cache == nil {
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
			continue
		}
		embedding, hit, err := s.cache.GetEmbedding(ctx, utils.HashString(text))
		if err != nil {
			logger.Warn("Embedding cache read failed", zap.Error(err))
		}
		if hit {
			embeddings[i] = embedding
		} else {
			missing = append(missing, text)
			missingIdx = append(missingIdx, i)
		}
	}

	if len(missing) > 0 {
		fresh, err := s.embedder.GenerateBatchEmbeddings(ctx, missing)
		if err != nil {
			return nil, err
		}
		if len(fresh) != len(missing) {
			return nil, fmt.Errorf("batch embedding count mismatch: got %d, expected %d", len(fresh), len(missing))
		}
		for j, idx := range missingIdx {
			embeddings[idx] = fresh[j]
			if s.cache != nil {
				if err := s.cache.SetEmbedding(ctx, utils.HashString(missing[j]), fresh[j], embeddingCacheTTL); err != nil {
					logger.Warn("Embedding cache write failed", zap.Error(err))
				}
			}
		}
	}

	return embeddings, nil
}

func (s *Store) invalidate(ctx context.Context, agentID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAgentCache(ctx, agentID); err != nil {
		logger.Warn("Failed to invalidate agent cache", zap.Error(err))
	}
}
