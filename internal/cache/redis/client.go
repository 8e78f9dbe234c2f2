package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/pkg/logger"
)

type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("embedding:%s", textHash), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	logger.Debug("Embedding cached", zap.String("text_hash", textHash))
	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("embedding:%s", textHash)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float32
	err = json.Unmarshal(data, &embedding)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	logger.Debug("Embedding cache hit", zap.String("text_hash", textHash))
	return embedding, true, nil
}

// Knowledge query caches are keyed per agent so invalidation on upsert or
// delete touches only that agent's entries.

func (c *Client) SetKnowledgeQuery(ctx context.Context, agentID int64, queryHash string, results interface{}, ttl time.Duration) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("knowledge:%d:%s", agentID, queryHash), data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set knowledge cache: %w", err)
	}

	logger.Debug("Knowledge query cached",
		zap.Int64("agent_id", agentID),
		zap.String("query_hash", queryHash),
	)
	return nil
}

func (c *Client) GetKnowledgeQuery(ctx context.Context, agentID int64, queryHash string, results interface{}) (bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("knowledge:%d:%s", agentID, queryHash)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get knowledge cache: %w", err)
	}

	err = json.Unmarshal(data, results)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal results: %w", err)
	}

	logger.Debug("Knowledge cache hit", zap.Int64("agent_id", agentID))
	return true, nil
}

func (c *Client) InvalidateAgentCache(ctx context.Context, agentID int64) error {
	iter := c.client.Scan(ctx, 0, fmt.Sprintf("knowledge:%d:*", agentID), 0).Iterator()
	for iter.Next(ctx) {
		err := c.client.Del(ctx, iter.Val()).Err()
		if err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Debug("Agent knowledge cache invalidated", zap.Int64("agent_id", agentID))
	return nil
}
