package rag

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"textbook-rag-platform/internal/logger"
	"textbook-rag-platform/utils"
)

// QueryCache memoizes query embeddings in Redis so repeated questions skip
// the embedding API call. All methods are nil-receiver safe; a nil cache
// simply misses, so callers never branch on whether caching is configured.
type QueryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewQueryCache wraps a Redis client. Pass nil to disable caching.
func NewQueryCache(client *redis.Client, ttl time.Duration) *QueryCache {
	if client == nil {
		return nil
	}
	return &QueryCache{client: client, ttl: ttl}
}

func cacheKey(model, query string) string {
	return "embed:" + utils.SHA1Hex([]byte(model+"|"+query))
}

// Get returns the cached embedding for a model/query pair, or nil on miss.
func (c *QueryCache) Get(ctx context.Context, model, query string) []float32 {
	if c == nil {
		return nil
	}
	data, err := c.client.Get(ctx, cacheKey(model, query)).Bytes()
	if err != nil {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil
	}
	return vec
}

// Set stores an embedding. Cache write failures are logged and swallowed.
func (c *QueryCache) Set(ctx context.Context, model, query string, vec []float32) {
	if c == nil {
		return
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(model, query), data, c.ttl).Err(); err != nil {
		logger.Debug("embedding cache write failed", "error", err)
	}
}
