package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vmaslov/retrieval-engine/internal/core/domain"
)

// EmbeddingCache memoizes embedding calls keyed by a content hash so
// repeated or retried queries never re-invoke the model. Every entry
// carries a vector of the single dimension fixed at construction.
type EmbeddingCache struct {
	entries  *lru.Cache[string, []float32]
	capacity int
	dim      int

	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewEmbeddingCache(capacity, dimension int) (*EmbeddingCache, error) {
	if capacity <= 0 {
		capacity = 500
	}
	if dimension <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "embedding cache", fmt.Errorf("dimension must be positive, got %d", dimension))
	}
	entries, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &EmbeddingCache{entries: entries, capacity: capacity, dim: dimension}, nil
}

// GetOrCompute returns the cached vector for text, or invokes embed and
// stores its result. A vector of the wrong dimension is a configuration
// fault, never cached and never returned.
func (c *EmbeddingCache) GetOrCompute(ctx context.Context, text string, embed func(context.Context, string) ([]float32, error)) ([]float32, error) {
	key := ContentHash(text)
	if vec, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return cloneVector(vec), nil
	}
	c.misses.Add(1)

	vec, err := embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != c.dim {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "embedding cache",
			fmt.Errorf("model returned %d-dimensional vector, collection expects %d", len(vec), c.dim))
	}
	c.entries.Add(key, cloneVector(vec))
	return vec, nil
}

func (c *EmbeddingCache) Dimension() int {
	return c.dim
}

func (c *EmbeddingCache) Purge() {
	c.entries.Purge()
}

func (c *EmbeddingCache) Stats() domain.CacheStats {
	return domain.CacheStats{
		Size:     c.entries.Len(),
		Capacity: c.capacity,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}

// ContentHash is the cache key for a text: hex-encoded SHA-256.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// cloneVector guards cached vectors against caller mutation.
func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
