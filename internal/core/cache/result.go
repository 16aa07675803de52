package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vmaslov/retrieval-engine/internal/core/domain"
)

type resultEntry struct {
	results   []domain.SearchResult
	expiresAt time.Time
}

// ResultCache memoizes final post-rerank answers keyed by normalized
// query, top-k and the fusion weights version. Entries expire after the
// TTL; capacity pressure evicts the least recently used entry in O(1).
// An expired or corrupt entry is treated as a miss and removed.
type ResultCache struct {
	mu       sync.RWMutex
	entries  *lru.Cache[string, *resultEntry]
	capacity int
	ttl      time.Duration
	now      func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewResultCache(capacity int, ttl time.Duration) (*ResultCache, error) {
	if capacity <= 0 {
		capacity = 1000
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	entries, err := lru.New[string, *resultEntry](capacity)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	return &ResultCache{
		entries:  entries,
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Key builds the deterministic cache key for one search invocation.
// weightsVersion must change whenever the fusion configuration changes
// so stale blends are never served.
func Key(query string, topK int, weightsVersion string) string {
	var b strings.Builder
	b.WriteString(NormalizeQuery(query))
	b.WriteString("|")
	b.WriteString(strconv.Itoa(topK))
	b.WriteString("|")
	b.WriteString(weightsVersion)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// NormalizeQuery lowercases and collapses whitespace so trivially
// different spellings of the same query share a cache slot.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func (c *ResultCache) Get(key string) ([]domain.SearchResult, bool) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries.Get(key)
	if !ok {
		c.mu.RUnlock()
		c.misses.Add(1)
		return nil, false
	}
	if now.After(entry.expiresAt) {
		c.mu.RUnlock()
		c.mu.Lock()
		c.entries.Remove(key)
		c.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	results := cloneResults(entry.results)
	c.mu.RUnlock()

	c.hits.Add(1)
	return results, true
}

func (c *ResultCache) Put(key string, results []domain.SearchResult) {
	entry := &resultEntry{
		results:   cloneResults(results),
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Lock()
	c.entries.Add(key, entry)
	c.mu.Unlock()
}

func (c *ResultCache) Purge() {
	c.mu.Lock()
	c.entries.Purge()
	c.mu.Unlock()
}

func (c *ResultCache) Stats() domain.CacheStats {
	c.mu.RLock()
	size := c.entries.Len()
	c.mu.RUnlock()
	return domain.CacheStats{
		Size:     size,
		Capacity: c.capacity,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
}

// cloneResults keeps cached slices isolated from caller mutation.
func cloneResults(in []domain.SearchResult) []domain.SearchResult {
	out := make([]domain.SearchResult, len(in))
	copy(out, in)
	for i := range out {
		if out[i].Metadata != nil {
			out[i].Metadata = maps.Clone(out[i].Metadata)
		}
	}
	return out
}
