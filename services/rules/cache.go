package rules

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/upb/dataguardian/models"
)

// RuleCache is an LRU cache with TTL for rules keyed by id.
// Cached rules are shared; callers must not mutate them.
type RuleCache struct {
	lru     *expirable.LRU[uuid.UUID, *models.Rule]
	maxSize int
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// NewRuleCache creates a new RuleCache with specified max size and TTL
func NewRuleCache(maxSize int, ttl time.Duration) *RuleCache {
	return &RuleCache{
		lru:     expirable.NewLRU[uuid.UUID, *models.Rule](maxSize, nil, ttl),
		maxSize: maxSize,
	}
}

// Get returns the cached rule, or false when absent or expired
func (c *RuleCache) Get(id uuid.UUID) (*models.Rule, bool) {
	rule, ok := c.lru.Get(id)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return rule, true
}

// Set stores rule, evicting the least recently used entry if full
func (c *RuleCache) Set(rule *models.Rule) {
	c.lru.Add(rule.ID, rule)
}

// Invalidate removes a rule from the cache
func (c *RuleCache) Invalidate(id uuid.UUID) {
	c.lru.Remove(id)
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns cache statistics
func (c *RuleCache) Stats() CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Size:    c.lru.Len(),
		MaxSize: c.maxSize,
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate,
	}
}
