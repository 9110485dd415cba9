package rerankcache

import (
	"sync"

	"github.com/kirillkom/evidence-engine/internal/core/ports"
)

// Cache is an in-memory cross-encoder score cache keyed by (model, query
// hash, candidate id). Write-once per key in practice: scoring is
// deterministic for fixed inputs, so racing writers converge on the same
// value.
type Cache struct {
	mu     sync.RWMutex
	scores map[string]float64
}

func New() *Cache {
	return &Cache{scores: make(map[string]float64)}
}

var _ ports.RerankCache = (*Cache)(nil)

func (c *Cache) Get(model, queryHash, candidateID string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	score, ok := c.scores[cacheKey(model, queryHash, candidateID)]
	return score, ok
}

func (c *Cache) Put(model, queryHash, candidateID string, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scores[cacheKey(model, queryHash, candidateID)] = score
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.scores)
}

func cacheKey(model, queryHash, candidateID string) string {
	return model + "|" + queryHash + "|" + candidateID
}
