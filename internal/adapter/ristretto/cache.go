// Package ristretto implements the walk-cache port over
// dgraph-io/ristretto. Tree listings are many small values with high
// churn (any write to the workspace stales them), so entries are keyed
// through a per-workspace generation counter: invalidating a workspace
// is a counter bump, and the orphaned generation ages out of the cache
// on its own under cost pressure.
package ristretto

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// entryOverhead approximates per-entry bookkeeping (key text plus
// ristretto metadata) charged on top of the value bytes, so thousands
// of small directory listings cannot blow past the configured budget.
const entryOverhead = 64

// Cache is a workspace-scoped walk cache.
type Cache struct {
	c *ristretto.Cache[string, []byte]

	mu          sync.Mutex
	generations map[string]uint64
}

// New creates a walk cache. maxCostBytes bounds the total size of
// cached values plus per-entry overhead.
func New(maxCostBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// Walk results are small; budget counters for tens of
		// thousands of entries rather than deriving from byte size.
		NumCounters: 100_000,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{
		c:           c,
		generations: make(map[string]uint64),
	}, nil
}

// scopedKey prefixes the key with the root's current generation; a
// bumped generation makes every older entry unreachable.
func (c *Cache) scopedKey(root, key string) string {
	c.mu.Lock()
	gen := c.generations[root]
	c.mu.Unlock()
	return fmt.Sprintf("%d\x00%s\x00%s", gen, root, key)
}

// Get retrieves a value cached under the root's current generation.
func (c *Cache) Get(_ context.Context, root, key string) (data []byte, ok bool, err error) {
	val, found := c.c.Get(c.scopedKey(root, key))
	if !found {
		return nil, false, nil
	}
	return val, true, nil
}

// Set stores a value under the root's current generation.
func (c *Cache) Set(_ context.Context, root, key string, value []byte, ttl time.Duration) error {
	scoped := c.scopedKey(root, key)
	cost := int64(len(value)+len(scoped)) + entryOverhead
	c.c.SetWithTTL(scoped, value, cost, ttl)
	return nil
}

// Invalidate drops every entry for the root by advancing its
// generation. Stale entries are evicted lazily by cost pressure or TTL.
func (c *Cache) Invalidate(_ context.Context, root string) error {
	c.mu.Lock()
	c.generations[root]++
	c.mu.Unlock()
	return nil
}

// Wait blocks until buffered writes are applied. Used by tests; the
// agent itself tolerates the set buffer's latency.
func (c *Cache) Wait() {
	c.c.Wait()
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
