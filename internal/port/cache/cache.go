// Package cache defines the port interface for the workspace walk
// cache. Entries are scoped to a workspace root so that tools which
// mutate the tree can drop every cached walk for that workspace at
// once.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for root-scoped walk caching.
type Cache interface {
	Get(ctx context.Context, root, key string) ([]byte, bool, error)
	Set(ctx context.Context, root, key string, value []byte, ttl time.Duration) error

	// Invalidate drops all entries cached under the given root.
	Invalidate(ctx context.Context, root string) error
}
