// Package cache provides an in-memory Ristretto cache for rendered graph
// context blocks. Ego walks over a large graph re-render the same subgraph
// many times within a session (every conversational turn re-anchors on
// similar input), so rendered blocks are cached keyed by anchor set, depth
// and store generation. Mutations bump the generation, so stale entries
// simply stop being addressable.
package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
)

// WalkCache caches rendered ego-walk context blocks.
type WalkCache struct {
	cache  *ristretto.Cache[string, string]
	ttl    time.Duration
	logger *zap.Logger
}

// NewWalkCache creates a walk cache. maxCost is the total cached text size
// in bytes (default 1 MiB), ttl the entry lifetime (default 10 minutes).
func NewWalkCache(maxCost int64, ttl time.Duration, logger *zap.Logger) (*WalkCache, error) {
	if maxCost <= 0 {
		maxCost = 1 << 20
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 10_000,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}

	return &WalkCache{
		cache:  c,
		ttl:    ttl,
		logger: logger.Named("walkcache"),
	}, nil
}

// Key builds the cache key for a walk. Anchor order is part of the key:
// it determines render order, so reordered anchors are a different block.
func Key(generation uint64, depth int, anchorIDs []string) string {
	return fmt.Sprintf("%d|%d|%s", generation, depth, strings.Join(anchorIDs, ","))
}

// Get returns the cached block for key, if present.
func (w *WalkCache) Get(key string) (string, bool) {
	return w.cache.Get(key)
}

// Set stores a rendered block. Cost is the block length in bytes.
func (w *WalkCache) Set(key, block string) {
	w.cache.SetWithTTL(key, block, int64(len(block)), w.ttl)
}

// Wait flushes pending writes. Ristretto applies sets asynchronously;
// tests call this before asserting on Get.
func (w *WalkCache) Wait() {
	w.cache.Wait()
}

// Close releases the cache resources.
func (w *WalkCache) Close() {
	w.cache.Close()
}
