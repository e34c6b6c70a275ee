// Package cache memoizes search results in Redis. Keys include the snapshot
// generation, so a commit never serves results computed against an older
// generation.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/resilience"
)

const keyPrefix = "search:"

// Backend is the key-value store behind the cache. *redis.Client
// implements it. Get must return an error satisfying redis.IsNilError for
// absent keys.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	backend   Backend
	breaker   *resilience.Breaker
	ttl       time.Duration
	namespace string
	group     singleflight.Group
	metrics   *metrics.Metrics
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// New returns a cache for the index at dir. Entries expire after ttl.
// Backend calls go through breaker, which may be nil.
func New(backend Backend, breaker *resilience.Breaker, dir string, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	ns := sha256.Sum256([]byte(dir))
	return &QueryCache{
		backend:   backend,
		breaker:   breaker,
		ttl:       ttl,
		namespace: fmt.Sprintf("%x:", ns[:6]),
		metrics:   m,
		logger:    slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, generation uint64, q *parser.Query, k int) (*executor.SearchResult, bool) {
	key := c.buildKey(generation, q, k)
	var data []byte
	found := false
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		v, err := c.backend.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return nil
		}
		if err != nil {
			return err
		}
		data, found = v, true
		return nil
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
	}
	if !found {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.ObserveCache(true)
	c.logger.Debug("cache hit", "query", q.Raw, "key", key)
	result.Query = q.Raw
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, generation uint64, q *parser.Query, k int, result *executor.SearchResult) {
	key := c.buildKey(generation, q, k)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for q or computes and stores it.
// Concurrent misses for the same key share one computation. The boolean
// reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation uint64,
	q *parser.Query,
	k int,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, generation, q, k); ok {
		return result, true, nil
	}
	key := c.buildKey(generation, q, k)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, generation, q, k, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	shared := val.(*executor.SearchResult)
	out := *shared
	out.Query = q.Raw
	return &out, false, nil
}

// Invalidate drops every entry of this index.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+c.namespace+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.ObserveCache(false)
}

func (c *QueryCache) buildKey(generation uint64, q *parser.Query, k int) string {
	raw := fmt.Sprintf("%d|%s|k=%d", generation, q.Normalized(), k)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s%x", keyPrefix, c.namespace, hash[:16])
}
