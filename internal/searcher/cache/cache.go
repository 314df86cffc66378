// Package cache keeps search results in Redis, keyed by index generation so a
// rebuild makes every older entry unreachable.
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

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/parser"
	pkgredis "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/resilience"
)

const keyPrefix = "pfsearch:"

// Store is the key-value backend. *pkgredis.Client implements it; Get must
// return an error matching pkgredis.ErrMiss for absent keys.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type Stats struct {
	Hits    int64                   `json:"hits"`
	Misses  int64                   `json:"misses"`
	Errors  int64                   `json:"errors"`
	Total   int64                   `json:"total"`
	HitRate string                  `json:"hit_rate"`
	Breaker resilience.BreakerStats `json:"breaker"`
}

// QueryCache is a read-through cache in front of the executor. Backend
// failures are logged and treated as misses; concurrent misses for the same
// key compute once.
type QueryCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
	errors  atomic.Int64
}

func New(store Store, ttl time.Duration) *QueryCache {
	return &QueryCache{
		store: store,
		ttl:   ttl,
		breaker: resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     15 * time.Second,
			IsFailure: func(err error) bool {
				return err != nil && !pkgredis.IsMiss(err)
			},
		}),
		logger: slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, plan *parser.QueryPlan, limit int, generation uint64) (*executor.SearchResult, bool) {
	key := BuildKey(plan, limit, generation)
	var data string
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		return err
	})
	if err != nil {
		if !pkgredis.IsMiss(err) {
			c.errors.Add(1)
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.errors.Add(1)
		c.misses.Add(1)
		c.logger.Error("cache entry undecodable", "key", key, "error", err)
		return nil, false
	}
	c.hits.Add(1)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, plan *parser.QueryPlan, limit int, result *executor.SearchResult) {
	key := BuildKey(plan, limit, result.Generation)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	}); err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for plan, or runs compute and caches
// what it returns. The bool reports a cache hit. Results whose generation
// differs from the requested one are returned but not cached under it.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	plan *parser.QueryPlan,
	limit int,
	generation uint64,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, plan, limit, generation); ok {
		return result, true, nil
	}
	key := BuildKey(plan, limit, generation)
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, plan, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate deletes every cached result of every generation.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	var deleted int64
	err := c.breaker.Execute(func() error {
		var err error
		deleted, err = c.store.FlushByPattern(ctx, keyPrefix+"*")
		return err
	})
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	total := hits + misses
	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return Stats{
		Hits:    hits,
		Misses:  misses,
		Errors:  c.errors.Load(),
		Total:   total,
		HitRate: fmt.Sprintf("%.1f%%", rate),
		Breaker: c.breaker.Stats(),
	}
}

// BreakerState reports the Redis circuit breaker's state for metrics.
func (c *QueryCache) BreakerState() resilience.State {
	return c.breaker.State()
}

// BuildKey derives the cache key from the plan's term set, the limit and the
// index generation. Queries differing only in case, punctuation, word order
// or repeated words share a key.
func BuildKey(plan *parser.QueryPlan, limit int, generation uint64) string {
	raw := fmt.Sprintf("%s|limit=%d", plan.Normalized(), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%sg%d:%x", keyPrefix, generation, hash[:16])
}
