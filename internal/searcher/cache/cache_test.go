package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/internal/searcher/ranker"
	pkgredis "github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/program-facts-search/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	down bool
	gets atomic.Int64
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

var errDown = errors.New("connection refused")

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.gets.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return "", errDown
	}
	v, ok := s.data[key]
	if !ok {
		return "", pkgredis.ErrMiss
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errDown
	}
	s.data[key] = string(value)
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func result(gen uint64) *executor.SearchResult {
	return &executor.SearchResult{
		Query:      "онлайн формат",
		TotalHits:  1,
		Results:    []ranker.ScoredDoc{{DocID: "ai_product", Score: 1.25}},
		Terms:      []string{"онлайн", "формат"},
		Generation: gen,
	}
}

func TestBuildKey(t *testing.T) {
	a := BuildKey(parser.Parse("Онлайн ФОРМАТ!"), 5, 1)
	b := BuildKey(parser.Parse("формат, онлайн онлайн"), 5, 1)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, BuildKey(parser.Parse("онлайн формат"), 6, 1))
	assert.NotEqual(t, a, BuildKey(parser.Parse("онлайн формат"), 5, 2))
	assert.Regexp(t, `^pfsearch:g1:[0-9a-f]{32}$`, a)
}

func TestGetOrCompute(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute)
	plan := parser.Parse("онлайн формат")
	ctx := context.Background()

	var computed int
	compute := func() (*executor.SearchResult, error) {
		computed++
		return result(1), nil
	}

	got, hit, err := c.GetOrCompute(ctx, plan, 5, 1, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, result(1), got)

	got, hit, err = c.GetOrCompute(ctx, plan, 5, 1, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, result(1), got)
	assert.Equal(t, 1, computed)

	// A new generation misses.
	_, hit, err = c.GetOrCompute(ctx, plan, 5, 2, func() (*executor.SearchResult, error) {
		return result(2), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)

	stats := c.Stats()
	assert.EqualValues(t, 1, stats.Hits)
	assert.EqualValues(t, 2, stats.Misses)
	assert.EqualValues(t, 0, stats.Errors)
	assert.Equal(t, "33.3%", stats.HitRate)
}

func TestGetOrComputePropagatesErrors(t *testing.T) {
	c := New(newMemStore(), time.Minute)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), parser.Parse("x y"), 5, 1,
		func() (*executor.SearchResult, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestBackendFailureDegradesToMiss(t *testing.T) {
	store := newMemStore()
	store.down = true
	c := New(store, time.Minute)
	plan := parser.Parse("онлайн")

	for i := 0; i < 10; i++ {
		got, hit, err := c.GetOrCompute(context.Background(), plan, 5, 1,
			func() (*executor.SearchResult, error) { return result(1), nil })
		require.NoError(t, err)
		assert.False(t, hit)
		assert.NotNil(t, got)
	}

	stats := c.Stats()
	assert.Equal(t, resilience.StateOpen.String(), stats.Breaker.State)
	assert.Positive(t, stats.Breaker.Rejected)
	assert.Less(t, store.gets.Load(), int64(10), "open breaker skips the backend")
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute)
	ctx := context.Background()
	c.Set(ctx, parser.Parse("онлайн"), 5, result(1))
	c.Set(ctx, parser.Parse("формат"), 5, result(2))
	store.data["other:key"] = "keep"

	n, err := c.Invalidate(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Len(t, store.data, 1)

	_, hit := c.Get(ctx, parser.Parse("онлайн"), 5, 1)
	assert.False(t, hit)
}

func TestCorruptEntryIsMiss(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute)
	plan := parser.Parse("онлайн")
	store.data[BuildKey(plan, 5, 1)] = "{not json"

	_, hit := c.Get(context.Background(), plan, 5, 1)
	assert.False(t, hit)
	assert.EqualValues(t, 1, c.Stats().Errors)
}
