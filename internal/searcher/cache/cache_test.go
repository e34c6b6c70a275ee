package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/resilience"
)

type memBackend struct {
	mu      sync.Mutex
	data    map[string]string
	failGet bool
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string]string)}
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, errors.New("connection refused")
	}
	v, ok := m.data[key]
	if !ok {
		return nil, pkgredis.ErrNil
	}
	return []byte(v), nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(value)
	return nil
}

func (m *memBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func parse(t *testing.T, raw string) *parser.Query {
	t.Helper()
	a, err := analyzer.New(config.AnalyzerConfig{Language: "english", MinTokenLength: 1})
	require.NoError(t, err)
	q, err := parser.Parse(raw, a)
	require.NoError(t, err)
	return q
}

func result(ids ...string) *executor.SearchResult {
	res := &executor.SearchResult{Results: []executor.Result{}}
	for i, id := range ids {
		res.Results = append(res.Results, executor.Result{DocID: id, Score: float64(len(ids) - i)})
	}
	res.TotalHits = len(ids)
	return res
}

func TestGetOrComputeCachesResult(t *testing.T) {
	c := New(newMemBackend(), nil, "/idx", time.Minute, nil)
	ctx := context.Background()
	calls := 0
	compute := func() (*executor.SearchResult, error) {
		calls++
		return result("D2", "D1"), nil
	}

	res, hit, err := c.GetOrCompute(ctx, 1, parse(t, "dog"), 5, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "dog", res.Query)

	res, hit, err = c.GetOrCompute(ctx, 1, parse(t, "dogs"), 5, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "dogs", res.Query)
	assert.Equal(t, "D2", res.Results[0].DocID)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestKeyDependsOnGenerationAndLimit(t *testing.T) {
	c := New(newMemBackend(), nil, "/idx", time.Minute, nil)
	ctx := context.Background()
	q := parse(t, "dog")
	c.Set(ctx, 1, q, 5, result("D1"))

	_, ok := c.Get(ctx, 1, q, 5)
	assert.True(t, ok)
	_, ok = c.Get(ctx, 2, q, 5)
	assert.False(t, ok, "new generation must miss")
	_, ok = c.Get(ctx, 1, q, 6)
	assert.False(t, ok, "different k must miss")
	_, ok = c.Get(ctx, 1, parse(t, "dog name:a.txt"), 5)
	assert.False(t, ok, "field filters are part of the key")
}

func TestNamespacesAreIsolated(t *testing.T) {
	backend := newMemBackend()
	a := New(backend, nil, "/idx-a", time.Minute, nil)
	b := New(backend, nil, "/idx-b", time.Minute, nil)
	ctx := context.Background()
	q := parse(t, "dog")
	a.Set(ctx, 1, q, 5, result("D1"))
	b.Set(ctx, 1, q, 5, result("D9"))

	require.NoError(t, a.Invalidate(ctx))
	_, ok := a.Get(ctx, 1, q, 5)
	assert.False(t, ok)
	res, ok := b.Get(ctx, 1, q, 5)
	require.True(t, ok)
	assert.Equal(t, "D9", res.Results[0].DocID)
}

func TestBackendFailureFallsThrough(t *testing.T) {
	backend := newMemBackend()
	backend.failGet = true
	c := New(backend, nil, "/idx", time.Minute, nil)
	res, hit, err := c.GetOrCompute(context.Background(), 1, parse(t, "dog"), 5, func() (*executor.SearchResult, error) {
		return result("D1"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "D1", res.Results[0].DocID)
}

func TestComputeErrorNotCached(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, nil, "/idx", time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), 1, parse(t, "dog"), 5, func() (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, backend.data)
}

func TestConcurrentMissesShareComputation(t *testing.T) {
	c := New(newMemBackend(), nil, "/idx", time.Minute, nil)
	q := parse(t, "dog")
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		<-release
		return result("D1"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _, err := c.GetOrCompute(context.Background(), 1, q, 5, compute)
			assert.NoError(t, err)
			assert.Equal(t, "D1", res.Results[0].DocID)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestBreakerSkipsFailingBackend(t *testing.T) {
	backend := newMemBackend()
	backend.failGet = true
	breaker := resilience.NewBreaker("cache", resilience.BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	c := New(backend, breaker, "/idx", time.Minute, nil)
	q := parse(t, "dog")

	_, ok := c.Get(context.Background(), 1, q, 5)
	assert.False(t, ok)
	assert.Equal(t, resilience.StateOpen, breaker.State())

	backend.failGet = false
	_, ok = c.Get(context.Background(), 1, q, 5)
	assert.False(t, ok, "open circuit short-circuits the backend")
}
