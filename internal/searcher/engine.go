// Package searcher serves ranked queries from the latest committed snapshot
// of an index directory.
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/metrics"
)

type (
	Result       = executor.Result
	SearchResult = executor.SearchResult
)

type Options struct {
	Cache   *cache.QueryCache
	Metrics *metrics.Metrics
	// MaxResults caps k. Zero means no cap.
	MaxResults int
}

// Engine answers queries against one snapshot at a time. Reload swaps in
// the newest committed generation; searches already running finish on the
// snapshot they started with.
type Engine struct {
	dir    string
	opts   Options
	exec   *executor.Executor
	mu     sync.RWMutex
	snap   *segment.Snapshot
	an     *analyzer.Analyzer
	closed bool

	logger *slog.Logger
}

// Open loads the current snapshot of dir. It fails with an
// IndexNotFoundError if nothing was ever committed there.
func Open(dir string, opts Options) (*Engine, error) {
	e := &Engine{
		dir:    dir,
		opts:   opts,
		exec:   executor.New(),
		logger: slog.Default().With("component", "query-engine", "dir", dir),
	}
	snap, an, err := e.open()
	if err != nil {
		return nil, err
	}
	e.snap, e.an = snap, an
	e.opts.Metrics.ObserveReload("success", snap.DocumentCount())
	e.logger.Info("snapshot opened",
		"generation", snap.Generation(),
		"documents", snap.DocumentCount(),
		"terms", snap.TermCount(),
	)
	return e, nil
}

func (e *Engine) open() (*segment.Snapshot, *analyzer.Analyzer, error) {
	snap, err := segment.OpenReadOnly(e.dir)
	if err != nil {
		return nil, nil, err
	}
	an, err := analyzer.New(snap.Analyzer())
	if err != nil {
		snap.Close()
		return nil, nil, &apperrors.PersistenceError{Op: "restoring analyzer for " + e.dir, Cause: err}
	}
	return snap, an, nil
}

// Search returns the k best documents for raw. A query with no terms left
// after analysis yields no results.
func (e *Engine) Search(ctx context.Context, raw string, k int) (*SearchResult, error) {
	start := time.Now()
	res, cacheStatus, err := e.search(ctx, raw, k)
	elapsed := time.Since(start)
	if err != nil {
		e.opts.Metrics.ObserveSearch("error", cacheStatus, elapsed.Seconds(), 0)
		return nil, err
	}
	resultType := "hit"
	if len(res.Results) == 0 {
		resultType = "zero_result"
	}
	e.opts.Metrics.ObserveSearch(resultType, cacheStatus, elapsed.Seconds(), len(res.Results))
	e.logger.Debug("search completed",
		"query", raw,
		"k", k,
		"results", len(res.Results),
		"total_hits", res.TotalHits,
		"cache", cacheStatus,
		"latency_ms", elapsed.Milliseconds(),
	)
	return res, nil
}

func (e *Engine) search(ctx context.Context, raw string, k int) (*SearchResult, string, error) {
	cacheStatus := "disabled"
	if e.opts.Cache != nil {
		cacheStatus = "miss"
	}
	if k <= 0 {
		return nil, cacheStatus, fmt.Errorf("k must be positive, got %d: %w", k, apperrors.ErrInvalidInput)
	}
	if e.opts.MaxResults > 0 && k > e.opts.MaxResults {
		k = e.opts.MaxResults
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, cacheStatus, fmt.Errorf("query engine is closed: %w", apperrors.ErrInternal)
	}
	q, err := parser.Parse(raw, e.an)
	if err != nil {
		return nil, cacheStatus, err
	}
	snap := e.snap
	compute := func() (*SearchResult, error) {
		res, err := e.exec.Execute(ctx, snap, q, k)
		if err != nil {
			return nil, err
		}
		res.Generation = snap.Generation()
		return res, nil
	}
	if e.opts.Cache == nil {
		res, err := compute()
		return res, cacheStatus, err
	}
	res, hit, err := e.opts.Cache.GetOrCompute(ctx, snap.Generation(), q, k, compute)
	if hit {
		cacheStatus = "hit"
	}
	return res, cacheStatus, err
}

// Reload switches to the newest committed generation, if it differs from the
// one being served. The previous snapshot is closed once no search holds it.
func (e *Engine) Reload() error {
	snap, an, err := e.open()
	if err != nil {
		e.opts.Metrics.ObserveReload("error", 0)
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		snap.Close()
		return fmt.Errorf("query engine is closed: %w", apperrors.ErrInternal)
	}
	old := e.snap
	if old.Generation() == snap.Generation() {
		e.mu.Unlock()
		snap.Close()
		return nil
	}
	e.snap, e.an = snap, an
	e.mu.Unlock()

	if err := old.Close(); err != nil {
		e.logger.Warn("closing previous snapshot", "generation", old.Generation(), "error", err)
	}
	e.opts.Metrics.ObserveReload("success", snap.DocumentCount())
	e.logger.Info("snapshot reloaded",
		"previous_generation", old.Generation(),
		"generation", snap.Generation(),
		"documents", snap.DocumentCount(),
	)
	return nil
}

// Generation is the generation currently served.
func (e *Engine) Generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap.Generation()
}

func (e *Engine) DocumentCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snap.DocumentCount()
}

func (e *Engine) Dir() string {
	return e.dir
}

// Close releases the snapshot. Searches started afterwards fail.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.snap.Close()
}
