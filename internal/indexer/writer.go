// Package indexer turns documents into postings in an in-memory store and
// commits the store to an index directory as one atomic snapshot.
package indexer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/events"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/metrics"
)

// Catalog records the outcome of every committed batch.
type Catalog interface {
	RecordBatch(ctx context.Context, b catalog.Batch) error
}

// Notifier announces successful commits.
type Notifier interface {
	NotifyCommit(ctx context.Context, ev events.CommitEvent) error
}

// Options carries the optional collaborators of a Writer. Zero values
// disable them; MaxDocumentBytes <= 0 means no size limit.
type Options struct {
	Catalog          Catalog
	Notifier         Notifier
	Metrics          *metrics.Metrics
	MaxDocumentBytes int64
}

// BatchReport tallies one IngestBatch call.
type BatchReport struct {
	BatchID    string        `json:"batch_id"`
	Generation uint64        `json:"generation"`
	Attempted  int           `json:"attempted"`
	Added      int           `json:"added"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
	Errors     []error       `json:"-"`
}

// pending accumulates everything ingested since the last commit.
type pending struct {
	id        string
	startedAt time.Time
	attempted int
	added     int
	skipped   int
	failed    int
	entries   []catalog.Entry
}

func newPending() pending {
	return pending{id: uuid.NewString(), startedAt: time.Now().UTC()}
}

// Writer is the single writer of an index directory. Ingestion is
// sequential; the mutex only guards against accidental concurrent use.
type Writer struct {
	mu       sync.Mutex
	store    *index.Store
	dir      *segment.Dir
	analyzer *analyzer.Analyzer
	opts     Options
	batch    pending
	logger   *slog.Logger
}

func New(store *index.Store, dir *segment.Dir, a *analyzer.Analyzer, opts Options) *Writer {
	return &Writer{
		store:    store,
		dir:      dir,
		analyzer: a,
		opts:     opts,
		batch:    newPending(),
		logger:   slog.Default().With("component", "indexer"),
	}
}

// Open locks the index directory described by cfg and returns a writer over
// it. In append mode the latest snapshot is loaded first; it must have been
// built with the same analyzer settings as a.
func Open(cfg config.IndexConfig, a *analyzer.Analyzer, opts Options) (*Writer, error) {
	codec, err := segment.ParseCodec(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	dir, err := segment.Open(cfg.DataDir, cfg.Mode, codec)
	if err != nil {
		return nil, err
	}
	store := index.NewStore()
	if m, ok := dir.Current(); ok {
		if !SameAnalyzer(m.Analyzer, a.Settings()) {
			dir.Close()
			return nil, fmt.Errorf("%w: index in %s was built with analyzer %+v, not %+v; reopen it in %q mode",
				apperrors.ErrInvalidInput, cfg.DataDir, m.Analyzer, a.Settings(), config.ModeCreate)
		}
		snap, err := dir.Load()
		if err != nil {
			dir.Close()
			return nil, err
		}
		store.Load(snap)
	}
	return New(store, dir, a, opts), nil
}

// SameAnalyzer reports whether two analyzer settings produce the same terms.
func SameAnalyzer(a, b config.AnalyzerConfig) bool {
	return a.Language == b.Language &&
		a.MinTokenLength == b.MinTokenLength &&
		slices.Equal(a.StopWords, b.StopWords)
}

// Ingest analyzes doc and adds it to the in-memory store. Empty or non-text
// content, and identifiers the store already holds, are Skipped. Any other failure is returned as an
// *apperrors.IngestError and leaves the store untouched.
func (w *Writer) Ingest(ctx context.Context, doc Document) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Failed, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	outcome, reason, err := w.ingest(doc)
	w.track(doc, outcome, reason, err)
	return outcome, err
}

func (w *Writer) ingest(doc Document) (Outcome, string, error) {
	if err := validateDocument(doc); err != nil {
		return Failed, "", &apperrors.IngestError{DocID: doc.ID, Cause: err}
	}
	if _, ok := w.store.Lookup(doc.ID); ok {
		return Skipped, "already indexed", nil
	}
	data, err := w.read(doc)
	if err != nil {
		return Failed, "", &apperrors.IngestError{DocID: doc.ID, Cause: err}
	}
	if reason, ok := textContent(data); !ok {
		return Skipped, reason, nil
	}
	w.store.SetFields(doc.ID, doc.Path, doc.Name)
	w.store.Add(doc.ID, w.analyzer.Tokens(string(data)))
	return Added, "", nil
}

// read loads the whole document so that a failure part way through never
// leaves partial postings behind.
func (w *Writer) read(doc Document) ([]byte, error) {
	rc, err := doc.Source()
	if err != nil {
		return nil, fmt.Errorf("opening: %w", err)
	}
	defer rc.Close()

	var r io.Reader = rc
	limit := w.opts.MaxDocumentBytes
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("document exceeds %d bytes", limit)
	}
	return data, nil
}

func textContent(data []byte) (string, bool) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "empty content", false
	}
	if bytes.IndexByte(data, 0) >= 0 || !utf8.Valid(data) {
		return "non-text content", false
	}
	return "", true
}

func (w *Writer) track(doc Document, outcome Outcome, reason string, err error) {
	entry := catalog.Entry{
		DocID:      doc.ID,
		Path:       doc.Path,
		Outcome:    outcome.String(),
		RecordedAt: time.Now().UTC(),
	}
	w.batch.attempted++
	switch outcome {
	case Added:
		w.batch.added++
		w.logger.Info("Added", "doc_id", doc.ID)
	case Skipped:
		w.batch.skipped++
		entry.Error = reason
		w.logger.Info("Skipped", "doc_id", doc.ID, "reason", reason)
	default:
		w.batch.failed++
		entry.Error = err.Error()
		w.logger.Warn("could not add", "doc_id", doc.ID, "error", err)
	}
	if w.opts.Catalog != nil {
		w.batch.entries = append(w.batch.entries, entry)
	}
	w.opts.Metrics.ObserveIngest(outcome.String())
}

// IngestBatch ingests every document of docs and commits exactly once, even
// when some documents fail or ctx is cancelled part way through. A commit
// failure is returned alongside the report.
func (w *Writer) IngestBatch(ctx context.Context, docs iter.Seq[Document]) (BatchReport, error) {
	start := time.Now()
	w.mu.Lock()
	report := BatchReport{BatchID: w.batch.id}
	w.mu.Unlock()

	var stopErr error
	for doc := range docs {
		if err := ctx.Err(); err != nil {
			stopErr = err
			break
		}
		report.Attempted++
		outcome, err := w.Ingest(ctx, doc)
		switch outcome {
		case Added:
			report.Added++
		case Skipped:
			report.Skipped++
		default:
			report.Failed++
			report.Errors = append(report.Errors, err)
		}
	}

	m, err := w.Commit(context.WithoutCancel(ctx))
	report.Generation = m.Generation
	report.Duration = time.Since(start)
	w.logger.Info(fmt.Sprintf("%d documents added", report.Added),
		"batch_id", report.BatchID,
		"attempted", report.Attempted,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"generation", report.Generation,
		"duration", report.Duration,
	)
	if err != nil {
		return report, err
	}
	return report, stopErr
}

// Commit publishes the current contents of the store as the next snapshot.
// Catalog and notification failures are logged; they do not undo the
// commit.
func (w *Writer) Commit(ctx context.Context) (segment.Manifest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	snap := w.store.Snapshot()
	m, err := w.dir.Commit(snap, w.analyzer.Settings(), w.batch.id)
	if err != nil {
		w.opts.Metrics.ObserveCommit("failure", time.Since(start).Seconds(), 0)
		w.logger.Error("commit failed", "batch_id", w.batch.id, "error", err)
		return segment.Manifest{}, err
	}
	w.opts.Metrics.ObserveCommit("success", time.Since(start).Seconds(), m.DocCount)

	b := w.batch
	w.batch = newPending()

	if w.opts.Catalog != nil {
		err := w.opts.Catalog.RecordBatch(ctx, catalog.Batch{
			ID:         b.id,
			Generation: m.Generation,
			Attempted:  b.attempted,
			Added:      b.added,
			Skipped:    b.skipped,
			Failed:     b.failed,
			StartedAt:  b.startedAt,
			FinishedAt: time.Now().UTC(),
			Entries:    b.entries,
		})
		if err != nil {
			w.logger.Warn("recording batch in catalog failed", "batch_id", b.id, "error", err)
		}
	}
	if w.opts.Notifier != nil {
		err := w.opts.Notifier.NotifyCommit(ctx, events.CommitEvent{
			Dir:         w.dir.Path(),
			Generation:  m.Generation,
			BatchID:     b.id,
			Documents:   m.DocCount,
			Terms:       m.TermCount,
			CommittedAt: m.CreatedAt,
		})
		if err != nil {
			w.logger.Warn("commit notification failed", "generation", m.Generation, "error", err)
		}
	}
	return m, nil
}

// Reset drops everything in the store. The directory keeps serving its
// committed generation until the next Commit replaces it.
func (w *Writer) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.store.Reset()
	w.batch = newPending()
	return w.dir.Reset()
}

func (w *Writer) DocumentCount() int {
	return w.store.DocumentCount()
}

// Close releases the index directory. Documents ingested since the last
// commit are discarded.
func (w *Writer) Close() error {
	return w.dir.Close()
}
