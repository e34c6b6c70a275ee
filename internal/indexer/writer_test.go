package indexer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/events"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/segment"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/metrics"
)

type recordingCatalog struct {
	batches []catalog.Batch
}

func (c *recordingCatalog) RecordBatch(_ context.Context, b catalog.Batch) error {
	c.batches = append(c.batches, b)
	return nil
}

type recordingNotifier struct {
	events []events.CommitEvent
	err    error
}

func (n *recordingNotifier) NotifyCommit(_ context.Context, ev events.CommitEvent) error {
	n.events = append(n.events, ev)
	return n.err
}

// brokenReader fails after returning some bytes.
type brokenReader struct {
	served bool
	closed *bool
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if !r.served {
		r.served = true
		return copy(p, "partial content "), nil
	}
	return 0, errors.New("device not ready")
}

func (r *brokenReader) Close() error {
	*r.closed = true
	return nil
}

func newTestAnalyzer(t *testing.T) *analyzer.Analyzer {
	t.Helper()
	a, err := analyzer.New(config.AnalyzerConfig{Language: "english", MinTokenLength: 1})
	require.NoError(t, err)
	return a
}

func indexConfig(dir string, mode config.OpenMode) config.IndexConfig {
	return config.IndexConfig{DataDir: dir, Mode: mode, Compression: "zstd"}
}

func openWriter(t *testing.T, dir string, mode config.OpenMode, opts Options) *Writer {
	t.Helper()
	w, err := Open(indexConfig(dir, mode), newTestAnalyzer(t), opts)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestIngestBatchThreeDocuments(t *testing.T) {
	dir := t.TempDir()
	cat := &recordingCatalog{}
	notifier := &recordingNotifier{}
	w := openWriter(t, dir, config.ModeCreate, Options{Catalog: cat, Notifier: notifier})

	docs := []Document{
		FromString("D1", "cat dog"),
		FromString("D2", "dog dog bird"),
		FromString("D3", "bird"),
	}
	report, err := w.IngestBatch(context.Background(), slices.Values(docs))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 3, report.Added)
	assert.Zero(t, report.Failed)
	assert.Equal(t, uint64(1), report.Generation)
	assert.NotEmpty(t, report.BatchID)

	snap, err := segment.OpenReadOnly(dir)
	require.NoError(t, err)
	defer snap.Close()
	assert.Equal(t, 3, snap.DocumentCount())
	pl, err := snap.Postings("dog")
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{{Doc: 0, Freq: 1}, {Doc: 1, Freq: 2}}, pl)
	assert.Equal(t, 2, snap.DocumentFrequency("bird"))
	assert.Equal(t, newTestAnalyzer(t).Settings(), snap.Analyzer())
	assert.Equal(t, report.BatchID, snap.Manifest().BatchID)

	require.Len(t, cat.batches, 1)
	assert.Equal(t, report.BatchID, cat.batches[0].ID)
	assert.Equal(t, uint64(1), cat.batches[0].Generation)
	assert.Len(t, cat.batches[0].Entries, 3)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, uint64(1), notifier.events[0].Generation)
	assert.Equal(t, 3, notifier.events[0].Documents)
	assert.Equal(t, dir, notifier.events[0].Dir)
}

func TestIngestBatchToleratesFailures(t *testing.T) {
	dir := t.TempDir()
	closed := false
	docs := []Document{
		FromString("good-1", "alpha beta"),
		{ID: "broken", Source: func() (io.ReadCloser, error) {
			return &brokenReader{closed: &closed}, nil
		}},
		{ID: "unopenable", Source: func() (io.ReadCloser, error) {
			return nil, os.ErrPermission
		}},
		FromString("empty", "   \n\t"),
		FromString("binary", "abc\x00def"),
		FromString("latin1", "caf\xe9"),
		{ID: "", Source: FromString("x", "y").Source},
		FromString("good-2", "beta gamma"),
	}

	cat := &recordingCatalog{}
	w := openWriter(t, dir, config.ModeCreate, Options{Catalog: cat})
	report, err := w.IngestBatch(context.Background(), slices.Values(docs))
	require.NoError(t, err)

	assert.Equal(t, 8, report.Attempted)
	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 3, report.Failed)
	require.Len(t, report.Errors, 3)
	for _, err := range report.Errors {
		assert.ErrorIs(t, err, apperrors.ErrIngest)
	}
	assert.ErrorIs(t, report.Errors[1], os.ErrPermission)
	assert.True(t, closed, "source closed after read failure")

	snap, err := segment.OpenReadOnly(dir)
	require.NoError(t, err)
	defer snap.Close()
	assert.Equal(t, 2, snap.DocumentCount())
	assert.Zero(t, snap.DocumentFrequency("partial"), "no postings from a half-read document")
	assert.Equal(t, 2, snap.DocumentFrequency("beta"))

	require.Len(t, cat.batches, 1)
	outcomes := make(map[string]string)
	for _, e := range cat.batches[0].Entries {
		outcomes[e.DocID] = e.Outcome
	}
	assert.Equal(t, "failed", outcomes["broken"])
	assert.Equal(t, "skipped", outcomes["empty"])
	assert.Equal(t, "skipped", outcomes["binary"])
	assert.Equal(t, "added", outcomes["good-2"])
}

func TestIngestOutcomes(t *testing.T) {
	w := openWriter(t, t.TempDir(), config.ModeCreate, Options{MaxDocumentBytes: 8})

	outcome, err := w.Ingest(context.Background(), FromString("a", "tiny"))
	require.NoError(t, err)
	assert.Equal(t, Added, outcome)

	outcome, err = w.Ingest(context.Background(), FromString("b", ""))
	require.NoError(t, err)
	assert.Equal(t, Skipped, outcome)

	outcome, err = w.Ingest(context.Background(), FromString("c", "far too long for the limit"))
	assert.Equal(t, Failed, outcome)
	var ingestErr *apperrors.IngestError
	require.ErrorAs(t, err, &ingestErr)
	assert.Equal(t, "c", ingestErr.DocID)
	assert.ErrorContains(t, err, "exceeds 8 bytes")

	outcome, err = w.Ingest(context.Background(), Document{ID: "d"})
	assert.Equal(t, Failed, outcome)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Fields, "source")

	assert.Equal(t, 1, w.DocumentCount())
}

func TestCommitOncePerBatch(t *testing.T) {
	dir := t.TempDir()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	w := openWriter(t, dir, config.ModeCreate, Options{Metrics: m})

	_, err := w.IngestBatch(context.Background(), slices.Values([]Document{FromString("a", "one"), FromString("b", "two")}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocsIngestedTotal.WithLabelValues("added")))

	// an empty batch still commits, producing the next generation
	report, err := w.IngestBatch(context.Background(), slices.Values([]Document{}))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), report.Generation)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("success")))
}

func TestCancelledBatchStillCommits(t *testing.T) {
	dir := t.TempDir()
	w := openWriter(t, dir, config.ModeCreate, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	docs := func(yield func(Document) bool) {
		if !yield(FromString("first", "kept")) {
			return
		}
		cancel()
		yield(FromString("second", "dropped"))
	}
	report, err := w.IngestBatch(ctx, docs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, uint64(1), report.Generation)

	snap, err := segment.OpenReadOnly(dir)
	require.NoError(t, err)
	defer snap.Close()
	assert.Equal(t, 1, snap.DocumentCount())
}

func TestUncommittedDocumentsAreInvisible(t *testing.T) {
	dir := t.TempDir()
	w := openWriter(t, dir, config.ModeCreate, Options{})
	_, err := w.Ingest(context.Background(), FromString("a", "hello"))
	require.NoError(t, err)

	_, err = segment.OpenReadOnly(dir)
	assert.ErrorIs(t, err, apperrors.ErrIndexNotFound)
}

func TestAppendModeAccumulates(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(indexConfig(dir, config.ModeCreate), newTestAnalyzer(t), Options{})
	require.NoError(t, err)
	_, err = w.IngestBatch(context.Background(), slices.Values([]Document{FromString("a", "apple")}))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w, err = Open(indexConfig(dir, config.ModeAppend), newTestAnalyzer(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, w.DocumentCount())
	_, err = w.IngestBatch(context.Background(), slices.Values([]Document{FromString("b", "apple pie")}))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	snap, err := segment.OpenReadOnly(dir)
	require.NoError(t, err)
	defer snap.Close()
	assert.Equal(t, 2, snap.DocumentCount())
	assert.Equal(t, 2, snap.DocumentFrequency("appl"))
}

func TestReingestingDocumentIsSkipped(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(indexConfig(dir, config.ModeCreate), newTestAnalyzer(t), Options{})
	require.NoError(t, err)
	report, err := w.IngestBatch(context.Background(), slices.Values([]Document{
		FromString("D1", "cat dog"),
		FromString("D1", "cat cat cat"),
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, 1, report.Skipped)
	require.NoError(t, w.Close())

	w = openWriter(t, dir, config.ModeAppend, Options{})
	outcome, err := w.Ingest(context.Background(), FromString("D1", "cat dog"))
	require.NoError(t, err)
	assert.Equal(t, Skipped, outcome)
	_, err = w.Commit(context.Background())
	require.NoError(t, err)

	snap, err := segment.OpenReadOnly(dir)
	require.NoError(t, err)
	defer snap.Close()
	assert.Equal(t, 1, snap.DocumentCount())
	pl, err := snap.Postings("cat")
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{{Doc: 0, Freq: 1}}, pl)
}

func TestResetKeepsCommittedIndexUntilCommit(t *testing.T) {
	dir := t.TempDir()
	w := openWriter(t, dir, config.ModeCreate, Options{})
	_, err := w.IngestBatch(context.Background(), slices.Values([]Document{FromString("a", "apple")}))
	require.NoError(t, err)

	require.NoError(t, w.Reset())
	assert.Zero(t, w.DocumentCount())
	snap, err := segment.OpenReadOnly(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.DocumentCount())
	require.NoError(t, snap.Close())

	m, err := w.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), m.Generation)
	snap, err = segment.OpenReadOnly(dir)
	require.NoError(t, err)
	defer snap.Close()
	assert.Zero(t, snap.DocumentCount())
}

func TestAppendRejectsDifferentAnalyzer(t *testing.T) {
	dir := t.TempDir()
	w := openWriter(t, dir, config.ModeCreate, Options{})
	_, err := w.IngestBatch(context.Background(), slices.Values([]Document{FromString("a", "apple")}))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	other, err := analyzer.New(config.AnalyzerConfig{Language: "none", MinTokenLength: 1})
	require.NoError(t, err)
	_, err = Open(indexConfig(dir, config.ModeAppend), other, Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	// the lock was released on the failure path
	w2, err := Open(indexConfig(dir, config.ModeAppend), newTestAnalyzer(t), Options{})
	require.NoError(t, err)
	require.NoError(t, w2.Close())
}

func TestSecondWriterRejected(t *testing.T) {
	dir := t.TempDir()
	openWriter(t, dir, config.ModeCreate, Options{})
	_, err := Open(indexConfig(dir, config.ModeAppend), newTestAnalyzer(t), Options{})
	assert.ErrorIs(t, err, apperrors.ErrWriterLocked)
}

func TestUnknownCompression(t *testing.T) {
	_, err := Open(config.IndexConfig{DataDir: t.TempDir(), Mode: config.ModeCreate, Compression: "brotli"}, newTestAnalyzer(t), Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestNotifierFailureDoesNotFailCommit(t *testing.T) {
	n := &recordingNotifier{err: errors.New("no brokers")}
	w := openWriter(t, t.TempDir(), config.ModeCreate, Options{Notifier: n})
	m, err := w.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Generation)
	assert.Len(t, n.events, 1)
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("Remember the milk"), 0o644))

	doc := FromFile(path)
	assert.Equal(t, path, doc.ID)
	assert.Equal(t, "notes.txt", doc.Name)
	rc, err := doc.Source()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Remember"))
}

func TestValidationErrorMessage(t *testing.T) {
	err := validateDocument(Document{})
	require.Error(t, err)
	assert.Equal(t, "id: id is required; source: source is required", err.Error())
}
