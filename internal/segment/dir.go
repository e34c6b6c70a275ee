// Package segment persists inverted index snapshots. A committed generation
// consists of one segment file (postings, dictionary, document table) and a
// manifest naming it; the CURRENT file points at the live manifest and is
// only ever replaced by rename, so readers see either the previous or the
// new generation and never a partial one.
package segment

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

// Dir is the single writer's handle on an index directory. It holds the
// directory lock until Close.
type Dir struct {
	mu      sync.Mutex
	path    string
	codec   Codec
	lock    *os.File
	current Manifest
	// lastGen is the highest generation ever published here. Generations
	// keep increasing across resets so readers can detect a recreated index.
	lastGen uint64
	logger  *slog.Logger
}

// Open locks the index directory at path, creating it if needed. ModeCreate
// starts from an empty index that replaces the committed one at the first
// Commit; ModeAppend continues from the committed one.
func Open(path string, mode config.OpenMode, codec Codec) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, &apperrors.PersistenceError{Op: "creating index directory", Cause: err}
	}
	lock, err := acquireLock(filepath.Join(path, LockFileName))
	if err != nil {
		if errors.Is(err, apperrors.ErrWriterLocked) {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		return nil, &apperrors.PersistenceError{Op: "locking index directory", Cause: err}
	}
	d := &Dir{
		path:   path,
		codec:  codec,
		lock:   lock,
		logger: slog.Default().With("component", "segment-dir", "dir", path),
	}

	switch mode {
	case config.ModeCreate:
		if err := d.Reset(); err != nil {
			releaseLock(lock)
			return nil, err
		}
	case config.ModeAppend:
		m, err := loadCurrent(path)
		switch {
		case err == nil:
			d.current = m
			d.logger.Info("opened existing index",
				"generation", m.Generation,
				"docs", m.DocCount,
				"terms", m.TermCount,
			)
		case errors.Is(err, errNoCurrent):
			d.logger.Info("no committed index yet, starting empty")
		default:
			releaseLock(lock)
			return nil, &apperrors.PersistenceError{Op: "loading manifest", Cause: err}
		}
	default:
		releaseLock(lock)
		return nil, fmt.Errorf("unknown open mode %q: %w", mode, apperrors.ErrInvalidInput)
	}
	return d, nil
}

func (d *Dir) Path() string {
	return d.path
}

// Current returns the manifest of the latest commit, if any.
func (d *Dir) Current() (Manifest, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current, d.current.Generation > 0
}

// Load decodes the latest committed snapshot in full.
func (d *Dir) Load() (index.Snapshot, error) {
	d.mu.Lock()
	m := d.current
	d.mu.Unlock()
	if m.Generation == 0 {
		return index.Snapshot{}, &apperrors.IndexNotFoundError{Dir: d.path}
	}
	r, err := OpenReader(filepath.Join(d.path, m.Segment))
	if err != nil {
		return index.Snapshot{}, &apperrors.PersistenceError{Op: "opening segment", Cause: err}
	}
	defer r.Close()
	snap, err := r.ReadAll()
	if err != nil {
		return index.Snapshot{}, &apperrors.PersistenceError{Op: "reading segment", Cause: err}
	}
	return snap, nil
}

// Commit durably publishes snap as the next generation. On failure the
// previously committed generation remains the live one.
func (d *Dir) Commit(snap index.Snapshot, analyzer config.AnalyzerConfig, batchID string) (Manifest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lock == nil {
		return Manifest{}, &apperrors.PersistenceError{Op: "commit", Cause: os.ErrClosed}
	}

	gen := max(d.current.Generation, d.lastGen) + 1
	m := Manifest{
		Version:     ManifestVersion,
		Generation:  gen,
		CreatedAt:   time.Now().UTC(),
		Segment:     segmentName(gen),
		DocCount:    len(snap.Docs),
		TermCount:   len(snap.Terms),
		Compression: d.codec.String(),
		Analyzer:    analyzer,
		BatchID:     batchID,
	}
	if err := writeSegment(filepath.Join(d.path, m.Segment), snap, d.codec); err != nil {
		return Manifest{}, &apperrors.PersistenceError{Op: "writing segment", Cause: err}
	}
	if err := writeManifest(d.path, m); err != nil {
		return Manifest{}, &apperrors.PersistenceError{Op: "writing manifest", Cause: err}
	}
	if err := writeFileAtomic(d.path, CurrentFileName, []byte(manifestName(gen))); err != nil {
		return Manifest{}, &apperrors.PersistenceError{Op: "publishing manifest", Cause: err}
	}
	if err := syncDir(d.path); err != nil {
		return Manifest{}, &apperrors.PersistenceError{Op: "syncing index directory", Cause: err}
	}
	d.current = m
	d.removeStale(gen)
	d.logger.Info("index committed",
		"generation", gen,
		"segment", m.Segment,
		"docs", m.DocCount,
		"terms", m.TermCount,
	)
	return m, nil
}

// Reset forgets the committed generation so the next Commit publishes a
// fresh index. Nothing on disk changes until that commit; until then readers
// keep seeing the old generation, and an abandoned reset leaves it intact.
func (d *Dir) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := loadCurrent(d.path)
	switch {
	case err == nil:
		d.lastGen = max(d.lastGen, m.Generation)
	case errors.Is(err, errNoCurrent):
	default:
		d.logger.Warn("ignoring unreadable manifest on reset", "error", err)
	}
	d.lastGen = max(d.lastGen, d.current.Generation)
	d.current = Manifest{}
	d.logger.Info("index reset", "last_generation", d.lastGen)
	return nil
}

// removeStale deletes segment, manifest, and temp files that do not belong
// to generation keep. Readers holding older files open are unaffected on
// unix; elsewhere the removal may fail and is retried on the next commit.
func (d *Dir) removeStale(keep uint64) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		d.logger.Warn("listing index directory failed", "error", err)
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == CurrentFileName || name == LockFileName {
			continue
		}
		stale := strings.HasSuffix(name, tmpExt)
		if !stale && (strings.HasPrefix(name, segmentPrefix) || strings.HasPrefix(name, manifestPrefix)) {
			stale = name != segmentName(keep) && name != manifestName(keep)
		}
		if !stale {
			continue
		}
		if err := os.Remove(filepath.Join(d.path, name)); err != nil {
			d.logger.Warn("removing stale file failed", "file", name, "error", err)
		}
	}
}

// Close releases the directory lock. Uncommitted state is not persisted.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lock == nil {
		return nil
	}
	err := releaseLock(d.lock)
	d.lock = nil
	return err
}
