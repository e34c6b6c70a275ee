package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

// openRetries bounds how often OpenReadOnly re-reads CURRENT when a
// concurrent commit removes the generation it was about to open.
const openRetries = 3

// Snapshot is a read-only view of one committed generation. It never
// changes after OpenReadOnly and may be shared by concurrent searches.
type Snapshot struct {
	dir      string
	manifest Manifest
	reader   *Reader
	fields   map[string]map[string][]uint32
}

// OpenReadOnly opens the generation CURRENT points at. It needs no lock and
// works while a writer holds the directory.
func OpenReadOnly(dir string) (*Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt < openRetries; attempt++ {
		m, err := loadCurrent(dir)
		if err != nil {
			if errors.Is(err, errNoCurrent) {
				return nil, &apperrors.IndexNotFoundError{Dir: dir}
			}
			lastErr = err
			continue
		}
		r, err := OpenReader(filepath.Join(dir, m.Segment))
		if err != nil {
			lastErr = err
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			break
		}
		return newSnapshot(dir, m, r), nil
	}
	return nil, &apperrors.PersistenceError{Op: "opening snapshot", Cause: lastErr}
}

func newSnapshot(dir string, m Manifest, r *Reader) *Snapshot {
	fields := map[string]map[string][]uint32{
		index.FieldPath: {},
		index.FieldName: {},
	}
	for _, doc := range r.docs {
		for field, values := range fields {
			if v := doc.Value(field); v != "" {
				values[v] = append(values[v], doc.Seq)
			}
		}
	}
	return &Snapshot{dir: dir, manifest: m, reader: r, fields: fields}
}

// Postings returns the postings of term; an absent term yields an empty list.
func (s *Snapshot) Postings(term string) (index.PostingList, error) {
	pl, err := s.reader.Search(term)
	if err != nil {
		return nil, &apperrors.PersistenceError{Op: "reading postings", Cause: err}
	}
	return pl, nil
}

func (s *Snapshot) DocumentCount() int {
	return len(s.reader.docs)
}

func (s *Snapshot) DocumentFrequency(term string) int {
	return s.reader.DocFreq(term)
}

func (s *Snapshot) TermCount() int {
	return s.reader.Terms()
}

func (s *Snapshot) Document(seq uint32) (index.DocInfo, bool) {
	if int(seq) >= len(s.reader.docs) {
		return index.DocInfo{}, false
	}
	return s.reader.docs[seq], true
}

// FieldDocs returns the sequence numbers of documents whose stored field
// equals value exactly, in ascending order.
func (s *Snapshot) FieldDocs(field, value string) ([]uint32, error) {
	values, ok := s.fields[field]
	if !ok {
		return nil, fmt.Errorf("field %q is not stored: %w", field, apperrors.ErrInvalidInput)
	}
	return values[value], nil
}

func (s *Snapshot) Generation() uint64 {
	return s.manifest.Generation
}

func (s *Snapshot) Manifest() Manifest {
	return s.manifest
}

// Analyzer returns the analyzer settings the snapshot was built with.
func (s *Snapshot) Analyzer() config.AnalyzerConfig {
	return s.manifest.Analyzer
}

func (s *Snapshot) Dir() string {
	return s.dir
}

func (s *Snapshot) Close() error {
	return s.reader.Close()
}
