package segment

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
)

const (
	CurrentFileName = "CURRENT"
	LockFileName    = "LOCK"
	ManifestVersion = 1

	manifestPrefix = "MANIFEST-"
	segmentPrefix  = "seg_"
	segmentExt     = ".fsx"
	tmpExt         = ".tmp"
)

// errNoCurrent reports a directory without a CURRENT pointer.
var errNoCurrent = errors.New("no CURRENT file")

// Manifest describes one committed generation of an index.
type Manifest struct {
	Version     int                   `json:"version"`
	Generation  uint64                `json:"generation"`
	CreatedAt   time.Time             `json:"created_at"`
	Segment     string                `json:"segment"`
	DocCount    int                   `json:"doc_count"`
	TermCount   int                   `json:"term_count"`
	Compression string                `json:"compression"`
	Analyzer    config.AnalyzerConfig `json:"analyzer"`
	BatchID     string                `json:"batch_id,omitempty"`
}

func manifestName(gen uint64) string {
	return fmt.Sprintf("%s%06d.json", manifestPrefix, gen)
}

func segmentName(gen uint64) string {
	return fmt.Sprintf("%s%06d%s", segmentPrefix, gen, segmentExt)
}

// writeFileAtomic writes data to name inside dir via a synced temp file and
// a rename.
func writeFileAtomic(dir, name string, data []byte) (err error) {
	path := filepath.Join(dir, name)
	tmpPath := path + tmpExt
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmpPath, err)
	}
	defer func() {
		f.Close()
		if err != nil {
			os.Remove(tmpPath)
		}
	}()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s: %w", tmpPath, err)
	}
	return nil
}

func writeManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return writeFileAtomic(dir, manifestName(m.Generation), data)
}

// loadCurrent follows CURRENT to the manifest it names.
func loadCurrent(dir string) (Manifest, error) {
	pointer, err := os.ReadFile(filepath.Join(dir, CurrentFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{}, errNoCurrent
		}
		return Manifest{}, fmt.Errorf("reading %s: %w", CurrentFileName, err)
	}
	name := strings.TrimSpace(string(pointer))
	if !strings.HasPrefix(name, manifestPrefix) || strings.ContainsAny(name, `/\`) {
		return Manifest{}, fmt.Errorf("malformed %s pointer %q", CurrentFileName, name)
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest %s: %w", name, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest %s: %w", name, err)
	}
	if m.Version != ManifestVersion {
		return Manifest{}, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return m, nil
}

// syncDir flushes directory entries so completed renames survive a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
