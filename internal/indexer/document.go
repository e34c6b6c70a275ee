package indexer

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Document is one unit of ingestion. Source is opened once during Ingest and
// always closed.
type Document struct {
	ID     string
	Path   string
	Name   string
	Source func() (io.ReadCloser, error)
}

// FromFile describes the file at path. The path doubles as the document
// identifier and its base name as the display name.
func FromFile(path string) Document {
	return Document{
		ID:   path,
		Path: path,
		Name: filepath.Base(path),
		Source: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// FromString wraps in-memory content.
func FromString(id, content string) Document {
	return Document{
		ID:   id,
		Name: id,
		Source: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

// Outcome is the result of offering one document to the writer.
type Outcome int

const (
	Failed Outcome = iota
	Added
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Skipped:
		return "skipped"
	default:
		return "failed"
	}
}
