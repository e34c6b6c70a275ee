// Package collector enumerates the files under a root that should be
// indexed.
package collector

import (
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

// Walk lazily yields a document for every file under root whose extension is
// in exts, compared case-insensitively. root may also name a single file.
// Entries that cannot be read yield an error and the walk continues; a
// missing root yields one error and nothing else. Files are visited in
// lexical order.
func Walk(root string, exts []string) iter.Seq2[indexer.Document, error] {
	allowed := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	logger := slog.Default().With("component", "collector", "root", root)

	return func(yield func(indexer.Document, error) bool) {
		if _, err := os.Stat(root); err != nil {
			yield(indexer.Document{}, fmt.Errorf("%s does not exist: %w: %w", root, apperrors.ErrInvalidInput, err))
			return
		}
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield(indexer.Document{}, fmt.Errorf("walking %s: %w", path, err)) {
					return filepath.SkipAll
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if _, ok := allowed[strings.ToLower(filepath.Ext(path))]; !ok {
				logger.Info("Skipped", "file", d.Name())
				return nil
			}
			if !regularFile(path, d) {
				logger.Info("Skipped", "file", path, "reason", "not a regular file")
				return nil
			}
			if !yield(indexer.FromFile(path), nil) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// regularFile reports whether path is a regular file, following a symlink to
// its target. Dangling links are not.
func regularFile(path string, d fs.DirEntry) bool {
	if d.Type()&fs.ModeSymlink == 0 {
		return d.Type().IsRegular()
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Documents drops the errors of a walk, passing each to onError, so the
// result can feed indexer.Writer.IngestBatch.
func Documents(walk iter.Seq2[indexer.Document, error], onError func(error)) iter.Seq[indexer.Document] {
	return func(yield func(indexer.Document) bool) {
		for doc, err := range walk {
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !yield(doc) {
				return
			}
		}
	}
}
