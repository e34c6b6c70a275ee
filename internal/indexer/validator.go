package indexer

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const maxIDLength = 4096

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

// validateDocument checks the metadata of doc before its source is opened.
func validateDocument(doc Document) error {
	errs := make(map[string]string)

	switch {
	case strings.TrimSpace(doc.ID) == "":
		errs["id"] = "id is required"
	case len(doc.ID) > maxIDLength:
		errs["id"] = fmt.Sprintf("id must be at most %d bytes", maxIDLength)
	case !utf8.ValidString(doc.ID):
		errs["id"] = "id must be valid UTF-8"
	}
	if doc.Source == nil {
		errs["source"] = "source is required"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
