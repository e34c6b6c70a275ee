// Package parser turns a query string into analyzed terms and exact-match
// field restrictions.
//
// Grammar: whitespace separated words. A word of the form field:value or
// field:"quoted value" restricts results to documents whose stored field
// equals value; the fields are path and name. Any other word, or quoted
// free text, is run through the analyzer and contributes its terms.
package parser

import (
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/analyzer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

// FieldFilter restricts results to documents whose Field equals Value.
type FieldFilter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Query is a parsed query. Terms holds each distinct analyzed term once, in
// order of first appearance.
type Query struct {
	Raw    string        `json:"raw"`
	Terms  []string      `json:"terms"`
	Fields []FieldFilter `json:"fields,omitempty"`
}

var knownFields = map[string]struct{}{
	index.FieldPath: {},
	index.FieldName: {},
}

// Parse parses raw with a, which must be the analyzer the index was built
// with.
func Parse(raw string, a *analyzer.Analyzer) (*Query, error) {
	q := &Query{Raw: raw, Terms: make([]string, 0)}
	seen := make(map[string]struct{})
	addText := func(text string) {
		for term := range a.Tokens(text) {
			if _, dup := seen[term]; dup {
				continue
			}
			seen[term] = struct{}{}
			q.Terms = append(q.Terms, term)
		}
	}

	i := 0
	for i < len(raw) {
		c := raw[i]
		if isSpace(c) {
			i++
			continue
		}
		if c == '"' {
			end := strings.IndexByte(raw[i+1:], '"')
			if end < 0 {
				return nil, syntaxError(raw, i, "unbalanced quote")
			}
			addText(raw[i+1 : i+1+end])
			i += end + 2
			continue
		}

		j := i
		for j < len(raw) && !isSpace(raw[j]) && raw[j] != '"' {
			j++
		}
		word := raw[i:j]
		colon := strings.IndexByte(word, ':')
		if colon <= 0 || !isIdent(word[:colon]) {
			addText(word)
			i = j
			continue
		}

		field := strings.ToLower(word[:colon])
		if _, ok := knownFields[field]; !ok {
			return nil, syntaxError(raw, i, "unknown field "+word[:colon])
		}
		value := word[colon+1:]
		next := j
		if value == "" && j < len(raw) && raw[j] == '"' {
			end := strings.IndexByte(raw[j+1:], '"')
			if end < 0 {
				return nil, syntaxError(raw, j, "unbalanced quote")
			}
			value = raw[j+1 : j+1+end]
			next = j + end + 2
		}
		if value == "" {
			return nil, syntaxError(raw, i, "empty value for field "+field)
		}
		q.Fields = append(q.Fields, FieldFilter{Field: field, Value: value})
		i = next
	}
	return q, nil
}

// Normalized renders q independent of term and filter order, for use in
// cache keys.
func (q *Query) Normalized() string {
	terms := slices.Clone(q.Terms)
	slices.Sort(terms)
	fields := make([]string, 0, len(q.Fields))
	for _, f := range q.Fields {
		fields = append(fields, f.Field+"="+f.Value)
	}
	slices.Sort(fields)
	fields = slices.Compact(fields)
	return strings.Join(terms, ",") + "|" + strings.Join(fields, "\x00")
}

func syntaxError(raw string, pos int, msg string) error {
	return &apperrors.QuerySyntaxError{Query: raw, Pos: pos, Msg: msg}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isIdent(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_') {
			return false
		}
	}
	return s != ""
}
