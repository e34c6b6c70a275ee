// Package executor evaluates a parsed query against one read-only index
// snapshot.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/ranker"
)

// Reader is the read side of an index. *segment.Snapshot implements it.
type Reader interface {
	Postings(term string) (index.PostingList, error)
	DocumentCount() int
	Document(seq uint32) (index.DocInfo, bool)
	FieldDocs(field, value string) ([]uint32, error)
}

// Result is one ranked hit.
type Result struct {
	DocID string  `json:"doc_id"`
	Path  string  `json:"path,omitempty"`
	Name  string  `json:"name,omitempty"`
	Score float64 `json:"score"`
}

type SearchResult struct {
	Query      string         `json:"query"`
	Generation uint64         `json:"generation"`
	TotalHits  int            `json:"total_hits"`
	Results    []Result       `json:"results"`
	TermStats  map[string]int `json:"term_stats,omitempty"`
}

type Executor struct {
	logger *slog.Logger
}

func New() *Executor {
	return &Executor{
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute returns at most k results for q. Candidates are the union of the
// documents containing any query term, narrowed by every field filter. A
// query without terms matches nothing.
func (e *Executor) Execute(ctx context.Context, r Reader, q *parser.Query, k int) (*SearchResult, error) {
	result := &SearchResult{Query: q.Raw, Results: []Result{}}
	if len(q.Terms) == 0 || r.DocumentCount() == 0 {
		return result, nil
	}

	terms := make([]ranker.TermPostings, 0, len(q.Terms))
	termStats := make(map[string]int, len(q.Terms))
	candidates := roaring.New()
	for _, term := range q.Terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		postings, err := r.Postings(term)
		if err != nil {
			return nil, fmt.Errorf("searching term %q: %w", term, err)
		}
		termStats[term] = len(postings)
		if len(postings) == 0 {
			continue
		}
		terms = append(terms, ranker.TermPostings{Term: term, Postings: postings})
		for _, p := range postings {
			candidates.Add(p.Doc)
		}
	}

	for _, f := range q.Fields {
		if candidates.IsEmpty() {
			break
		}
		docs, err := r.FieldDocs(f.Field, f.Value)
		if err != nil {
			return nil, fmt.Errorf("filtering on %s: %w", f.Field, err)
		}
		candidates.And(roaring.BitmapOf(docs...))
	}

	docID := func(seq uint32) string {
		doc, _ := r.Document(seq)
		return doc.ID
	}
	ranked, total := ranker.Rank(terms, r.DocumentCount(), candidates, docID, k)
	for _, sd := range ranked {
		doc, _ := r.Document(sd.Seq)
		result.Results = append(result.Results, Result{
			DocID: doc.ID,
			Path:  doc.Path,
			Name:  doc.Name,
			Score: sd.Score,
		})
	}
	result.TotalHits = total
	result.TermStats = termStats

	e.logger.Debug("query executed",
		"query", q.Raw,
		"terms", q.Terms,
		"candidates", candidates.GetCardinality(),
		"results", len(result.Results),
	)
	return result, nil
}
