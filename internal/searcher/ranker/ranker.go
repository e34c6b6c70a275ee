// Package ranker scores candidate documents with tf-idf and keeps the top k.
package ranker

import (
	"container/heap"
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/index"
)

type ScoredDoc struct {
	Seq   uint32  `json:"-"`
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// TermPostings is the postings list of one query term. Terms are scored in
// slice order, which keeps floating point sums reproducible.
type TermPostings struct {
	Term     string
	Postings index.PostingList
}

// IDF is ln(N/df). A term found in every document weighs nothing, so
// documents matching only such terms score zero and are dropped. The one
// exception is a single-document index, where every term weighs 1 so that
// its document stays findable.
func IDF(totalDocs, docFreq int) float64 {
	if totalDocs <= 0 || docFreq <= 0 {
		return 0
	}
	if totalDocs == 1 {
		return 1
	}
	return math.Log(float64(totalDocs) / float64(docFreq))
}

// Rank scores every document in candidates as the sum over terms of
// tf(t,d)*idf(t) and returns the best limit of them, by descending score and
// then ascending document identifier. Documents scoring zero are dropped.
// total is the number of documents that scored above zero.
func Rank(terms []TermPostings, totalDocs int, candidates *roaring.Bitmap, docID func(seq uint32) string, limit int) (top []ScoredDoc, total int) {
	scores := make(map[uint32]float64)
	for _, tp := range terms {
		idf := IDF(totalDocs, len(tp.Postings))
		if idf == 0 {
			continue
		}
		for _, p := range tp.Postings {
			if !candidates.Contains(p.Doc) {
				continue
			}
			scores[p.Doc] += float64(p.Freq) * idf
		}
	}

	h := &scoredDocHeap{}
	for seq, score := range scores {
		if score <= 0 {
			continue
		}
		total++
		heap.Push(h, ScoredDoc{Seq: seq, DocID: docID(seq), Score: score})
		if limit > 0 && h.Len() > limit {
			heap.Pop(h)
		}
	}
	top = make([]ScoredDoc, h.Len())
	for i := len(top) - 1; i >= 0; i-- {
		top[i] = heap.Pop(h).(ScoredDoc)
	}
	return top, total
}

// scoredDocHeap is a min-heap on rank: the root is the worst document kept.
type scoredDocHeap []ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
