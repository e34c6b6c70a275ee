package index

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddCountsTermFrequency(t *testing.T) {
	s := NewStore()
	d1 := s.Add("d1", slices.Values([]string{"cat", "dog"}))
	d2 := s.Add("d2", slices.Values([]string{"dog", "dog", "bird"}))
	d3 := s.Add("d3", slices.Values([]string{"bird"}))

	assert.Equal(t, []uint32{0, 1, 2}, []uint32{d1, d2, d3})
	assert.Equal(t, 3, s.DocumentCount())
	assert.Equal(t, PostingList{{Doc: 0, Freq: 1}, {Doc: 1, Freq: 2}}, s.Postings("dog"))
	assert.Equal(t, 2, s.DocumentFrequency("dog"))
	assert.Equal(t, 2, s.DocumentFrequency("bird"))
	assert.Equal(t, 1, s.DocumentFrequency("cat"))
	assert.Equal(t, 3, s.TermCount())

	doc, ok := s.Document(d2)
	require.True(t, ok)
	assert.Equal(t, "d2", doc.ID)
	assert.Equal(t, 3, doc.Length)
}

func TestPostingsAbsentTermIsEmpty(t *testing.T) {
	s := NewStore()
	pl := s.Postings("missing")
	assert.NotNil(t, pl)
	assert.Empty(t, pl)
	assert.Zero(t, s.DocumentFrequency("missing"))
}

func TestAddSameDocumentAccumulates(t *testing.T) {
	s := NewStore()
	s.Add("a", slices.Values([]string{"x"}))
	s.Add("b", slices.Values([]string{"x", "y"}))
	// a is no longer the most recent document; its posting must stay in place.
	s.Add("a", slices.Values([]string{"x", "y", "y"}))

	assert.Equal(t, 2, s.DocumentCount())
	assert.Equal(t, PostingList{{Doc: 0, Freq: 2}, {Doc: 1, Freq: 1}}, s.Postings("x"))
	assert.Equal(t, PostingList{{Doc: 0, Freq: 2}, {Doc: 1, Freq: 1}}, s.Postings("y"))
}

func TestPostingsStaySortedAndDocFreqMatches(t *testing.T) {
	s := NewStore()
	for i := 0; i < 50; i++ {
		terms := []string{"common"}
		if i%3 == 0 {
			terms = append(terms, "third", "third")
		}
		s.Add(fmt.Sprintf("doc-%02d", i), slices.Values(terms))
	}
	for _, term := range []string{"common", "third"} {
		pl := s.Postings(term)
		assert.Equal(t, len(pl), s.DocumentFrequency(term))
		for i := 1; i < len(pl); i++ {
			assert.Less(t, pl[i-1].Doc, pl[i].Doc)
		}
		for _, p := range pl {
			assert.GreaterOrEqual(t, p.Freq, uint32(1))
		}
	}
	assert.Len(t, s.Postings("third"), 17)
}

func TestPostingsReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Add("a", slices.Values([]string{"x"}))
	pl := s.Postings("x")
	pl[0].Freq = 99
	assert.Equal(t, uint32(1), s.Postings("x")[0].Freq)
}

func TestSetFields(t *testing.T) {
	s := NewStore()
	s.SetFields("a", "/docs/a.txt", "a.txt")
	seq := s.Add("a", slices.Values([]string{"x"}))

	doc, ok := s.Document(seq)
	require.True(t, ok)
	assert.Equal(t, "/docs/a.txt", doc.Path)
	assert.Equal(t, "a.txt", doc.Value(FieldName))
	assert.Equal(t, "/docs/a.txt", doc.Value(FieldPath))
	assert.Empty(t, doc.Value("title"))

	got, ok := s.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, seq, got)
}

func TestFieldDocs(t *testing.T) {
	s := NewStore()
	s.SetFields("a", "/docs/a.txt", "a.txt")
	s.SetFields("b", "/docs/sub/a.txt", "a.txt")
	s.SetFields("c", "/docs/c.txt", "c.txt")

	assert.Equal(t, []uint32{0, 1}, s.FieldDocs(FieldName, "a.txt"))
	assert.Equal(t, []uint32{2}, s.FieldDocs(FieldPath, "/docs/c.txt"))
	assert.Empty(t, s.FieldDocs(FieldName, "missing.txt"))
	assert.Empty(t, s.FieldDocs("title", "a.txt"))
}

func TestSnapshotAndLoad(t *testing.T) {
	s := NewStore()
	s.Add("b", slices.Values([]string{"zebra", "apple"}))
	s.Add("a", slices.Values([]string{"apple"}))
	s.SetFields("a", "/a", "a")

	snap := s.Snapshot()
	require.Len(t, snap.Terms, 2)
	assert.Equal(t, "apple", snap.Terms[0].Term)
	assert.Equal(t, "zebra", snap.Terms[1].Term)
	require.Len(t, snap.Docs, 2)

	other := NewStore()
	other.Load(snap)
	assert.Equal(t, s.Postings("apple"), other.Postings("apple"))
	assert.Equal(t, s.DocumentCount(), other.DocumentCount())

	seq := other.Add("c", slices.Values([]string{"apple"}))
	assert.Equal(t, uint32(2), seq)
	assert.Equal(t, 3, other.DocumentFrequency("apple"))
	// the original store is unaffected
	assert.Equal(t, 2, s.DocumentFrequency("apple"))
}

func TestReset(t *testing.T) {
	s := NewStore()
	s.Add("a", slices.Values([]string{"x"}))
	require.Positive(t, s.Size())
	s.Reset()
	assert.Zero(t, s.DocumentCount())
	assert.Zero(t, s.Size())
	assert.Empty(t, s.Postings("x"))
}

func TestPostingListFind(t *testing.T) {
	pl := PostingList{{Doc: 1, Freq: 3}, {Doc: 4, Freq: 1}, {Doc: 9, Freq: 2}}
	p, ok := pl.Find(4)
	require.True(t, ok)
	assert.Equal(t, uint32(1), p.Freq)
	_, ok = pl.Find(5)
	assert.False(t, ok)
}

func BenchmarkStoreAdd(b *testing.B) {
	s := NewStore()
	terms := []string{"benchmark", "document", "several", "terms", "testing", "index", "performance"}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Add(fmt.Sprintf("doc-%d", i), slices.Values(terms))
	}
}
