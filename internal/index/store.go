// Package index holds the mutable, in-memory inverted index that a writer
// accumulates between commits. Documents receive monotonically increasing
// sequence numbers on first sight, so postings lists stay sorted by
// appending.
package index

import (
	"iter"
	"slices"
	"sort"
	"sync"
)

// Store maps terms to postings lists and keeps the stored fields of every
// document it has seen.
type Store struct {
	mu       sync.RWMutex
	postings map[string]PostingList
	docs     []DocInfo
	seqByID  map[string]uint32
	size     int64
}

func NewStore() *Store {
	return &Store{
		postings: make(map[string]PostingList),
		seqByID:  make(map[string]uint32),
	}
}

// Add folds terms into the postings of docID and returns the document's
// sequence number. Calling Add again for the same docID accumulates term
// frequencies.
func (s *Store) Add(docID string, terms iter.Seq[string]) uint32 {
	counts := make(map[string]uint32)
	length := 0
	for term := range terms {
		counts[term]++
		length++
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.seqLocked(docID)
	for term, freq := range counts {
		pl, exists := s.postings[term]
		if !exists {
			s.size += int64(len(term)) + 48
		}
		s.postings[term] = addPosting(pl, seq, freq)
	}
	s.docs[seq].Length += length
	s.size += int64(len(counts)) * 8
	return seq
}

// addPosting increments the posting for seq, appending or inserting it in
// sorted position when absent.
func addPosting(pl PostingList, seq, freq uint32) PostingList {
	n := len(pl)
	switch {
	case n == 0 || pl[n-1].Doc < seq:
		return append(pl, Posting{Doc: seq, Freq: freq})
	case pl[n-1].Doc == seq:
		pl[n-1].Freq += freq
		return pl
	}
	i, found := pl.search(seq)
	if found {
		pl[i].Freq += freq
		return pl
	}
	return slices.Insert(pl, i, Posting{Doc: seq, Freq: freq})
}

func (s *Store) seqLocked(docID string) uint32 {
	if seq, ok := s.seqByID[docID]; ok {
		return seq
	}
	seq := uint32(len(s.docs))
	s.seqByID[docID] = seq
	s.docs = append(s.docs, DocInfo{Seq: seq, ID: docID})
	s.size += int64(len(docID)) + 64
	return seq
}

// SetFields records the stored path and display name of docID, registering
// the document if it has not been added yet.
func (s *Store) SetFields(docID, path, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.seqLocked(docID)
	s.docs[seq].Path = path
	s.docs[seq].Name = name
	s.size += int64(len(path) + len(name))
}

// Postings returns a copy of the postings list for term; absent terms yield
// an empty list.
func (s *Store) Postings(term string) PostingList {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pl, ok := s.postings[term]
	if !ok {
		return PostingList{}
	}
	return slices.Clone(pl)
}

func (s *Store) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Store) DocumentFrequency(term string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.postings[term])
}

func (s *Store) TermCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.postings)
}

// Document returns the stored fields of the document with sequence seq.
func (s *Store) Document(seq uint32) (DocInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if int(seq) >= len(s.docs) {
		return DocInfo{}, false
	}
	return s.docs[seq], true
}

// FieldDocs returns, in ascending order, the sequence numbers of documents
// whose stored field equals value.
func (s *Store) FieldDocs(field, value string) []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uint32
	for _, d := range s.docs {
		if d.Value(field) == value {
			out = append(out, d.Seq)
		}
	}
	return out
}

// Lookup returns the sequence number assigned to docID.
func (s *Store) Lookup(docID string) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.seqByID[docID]
	return seq, ok
}

// Snapshot copies the index into sorted, immutable form.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]TermEntry, 0, len(s.postings))
	for term, pl := range s.postings {
		entries = append(entries, TermEntry{
			Term:     term,
			Postings: slices.Clone(pl),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return Snapshot{
		Terms: entries,
		Docs:  slices.Clone(s.docs),
	}
}

// Load replaces the contents of the store with snap, typically the latest
// committed snapshot of an index opened for appending.
func (s *Store) Load(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	for _, d := range snap.Docs {
		d.Seq = uint32(len(s.docs))
		s.docs = append(s.docs, d)
		s.seqByID[d.ID] = d.Seq
		s.size += int64(len(d.ID)+len(d.Path)+len(d.Name)) + 64
	}
	for _, entry := range snap.Terms {
		s.postings[entry.Term] = slices.Clone(entry.Postings)
		s.size += int64(len(entry.Term)) + 48 + int64(len(entry.Postings))*8
	}
}

// Size is a rough estimate of the memory held by the store, in bytes.
func (s *Store) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Store) resetLocked() {
	s.postings = make(map[string]PostingList)
	s.seqByID = make(map[string]uint32)
	s.docs = nil
	s.size = 0
}
