package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/index"
)

// Reader gives random access to the postings of one segment file. Its
// methods are safe for concurrent use.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	docs     []index.DocInfo
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := readSegment(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func readSegment(f *os.File, path string) (*Reader, error) {
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	if err := header.validate(info.Size()); err != nil {
		return nil, fmt.Errorf("invalid segment file: %w", err)
	}

	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	docsBytes := make([]byte, header.DocsSize)
	if _, err := f.ReadAt(docsBytes, header.DictOffset+header.DictSize); err != nil {
		return nil, fmt.Errorf("reading document table: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize+int64(header.DocsSize)); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if binary.LittleEndian.Uint32(footer[8:12]) != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad footer")
	}
	if crc32.ChecksumIEEE(dictBytes) != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, fmt.Errorf("dictionary checksum mismatch")
	}
	if crc32.ChecksumIEEE(docsBytes) != binary.LittleEndian.Uint32(footer[4:8]) {
		return nil, fmt.Errorf("document table checksum mismatch")
	}

	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	var docs []index.DocInfo
	if err := json.Unmarshal(docsBytes, &docs); err != nil {
		return nil, fmt.Errorf("parsing document table: %w", err)
	}
	if len(dict) != int(header.TermCount) || len(docs) != int(header.DocCount) {
		return nil, fmt.Errorf("segment counts disagree with header")
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		docs:     docs,
	}, nil
}

// validate checks that every region the header names lies inside a file of
// size bytes, in the order the writer lays them out.
func (h SegmentHeader) validate(size int64) error {
	limit := size - int64(FooterSize)
	switch {
	case h.PostOffset != int64(HeaderSize):
		return fmt.Errorf("postings offset %d", h.PostOffset)
	case h.PostSize < 0 || h.PostSize > limit-h.PostOffset:
		return fmt.Errorf("postings size %d exceeds file", h.PostSize)
	case h.DictOffset != h.PostOffset+h.PostSize:
		return fmt.Errorf("dictionary offset %d", h.DictOffset)
	case h.DictSize < 0 || h.DictSize > limit-h.DictOffset:
		return fmt.Errorf("dictionary size %d exceeds file", h.DictSize)
	case int64(h.DocsSize) != limit-h.DictOffset-h.DictSize:
		return fmt.Errorf("document table size %d does not fit file", h.DocsSize)
	}
	return nil
}

func (r *Reader) lookup(term string) (DictEntry, bool) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

// Search returns the postings of term, or an empty list when the segment
// does not contain it.
func (r *Reader) Search(term string) (index.PostingList, error) {
	entry, ok := r.lookup(term)
	if !ok {
		return index.PostingList{}, nil
	}
	return r.read(entry)
}

func (r *Reader) read(entry DictEntry) (index.PostingList, error) {
	if entry.PostOffset < 0 || entry.PostLen < 0 || int64(entry.PostLen) > r.header.PostSize-entry.PostOffset {
		return nil, fmt.Errorf("postings for %q lie outside the postings region", entry.Term)
	}
	block := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(block, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings for %q: %w", entry.Term, err)
	}
	raw, err := decompressBlock(block, r.header.Codec)
	if err != nil {
		return nil, fmt.Errorf("decoding postings for %q: %w", entry.Term, err)
	}
	postings, err := decodePostings(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding postings for %q: %w", entry.Term, err)
	}
	return postings, nil
}

// DocFreq answers from the dictionary without touching the postings block.
func (r *Reader) DocFreq(term string) int {
	entry, ok := r.lookup(term)
	if !ok {
		return 0
	}
	return entry.DocFreq
}

// ReadAll decodes every postings list into a snapshot.
func (r *Reader) ReadAll() (index.Snapshot, error) {
	terms := make([]index.TermEntry, 0, len(r.dict))
	for _, entry := range r.dict {
		postings, err := r.read(entry)
		if err != nil {
			return index.Snapshot{}, err
		}
		terms = append(terms, index.TermEntry{Term: entry.Term, Postings: postings})
	}
	docs := make([]index.DocInfo, len(r.docs))
	copy(docs, r.docs)
	return index.Snapshot{Terms: terms, Docs: docs}, nil
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Codec() Codec {
	return r.header.Codec
}

func (r *Reader) Close() error {
	return r.file.Close()
}
