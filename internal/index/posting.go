package index

// Posting records how often a term occurs in one document. Doc is the
// document's sequence number within the index.
type Posting struct {
	Doc  uint32 `json:"d"`
	Freq uint32 `json:"f"`
}

// PostingList is sorted by Doc, strictly ascending.
type PostingList []Posting

// Find returns the posting for doc, if present.
func (pl PostingList) Find(doc uint32) (Posting, bool) {
	i, found := pl.search(doc)
	if !found {
		return Posting{}, false
	}
	return pl[i], true
}

func (pl PostingList) search(doc uint32) (int, bool) {
	lo, hi := 0, len(pl)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if pl[mid].Doc < doc {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, lo < len(pl) && pl[lo].Doc == doc
}

// TermEntry is one row of a snapshot dictionary.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// DocInfo holds the stored, retrievable fields of a document.
type DocInfo struct {
	Seq    uint32 `json:"seq"`
	ID     string `json:"id"`
	Path   string `json:"path,omitempty"`
	Name   string `json:"name,omitempty"`
	Length int    `json:"len"`
}

// Stored field names that queries may restrict on.
const (
	FieldPath = "path"
	FieldName = "name"
)

// Value returns the stored value of field, or "" when the field is unknown.
func (d DocInfo) Value(field string) string {
	switch field {
	case FieldPath:
		return d.Path
	case FieldName:
		return d.Name
	default:
		return ""
	}
}

// Snapshot is a consistent, sorted copy of an index suitable for
// persistence. Terms are sorted; Docs are ordered by Seq.
type Snapshot struct {
	Terms []TermEntry
	Docs  []DocInfo
}
