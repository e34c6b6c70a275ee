package segment

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/index"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

var testAnalyzer = config.AnalyzerConfig{Language: "english", StopWords: []string{"the"}, MinTokenLength: 1}

func sampleSnapshot() index.Snapshot {
	s := index.NewStore()
	s.SetFields("d1", "/docs/d1.txt", "d1.txt")
	s.Add("d1", slices.Values([]string{"cat", "dog"}))
	s.SetFields("d2", "/docs/d2.txt", "d2.txt")
	s.Add("d2", slices.Values([]string{"dog", "dog", "bird"}))
	s.SetFields("d3", "/docs/sub/d3.txt", "d3.txt")
	s.Add("d3", slices.Values([]string{"bird"}))
	return s.Snapshot()
}

func TestCodecRoundTrip(t *testing.T) {
	pl := make(index.PostingList, 0, 500)
	for i := uint32(0); i < 500; i++ {
		pl = append(pl, index.Posting{Doc: i * 3, Freq: i%7 + 1})
	}
	raw := encodePostings(pl)

	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			block, err := compressBlock(raw, codec)
			require.NoError(t, err)
			if codec != CodecNone {
				assert.Less(t, len(block), len(raw), "repetitive postings should compress")
			}
			out, err := decompressBlock(block, codec)
			require.NoError(t, err)
			got, err := decodePostings(out)
			require.NoError(t, err)
			assert.Equal(t, pl, got)
		})
	}
}

func TestCompressBlockStoresIncompressibleRaw(t *testing.T) {
	data := []byte{1, 2}
	block, err := compressBlock(data, CodecZstd)
	require.NoError(t, err)
	assert.Len(t, block, blockHeaderSize+len(data))
	out, err := decompressBlock(block, CodecZstd)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestDecodePostingsRejectsGarbage(t *testing.T) {
	_, err := decodePostings(nil)
	assert.Error(t, err)
	_, err = decodePostings([]byte{0x7f})
	assert.Error(t, err)
	_, err = decompressBlock([]byte{1, 2, 3}, CodecNone)
	assert.Error(t, err)
}

func TestParseCodec(t *testing.T) {
	for name, want := range map[string]Codec{"": CodecNone, "none": CodecNone, "lz4": CodecLZ4, "zstd": CodecZstd} {
		got, err := ParseCodec(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCodec("snappy")
	assert.Error(t, err)
}

func TestCommitAndOpenReadOnly(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecLZ4, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			dir := t.TempDir()
			d, err := Open(dir, config.ModeCreate, codec)
			require.NoError(t, err)
			defer d.Close()

			m, err := d.Commit(sampleSnapshot(), testAnalyzer, "batch-1")
			require.NoError(t, err)
			assert.Equal(t, uint64(1), m.Generation)
			assert.Equal(t, 3, m.DocCount)
			assert.Equal(t, 3, m.TermCount)
			assert.Equal(t, codec.String(), m.Compression)

			snap, err := OpenReadOnly(dir)
			require.NoError(t, err)
			defer snap.Close()

			assert.Equal(t, uint64(1), snap.Generation())
			assert.Equal(t, 3, snap.DocumentCount())
			assert.Equal(t, 3, snap.TermCount())
			assert.Equal(t, 2, snap.DocumentFrequency("dog"))
			assert.Zero(t, snap.DocumentFrequency("fish"))
			assert.Equal(t, testAnalyzer, snap.Analyzer())
			assert.Equal(t, "batch-1", snap.Manifest().BatchID)

			pl, err := snap.Postings("dog")
			require.NoError(t, err)
			assert.Equal(t, index.PostingList{{Doc: 0, Freq: 1}, {Doc: 1, Freq: 2}}, pl)

			pl, err = snap.Postings("fish")
			require.NoError(t, err)
			assert.Empty(t, pl)

			doc, ok := snap.Document(2)
			require.True(t, ok)
			assert.Equal(t, "d3", doc.ID)
			assert.Equal(t, "/docs/sub/d3.txt", doc.Path)
			_, ok = snap.Document(3)
			assert.False(t, ok)
		})
	}
}

func TestFieldDocs(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir, config.ModeCreate, CodecNone)
	require.NoError(t, err)
	defer d.Close()
	_, err = d.Commit(sampleSnapshot(), testAnalyzer, "")
	require.NoError(t, err)

	snap, err := OpenReadOnly(dir)
	require.NoError(t, err)
	defer snap.Close()

	docs, err := snap.FieldDocs(index.FieldName, "d2.txt")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1}, docs)

	docs, err = snap.FieldDocs(index.FieldPath, "/docs/d2")
	require.NoError(t, err)
	assert.Empty(t, docs, "field match is exact")

	_, err = snap.FieldDocs("title", "x")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestOpenReadOnlyMissingIndex(t *testing.T) {
	_, err := OpenReadOnly(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, apperrors.ErrIndexNotFound)

	dir := t.TempDir()
	d, err := Open(dir, config.ModeCreate, CodecNone)
	require.NoError(t, err)
	defer d.Close()
	_, err = OpenReadOnly(dir)
	assert.ErrorIs(t, err, apperrors.ErrIndexNotFound, "an opened but never committed index does not exist yet")
}

func TestAppendModeKeepsCommittedDocuments(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir, config.ModeCreate, CodecZstd)
	require.NoError(t, err)
	_, err = d.Commit(sampleSnapshot(), testAnalyzer, "")
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = Open(dir, config.ModeAppend, CodecZstd)
	require.NoError(t, err)
	defer d.Close()
	m, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, uint64(1), m.Generation)

	loaded, err := d.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot(), loaded)

	store := index.NewStore()
	store.Load(loaded)
	store.Add("d4", slices.Values([]string{"cat"}))
	m, err = d.Commit(store.Snapshot(), testAnalyzer, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), m.Generation)

	snap, err := OpenReadOnly(dir)
	require.NoError(t, err)
	defer snap.Close()
	assert.Equal(t, 4, snap.DocumentCount())
	assert.Equal(t, 2, snap.DocumentFrequency("cat"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{CurrentFileName, LockFileName, manifestName(2), segmentName(2)}, names)
}

func TestCreateModeReplacesAtCommit(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir, config.ModeCreate, CodecNone)
	require.NoError(t, err)
	first, err := d.Commit(sampleSnapshot(), testAnalyzer, "")
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = Open(dir, config.ModeCreate, CodecNone)
	require.NoError(t, err)
	defer d.Close()
	_, ok := d.Current()
	assert.False(t, ok)
	_, err = d.Load()
	assert.ErrorIs(t, err, apperrors.ErrIndexNotFound)

	// readers keep the committed generation until the replacement lands
	snap, err := OpenReadOnly(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Generation())
	assert.Equal(t, 3, snap.DocumentCount())
	require.NoError(t, snap.Close())

	m, err := d.Commit(index.Snapshot{}, testAnalyzer, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), m.Generation, "generations keep increasing across a reset")

	snap, err = OpenReadOnly(dir)
	require.NoError(t, err)
	defer snap.Close()
	assert.Zero(t, snap.DocumentCount())
	_, err = os.Stat(filepath.Join(dir, first.Segment))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAbandonedCreateKeepsCommittedIndex(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir, config.ModeCreate, CodecZstd)
	require.NoError(t, err)
	_, err = d.Commit(sampleSnapshot(), testAnalyzer, "")
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = Open(dir, config.ModeCreate, CodecZstd)
	require.NoError(t, err)
	require.NoError(t, d.Reset())
	require.NoError(t, d.Close())

	snap, err := OpenReadOnly(dir)
	require.NoError(t, err)
	defer snap.Close()
	assert.Equal(t, uint64(1), snap.Generation())
	assert.Equal(t, 3, snap.DocumentCount())
	pl, err := snap.Postings("dog")
	require.NoError(t, err)
	assert.Len(t, pl, 2)

	d, err = Open(dir, config.ModeAppend, CodecZstd)
	require.NoError(t, err)
	defer d.Close()
	m, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, uint64(1), m.Generation)
}

func TestSecondWriterIsRejected(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir, config.ModeCreate, CodecNone)
	require.NoError(t, err)

	_, err = Open(dir, config.ModeAppend, CodecNone)
	assert.ErrorIs(t, err, apperrors.ErrWriterLocked)

	require.NoError(t, d.Close())
	d2, err := Open(dir, config.ModeAppend, CodecNone)
	require.NoError(t, err)
	require.NoError(t, d2.Close())
}

func TestCommitAfterCloseFails(t *testing.T) {
	d, err := Open(t.TempDir(), config.ModeCreate, CodecNone)
	require.NoError(t, err)
	require.NoError(t, d.Close())
	_, err = d.Commit(sampleSnapshot(), testAnalyzer, "")
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
}

func TestUnpublishedGenerationIsInvisible(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir, config.ModeCreate, CodecNone)
	require.NoError(t, err)
	defer d.Close()
	_, err = d.Commit(sampleSnapshot(), testAnalyzer, "")
	require.NoError(t, err)

	// A writer that crashed after writing generation 2 but before swapping
	// CURRENT, plus leftover temp files.
	require.NoError(t, writeSegment(filepath.Join(dir, segmentName(2)), index.Snapshot{}, CodecNone))
	require.NoError(t, writeManifest(dir, Manifest{Version: ManifestVersion, Generation: 2, Segment: segmentName(2)}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, CurrentFileName+tmpExt), []byte("garbage"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, segmentName(3)+tmpExt), []byte("garbage"), 0o644))

	snap, err := OpenReadOnly(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Generation())
	assert.Equal(t, 3, snap.DocumentCount())
	require.NoError(t, snap.Close())

	// the next commit overwrites the orphaned generation and sweeps temp files
	m, err := d.Commit(sampleSnapshot(), testAnalyzer, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), m.Generation)
	_, err = os.Stat(filepath.Join(dir, segmentName(3)+tmpExt))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(dir, segmentName(1)))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCorruptDictionaryIsDetected(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir, config.ModeCreate, CodecNone)
	require.NoError(t, err)
	defer d.Close()
	m, err := d.Commit(sampleSnapshot(), testAnalyzer, "")
	require.NoError(t, err)

	path := filepath.Join(dir, m.Segment)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	header := decodeHeader(data[:HeaderSize])
	pos := bytes.Index(data[header.DictOffset:], []byte("bird"))
	require.GreaterOrEqual(t, pos, 0)
	data[header.DictOffset+int64(pos)] = 'w'
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = OpenReadOnly(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
	assert.Contains(t, err.Error(), "checksum")
}

func TestCorruptHeaderIsRejected(t *testing.T) {
	tests := []struct {
		name  string
		start int
		end   int
	}{
		{"postings size", 32, 40},
		{"dictionary offset", 40, 48},
		{"dictionary size", 48, 56},
		{"document table size", 56, 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			d, err := Open(dir, config.ModeCreate, CodecNone)
			require.NoError(t, err)
			defer d.Close()
			m, err := d.Commit(sampleSnapshot(), testAnalyzer, "")
			require.NoError(t, err)

			path := filepath.Join(dir, m.Segment)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			for i := tt.start; i < tt.end; i++ {
				data[i] = 0xFF
			}
			require.NoError(t, os.WriteFile(path, data, 0o644))

			require.NotPanics(t, func() {
				_, err = OpenReadOnly(dir)
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrPersistence)
			assert.Contains(t, err.Error(), "invalid segment file")
		})
	}
}

func TestTruncatedSegmentIsRejected(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir, config.ModeCreate, CodecLZ4)
	require.NoError(t, err)
	defer d.Close()
	m, err := d.Commit(sampleSnapshot(), testAnalyzer, "")
	require.NoError(t, err)

	path := filepath.Join(dir, m.Segment)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-int64(FooterSize)-4))

	_, err = OpenReader(path)
	assert.ErrorContains(t, err, "invalid segment file")
}

func TestBadMagicIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.fsx")
	require.NoError(t, os.WriteFile(path, make([]byte, HeaderSize+FooterSize), 0o644))
	_, err := OpenReader(path)
	assert.ErrorContains(t, err, "magic")
}

func TestMalformedCurrentPointer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CurrentFileName), []byte("../etc/passwd"), 0o644))
	_, err := OpenReadOnly(dir)
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
}

func TestReaderKeepsServingAfterNewCommit(t *testing.T) {
	dir := t.TempDir()
	d, err := Open(dir, config.ModeCreate, CodecLZ4)
	require.NoError(t, err)
	defer d.Close()
	_, err = d.Commit(sampleSnapshot(), testAnalyzer, "")
	require.NoError(t, err)

	old, err := OpenReadOnly(dir)
	require.NoError(t, err)
	defer old.Close()

	_, err = d.Commit(index.Snapshot{}, testAnalyzer, "")
	require.NoError(t, err)

	pl, err := old.Postings("bird")
	require.NoError(t, err)
	assert.Len(t, pl, 2)

	fresh, err := OpenReadOnly(dir)
	require.NoError(t, err)
	defer fresh.Close()
	assert.Equal(t, uint64(2), fresh.Generation())
	assert.Zero(t, fresh.DocumentCount())
}
