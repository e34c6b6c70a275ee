package segment

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/index"
)

// Codec identifies the block compression applied to postings.
type Codec uint8

const (
	CodecNone Codec = 0
	CodecLZ4  Codec = 1
	CodecZstd Codec = 2
)

// ParseCodec maps a configuration name onto a Codec.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return CodecNone, fmt.Errorf("unknown compression %q", name)
	}
}

func (c Codec) String() string {
	switch c {
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return "none"
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Block layout: [UncompressedSize uint32][CompressedSize uint32][Data...].
// CompressedSize 0 marks a block stored as is.
const blockHeaderSize = 8

func compressBlock(data []byte, codec Codec) ([]byte, error) {
	var compressed []byte
	switch codec {
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		compressed = buf[:n]
	case CodecZstd:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	}

	if len(compressed) == 0 || len(compressed) >= len(data) {
		out := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		copy(out[blockHeaderSize:], data)
		return out, nil
	}
	out := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], compressed)
	return out, nil
}

func decompressBlock(block []byte, codec Codec) ([]byte, error) {
	if len(block) < blockHeaderSize {
		return nil, errors.New("block too small for header")
	}
	rawSize := binary.LittleEndian.Uint32(block[0:])
	compSize := binary.LittleEndian.Uint32(block[4:])
	body := block[blockHeaderSize:]

	if compSize == 0 {
		if uint32(len(body)) < rawSize {
			return nil, errors.New("block data too small")
		}
		return body[:rawSize], nil
	}
	if uint32(len(body)) < compSize {
		return nil, errors.New("compressed block data too small")
	}
	body = body[:compSize]
	out := make([]byte, rawSize)

	switch codec {
	case CodecLZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint32(n) != rawSize {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil
	case CodecZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		decoded, err := dec.DecodeAll(body, out[:0])
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if uint32(len(decoded)) != rawSize {
			return nil, errors.New("decompressed size mismatch")
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("compressed block with codec %s", codec)
	}
}

// encodePostings writes doc gaps and frequencies as uvarints.
func encodePostings(pl index.PostingList) []byte {
	buf := make([]byte, 0, len(pl)*3+binary.MaxVarintLen32)
	buf = binary.AppendUvarint(buf, uint64(len(pl)))
	var prev uint32
	for _, p := range pl {
		buf = binary.AppendUvarint(buf, uint64(p.Doc-prev))
		buf = binary.AppendUvarint(buf, uint64(p.Freq))
		prev = p.Doc
	}
	return buf
}

func decodePostings(data []byte) (index.PostingList, error) {
	n, k := binary.Uvarint(data)
	if k <= 0 {
		return nil, errors.New("bad postings count")
	}
	data = data[k:]
	if n > uint64(len(data)) {
		return nil, fmt.Errorf("postings count %d exceeds block size", n)
	}
	pl := make(index.PostingList, 0, n)
	var doc uint32
	for i := uint64(0); i < n; i++ {
		gap, k := binary.Uvarint(data)
		if k <= 0 {
			return nil, fmt.Errorf("bad doc gap at posting %d", i)
		}
		data = data[k:]
		freq, k := binary.Uvarint(data)
		if k <= 0 {
			return nil, fmt.Errorf("bad frequency at posting %d", i)
		}
		data = data[k:]
		doc += uint32(gap)
		pl = append(pl, index.Posting{Doc: doc, Freq: uint32(freq)})
	}
	return pl, nil
}
