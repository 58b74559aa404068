package swap

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/gridstore/internal/chunk"
)

// Compression selects how frame payloads are compressed.
type Compression uint8

const (
	CompressionNone Compression = 0
	// CompressionLZ4 is fast and suits hot chunks that swap often.
	CompressionLZ4 Compression = 1
	// CompressionZSTD compresses better and suits cold chunks.
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

// ParseCompression is the inverse of Compression.String.
func ParseCompression(s string) (Compression, error) {
	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, errors.Newf("swap: unknown compression %q", s)
}

var (
	// ErrBadFrame is returned for blobs that are not chunk frames.
	ErrBadFrame = errors.New("swap: malformed chunk frame")
	// ErrChecksum is returned when a frame payload does not match its hash.
	ErrChecksum = errors.New("swap: chunk frame checksum mismatch")
)

// Frame layout, little endian:
//
//	magic "GSCK" | version u8 | compression u8 | encoding u8 | reserved u8 |
//	rows u32 | cols u32 | rawLen u32 | storedLen u32 | xxhash64(raw) u64 | stored
const (
	frameVersion    = 1
	frameHeaderSize = 32
	frameMagic      = "GSCK"
)

// Header describes a frame.
type Header struct {
	Compression Compression
	Encoding    chunk.Encoding
	Rows        int
	Cols        int
	RawLen      int
	StoredLen   int
	Checksum    uint64
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

// EncodeFrame wraps a chunk payload blob. The payload is stored raw when
// compression saves less than a tenth of it.
func EncodeFrame(raw []byte, enc chunk.Encoding, rows, cols int, c Compression) ([]byte, Header, error) {
	h := Header{
		Compression: CompressionNone,
		Encoding:    enc,
		Rows:        rows,
		Cols:        cols,
		RawLen:      len(raw),
		Checksum:    xxhash.Sum64(raw),
	}

	stored := raw
	if len(raw) > 0 {
		var (
			compressed []byte
			err        error
		)
		switch c {
		case CompressionNone:
		case CompressionLZ4:
			compressed, err = compressLZ4(raw)
		case CompressionZSTD:
			e := getZstdEncoder()
			compressed = e.EncodeAll(raw, nil)
			zstdEncoderPool.Put(e)
		default:
			return nil, Header{}, errors.Newf("swap: unknown compression %d", c)
		}
		if err != nil {
			return nil, Header{}, errors.Wrapf(err, "compress %s", c)
		}
		if len(compressed) > 0 && float64(len(compressed)) <= float64(len(raw))*0.9 {
			stored = compressed
			h.Compression = c
		}
	}
	h.StoredLen = len(stored)

	out := make([]byte, frameHeaderSize, frameHeaderSize+len(stored))
	copy(out, frameMagic)
	out[4] = frameVersion
	out[5] = uint8(h.Compression)
	out[6] = uint8(h.Encoding)
	binary.LittleEndian.PutUint32(out[8:], uint32(rows))
	binary.LittleEndian.PutUint32(out[12:], uint32(cols))
	binary.LittleEndian.PutUint32(out[16:], uint32(h.RawLen))
	binary.LittleEndian.PutUint32(out[20:], uint32(h.StoredLen))
	binary.LittleEndian.PutUint64(out[24:], h.Checksum)
	return append(out, stored...), h, nil
}

// ReadHeader parses the frame header without touching the payload.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < frameHeaderSize || string(data[:4]) != frameMagic {
		return Header{}, errors.Wrapf(ErrBadFrame, "%d bytes without header", len(data))
	}
	if data[4] != frameVersion {
		return Header{}, errors.Wrapf(ErrBadFrame, "unsupported version %d", data[4])
	}
	h := Header{
		Compression: Compression(data[5]),
		Encoding:    chunk.Encoding(data[6]),
		Rows:        int(binary.LittleEndian.Uint32(data[8:])),
		Cols:        int(binary.LittleEndian.Uint32(data[12:])),
		RawLen:      int(binary.LittleEndian.Uint32(data[16:])),
		StoredLen:   int(binary.LittleEndian.Uint32(data[20:])),
		Checksum:    binary.LittleEndian.Uint64(data[24:]),
	}
	if len(data)-frameHeaderSize != h.StoredLen {
		return Header{}, errors.Wrapf(ErrBadFrame, "payload is %d bytes, header says %d",
			len(data)-frameHeaderSize, h.StoredLen)
	}
	return h, nil
}

// DecodeFrame returns the header and the verified raw payload.
func DecodeFrame(data []byte) (Header, []byte, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return Header{}, nil, err
	}
	stored := data[frameHeaderSize:]

	var raw []byte
	switch h.Compression {
	case CompressionNone:
		raw = stored
	case CompressionLZ4:
		raw = make([]byte, h.RawLen)
		n, err := lz4.UncompressBlock(stored, raw)
		if err != nil {
			return Header{}, nil, errors.Wrapf(ErrBadFrame, "lz4: %v", err)
		}
		raw = raw[:n]
	case CompressionZSTD:
		d := getZstdDecoder()
		raw, err = d.DecodeAll(stored, make([]byte, 0, h.RawLen))
		zstdDecoderPool.Put(d)
		if err != nil {
			return Header{}, nil, errors.Wrapf(ErrBadFrame, "zstd: %v", err)
		}
	default:
		return Header{}, nil, errors.Wrapf(ErrBadFrame, "unknown compression %d", h.Compression)
	}
	if len(raw) != h.RawLen {
		return Header{}, nil, errors.Wrapf(ErrBadFrame, "decoded %d bytes, header says %d", len(raw), h.RawLen)
	}
	if sum := xxhash.Sum64(raw); sum != h.Checksum {
		return Header{}, nil, errors.Wrapf(ErrChecksum, "got %016x, want %016x", sum, h.Checksum)
	}
	return h, raw, nil
}

func compressLZ4(data []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, buf, nil)
	if err != nil {
		return nil, err
	}
	// Zero means incompressible.
	return buf[:n], nil
}
