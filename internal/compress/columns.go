// Package compress packs uint32 columns with LZ4 for hibernated arenas.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// uint32ByteSize is the number of bytes in a uint32.
const uint32ByteSize = 4

// An LZ4 block decodes to at most maxExpansion bytes per input byte, plus
// the minimal match of its final sequences.
const (
	maxExpansion = 255
	expansionPad = 64
)

// Block encodings, stored as the first byte of a packed column.
const (
	encodingRaw byte = iota
	encodingLZ4
)

// Errors returned by UnpackUint32s.
var (
	ErrEmptyBlock      = errors.New("packed column is empty")
	ErrUnknownEncoding = errors.New("unknown column encoding")
	ErrSizeMismatch    = errors.New("column size mismatch")
)

// PackUint32s serializes data as little-endian words and compresses them as a
// single LZ4 block. Incompressible columns are stored raw.
func PackUint32s(data []uint32) ([]byte, error) {
	if len(data) == 0 {
		return []byte{encodingRaw}, nil
	}

	raw := make([]byte, len(data)*uint32ByteSize)
	for idx, word := range data {
		binary.LittleEndian.PutUint32(raw[idx*uint32ByteSize:], word)
	}

	packed := make([]byte, 1+lz4.CompressBlockBound(len(raw)))

	written, err := lz4.CompressBlock(raw, packed[1:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress %d words: %w", len(data), err)
	}

	if written == 0 || written >= len(raw) {
		return append([]byte{encodingRaw}, raw...), nil
	}

	packed[0] = encodingLZ4

	return packed[:1+written], nil
}

// MaxWords returns an upper bound of the words a column packed by
// PackUint32s into size bytes decodes to.
func MaxWords(size int) int {
	if size <= 1 {
		return 0
	}

	return ((size-1)*maxExpansion + expansionPad) / uint32ByteSize
}

// UnpackUint32s restores a column produced by PackUint32s into result, which
// must be preallocated with the original length.
func UnpackUint32s(data []byte, result []uint32) error {
	if len(data) == 0 {
		return ErrEmptyBlock
	}

	raw := data[1:]

	switch data[0] {
	case encodingRaw:
	case encodingLZ4:
		raw = make([]byte, len(result)*uint32ByteSize)

		read, err := lz4.UncompressBlock(data[1:], raw)
		if err != nil {
			return fmt.Errorf("lz4 uncompress: %w", err)
		}

		raw = raw[:read]
	default:
		return fmt.Errorf("%w: %d", ErrUnknownEncoding, data[0])
	}

	if len(raw) != len(result)*uint32ByteSize {
		return fmt.Errorf("%w: %d bytes for %d words", ErrSizeMismatch, len(raw), len(result))
	}

	for idx := range result {
		result[idx] = binary.LittleEndian.Uint32(raw[idx*uint32ByteSize:])
	}

	return nil
}

// DeltaEncode replaces each element with the difference from its predecessor,
// in place. The first element is left unchanged. Sorted columns become small
// repetitive values that compress well.
func DeltaEncode(data []uint32) {
	for i := len(data) - 1; i > 0; i-- {
		data[i] -= data[i-1]
	}
}

// DeltaDecode performs the prefix sum undoing DeltaEncode, in place.
func DeltaDecode(data []uint32) {
	for i := 1; i < len(data); i++ {
		data[i] += data[i-1]
	}
}
