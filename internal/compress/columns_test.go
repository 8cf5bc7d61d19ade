package compress_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/embedtree/internal/compress"
)

const (
	columnSize = 1000
	sortStep   = 3
)

func TestPackUnpackRepetitive(t *testing.T) {
	t.Parallel()

	data := make([]uint32, columnSize)
	for idx := range data {
		data[idx] = 7
	}

	packed, err := compress.PackUint32s(data)
	require.NoError(t, err)
	assert.Less(t, len(packed), columnSize*4, "repetitive columns should shrink")

	restored := make([]uint32, columnSize)
	require.NoError(t, compress.UnpackUint32s(packed, restored))
	assert.Equal(t, data, restored)
}

func TestPackUnpackIncompressible(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 1))

	data := make([]uint32, 64)
	for idx := range data {
		data[idx] = rng.Uint32()
	}

	packed, err := compress.PackUint32s(data)
	require.NoError(t, err)

	restored := make([]uint32, len(data))
	require.NoError(t, compress.UnpackUint32s(packed, restored))
	assert.Equal(t, data, restored)
}

func TestPackEmptyColumn(t *testing.T) {
	t.Parallel()

	packed, err := compress.PackUint32s(nil)
	require.NoError(t, err)
	require.NotEmpty(t, packed)

	require.NoError(t, compress.UnpackUint32s(packed, []uint32{}))
}

func TestUnpackErrors(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, compress.UnpackUint32s(nil, make([]uint32, 1)), compress.ErrEmptyBlock)
	require.ErrorIs(t, compress.UnpackUint32s([]byte{9, 0}, make([]uint32, 1)), compress.ErrUnknownEncoding)

	packed, err := compress.PackUint32s([]uint32{1, 2, 3})
	require.NoError(t, err)
	require.ErrorIs(t, compress.UnpackUint32s(packed, make([]uint32, 2)), compress.ErrSizeMismatch)
}

func TestDeltaSortedAscending(t *testing.T) {
	t.Parallel()

	original := make([]uint32, columnSize)
	for i := range original {
		original[i] = uint32(i * sortStep)
	}

	data := append([]uint32(nil), original...)
	compress.DeltaEncode(data)

	assert.Equal(t, original[0], data[0])

	for i := 1; i < len(data); i++ {
		assert.Equal(t, uint32(sortStep), data[i], "delta at index %d", i)
	}

	compress.DeltaDecode(data)
	assert.Equal(t, original, data)
}

func TestDeltaWrapsAround(t *testing.T) {
	t.Parallel()

	original := []uint32{100, 5, 4_000_000_000, 0}
	data := append([]uint32(nil), original...)

	compress.DeltaEncode(data)
	compress.DeltaDecode(data)
	assert.Equal(t, original, data)
}

func BenchmarkPackSortedColumn(b *testing.B) {
	data := make([]uint32, 100_000)
	for i := range data {
		data[i] = uint32(i * sortStep)
	}

	compress.DeltaEncode(data)

	for b.Loop() {
		_, err := compress.PackUint32s(data)
		if err != nil {
			b.Fatal(err)
		}
	}
}
