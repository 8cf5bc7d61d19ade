package multimap_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/embedtree/pkg/multimap"
	"github.com/Sumatoshi-tech/embedtree/pkg/rbtree"
)

func populate(tb testing.TB, arena *multimap.Arena, count int, seed uint64) *multimap.Map {
	tb.Helper()

	rng := rand.New(rand.NewPCG(seed, seed+1))
	m := multimap.New(arena)

	for idx := range count {
		m.Insert(multimap.Item{Key: rng.Uint32N(uint32(count / 3)), Value: uint32(idx)})
	}

	require.NoError(tb, m.Verify())

	return m
}

func TestArenaHibernateBoot(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	m := populate(t, arena, 1000, 1)

	// Leave some gaps behind.
	for range 100 {
		m.EraseKey(m.Min().Key())
	}

	want := collect(m)
	used := arena.Used()

	require.NoError(t, arena.Hibernate())
	assert.True(t, arena.Hibernated())
	assert.Positive(t, arena.HibernatedBytes())
	assert.Panics(t, func() { arena.Clone() })
	assert.Panics(t, func() { _ = arena.Hibernate() })

	require.NoError(t, arena.Boot())
	assert.False(t, arena.Hibernated())
	assert.Equal(t, used, arena.Used())

	require.NoError(t, m.Verify())
	assert.Equal(t, want, collect(m))

	// Freed entries survive hibernation and are reused.
	size := arena.Size()
	m.Insert(multimap.Item{Key: 1, Value: 1})
	assert.Equal(t, size, arena.Size())
}

func TestArenaHibernationThreshold(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	arena.HibernationThreshold = 100
	populate(t, arena, 30, 2)

	require.NoError(t, arena.Hibernate())
	assert.False(t, arena.Hibernated())
}

func TestArenaHibernateEmpty(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	require.NoError(t, arena.Hibernate())
	require.NoError(t, arena.Boot())

	m := multimap.New(arena)
	insertKeys(m, 1)
	require.NoError(t, m.Verify())
}

func TestArenaSerializeFile(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	first := populate(t, arena, 500, 3)
	second := populate(t, arena, 200, 4)
	wantFirst, wantSecond := collect(first), collect(second)

	path := filepath.Join(t.TempDir(), "arena.bin")

	require.NoError(t, arena.Hibernate())
	require.NoError(t, arena.Serialize(path))
	require.ErrorIs(t, arena.Boot(), multimap.ErrNotLoaded)

	restored := multimap.NewArena()
	require.NoError(t, restored.Deserialize(path))
	require.NoError(t, restored.Boot())

	sentinels := restored.Sentinels()
	require.Equal(t, []multimap.Handle{first.Sentinel(), second.Sentinel()}, sentinels)

	loadedFirst, err := multimap.Attach(restored, sentinels[0])
	require.NoError(t, err)

	loadedSecond, err := multimap.Attach(restored, sentinels[1])
	require.NoError(t, err)

	require.NoError(t, loadedFirst.Verify())
	require.NoError(t, loadedSecond.Verify())
	assert.Equal(t, wantFirst, collect(loadedFirst))
	assert.Equal(t, wantSecond, collect(loadedSecond))
}

func TestArenaSerializeRequiresHibernation(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	populate(t, arena, 10, 5)

	var buf bytes.Buffer
	require.ErrorIs(t, arena.SerializeTo(&buf), multimap.ErrNotHibernated)
	require.ErrorIs(t, arena.DeserializeFrom(&buf), multimap.ErrNotHibernated)
}

func TestArenaDeserializeCorrupt(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	populate(t, arena, 100, 6)
	require.NoError(t, arena.Hibernate())

	var buf bytes.Buffer
	require.NoError(t, arena.SerializeTo(&buf))

	snapshot := buf.Bytes()

	t.Run("bad_magic", func(t *testing.T) {
		t.Parallel()

		corrupt := bytes.Clone(snapshot)
		corrupt[0] = 'X'

		err := multimap.NewArena().DeserializeFrom(bytes.NewReader(corrupt))
		require.ErrorIs(t, err, multimap.ErrBadMagic)
	})

	t.Run("bad_version", func(t *testing.T) {
		t.Parallel()

		corrupt := bytes.Clone(snapshot)
		corrupt[4] = 99

		err := multimap.NewArena().DeserializeFrom(bytes.NewReader(corrupt))
		require.ErrorIs(t, err, multimap.ErrBadVersion)
	})

	t.Run("huge_length", func(t *testing.T) {
		t.Parallel()

		corrupt := append([]byte("ETAR\x02"), 0xff, 0xff, 0xff, 0xff, 0x7f)

		err := multimap.NewArena().DeserializeFrom(bytes.NewReader(corrupt))
		require.ErrorIs(t, err, multimap.ErrCorruptLength)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()

		err := multimap.NewArena().DeserializeFrom(bytes.NewReader(snapshot[:len(snapshot)-3]))
		require.Error(t, err)
	})

	t.Run("intact", func(t *testing.T) {
		t.Parallel()

		restored := multimap.NewArena()
		require.NoError(t, restored.DeserializeFrom(bytes.NewReader(snapshot)))
		require.NoError(t, restored.Boot())
		m, err := multimap.Attach(restored, restored.Sentinels()[0])
		require.NoError(t, err)
		require.NoError(t, m.Verify())
	})
}

// restoreAll deserializes data and attaches and verifies every map in it.
func restoreAll(data []byte) error {
	arena := multimap.NewArena()

	err := arena.DeserializeFrom(bytes.NewReader(data))
	if err != nil {
		return err
	}

	err = arena.Boot()
	if err != nil {
		return err
	}

	for _, sentinel := range arena.Sentinels() {
		m, err := multimap.Attach(arena, sentinel)
		if err != nil {
			return err
		}

		err = m.Verify()
		if err != nil {
			return err
		}
	}

	return nil
}

func serializeArena(tb testing.TB, arena *multimap.Arena) []byte {
	tb.Helper()

	require.NoError(tb, arena.Hibernate())

	var buf bytes.Buffer
	require.NoError(tb, arena.SerializeTo(&buf))

	return buf.Bytes()
}

// relinkLeft points the left link of handle's node at target.
func relinkLeft(arena *multimap.Arena, handle, target multimap.Handle) {
	flags, links := arena.Node(handle).Words()
	links[1] = target
	arena.Node(handle).SetWords(flags, links)
}

func TestArenaDeserializeBitFlips(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	populate(t, arena, 300, 10)

	snapshot := serializeArena(t, arena)
	require.NoError(t, restoreAll(snapshot))

	rng := rand.New(rand.NewPCG(10, 11))

	for round := range 300 {
		corrupt := bytes.Clone(snapshot)

		for _, bit := range rng.Perm(len(corrupt) * 8)[:1+round%3] {
			corrupt[bit/8] ^= 1 << (bit % 8)
		}

		require.Error(t, restoreAll(corrupt), "round %d", round)
	}
}

func TestArenaDeserializeColumnChecksum(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	populate(t, arena, 100, 12)

	snapshot := serializeArena(t, arena)

	// The last column is followed by its digest.
	snapshot[len(snapshot)-1] ^= 0x80

	err := multimap.NewArena().DeserializeFrom(bytes.NewReader(snapshot))
	require.ErrorIs(t, err, multimap.ErrCorruptColumns)
}

func TestArenaAttachCyclicLinks(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	m := multimap.New(arena)

	for key := range uint32(300) {
		m.Insert(multimap.Item{Key: key, Value: key})
	}

	// The minimum is a leaf; make it its own left child.
	leaf := slices.Collect(m.Min().Values())[0]
	relinkLeft(arena, leaf, leaf)

	// The links stay inside the arena, so only the tree walk can notice.
	err := restoreAll(serializeArena(t, arena))
	require.ErrorIs(t, err, rbtree.ErrBrokenLink)
}

func TestArenaBootRejectsOutOfRangeLinks(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	m := populate(t, arena, 50, 14)

	relinkLeft(arena, m.Sentinel(), multimap.Handle(arena.Size()+10))

	require.NoError(t, arena.Hibernate())
	require.ErrorIs(t, arena.Boot(), multimap.ErrCorruptColumns)
}

func TestArenaAttachRejectsNonSentinel(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	m := populate(t, arena, 20, 15)

	value := slices.Collect(m.Min().Values())[0]

	for _, handle := range []multimap.Handle{rbtree.Nil, value, multimap.Handle(arena.Size())} {
		_, err := multimap.Attach(arena, handle)
		require.ErrorIs(t, err, rbtree.ErrNotSentinel, "handle %d", handle)
	}
}

func TestArenaDeserializeBoundsAllocations(t *testing.T) {
	t.Parallel()

	header := func(storageLen uint64) []byte {
		data := append([]byte("ETAR"), 2)
		data = binary.AppendUvarint(data, storageLen)

		return binary.AppendUvarint(data, 0)
	}

	t.Run("column_longer_than_input", func(t *testing.T) {
		t.Parallel()

		data := binary.AppendUvarint(header(1<<31), 1<<33)
		data = append(data, 1, 2, 3)

		err := multimap.NewArena().DeserializeFrom(bytes.NewReader(data))
		require.ErrorIs(t, err, io.EOF)
	})

	t.Run("storage_beyond_column", func(t *testing.T) {
		t.Parallel()

		column := []byte{1, 0, 0, 0, 0, 0, 0, 0, 0, 0}
		data := binary.AppendUvarint(header(1<<20), uint64(len(column)))
		data = append(data, column...)
		data = binary.LittleEndian.AppendUint64(data, xxhash.Sum64(column))

		err := multimap.NewArena().DeserializeFrom(bytes.NewReader(data))
		require.ErrorIs(t, err, multimap.ErrCorruptLength)
	})
}

func TestArenaSnapshotDeterministic(t *testing.T) {
	t.Parallel()

	snapshot := func() []byte {
		arena := multimap.NewArena()
		m := multimap.New(arena)
		rng := rand.New(rand.NewPCG(16, 17))

		var handles []multimap.Handle

		for step := range 3000 {
			if len(handles) > 0 && rng.IntN(3) == 0 {
				idx := rng.IntN(len(handles))
				m.Erase(handles[idx])
				handles = slices.Delete(handles, idx, idx+1)

				continue
			}

			handles = append(handles, m.Insert(multimap.Item{Key: rng.Uint32N(200), Value: uint32(step)}))
		}

		return serializeArena(t, arena)
	}

	assert.Equal(t, snapshot(), snapshot())
}

func TestArenaReusesLastFreed(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	m := multimap.New(arena)

	first := m.Insert(multimap.Item{Key: 1, Value: 1})
	m.Insert(multimap.Item{Key: 2, Value: 2})
	third := m.Insert(multimap.Item{Key: 3, Value: 3})

	m.Erase(first)
	m.Erase(third)

	assert.Equal(t, third, m.Insert(multimap.Item{Key: 4, Value: 4}))
	assert.Equal(t, first, m.Insert(multimap.Item{Key: 5, Value: 5}))
	assert.Equal(t, 0, arena.Stats().Free)
}

func TestArenaCompact(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	first := populate(t, arena, 300, 7)
	second := populate(t, arena, 100, 8)

	rng := rand.New(rand.NewPCG(9, 9))

	var kept []multimap.Handle

	keptItems := map[multimap.Handle]multimap.Item{}

	for it := first.Min(); !it.Limit(); {
		handles := []multimap.Handle{}
		for handle := range it.Values() {
			handles = append(handles, handle)
		}

		it = it.Next()

		for _, handle := range handles {
			if rng.IntN(3) > 0 {
				first.Erase(handle)

				continue
			}

			kept = append(kept, handle)
			keptItems[handle] = *arena.Item(handle)
		}
	}

	wantFirst, wantSecond := collect(first), collect(second)
	used := arena.Used()

	moves := arena.Compact()
	require.NotEmpty(t, moves)

	first.Rebind(moves)
	second.Rebind(moves)

	assert.Equal(t, used+1, arena.Size())
	assert.Equal(t, used, arena.Used())

	require.NoError(t, first.Verify())
	require.NoError(t, second.Verify())
	assert.Equal(t, wantFirst, collect(first))
	assert.Equal(t, wantSecond, collect(second))

	for _, handle := range kept {
		current := handle
		if moved, ok := moves[handle]; ok {
			current = moved
		}

		assert.Equal(t, keptItems[handle], *arena.Item(current))
	}

	assert.Empty(t, arena.Compact())
}

func TestArenaSwap(t *testing.T) {
	t.Parallel()

	arena := multimap.NewArena()
	m := multimap.New(arena)

	a := m.Insert(multimap.Item{Key: 1, Value: 10})
	b := m.Insert(multimap.Item{Key: 2, Value: 20})
	c := m.Insert(multimap.Item{Key: 2, Value: 21})
	d := m.Insert(multimap.Item{Key: 3, Value: 30})
	want := collect(m)

	for _, swap := range [][2]multimap.Handle{{a, b}, {b, c}, {c, d}, {a, d}, {m.Sentinel(), b}} {
		arena.Swap(swap[0], swap[1])
		m.Rebind(map[multimap.Handle]multimap.Handle{swap[0]: swap[1], swap[1]: swap[0]})

		require.NoError(t, m.Verify())
		assert.Equal(t, want, collect(m))
	}
}
