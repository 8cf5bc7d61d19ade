// Package multimap provides an ordered uint32 multimap built on the intrusive
// red-black tree of package rbtree, with slab storage that can be compacted,
// hibernated in memory and persisted to disk.
package multimap

import (
	"cmp"
	"maps"
	"fmt"
	"slices"
	"sync"

	"github.com/Sumatoshi-tech/embedtree/internal/compress"
	"github.com/Sumatoshi-tech/embedtree/pkg/rbtree"
	"github.com/Sumatoshi-tech/embedtree/pkg/safeconv"
)

// growCapacityNumerator and growCapacityDenominator define the 3/2 growth factor for storage.
const (
	growCapacityNumerator   = 3
	growCapacityDenominator = 2
)

// Hibernated columns: the six per-entry words followed by the free list.
const (
	columnKey = iota
	columnValue
	columnFlags
	columnLinkUp
	columnLinkLeft
	columnLinkRight
	columnGaps

	entryColumns  = columnGaps
	hibernatedLen = columnGaps + 1
)

// Handle references one stored value. Handles stay valid until the value is
// erased or the arena is compacted.
type Handle = rbtree.Ref

// Item is the object stored in each entry.
type Item struct {
	Key   uint32
	Value uint32
}

type entry struct {
	node rbtree.Node
	item Item
}

// Arena is the slab holding the entries of one or more maps. It implements
// rbtree.Storage. Entry 0 is reserved for rbtree.Nil.
//
// An Arena is not safe for concurrent use.
type Arena struct {
	storage []entry
	gaps    map[Handle]bool
	// freeList holds the keys of gaps in the order malloc reuses them, last
	// first, so that allocation only depends on the operation history.
	freeList             []Handle
	hibernatedData       [hibernatedLen][]byte
	HibernationThreshold int
	hibernatedStorageLen int
	hibernatedGapsLen    int
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		storage: []entry{},
		gaps:    map[Handle]bool{},
	}
}

// Node implements rbtree.Storage.
func (arena *Arena) Node(ref rbtree.Ref) *rbtree.Node {
	return &arena.storage[ref].node
}

// Item returns the item stored in the entry. Keys must not be changed while
// the entry is linked into a map.
func (arena *Arena) Item(handle Handle) *Item {
	return &arena.storage[handle].item
}

// Size returns the currently allocated size, including free entries.
func (arena *Arena) Size() int {
	return len(arena.storage)
}

// Used returns the number of entries in use, sentinels included.
func (arena *Arena) Used() int {
	arena.requireBooted()

	if len(arena.storage) == 0 {
		return 0
	}

	return len(arena.storage) - len(arena.gaps) - 1
}

// Hibernated reports whether the arena storage is compressed.
func (arena *Arena) Hibernated() bool {
	return arena.storage == nil
}

// HibernatedBytes returns the total size of the compressed columns.
func (arena *Arena) HibernatedBytes() int {
	total := 0
	for _, column := range arena.hibernatedData {
		total += len(column)
	}

	return total
}

// Stats describes the occupancy of an arena.
type Stats struct {
	Entries         int
	Used            int
	Free            int
	HibernatedBytes int
	Hibernated      bool
}

// Stats reports the occupancy of the arena. Unlike Used it is available while
// the arena is hibernated.
func (arena *Arena) Stats() Stats {
	stats := Stats{
		Entries:         len(arena.storage),
		Free:            len(arena.gaps),
		HibernatedBytes: arena.HibernatedBytes(),
		Hibernated:      arena.Hibernated(),
	}

	if stats.Hibernated {
		stats.Entries = arena.hibernatedStorageLen
		stats.Free = arena.hibernatedGapsLen
	}

	if stats.Entries > 0 {
		stats.Used = stats.Entries - stats.Free - 1
	}

	return stats
}

// Sentinels returns the sentinel entries of every map living in the arena, in
// storage order. Used to reattach maps after Deserialize and Boot.
func (arena *Arena) Sentinels() []Handle {
	arena.requireBooted()

	var sentinels []Handle

	for idx := range arena.storage {
		if arena.storage[idx].node.Tag() == rbtree.TagSentinel {
			sentinels = append(sentinels, Handle(safeconv.MustIntToUint32(idx)))
		}
	}

	return sentinels
}

// Clone copies an existing arena. Maps cloned with Map.CloneShallow may use it.
func (arena *Arena) Clone() *Arena {
	if arena.storage == nil {
		panic("cannot clone a hibernated arena")
	}

	clone := &Arena{
		HibernationThreshold: arena.HibernationThreshold,
		storage:              make([]entry, len(arena.storage), cap(arena.storage)),
		gaps:                 maps.Clone(arena.gaps),
		freeList:             slices.Clone(arena.freeList),
	}
	copy(clone.storage, arena.storage)

	return clone
}

// Hibernate compresses the allocated memory. Arenas smaller than
// HibernationThreshold are left as they are.
func (arena *Arena) Hibernate() error {
	if arena.hibernatedStorageLen > 0 {
		panic("cannot hibernate an already hibernated arena")
	}

	if len(arena.storage) < arena.HibernationThreshold {
		return nil
	}

	arena.hibernatedStorageLen = len(arena.storage)
	if arena.hibernatedStorageLen == 0 {
		arena.storage = nil

		return nil
	}

	columns := [entryColumns][]uint32{}
	for idx := range columns {
		columns[idx] = make([]uint32, len(arena.storage))
	}

	// Deinterleave to achieve a better compression ratio.
	for idx := range arena.storage {
		ent := &arena.storage[idx]
		flags, links := ent.node.Words()
		columns[columnKey][idx] = ent.item.Key
		columns[columnValue][idx] = ent.item.Value
		columns[columnFlags][idx] = flags
		columns[columnLinkUp][idx] = uint32(links[0])
		columns[columnLinkLeft][idx] = uint32(links[1])
		columns[columnLinkRight][idx] = uint32(links[2])
	}

	gaps := make([]uint32, 0, len(arena.freeList))
	for _, gap := range arena.freeList {
		gaps = append(gaps, uint32(gap))
	}

	slices.Sort(gaps)
	compress.DeltaEncode(gaps)

	arena.hibernatedGapsLen = len(gaps)

	var (
		wg   sync.WaitGroup
		errs [hibernatedLen]error
	)

	pending := append(columns[:], gaps)
	wg.Add(len(pending))

	for idx, column := range pending {
		go func() {
			defer wg.Done()

			arena.hibernatedData[idx], errs[idx] = compress.PackUint32s(column)
		}()
	}

	wg.Wait()

	err := joinColumnErrors(errs[:])
	if err != nil {
		arena.hibernatedData = [hibernatedLen][]byte{}
		arena.hibernatedStorageLen = 0
		arena.hibernatedGapsLen = 0

		return err
	}

	arena.storage = nil
	arena.gaps = nil
	arena.freeList = nil

	return nil
}

// Boot performs the opposite of Hibernate: decompresses and restores the
// allocated memory.
func (arena *Arena) Boot() error {
	if arena.storage == nil && arena.hibernatedStorageLen == 0 {
		arena.storage = []entry{}
		arena.gaps = map[Handle]bool{}
		arena.freeList = nil

		return nil
	}

	if arena.hibernatedStorageLen == 0 {
		// Not hibernated.
		return nil
	}

	if arena.hibernatedData[columnKey] == nil {
		return ErrNotLoaded
	}

	columns := [hibernatedLen][]uint32{}

	var (
		wg   sync.WaitGroup
		errs [hibernatedLen]error
	)

	wg.Add(len(columns))

	for idx := range columns {
		size := arena.hibernatedStorageLen
		if idx == columnGaps {
			size = arena.hibernatedGapsLen
		}

		go func() {
			defer wg.Done()

			columns[idx] = make([]uint32, size)
			errs[idx] = compress.UnpackUint32s(arena.hibernatedData[idx], columns[idx])
		}()
	}

	wg.Wait()

	err := joinColumnErrors(errs[:])
	if err != nil {
		return err
	}

	err = checkColumns(columns, arena.hibernatedStorageLen)
	if err != nil {
		return err
	}

	capSize := (arena.hibernatedStorageLen * growCapacityNumerator) / growCapacityDenominator
	storage := make([]entry, arena.hibernatedStorageLen, capSize)

	for idx := range storage {
		ent := &storage[idx]
		ent.item.Key = columns[columnKey][idx]
		ent.item.Value = columns[columnValue][idx]
		ent.node.SetWords(columns[columnFlags][idx], [3]rbtree.Ref{
			rbtree.Ref(columns[columnLinkUp][idx]),
			rbtree.Ref(columns[columnLinkLeft][idx]),
			rbtree.Ref(columns[columnLinkRight][idx]),
		})
	}

	gaps := columns[columnGaps]
	compress.DeltaDecode(gaps)

	arena.gaps = make(map[Handle]bool, len(gaps))
	arena.freeList = make([]Handle, len(gaps))

	for idx, gap := range gaps {
		arena.gaps[Handle(gap)] = true
		arena.freeList[idx] = Handle(gap)
	}

	arena.storage = storage
	arena.hibernatedData = [hibernatedLen][]byte{}
	arena.hibernatedStorageLen = 0
	arena.hibernatedGapsLen = 0

	return nil
}

// Compact moves live entries from the end of the storage into free entries
// and shrinks the storage. Links are rewritten with rbtree.Relocate, so every
// map stays valid, but the handles of moved entries change: the returned map
// sends each old handle to its new one. Pass it to Map.Rebind for every map
// living in the arena.
func (arena *Arena) Compact() map[Handle]Handle {
	arena.requireBooted()

	moves := map[Handle]Handle{}
	if len(arena.gaps) == 0 {
		return moves
	}

	gaps := slices.SortedFunc(maps.Keys(arena.gaps), cmp.Compare[Handle])
	tail := Handle(safeconv.MustIntToUint32(len(arena.storage) - 1))

	for _, gap := range gaps {
		for tail > gap && arena.gaps[tail] {
			tail--
		}

		if tail <= gap {
			break
		}

		arena.storage[gap].item = arena.storage[tail].item
		rbtree.Relocate(arena, tail, gap)
		arena.storage[tail] = entry{}

		moves[tail] = gap
		arena.gaps[tail] = true
		delete(arena.gaps, gap)
		tail--
	}

	live := len(arena.storage) - len(arena.gaps)
	arena.storage = slices.Clip(arena.storage[:live])
	clear(arena.gaps)
	arena.freeList = arena.freeList[:0]

	return moves
}

// Swap exchanges the storage slots of two entries, items included. Maps stay
// valid; the two handles trade places.
func (arena *Arena) Swap(a, b Handle) {
	arena.requireBooted()
	doAssert(a != rbtree.Nil && b != rbtree.Nil)
	doAssert(!arena.gaps[a] && !arena.gaps[b])

	rbtree.Swap(arena, a, b)

	itemA := &arena.storage[a].item
	itemB := &arena.storage[b].item
	*itemA, *itemB = *itemB, *itemA
}

func (arena *Arena) requireBooted() {
	if arena.storage == nil {
		panic("hibernated arenas cannot be used")
	}
}

func (arena *Arena) malloc() Handle {
	arena.requireBooted()

	if last := len(arena.freeList) - 1; last >= 0 {
		handle := arena.freeList[last]
		arena.freeList = arena.freeList[:last]
		delete(arena.gaps, handle)

		return handle
	}

	size := len(arena.storage)
	if size == 0 {
		// Zero is reserved.
		arena.storage = append(arena.storage, entry{})
		size = 1
	}

	if size >= int(rbtree.RefLimit) {
		panic("arena size has reached the reference limit")
	}

	arena.storage = append(arena.storage, entry{})

	return Handle(safeconv.MustIntToUint32(size))
}

func (arena *Arena) free(handle Handle) {
	arena.requireBooted()

	if handle == rbtree.Nil {
		panic("entry #0 is special and cannot be deallocated")
	}

	doAssert(!arena.gaps[handle])
	doAssert(arena.storage[handle].node.IsOrphan())

	arena.storage[handle] = entry{}
	arena.gaps[handle] = true
	arena.freeList = append(arena.freeList, handle)
}

// checkColumns rejects decoded columns whose links or gaps point outside a
// storage of size entries, and gaps over entries in use. Gaps are still delta
// encoded.
func checkColumns(columns [hibernatedLen][]uint32, size int) error {
	limit := uint64(size)

	for entryIdx, flags := range columns[columnFlags] {
		if !rbtree.ValidWords(flags) {
			return fmt.Errorf("%w %d: entry %d has flags %#x", ErrCorruptColumns, columnFlags, entryIdx, flags)
		}
	}

	for _, idx := range []int{columnLinkUp, columnLinkLeft, columnLinkRight} {
		for entryIdx, link := range columns[idx] {
			if uint64(link) >= limit {
				return fmt.Errorf("%w %d: entry %d links to %d, outside %d entries",
					ErrCorruptColumns, idx, entryIdx, link, size)
			}
		}
	}

	var gap uint64

	for idx, delta := range columns[columnGaps] {
		gap += uint64(delta)

		switch {
		case gap == 0 || gap >= limit:
			return fmt.Errorf("%w %d: gap %d outside %d entries", ErrCorruptColumns, columnGaps, gap, size)
		case idx > 0 && delta == 0:
			return fmt.Errorf("%w %d: gap %d is listed twice", ErrCorruptColumns, columnGaps, gap)
		case columns[columnFlags][gap] != 0:
			return fmt.Errorf("%w %d: gap %d is in use", ErrCorruptColumns, columnGaps, gap)
		}
	}

	return nil
}
