package multimap

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/Sumatoshi-tech/embedtree/pkg/rbtree"
)

// ErrCountMismatch is returned by Verify when the cached counters disagree
// with the tree contents.
var ErrCountMismatch = errors.New("cached counters do not match the tree")

// Map is an ordered multimap from uint32 keys to uint32 values with an API
// similar to C++ STL's std::multimap. Values sharing a key are kept newest
// first. Entries live in an Arena which may hold several maps; each map owns
// one sentinel entry.
type Map struct {
	arena     *Arena
	tree      rbtree.Tree
	count     int
	positions int
}

// New creates an empty map in arena.
func New(arena *Arena) *Map {
	sentinel := arena.malloc()

	return &Map{arena: arena, tree: rbtree.NewTree(arena, sentinel)}
}

// Attach returns the map whose sentinel entry is sentinel, typically after the
// arena was restored with Deserialize and Boot. The tree is verified before
// it is walked, so a corrupt arena yields an error rather than a broken map.
func Attach(arena *Arena, sentinel Handle) (*Map, error) {
	if sentinel == rbtree.Nil || int(sentinel) >= arena.Size() {
		return nil, fmt.Errorf("%w: ref %d in an arena of %d entries", rbtree.ErrNotSentinel, sentinel, arena.Size())
	}

	err := rbtree.Verify(arena, sentinel, keyOrder(arena))
	if err != nil {
		return nil, fmt.Errorf("attach map: %w", err)
	}

	m := &Map{arena: arena, tree: rbtree.Attach(arena, sentinel)}
	m.count, m.positions = m.countEntries()

	return m, nil
}

// Arena returns the bound arena.
func (m *Map) Arena() *Arena {
	return m.arena
}

// Sentinel returns the handle of the map's sentinel entry.
func (m *Map) Sentinel() Handle {
	return m.tree.Sentinel()
}

// Len returns the number of values in the map.
func (m *Map) Len() int {
	return m.count
}

// Positions returns the number of distinct keys in the map.
func (m *Map) Positions() int {
	return m.positions
}

// Insert adds an item. Items with an existing key join its duplicate group as
// the newest value. The returned handle identifies the stored value.
func (m *Map) Insert(item Item) Handle {
	handle := m.arena.malloc()
	*m.arena.Item(handle) = item

	target, dir := m.locate(item.Key)
	m.tree.Insert(target, handle, dir)

	if target == rbtree.Nil || dir != 0 {
		m.positions++
	}

	m.count++

	return handle
}

// Erase removes the value identified by handle, which must belong to this map,
// and releases its entry.
func (m *Map) Erase(handle Handle) {
	nd := m.arena.Node(handle)
	doAssert(nd.Tag() != rbtree.TagOrphan && nd.Tag() != rbtree.TagSentinel)

	if nd.Tag() == rbtree.TagSingle {
		m.positions--
	}

	m.tree.Erase(handle)
	m.arena.free(handle)
	m.count--
}

// EraseKey removes every value stored under key and returns how many there were.
func (m *Map) EraseKey(key uint32) int {
	pos := m.find(key)
	if pos == rbtree.Nil {
		return 0
	}

	handles := slices.Collect(rbtree.Values(m.arena, pos))
	for _, handle := range handles {
		m.Erase(handle)
	}

	return len(handles)
}

// Get returns the newest value stored under key.
func (m *Map) Get(key uint32) (uint32, bool) {
	pos := m.find(key)
	if pos == rbtree.Nil {
		return 0, false
	}

	return m.arena.Item(rbtree.FirstValue(m.arena, pos)).Value, true
}

// Values yields the values stored under key from the newest to the oldest.
func (m *Map) Values(key uint32) iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		pos := m.find(key)
		if pos == rbtree.Nil {
			return
		}

		for handle := range rbtree.Values(m.arena, pos) {
			if !yield(m.arena.Item(handle).Value) {
				return
			}
		}
	}
}

// Count returns the number of values stored under key.
func (m *Map) Count(key uint32) int {
	pos := m.find(key)
	if pos == rbtree.Nil {
		return 0
	}

	return rbtree.Multiplicity(m.arena, pos)
}

// All yields every key and value in key order, newest first within a key.
func (m *Map) All() iter.Seq2[uint32, uint32] {
	return func(yield func(uint32, uint32) bool) {
		for pos := range m.tree.Positions() {
			for handle := range rbtree.Values(m.arena, pos) {
				item := m.arena.Item(handle)
				if !yield(item.Key, item.Value) {
					return
				}
			}
		}
	}
}

// Min creates an iterator that points to the minimum key in the map.
// If the map is empty, returns Limit().
func (m *Map) Min() Iterator {
	return Iterator{m, m.tree.First()}
}

// Max creates an iterator that points at the maximum key in the map.
// If the map is empty, returns NegativeLimit().
func (m *Map) Max() Iterator {
	last := m.tree.Last()
	if last == rbtree.Nil {
		return m.NegativeLimit()
	}

	return Iterator{m, last}
}

// Limit creates an iterator that points beyond the maximum key in the map.
func (m *Map) Limit() Iterator {
	return Iterator{m, rbtree.Nil}
}

// NegativeLimit creates an iterator that points before the minimum key in the map.
func (m *Map) NegativeLimit() Iterator {
	return Iterator{m, negativeLimit}
}

// Find returns an iterator at key, or Limit() when the key is absent.
func (m *Map) Find(key uint32) Iterator {
	return Iterator{m, m.find(key)}
}

// FindGE finds the smallest key N such that N >= key. If no such key is
// found, returns Limit().
func (m *Map) FindGE(key uint32) Iterator {
	result := rbtree.Nil

	for pos := m.tree.Root(); pos != rbtree.Nil; {
		switch dir := cmp.Compare(key, m.key(pos)); {
		case dir == 0:
			return Iterator{m, pos}
		case dir < 0:
			result = pos
			pos = rbtree.Left(m.arena, pos)
		default:
			pos = rbtree.Right(m.arena, pos)
		}
	}

	return Iterator{m, result}
}

// FindLE finds the largest key N such that N <= key. If no such key is found,
// returns NegativeLimit().
func (m *Map) FindLE(key uint32) Iterator {
	result := negativeLimit

	for pos := m.tree.Root(); pos != rbtree.Nil; {
		switch dir := cmp.Compare(key, m.key(pos)); {
		case dir == 0:
			return Iterator{m, pos}
		case dir < 0:
			pos = rbtree.Left(m.arena, pos)
		default:
			result = pos
			pos = rbtree.Right(m.arena, pos)
		}
	}

	return Iterator{m, result}
}

// Clear removes all the values and releases their entries. The map stays usable.
func (m *Map) Clear() {
	var handles []Handle

	for pos := range m.tree.Positions() {
		handles = slices.AppendSeq(handles, rbtree.Values(m.arena, pos))
	}

	m.tree.Prune()

	for _, handle := range handles {
		m.arena.free(handle)
	}

	m.count = 0
	m.positions = 0
}

// Close clears the map and releases its sentinel entry.
func (m *Map) Close() {
	m.Clear()

	sentinel := m.tree.Sentinel()
	m.tree.Close()
	m.arena.free(sentinel)
}

// CloneShallow returns a map over arena sharing this map's handles. arena must
// be a Clone of the map's arena.
func (m *Map) CloneShallow(arena *Arena) *Map {
	clone := *m
	clone.arena = arena
	clone.tree = rbtree.Attach(arena, m.tree.Sentinel())

	return &clone
}

// CloneDeep copies every value into a new map in arena, preserving the
// newest-first order within each key.
func (m *Map) CloneDeep(arena *Arena) *Map {
	clone := New(arena)

	var group []Handle

	for pos := range m.tree.Positions() {
		group = slices.AppendSeq(group[:0], rbtree.Values(m.arena, pos))

		for _, handle := range slices.Backward(group) {
			clone.Insert(*m.arena.Item(handle))
		}
	}

	return clone
}

// Rebind follows a relocation of the map's sentinel, as reported by
// Arena.Compact.
func (m *Map) Rebind(moves map[Handle]Handle) {
	if moved, ok := moves[m.tree.Sentinel()]; ok {
		m.tree = rbtree.Attach(m.arena, moved)
	}
}

// Verify checks the tree invariants, the key order and the cached counters.
func (m *Map) Verify() error {
	err := m.tree.Verify(keyOrder(m.arena))
	if err != nil {
		return fmt.Errorf("verify map: %w", err)
	}

	count, positions := m.countEntries()
	if count != m.count || positions != m.positions {
		return fmt.Errorf("%w: %d values in %d positions, cached %d in %d",
			ErrCountMismatch, count, positions, m.count, m.positions)
	}

	return nil
}

func keyOrder(arena *Arena) func(a, b rbtree.Ref) int {
	return func(a, b rbtree.Ref) int {
		return cmp.Compare(arena.Item(a).Key, arena.Item(b).Key)
	}
}

func (m *Map) key(handle Handle) uint32 {
	return m.arena.Item(handle).Key
}

func (m *Map) find(key uint32) Handle {
	for pos := m.tree.Root(); pos != rbtree.Nil; {
		switch dir := cmp.Compare(key, m.key(pos)); {
		case dir == 0:
			return pos
		case dir < 0:
			pos = rbtree.Left(m.arena, pos)
		default:
			pos = rbtree.Right(m.arena, pos)
		}
	}

	return rbtree.Nil
}

// locate returns the insertion target for key and the direction to attach
// at. An empty map yields (Nil, 0).
func (m *Map) locate(key uint32) (Handle, int) {
	pos := m.tree.Root()
	if pos == rbtree.Nil {
		return rbtree.Nil, 0
	}

	for {
		dir := cmp.Compare(key, m.key(pos))
		if dir == 0 {
			return pos, 0
		}

		next := rbtree.Left(m.arena, pos)
		if dir > 0 {
			next = rbtree.Right(m.arena, pos)
		}

		if next == rbtree.Nil {
			return pos, dir
		}

		pos = next
	}
}

func (m *Map) countEntries() (int, int) {
	count, positions := 0, 0

	for pos := range m.tree.Positions() {
		positions++
		count += rbtree.Multiplicity(m.arena, pos)
	}

	return count, positions
}

func doAssert(condition bool) {
	if !condition {
		panic("multimap internal assertion failed")
	}
}
