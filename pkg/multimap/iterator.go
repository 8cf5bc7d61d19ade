package multimap

import (
	"iter"
	"math"

	"github.com/Sumatoshi-tech/embedtree/pkg/rbtree"
)

// negativeLimit marks the position before the minimum key. It is never
// passed to package rbtree.
const negativeLimit Handle = math.MaxUint32

// Iterator allows scanning the keys of a Map in sort order.
//
// Iterator invalidation rule is the same as C++ std::multimap<>'s. That is,
// if you erase the position an iterator points to, the iterator becomes
// invalid. Erasing the oldest value of a key moves its position to the next
// oldest value. For other operation types, the iterator remains valid.
type Iterator struct {
	m   *Map
	pos Handle
}

// Equal checks for the underlying positions equality.
func (it Iterator) Equal(other Iterator) bool {
	return it.pos == other.pos
}

// Limit checks if the iterator points beyond the max key in the map.
func (it Iterator) Limit() bool {
	return it.pos == rbtree.Nil
}

// NegativeLimit checks if the iterator points before the minimum key in the map.
func (it Iterator) NegativeLimit() bool {
	return it.pos == negativeLimit
}

// Min checks if the iterator points to the minimum key in the map.
func (it Iterator) Min() bool {
	return it.pos == it.m.tree.First()
}

// Max checks if the iterator points to the maximum key in the map.
func (it Iterator) Max() bool {
	return it.pos == it.m.tree.Last()
}

// Next creates a new iterator that points to the next key.
//
// REQUIRES: !it.Limit().
func (it Iterator) Next() Iterator {
	doAssert(!it.Limit())

	if it.NegativeLimit() {
		return it.m.Min()
	}

	return Iterator{it.m, rbtree.Next(it.m.arena, it.pos)}
}

// Prev creates a new iterator that points to the previous key.
//
// REQUIRES: !it.NegativeLimit().
func (it Iterator) Prev() Iterator {
	doAssert(!it.NegativeLimit())

	if it.Limit() {
		return it.m.Max()
	}

	prev := rbtree.Prev(it.m.arena, it.pos)
	if prev == rbtree.Nil {
		return it.m.NegativeLimit()
	}

	return Iterator{it.m, prev}
}

// Key returns the key at the iterator.
//
// REQUIRES: !it.Limit() && !it.NegativeLimit().
func (it Iterator) Key() uint32 {
	doAssert(!it.Limit() && !it.NegativeLimit())

	return it.m.key(it.pos)
}

// Value returns the newest value at the iterator.
//
// REQUIRES: !it.Limit() && !it.NegativeLimit().
func (it Iterator) Value() uint32 {
	doAssert(!it.Limit() && !it.NegativeLimit())

	return it.m.arena.Item(rbtree.FirstValue(it.m.arena, it.pos)).Value
}

// Count returns the number of values at the iterator.
func (it Iterator) Count() int {
	if it.Limit() || it.NegativeLimit() {
		return 0
	}

	return rbtree.Multiplicity(it.m.arena, it.pos)
}

// Values yields the handles of the values at the iterator, newest first.
func (it Iterator) Values() iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		if it.Limit() || it.NegativeLimit() {
			return
		}

		for handle := range rbtree.Values(it.m.arena, it.pos) {
			if !yield(handle) {
				return
			}
		}
	}
}
