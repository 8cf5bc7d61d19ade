package rbtree

import "iter"

// Root returns the root position of the tree held by sentinel, or Nil.
func Root(nodes Storage, sentinel Ref) Ref {
	return nodes.Node(sentinel).link[slotLeft]
}

// Left returns the left child of a position.
func Left(nodes Storage, pos Ref) Ref {
	return *engine{nodes: nodes}.leftSlot(pos)
}

// Right returns the right child of a position.
func Right(nodes Storage, pos Ref) Ref {
	return *engine{nodes: nodes}.rightSlot(pos)
}

// Parent returns the parent position, or Nil for the root.
func Parent(nodes Storage, pos Ref) Ref {
	e := engine{nodes: nodes}

	parent := *e.parentSlot(pos)
	if e.isSentinel(parent) {
		return Nil
	}

	return parent
}

// IsRoot reports whether pos is the root of its tree.
func IsRoot(nodes Storage, pos Ref) bool {
	return engine{nodes: nodes}.isRoot(pos)
}

// Position returns the position holding ref: the owning GroupHead for a
// GroupMember, ref itself otherwise.
func Position(nodes Storage, ref Ref) Ref {
	return engine{nodes: nodes}.position(ref)
}

// First returns the leftmost position of the tree, or Nil when it is empty.
func First(nodes Storage, sentinel Ref) Ref {
	root := Root(nodes, sentinel)
	if root == Nil {
		return Nil
	}

	return engine{nodes: nodes}.leftmost(root)
}

// Last returns the rightmost position of the tree, or Nil when it is empty.
func Last(nodes Storage, sentinel Ref) Ref {
	root := Root(nodes, sentinel)
	if root == Nil {
		return Nil
	}

	return engine{nodes: nodes}.rightmost(root)
}

// Next returns the in-order successor position of pos, or Nil.
func Next(nodes Storage, pos Ref) Ref {
	e := engine{nodes: nodes}
	pos = e.position(pos)

	if right := *e.rightSlot(pos); right != Nil {
		return e.leftmost(right)
	}

	for !e.isRoot(pos) {
		parent := *e.parentSlot(pos)
		if *e.leftSlot(parent) == pos {
			return parent
		}

		pos = parent
	}

	return Nil
}

// Prev returns the in-order predecessor position of pos, or Nil.
func Prev(nodes Storage, pos Ref) Ref {
	e := engine{nodes: nodes}
	pos = e.position(pos)

	if left := *e.leftSlot(pos); left != Nil {
		return e.rightmost(left)
	}

	for !e.isRoot(pos) {
		parent := *e.parentSlot(pos)
		if *e.rightSlot(parent) == pos {
			return parent
		}

		pos = parent
	}

	return Nil
}

// FirstValue returns the newest value stored at pos: the queue front of a
// GroupHead, pos itself for a Single.
func FirstValue(nodes Storage, pos Ref) Ref {
	nd := nodes.Node(pos)
	if nd.tag == TagGroupHead {
		return nd.link[slotLeft]
	}

	return pos
}

// NextValue returns the value following ref at the same position, from the
// newest to the oldest, or Nil after the last one. The GroupHead holds the
// oldest value and comes after the back of its queue.
func NextValue(nodes Storage, ref Ref) Ref {
	nd := nodes.Node(ref)
	if nd.tag != TagGroupMember {
		return Nil
	}

	if nd.back {
		return nd.link[slotUp]
	}

	return nd.link[slotRight]
}

// Values yields the values stored at pos from the newest to the oldest.
func Values(nodes Storage, pos Ref) iter.Seq[Ref] {
	return func(yield func(Ref) bool) {
		for ref := FirstValue(nodes, pos); ref != Nil; ref = NextValue(nodes, ref) {
			if !yield(ref) {
				return
			}
		}
	}
}

// Queue yields the GroupMember nodes of pos from front to back. A Single
// position has an empty queue.
func Queue(nodes Storage, pos Ref) iter.Seq[Ref] {
	return func(yield func(Ref) bool) {
		nd := nodes.Node(pos)
		if nd.tag != TagGroupHead {
			return
		}

		for ref := nd.link[slotLeft]; ; {
			member := nodes.Node(ref)
			if !yield(ref) || member.back {
				return
			}

			ref = member.link[slotRight]
		}
	}
}

// Multiplicity returns the number of values stored at pos.
func Multiplicity(nodes Storage, pos Ref) int {
	count := 0

	for range Values(nodes, pos) {
		count++
	}

	return count
}
