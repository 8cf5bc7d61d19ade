package rbtree

// engine binds the algorithms to one storage. Refs at or above RefLimit
// resolve to scratch nodes owned by the caller's stack frame.
type engine struct {
	nodes   Storage
	scratch *[scratchCount]Node
}

func (e engine) at(ref Ref) *Node {
	if ref >= RefLimit {
		return &e.scratch[ref-RefLimit]
	}

	return e.nodes.Node(ref)
}

// Nil references are black.
func (e engine) red(ref Ref) bool {
	return ref != Nil && e.at(ref).color == Red
}

func (e engine) black(ref Ref) bool {
	return !e.red(ref)
}

func (e engine) flipColor(ref Ref) {
	nd := e.at(ref)
	nd.color = !nd.color
}

func (e engine) swapColor(a, b Ref) {
	na, nb := e.at(a), e.at(b)
	na.color, nb.color = nb.color, na.color
}

func (e engine) isSentinel(ref Ref) bool {
	return e.at(ref).tag == TagSentinel
}

// position returns the GroupHead owning a GroupMember, or ref itself.
// Only the front and back members know their head, so interior members walk
// the queue in both directions until one of the ends is reached.
func (e engine) position(ref Ref) Ref {
	nd := e.at(ref)
	if nd.tag != TagGroupMember {
		return ref
	}

	if nd.front || nd.back {
		return nd.link[slotUp]
	}

	prev, next := nd.link[slotLeft], nd.link[slotRight]

	for {
		prevNode := e.at(prev)
		if prevNode.front {
			return prevNode.link[slotUp]
		}

		nextNode := e.at(next)
		if nextNode.back {
			return nextNode.link[slotUp]
		}

		prev, next = prevNode.link[slotLeft], nextNode.link[slotRight]
	}
}

// leftSlot returns the field holding the left child of a position. The root
// slot of a sentinel is reported as both its left and right slot.
func (e engine) leftSlot(ref Ref) *Ref {
	nd := e.at(ref)

	switch nd.tag {
	case TagSingle, TagSentinel:
		return &nd.link[slotLeft]
	case TagGroupHead:
		return &e.at(nd.link[slotLeft]).link[slotLeft]
	case TagGroupMember:
		if nd.front {
			return &nd.link[slotLeft]
		}

		return e.leftSlot(e.position(ref))
	case TagOrphan:
	}

	doAssert(false)

	return nil
}

func (e engine) rightSlot(ref Ref) *Ref {
	nd := e.at(ref)

	switch nd.tag {
	case TagSingle:
		return &nd.link[slotRight]
	case TagSentinel:
		return &nd.link[slotLeft]
	case TagGroupHead:
		return &e.at(nd.link[slotRight]).link[slotRight]
	case TagGroupMember:
		if nd.back {
			return &nd.link[slotRight]
		}

		return e.rightSlot(e.position(ref))
	case TagOrphan:
	}

	doAssert(false)

	return nil
}

func (e engine) parentSlot(ref Ref) *Ref {
	nd := e.at(ref)

	switch nd.tag {
	case TagSingle, TagGroupHead:
		return &nd.link[slotUp]
	case TagGroupMember:
		return e.parentSlot(e.position(ref))
	case TagOrphan, TagSentinel:
	}

	doAssert(false)

	return nil
}

// referred returns the field in the parent of ref that points back at ref.
func (e engine) referred(ref Ref) *Ref {
	parent := *e.parentSlot(ref)

	left := e.leftSlot(parent)
	if *left == ref {
		return left
	}

	return e.rightSlot(parent)
}

func (e engine) isRoot(ref Ref) bool {
	return e.isSentinel(*e.parentSlot(ref))
}

// fetchLinks returns the parent slot and the children slots of ref, with
// left and right reinterpreted as outer and inner. With chirality set the
// outer child is the right one.
func (e engine) fetchLinks(ref Ref, chirality bool) (*Ref, *Ref, *Ref) {
	parent := e.parentSlot(ref)
	left, right := e.leftSlot(ref), e.rightSlot(ref)

	if chirality {
		return parent, right, left
	}

	return parent, left, right
}

func (e engine) leftmost(ref Ref) Ref {
	for {
		left := *e.leftSlot(ref)
		if left == Nil {
			return ref
		}

		ref = left
	}
}

func (e engine) rightmost(ref Ref) Ref {
	for {
		right := *e.rightSlot(ref)
		if right == Nil {
			return ref
		}

		ref = right
	}
}

// setParent points the parent field of child at parent, ignoring Nil children.
func (e engine) setParent(child, parent Ref) {
	if child != Nil {
		*e.parentSlot(child) = parent
	}
}
