package rbtree

// Scratch references. They never reach the caller's storage.
const (
	scratchPosition Ref = RefLimit + iota
	scratchSentinel
	scratchOrphan

	scratchCount = 3
)

// Relocate moves the whole identity of node into placeholder, which must be an
// orphan: tag, color, links and queue membership. Every reference that pointed
// at node is rewritten to point at placeholder, and node becomes an orphan.
// Relocating a sentinel moves the tree it holds.
func Relocate(nodes Storage, node, placeholder Ref) {
	engine{nodes: nodes}.relocate(node, placeholder)
}

// Swap exchanges the identities of a and b, which may be any two nodes,
// including adjacent ones and orphans.
func Swap(nodes Storage, a, b Ref) {
	if a == b {
		return
	}

	var scratch [scratchCount]Node

	staged := engine{nodes: nodes, scratch: &scratch}
	staged.relocate(a, scratchOrphan)
	staged.relocate(b, a)
	staged.relocate(scratchOrphan, b)
}

func (e engine) relocate(node, placeholder Ref) {
	doAssert(node != placeholder)
	doAssert(e.at(placeholder).tag == TagOrphan)

	state := *e.at(node)

	switch state.tag {
	case TagOrphan:
		return
	case TagSentinel:
		e.setParent(state.link[slotLeft], placeholder)
	case TagSingle, TagGroupHead:
		*e.referred(node) = placeholder
		e.setParent(*e.leftSlot(node), placeholder)
		e.setParent(*e.rightSlot(node), placeholder)

		if state.tag == TagGroupHead {
			e.at(state.link[slotLeft]).link[slotUp] = placeholder
			e.at(state.link[slotRight]).link[slotUp] = placeholder
		}
	case TagGroupMember:
		// The children kept by the queue ends refer to the head, not to the
		// member, so only the queue neighbours need rewriting.
		head := state.link[slotUp]

		if state.front {
			e.at(head).link[slotLeft] = placeholder
		} else {
			e.at(state.link[slotLeft]).link[slotRight] = placeholder
		}

		if state.back {
			e.at(head).link[slotRight] = placeholder
		} else {
			e.at(state.link[slotRight]).link[slotLeft] = placeholder
		}
	}

	*e.at(placeholder) = state
	e.at(node).reset()
}

// swapLinks exchanges the structural positions of the positions a and b,
// leaving their tags, colors and queues in place.
func (e engine) swapLinks(a, b Ref) {
	if *e.parentSlot(a) != b && *e.parentSlot(b) != a {
		e.exchange(a, b)

		return
	}

	// Adjacent nodes would overwrite each other's links mid-exchange. Stage
	// the exchange through a one-node pseudo-tree adjacent to neither.
	var scratch [scratchCount]Node

	scratch[scratchPosition-RefLimit] = Node{
		tag:   TagSingle,
		color: Black,
		link:  [3]Ref{scratchSentinel, Nil, Nil},
	}
	scratch[scratchSentinel-RefLimit] = Node{
		tag:   TagSentinel,
		color: Black,
		link:  [3]Ref{Nil, scratchPosition, Nil},
	}

	staged := engine{nodes: e.nodes, scratch: &scratch}
	staged.exchange(a, scratchPosition)
	staged.exchange(a, b)
	staged.exchange(b, scratchPosition)
}

// exchange swaps two non-adjacent positions.
func (e engine) exchange(a, b Ref) {
	referredA, referredB := e.referred(a), e.referred(b)
	parentA, leftA, rightA := e.fetchLinks(a, false)
	parentB, leftB, rightB := e.fetchLinks(b, false)

	upA, lowA, highA := *parentA, *leftA, *rightA
	upB, lowB, highB := *parentB, *leftB, *rightB

	*referredA = b
	*referredB = a

	*parentA, *leftA, *rightA = upB, lowB, highB
	*parentB, *leftB, *rightB = upA, lowA, highA

	e.setParent(lowA, b)
	e.setParent(highA, b)
	e.setParent(lowB, a)
	e.setParent(highB, a)
}
