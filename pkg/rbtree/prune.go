package rbtree

// PruneAll resets every node reachable from sentinel to an orphan in a single
// pass, leaving the sentinel with an empty tree. It runs in O(n) time without
// recursion or auxiliary memory: the walk descends through left children,
// then right children, and climbs back through the stored parent links,
// clearing each link as it is consumed. The order in which nodes are reset is
// unspecified.
func PruneAll(nodes Storage, sentinel Ref) {
	engine{nodes: nodes}.pruneAll(sentinel)
}

func (e engine) pruneAll(sentinel Ref) {
	doAssert(e.isSentinel(sentinel))

	root := e.at(sentinel).link[slotLeft]
	e.at(sentinel).link[slotLeft] = Nil

	for cursor := root; cursor != sentinel && cursor != Nil; {
		nd := e.at(cursor)

		if nd.tag == TagGroupHead {
			e.flatten(cursor)
		}

		if left := nd.link[slotLeft]; left != Nil {
			nd.link[slotLeft] = Nil
			cursor = left

			continue
		}

		if right := nd.link[slotRight]; right != Nil {
			nd.link[slotRight] = Nil
			cursor = right

			continue
		}

		parent := nd.link[slotUp]
		nd.reset()
		cursor = parent
	}
}

// flatten turns a GroupHead into a Single carrying the same children and
// resets every queued member.
func (e engine) flatten(head Ref) {
	headNode := e.at(head)
	left := *e.leftSlot(head)
	right := *e.rightSlot(head)

	for member := headNode.link[slotLeft]; member != Nil; {
		memberNode := e.at(member)

		next := Nil
		if !memberNode.back {
			next = memberNode.link[slotRight]
		}

		memberNode.reset()
		member = next
	}

	headNode.tag = TagSingle
	headNode.link[slotLeft] = left
	headNode.link[slotRight] = right
}
