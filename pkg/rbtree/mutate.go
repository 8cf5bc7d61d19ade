package rbtree

// Insert links the orphan ref into the tree relative to target.
//
// dir is the three-way comparison of ref's key against target's key, computed
// by the caller:
//   - dir < 0 attaches ref as the left child of target, which must not have one;
//   - dir > 0 attaches ref as the right child of target, which must not have one;
//   - dir == 0 queues ref at the front of target's duplicate group.
//
// target must be a position (Single or GroupHead), or the sentinel of an empty
// tree, in which case ref becomes the root. Only new keys trigger rebalancing.
func Insert(nodes Storage, target, ref Ref, dir int) {
	engine{nodes: nodes}.insert(target, ref, dir)
}

// Erase unlinks ref from the structure it occupies and leaves it an orphan.
// Erasing an orphan is a no-op.
func Erase(nodes Storage, ref Ref) {
	engine{nodes: nodes}.erase(ref)
}

func (e engine) insert(target, ref Ref, dir int) {
	doAssert(ref != Nil && ref < RefLimit && ref != target)
	doAssert(e.at(ref).tag == TagOrphan)

	if e.isSentinel(target) {
		root := e.leftSlot(target)
		doAssert(*root == Nil)

		*root = ref
		*e.at(ref) = Node{tag: TagSingle, color: Black, link: [3]Ref{target, Nil, Nil}}

		return
	}

	doAssert(e.at(target).IsPosition())

	if dir == 0 {
		e.enqueue(target, ref)

		return
	}

	slot := e.leftSlot(target)
	if dir > 0 {
		slot = e.rightSlot(target)
	}

	doAssert(*slot == Nil)

	*slot = ref
	*e.at(ref) = Node{tag: TagSingle, color: Red, link: [3]Ref{target, Nil, Nil}}

	if e.red(target) {
		e.resolveDoubleRed(ref)
	}
}

// enqueue makes ref the newest value of the position head.
func (e engine) enqueue(head, ref Ref) {
	headNode := e.at(head)
	member := e.at(ref)

	if headNode.tag == TagSingle {
		// The member takes over the children of the former single node.
		*member = Node{
			tag:   TagGroupMember,
			front: true,
			back:  true,
			link:  [3]Ref{head, headNode.link[slotLeft], headNode.link[slotRight]},
		}
		headNode.tag = TagGroupHead
		headNode.link[slotLeft] = ref
		headNode.link[slotRight] = ref

		return
	}

	oldFront := headNode.link[slotLeft]
	oldFrontNode := e.at(oldFront)

	*member = Node{
		tag:   TagGroupMember,
		front: true,
		link:  [3]Ref{head, oldFrontNode.link[slotLeft], oldFront},
	}

	oldFrontNode.front = false
	oldFrontNode.link[slotLeft] = ref

	if !oldFrontNode.back {
		// Interior members do not track their head.
		oldFrontNode.link[slotUp] = Nil
	}

	headNode.link[slotLeft] = ref
}

func (e engine) erase(ref Ref) {
	switch e.at(ref).tag {
	case TagGroupMember:
		e.eraseMember(ref)
	case TagGroupHead:
		e.eraseHead(ref)
	case TagSingle:
		e.eraseSingle(ref)
	case TagOrphan:
		return
	case TagSentinel:
		doAssert(false)

		return
	}

	e.at(ref).reset()
}

func (e engine) eraseMember(ref Ref) {
	member := e.at(ref)
	prev, next := member.link[slotLeft], member.link[slotRight]

	switch {
	case member.front && member.back:
		// Last queued value: the head turns back into a single node and
		// adopts the children kept by the member.
		head := e.at(member.link[slotUp])
		head.tag = TagSingle
		head.link[slotLeft] = prev
		head.link[slotRight] = next
	case member.front:
		head := member.link[slotUp]
		nextNode := e.at(next)
		nextNode.front = true
		nextNode.link[slotUp] = head
		nextNode.link[slotLeft] = prev
		e.at(head).link[slotLeft] = next
	case member.back:
		head := member.link[slotUp]
		prevNode := e.at(prev)
		prevNode.back = true
		prevNode.link[slotUp] = head
		prevNode.link[slotRight] = next
		e.at(head).link[slotRight] = prev
	default:
		e.at(prev).link[slotRight] = next
		e.at(next).link[slotLeft] = prev
	}
}

// eraseHead replaces the head by the oldest queued value.
func (e engine) eraseHead(ref Ref) {
	head := e.at(ref)
	subroot := e.referred(ref)
	left, right := *e.leftSlot(ref), *e.rightSlot(ref)

	back := head.link[slotRight]
	backNode := e.at(back)

	if backNode.front {
		*backNode = Node{
			tag:   TagSingle,
			color: head.color,
			link:  [3]Ref{head.link[slotUp], left, right},
		}
	} else {
		front := head.link[slotLeft]
		newBack := backNode.link[slotLeft]

		newBackNode := e.at(newBack)
		newBackNode.back = true
		newBackNode.link[slotRight] = right

		*backNode = Node{
			tag:   TagGroupHead,
			color: head.color,
			link:  [3]Ref{head.link[slotUp], front, newBack},
		}

		// Both queue ends now belong to the promoted member.
		e.at(front).link[slotUp] = back
		newBackNode.link[slotUp] = back
	}

	*subroot = back
	e.setParent(left, back)
	e.setParent(right, back)
}

func (e engine) eraseSingle(ref Ref) {
	if *e.leftSlot(ref) != Nil && *e.rightSlot(ref) != Nil {
		successor := e.leftmost(*e.rightSlot(ref))
		e.swapLinks(ref, successor)
		e.swapColor(ref, successor)
	}

	child := *e.leftSlot(ref)
	if child == Nil {
		child = *e.rightSlot(ref)
	}

	if child != Nil {
		// A single child is always red under a black node.
		doAssert(e.black(ref) && e.red(child))

		*e.referred(ref) = child
		*e.parentSlot(child) = *e.parentSlot(ref)
		e.at(child).color = Black

		return
	}

	if e.black(ref) {
		e.resolveDoubleBlack(ref)
	}

	*e.referred(ref) = Nil
}
