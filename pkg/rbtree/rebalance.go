package rbtree

// resolveDoubleRed rebalances the tree after node was attached red under a
// red parent. Each iteration either recolors and moves the violation two
// levels up, or rotates and terminates.
//
// Chirality is set when the parent is the right child of the grandparent:
//
//	chirality=false      chirality=true
//	     /G\                  /G\
//	  /P\   U              U   /P\
//	Po   Pi                   Pi   Po
//
//nolint:funlen // both terminal rotations share the prologue.
func (e engine) resolveDoubleRed(node Ref) {
	for e.red(node) && !e.isRoot(node) {
		nodeParent := e.parentSlot(node)
		parent := *nodeParent

		if e.black(parent) {
			break
		}

		parentParent, parentLeft, parentRight := e.fetchLinks(parent, false)
		grand := *parentParent
		grandParent, grandLeft, grandRight := e.fetchLinks(grand, false)

		chirality := parent == *grandRight

		uncle := *grandRight
		if chirality {
			uncle = *grandLeft
		}

		if e.red(uncle) {
			//     /Gb\           /Gr\
			//  /Pr\   Ur  ->  /Pb\   Ub
			//  Nr              Nr
			e.flipColor(parent)
			e.flipColor(uncle)
			e.flipColor(grand)
			node = grand

			continue
		}

		parentOuter, parentInner := parentLeft, parentRight
		grandOuter := grandLeft

		if chirality {
			parentOuter, parentInner = parentRight, parentLeft
			grandOuter = grandRight
		}

		ancestor := *grandParent
		subroot := e.referred(grand)

		if node == *parentOuter {
			//        A                A
			//       /Gb\             /Pb\
			//    /Pr\    Ub  ->   Nr    /Gr\
			//   Nr   c                 c    Ub
			*subroot = parent
			*parentParent = ancestor

			inner := *parentInner
			*parentInner = grand
			*grandParent = parent
			*grandOuter = inner
			e.setParent(inner, grand)

			e.flipColor(parent)
			e.flipColor(grand)

			return
		}

		//        A                     A
		//       /Gb\                  /Nb\
		//    /Pr\    Ub   ->      /Pr\    /Gr\
		//   a   /Nr\             a    b  c    Ub
		//       b   c
		_, nodeOuter, nodeInner := e.fetchLinks(node, chirality)
		outer, inner := *nodeOuter, *nodeInner

		*subroot = node
		*nodeParent = ancestor
		*nodeOuter = parent
		*parentParent = node
		*nodeInner = grand
		*grandParent = node
		*parentInner = outer
		e.setParent(outer, parent)
		*grandOuter = inner
		e.setParent(inner, grand)

		e.flipColor(node)
		e.flipColor(grand)

		return
	}

	// A red root is the only way the black height of the whole tree grows.
	if e.red(node) && e.isRoot(node) {
		e.flipColor(node)
	}
}

// resolveDoubleBlack rebalances the tree when the subtree rooted at node is
// one black position short. The node must still be attached so that its
// sibling can be consulted.
//
// Chirality is set when node is the right child of its parent. The sibling's
// outer child is the one farther from node.
//
//nolint:funlen,gocognit // the four cases are kept together to share the fetched links.
func (e engine) resolveDoubleBlack(node Ref) {
	for !e.isRoot(node) {
		parent := *e.parentSlot(node)
		chirality := node == *e.rightSlot(parent)

		// Far is the parent's slot holding the sibling.
		parentParent, parentFar, _ := e.fetchLinks(parent, !chirality)
		ancestor := *parentParent
		subroot := e.referred(parent)

		// The sibling is never Nil, otherwise the deficit would be impossible.
		sibling := *parentFar
		siblingParent, siblingOuter, siblingInner := e.fetchLinks(sibling, !chirality)

		if e.red(sibling) {
			//       A                 A
			//     /Pb\              /Sb\
			//   Nb   /Sr\   ->   /Pr\    d
			//       c    d      Nb   c
			inner := *siblingInner
			*parentFar = inner
			e.setParent(inner, parent)
			*siblingInner = parent
			*parentParent = sibling
			*subroot = sibling
			*siblingParent = ancestor

			e.flipColor(parent)
			e.flipColor(sibling)

			// The parent now hangs below the old sibling, and its new sibling
			// is the black inner child moved over by the rotation.
			ancestor = sibling
			subroot = siblingInner
			sibling = inner
			siblingParent, siblingOuter, siblingInner = e.fetchLinks(sibling, !chirality)
		}

		if e.red(*siblingOuter) {
			//       A                  A
			//     / P \              / S \
			//   Nb    /Sb\   ->   /Pb\    Ob
			//        c   Or      Nb   c
			outer := *siblingOuter
			inner := *siblingInner
			*parentFar = inner
			e.setParent(inner, parent)
			*siblingInner = parent
			*parentParent = sibling
			*subroot = sibling
			*siblingParent = ancestor

			e.swapColor(sibling, parent)
			e.at(outer).color = Black

			return
		}

		if e.red(*siblingInner) {
			//       A                    A
			//     / P \                / I \
			//   Nb    /Sb\    ->    /Pb\    /Sb\
			//       /Ir\   d       Nb   b  c    d
			//      b    c
			inner := *siblingInner
			innerParent, innerOuter, innerNear := e.fetchLinks(inner, !chirality)
			near, outer := *innerNear, *innerOuter

			*parentFar = near
			e.setParent(near, parent)
			*siblingInner = outer
			e.setParent(outer, sibling)
			*innerNear = parent
			*parentParent = inner
			*innerOuter = sibling
			*siblingParent = inner
			*subroot = inner
			*innerParent = ancestor

			e.at(inner).color = e.at(parent).color
			e.at(parent).color = Black

			return
		}

		if e.red(parent) {
			e.swapColor(sibling, parent)

			return
		}

		e.flipColor(sibling)
		node = parent
	}
}
