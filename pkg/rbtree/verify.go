package rbtree

import (
	"errors"
	"fmt"
)

// Invariant violations reported by Verify.
var (
	ErrNotSentinel = errors.New("node is not a sentinel")
	ErrRedRoot     = errors.New("root is red")
	ErrDoubleRed   = errors.New("red position has a red child")
	ErrBlackHeight = errors.New("black height differs between subtrees")
	ErrBrokenLink  = errors.New("broken tree link")
	ErrBrokenGroup = errors.New("broken duplicate group")
	ErrOrder       = errors.New("positions out of order")
)

// Verify walks the tree held by sentinel and returns the first violated
// invariant: root color, red-red parent/child pairs, uniform black height,
// parent back-links, duplicate group structure and, when compare is not nil,
// strictly increasing keys between consecutive positions.
//
// Verify terminates on arbitrary link corruption, such as a tree restored
// from a damaged snapshot: paths longer than a red-black tree over RefLimit
// nodes can hold are reported as ErrBrokenLink. It is meant for tests and
// diagnostics; it recurses once per level.
func Verify(nodes Storage, sentinel Ref, compare func(a, b Ref) int) error {
	e := engine{nodes: nodes}

	if !e.isSentinel(sentinel) {
		return fmt.Errorf("%w: ref %d is %s", ErrNotSentinel, sentinel, e.at(sentinel).tag)
	}

	root := Root(nodes, sentinel)
	if root == Nil {
		return nil
	}

	if !e.at(root).IsPosition() || *e.parentSlot(root) != sentinel {
		return fmt.Errorf("%w: root %d does not point at sentinel %d", ErrBrokenLink, root, sentinel)
	}

	if e.red(root) {
		return fmt.Errorf("%w: ref %d", ErrRedRoot, root)
	}

	_, err := e.verifySubtree(root, 1)
	if err != nil {
		return err
	}

	if compare == nil {
		return nil
	}

	prev := Nil

	for pos := First(nodes, sentinel); pos != Nil; pos = Next(nodes, pos) {
		if prev != Nil && compare(prev, pos) >= 0 {
			return fmt.Errorf("%w: ref %d is not below ref %d", ErrOrder, prev, pos)
		}

		prev = pos
	}

	return nil
}

// maxHeight bounds the number of positions on a root-to-leaf path of a
// red-black tree with fewer than 2^32 positions.
const maxHeight = 64

// verifySubtree returns the black height of the subtree rooted at pos, found
// at the given depth.
func (e engine) verifySubtree(pos Ref, depth int) (int, error) {
	if depth > maxHeight {
		return 0, fmt.Errorf("%w: ref %d is deeper than %d levels", ErrBrokenLink, pos, maxHeight)
	}

	if e.at(pos).tag == TagGroupHead {
		err := e.verifyGroup(pos)
		if err != nil {
			return 0, err
		}
	}

	left, right := *e.leftSlot(pos), *e.rightSlot(pos)
	if left != Nil && left == right {
		return 0, fmt.Errorf("%w: ref %d has ref %d on both sides", ErrBrokenLink, pos, left)
	}

	heights := [2]int{}

	for idx, child := range [2]Ref{left, right} {
		if child == Nil {
			continue
		}

		if !e.at(child).IsPosition() || *e.parentSlot(child) != pos {
			return 0, fmt.Errorf("%w: child %d of %d", ErrBrokenLink, child, pos)
		}

		if e.red(pos) && e.red(child) {
			return 0, fmt.Errorf("%w: ref %d under ref %d", ErrDoubleRed, child, pos)
		}

		height, err := e.verifySubtree(child, depth+1)
		if err != nil {
			return 0, err
		}

		heights[idx] = height
	}

	if heights[0] != heights[1] {
		return 0, fmt.Errorf("%w: ref %d has %d on the left and %d on the right",
			ErrBlackHeight, pos, heights[0], heights[1])
	}

	if e.black(pos) {
		return heights[0] + 1, nil
	}

	return heights[0], nil
}

func (e engine) verifyGroup(head Ref) error {
	headNode := e.at(head)
	front, back := headNode.link[slotLeft], headNode.link[slotRight]
	prev := Nil

	for ref := front; ; {
		if ref == Nil || (ref == front && prev != Nil) {
			return fmt.Errorf("%w: queue of %d ends without a back member", ErrBrokenGroup, head)
		}

		member := e.at(ref)

		switch {
		case member.tag != TagGroupMember:
			return fmt.Errorf("%w: ref %d in queue of %d is %s", ErrBrokenGroup, ref, head, member.tag)
		case member.front != (ref == front):
			return fmt.Errorf("%w: front flag of ref %d in queue of %d", ErrBrokenGroup, ref, head)
		case ref != front && member.link[slotLeft] != prev:
			return fmt.Errorf("%w: ref %d does not link back to ref %d", ErrBrokenGroup, ref, prev)
		case (member.front || member.back) && member.link[slotUp] != head:
			return fmt.Errorf("%w: queue end %d does not point at head %d", ErrBrokenGroup, ref, head)
		}

		if member.back {
			if ref != back {
				return fmt.Errorf("%w: back of %d is %d, found %d", ErrBrokenGroup, head, back, ref)
			}

			return nil
		}

		prev = ref
		ref = member.link[slotRight]
	}
}
