package rbtree

import "iter"

// Tree is the handle of one tree: the storage its nodes live in and the
// sentinel node holding the root reference. Copies of a Tree refer to the same
// tree.
type Tree struct {
	nodes    Storage
	sentinel Ref
}

// NewTree turns the orphan node at sentinel into the sentinel of an empty tree.
func NewTree(nodes Storage, sentinel Ref) Tree {
	nd := nodes.Node(sentinel)
	doAssert(sentinel != Nil && nd.tag == TagOrphan)

	*nd = Node{tag: TagSentinel, color: Black}

	return Tree{nodes: nodes, sentinel: sentinel}
}

// Attach returns the handle of an existing tree whose sentinel is at sentinel,
// for example after its storage was restored from disk.
func Attach(nodes Storage, sentinel Ref) Tree {
	doAssert(nodes.Node(sentinel).tag == TagSentinel)

	return Tree{nodes: nodes, sentinel: sentinel}
}

// Storage returns the storage the tree links.
func (tree Tree) Storage() Storage {
	return tree.nodes
}

// Sentinel returns the reference of the sentinel node.
func (tree Tree) Sentinel() Ref {
	return tree.sentinel
}

// Root returns the root position, or Nil.
func (tree Tree) Root() Ref {
	return Root(tree.nodes, tree.sentinel)
}

// Empty reports whether the tree has no positions.
func (tree Tree) Empty() bool {
	return tree.Root() == Nil
}

// Insert links ref relative to target, see Insert. A Nil target inserts the
// first node of an empty tree.
func (tree Tree) Insert(target, ref Ref, dir int) {
	if target == Nil {
		target = tree.sentinel
	}

	Insert(tree.nodes, target, ref, dir)
}

// Erase unlinks ref from the tree.
func (tree Tree) Erase(ref Ref) {
	Erase(tree.nodes, ref)
}

// Prune resets every node of the tree to an orphan.
func (tree Tree) Prune() {
	PruneAll(tree.nodes, tree.sentinel)
}

// Close prunes the tree and releases the sentinel back to an orphan.
func (tree Tree) Close() {
	tree.Prune()
	tree.nodes.Node(tree.sentinel).reset()
}

// First returns the leftmost position, or Nil.
func (tree Tree) First() Ref {
	return First(tree.nodes, tree.sentinel)
}

// Last returns the rightmost position, or Nil.
func (tree Tree) Last() Ref {
	return Last(tree.nodes, tree.sentinel)
}

// Next returns the in-order successor position of pos, or Nil.
func (tree Tree) Next(pos Ref) Ref {
	return Next(tree.nodes, pos)
}

// Prev returns the in-order predecessor position of pos, or Nil.
func (tree Tree) Prev(pos Ref) Ref {
	return Prev(tree.nodes, pos)
}

// Positions yields the positions of the tree in order.
func (tree Tree) Positions() iter.Seq[Ref] {
	return func(yield func(Ref) bool) {
		for pos := tree.First(); pos != Nil; pos = tree.Next(pos) {
			if !yield(pos) {
				return
			}
		}
	}
}

// Verify checks the tree invariants, see Verify.
func (tree Tree) Verify(compare func(a, b Ref) int) error {
	return Verify(tree.nodes, tree.sentinel, compare)
}
