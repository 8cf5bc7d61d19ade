package rbtree_test

import (
	"cmp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/embedtree/pkg/rbtree"
)

// object is a caller-owned record embedding a tree node.
type object struct {
	node rbtree.Node
	key  int
	name string
}

// store keeps objects in a slice; slot 0 is the reserved Nil slot.
type store struct {
	objects []object
}

func newStore(capacity int) *store {
	return &store{objects: make([]object, 1, capacity+1)}
}

func (s *store) Node(ref rbtree.Ref) *rbtree.Node {
	return &s.objects[ref].node
}

func (s *store) add(key int, name string) rbtree.Ref {
	s.objects = append(s.objects, object{key: key, name: name})

	return rbtree.Ref(len(s.objects) - 1)
}

func (s *store) key(ref rbtree.Ref) int {
	return s.objects[ref].key
}

func (s *store) compare(a, b rbtree.Ref) int {
	return cmp.Compare(s.key(a), s.key(b))
}

// insert locates the position of ref by key and links it.
func (s *store) insert(tree rbtree.Tree, ref rbtree.Ref) {
	target := tree.Root()
	if target == rbtree.Nil {
		tree.Insert(rbtree.Nil, ref, 0)

		return
	}

	for {
		dir := s.compare(ref, target)
		if dir == 0 {
			tree.Insert(target, ref, 0)

			return
		}

		next := rbtree.Left(s, target)
		if dir > 0 {
			next = rbtree.Right(s, target)
		}

		if next == rbtree.Nil {
			tree.Insert(target, ref, dir)

			return
		}

		target = next
	}
}

func (s *store) find(tree rbtree.Tree, key int) rbtree.Ref {
	for pos := tree.Root(); pos != rbtree.Nil; {
		switch dir := cmp.Compare(key, s.key(pos)); {
		case dir == 0:
			return pos
		case dir < 0:
			pos = rbtree.Left(s, pos)
		default:
			pos = rbtree.Right(s, pos)
		}
	}

	return rbtree.Nil
}

func (s *store) newTree() rbtree.Tree {
	return rbtree.NewTree(s, s.add(0, "sentinel"))
}

// keys lists the keys of every value in order, duplicates included.
func (s *store) keys(tree rbtree.Tree) []int {
	var keys []int

	for pos := range tree.Positions() {
		for ref := range rbtree.Values(s, pos) {
			keys = append(keys, s.key(ref))
		}
	}

	return keys
}

func (s *store) names(pos rbtree.Ref) []string {
	var names []string

	for ref := range rbtree.Values(s, pos) {
		names = append(names, s.objects[ref].name)
	}

	return names
}

func requireValid(tb testing.TB, s *store, tree rbtree.Tree) {
	tb.Helper()
	require.NoError(tb, tree.Verify(s.compare))
}
