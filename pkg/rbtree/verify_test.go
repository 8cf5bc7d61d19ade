package rbtree_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/embedtree/pkg/rbtree"
)

// relink overwrites one link slot of ref, keeping its flags.
func relink(s *store, ref rbtree.Ref, slot int, target rbtree.Ref) {
	flags, links := s.Node(ref).Words()
	links[slot] = target
	s.Node(ref).SetWords(flags, links)
}

const (
	slotUp = iota
	slotLeft
	slotRight
)

func distinctTree(keys ...int) (*store, rbtree.Tree, map[int]rbtree.Ref) {
	s := newStore(len(keys) + 1)
	tree := s.newTree()
	refs := map[int]rbtree.Ref{}

	for _, key := range keys {
		refs[key] = s.add(key, "")
		s.insert(tree, refs[key])
	}

	return s, tree, refs
}

func TestVerifyDetectsSelfLoop(t *testing.T) {
	t.Parallel()

	s, tree, refs := distinctTree(50, 30, 70, 20)
	requireValid(t, s, tree)

	relink(s, refs[20], slotLeft, refs[20])
	require.ErrorIs(t, tree.Verify(s.compare), rbtree.ErrBrokenLink)
}

func TestVerifyDetectsSharedChild(t *testing.T) {
	t.Parallel()

	s, tree, refs := distinctTree(50, 30, 70)

	relink(s, refs[50], slotRight, refs[30])
	require.ErrorIs(t, tree.Verify(s.compare), rbtree.ErrBrokenLink)
}

func TestVerifyBoundsDepth(t *testing.T) {
	t.Parallel()

	s, tree, refs := distinctTree(1)
	blackSingle, _ := s.Node(refs[1]).Words()

	// A right-leaning chain with consistent parent links, far deeper than
	// any red-black tree.
	parent := tree.Sentinel()

	for key := 2; key <= 100; key++ {
		ref := s.add(key, "")
		s.Node(ref).SetWords(blackSingle, [3]rbtree.Ref{parent, rbtree.Nil, rbtree.Nil})

		if parent == tree.Sentinel() {
			relink(s, parent, slotLeft, ref)
		} else {
			relink(s, parent, slotRight, ref)
		}

		parent = ref
	}

	require.ErrorIs(t, tree.Verify(s.compare), rbtree.ErrBrokenLink)
}

func TestVerifyDetectsQueueCycle(t *testing.T) {
	t.Parallel()

	s := newStore(5)
	tree := s.newTree()

	for range 4 {
		s.insert(tree, s.add(10, ""))
	}

	requireValid(t, s, tree)

	members := slices.Collect(rbtree.Queue(s, tree.Root()))
	require.Len(t, members, 3)

	// The middle member points forward at the front again.
	relink(s, members[1], slotRight, members[0])
	require.ErrorIs(t, tree.Verify(s.compare), rbtree.ErrBrokenGroup)
}

func TestValidWords(t *testing.T) {
	t.Parallel()

	s, _, _ := distinctTree(3, 1, 2, 2)

	for ref := range s.objects {
		flags, _ := s.objects[ref].node.Words()
		assert.True(t, rbtree.ValidWords(flags), "ref %d", ref)
	}

	assert.False(t, rbtree.ValidWords(0x7))
	assert.False(t, rbtree.ValidWords(0x40))
}
