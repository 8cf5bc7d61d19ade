// Package rbtree implements an intrusive red-black tree with multi-valued keys.
//
// Nodes are never allocated by this package. Each Node lives inside an object
// owned by the caller, and the tree only links already existing nodes together
// through references stored in those nodes. A reference is a stable index into
// caller-owned storage, resolved through the Storage interface.
//
// Several values sharing one key occupy a single tree position: the first value
// becomes a GroupHead and the others are queued behind it as GroupMember nodes,
// reusing the node's own link fields as the queue. The newest value is always
// the queue front.
//
// The package performs no key comparisons. A container locates the insertion
// point and passes the target node plus a three-way direction to Insert.
//
// No operation is safe for concurrent use on the same tree.
package rbtree

import "math"

// Ref references a Node inside caller-owned storage.
type Ref uint32

const (
	// Nil is the empty reference. Slot 0 of every storage is reserved for it.
	Nil Ref = 0

	// RefLimit is the first reference reserved for transient scratch nodes.
	// Storage implementations must never hand out refs at or above it.
	RefLimit Ref = math.MaxUint32 - 2
)

// Storage resolves references to the nodes embedded in caller-owned objects.
//
// The returned pointer must stay valid for the duration of any single call into
// this package: storage must not move its nodes while an operation runs.
type Storage interface {
	Node(ref Ref) *Node
}

// Tag is the variant of a Node.
type Tag uint8

const (
	// TagOrphan marks a node that is not part of any structure.
	TagOrphan Tag = iota
	// TagSentinel marks the node holding a tree's root reference.
	TagSentinel
	// TagSingle marks a position holding exactly one value.
	TagSingle
	// TagGroupHead marks a position holding two or more values.
	TagGroupHead
	// TagGroupMember marks a queued value inside a duplicate group.
	TagGroupMember
)

func (tag Tag) String() string {
	switch tag {
	case TagOrphan:
		return "orphan"
	case TagSentinel:
		return "sentinel"
	case TagSingle:
		return "single"
	case TagGroupHead:
		return "group-head"
	case TagGroupMember:
		return "group-member"
	default:
		return "invalid"
	}
}

// Color is the color of a tree position.
type Color bool

const (
	// Red is the color of freshly inserted positions.
	Red Color = false
	// Black is the color of the root and of Nil children.
	Black Color = true
)

func (c Color) String() string {
	if c == Black {
		return "black"
	}

	return "red"
}

// Link slot indices. Their meaning depends on the tag:
//
//	Sentinel     {_,         root,       _        }
//	Single       {parent,    left,       right    }
//	GroupHead    {parent,    queueFront, queueBack}
//	GroupMember  {groupHead, previous,   next     }
const (
	slotUp = iota
	slotLeft
	slotRight
)

// Node is the record embedded in every object that can be linked into a tree.
// The zero value is an orphan.
type Node struct {
	link  [3]Ref
	tag   Tag
	color Color
	front bool
	back  bool
}

// Tag returns the variant of the node.
func (n *Node) Tag() Tag {
	return n.tag
}

// Color returns the node color. Meaningful for Single and GroupHead only.
func (n *Node) Color() Color {
	return n.color
}

// IsOrphan reports whether the node is outside of any structure.
func (n *Node) IsOrphan() bool {
	return n.tag == TagOrphan
}

// IsFront reports whether a GroupMember is the front of its queue.
func (n *Node) IsFront() bool {
	return n.tag == TagGroupMember && n.front
}

// IsBack reports whether a GroupMember is the back of its queue.
func (n *Node) IsBack() bool {
	return n.tag == TagGroupMember && n.back
}

// IsPosition reports whether the node occupies a key position in a tree.
func (n *Node) IsPosition() bool {
	return n.tag == TagSingle || n.tag == TagGroupHead
}

func (n *Node) reset() {
	*n = Node{}
}

// Flag bits of the packed node representation.
const (
	flagTagMask  = 0x7
	flagBlack    = 0x8
	flagFront    = 0x10
	flagBack     = 0x20
	flagKnownSet = flagTagMask | flagBlack | flagFront | flagBack
)

// Words returns the node state packed as a flags word and its three links.
// Used by storage implementations that persist nodes column by column.
func (n *Node) Words() (uint32, [3]Ref) {
	flags := uint32(n.tag)

	if n.color == Black {
		flags |= flagBlack
	}

	if n.front {
		flags |= flagFront
	}

	if n.back {
		flags |= flagBack
	}

	return flags, n.link
}

// ValidWords reports whether flags could have been produced by Words.
func ValidWords(flags uint32) bool {
	return flags&^flagKnownSet == 0 && Tag(flags&flagTagMask) <= TagGroupMember
}

// SetWords restores a node previously packed with Words.
func (n *Node) SetWords(flags uint32, links [3]Ref) {
	doAssert(flags&^flagKnownSet == 0)

	n.tag = Tag(flags & flagTagMask)
	n.color = Color(flags&flagBlack != 0)
	n.front = flags&flagFront != 0
	n.back = flags&flagBack != 0
	n.link = links
}
