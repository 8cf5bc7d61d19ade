package rbtree

// doAssert panics when a precondition or internal invariant does not hold.
// The checks are compiled in only with the rbtreedebug build tag.
func doAssert(condition bool) {
	if debugAssertions && !condition {
		panic("rbtree internal assertion failed")
	}
}
