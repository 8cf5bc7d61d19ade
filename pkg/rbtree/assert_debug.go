//go:build rbtreedebug

package rbtree

const debugAssertions = true
