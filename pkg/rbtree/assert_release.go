//go:build !rbtreedebug

package rbtree

const debugAssertions = false
