package freeblocks

import "sync"

// node describes one free block. In the bin lists only addr, words and
// next are live; the tree additionally uses the child and parent links,
// and chains same-sized blocks through next.
type node struct {
	addr  uintptr
	words int

	next *node

	left, right, parent *node
}

// nodePool recycles bookkeeping nodes across all reclaimers.
var nodePool = sync.Pool{
	New: func() any { return new(node) },
}

func getNode(addr uintptr, words int) *node {
	n := nodePool.Get().(*node)
	*n = node{addr: addr, words: words}
	return n
}

func putNode(n *node) {
	nodePool.Put(n)
}
