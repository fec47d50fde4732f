// Package vmem owns the reserved virtual-memory ranges the allocator
// carves chunks from.
//
// A Node is one contiguous reservation, obtained once and committed
// granule by granule on demand. A List strings nodes together and hands
// out root chunks from the current node's unused tail, reserving a new
// node when the current one is exhausted (if the list may grow).
//
// All commit traffic passes through the commit limiter before any pages
// are touched; commit failures are ordinary results here, never fatal.
package vmem

import (
	"fmt"
	"unsafe"

	"github.com/vmkit/metaspace/chunklevel"
	"github.com/vmkit/metaspace/chunks"
	"github.com/vmkit/metaspace/commitlimit"
	"github.com/vmkit/metaspace/internal/sysmem"
)

// Node is one reserved region: a contiguous address range of a whole
// number of root-chunk spans, mostly uncommitted.
type Node struct {
	backing []byte
	base    uintptr

	wordCapacity int
	granuleWords int

	limiter *commitlimit.Limiter
	pool    *chunks.HeaderPool

	mask           commitMask
	committedWords int

	// buddy areas created so far; the carve cursor is implicit in the
	// slice length
	areas []*chunks.BuddyArea

	next *Node
}

func newNode(wordCapacity, granuleWords int, limiter *commitlimit.Limiter, pool *chunks.HeaderPool) (*Node, error) {
	if wordCapacity <= 0 || wordCapacity%chunklevel.RootChunkWords != 0 {
		return nil, fmt.Errorf("vmem: node capacity %d is not a multiple of the root chunk size", wordCapacity)
	}
	backing, err := sysmem.Reserve(wordCapacity * chunklevel.BytesPerWord)
	if err != nil {
		return nil, err
	}
	return &Node{
		backing:      backing,
		base:         uintptr(unsafe.Pointer(&backing[0])),
		wordCapacity: wordCapacity,
		granuleWords: granuleWords,
		limiter:      limiter,
		pool:         pool,
		mask:         newCommitMask(wordCapacity / granuleWords),
	}, nil
}

// Base returns the reservation's start address.
func (n *Node) Base() uintptr { return n.base }

// ReservedWords returns the reservation size.
func (n *Node) ReservedWords() int { return n.wordCapacity }

// CommittedWords returns the words currently committed in this node.
func (n *Node) CommittedWords() int { return n.committedWords }

// UsedRootSpans returns how many root-chunk spans have been carved.
func (n *Node) UsedRootSpans() int { return len(n.areas) }

// AllocateRootChunk carves the next root-chunk span off the node's
// unused tail and returns its (free, uncommitted) chunk. Returns nil if
// the node is fully carved. Only address bookkeeping happens here; no
// memory is committed.
func (n *Node) AllocateRootChunk() *chunks.Chunk {
	off := len(n.areas) * chunklevel.RootChunkWords
	if off >= n.wordCapacity {
		return nil
	}
	area := chunks.NewBuddyArea(n, n.pool, n.base+uintptr(off*chunklevel.BytesPerWord))
	n.areas = append(n.areas, area)
	return area.First()
}

// IsFullyFree reports whether every carved span has merged back into a
// single free root chunk (a node with no carved spans is free too).
// Such a node can be unmapped wholesale.
func (n *Node) IsFullyFree() bool {
	for _, a := range n.areas {
		if !a.IsFullyFree() {
			return false
		}
	}
	return true
}

// granule index helpers; addr must lie inside the node.

func (n *Node) granuleOf(addr uintptr) int {
	return int(addr-n.base) / chunklevel.BytesPerWord / n.granuleWords
}

func (n *Node) granuleBytes() int {
	return n.granuleWords * chunklevel.BytesPerWord
}

// EnsureRangeCommitted implements chunks.Backing. It rounds the target
// range out to whole granules, charges the commit limiter for the
// granules still uncommitted, and commits them. On limiter or OS
// failure nothing changes: partially committed granules from a failed
// call are rolled back before returning.
func (n *Node) EnsureRangeCommitted(base uintptr, words int) bool {
	g0 := n.granuleOf(base)
	g1 := n.granuleOf(base+uintptr(words*chunklevel.BytesPerWord)-1) + 1

	delta := n.mask.countClearInRange(g0, g1)
	if delta == 0 {
		return true
	}
	deltaWords := delta * n.granuleWords
	if !n.limiter.TryReserve(int64(deltaWords)) {
		return false
	}

	// Commit each maximal uncommitted run.
	committed := make([]int, 0, delta)
	ok := true
	for g := g0; g < g1 && ok; {
		if n.mask.get(g) {
			g++
			continue
		}
		run := g
		for run < g1 && !n.mask.get(run) {
			run++
		}
		if err := sysmem.Commit(n.backing[g*n.granuleBytes() : run*n.granuleBytes()]); err != nil {
			ok = false
			break
		}
		for i := g; i < run; i++ {
			committed = append(committed, i)
		}
		g = run
	}
	if !ok {
		// OS failure: undo this call's commits and give the budget back.
		for _, g := range committed {
			_ = sysmem.Uncommit(n.backing[g*n.granuleBytes() : (g+1)*n.granuleBytes()])
		}
		n.limiter.Release(int64(deltaWords))
		return false
	}
	for _, g := range committed {
		n.mask.set(g)
	}
	n.committedWords += deltaWords
	return true
}

// UncommitRange implements chunks.Backing. The range must be granule
// aligned, which holds for any chunk of at least one granule: commit
// granules and chunk spans are both powers of two measured from the
// node base.
func (n *Node) UncommitRange(base uintptr, words int) {
	if words < n.granuleWords {
		return
	}
	g0 := n.granuleOf(base)
	g1 := g0 + words/n.granuleWords

	released := 0
	for g := g0; g < g1; {
		if !n.mask.get(g) {
			g++
			continue
		}
		run := g
		for run < g1 && n.mask.get(run) {
			run++
		}
		_ = sysmem.Uncommit(n.backing[g*n.granuleBytes() : run*n.granuleBytes()])
		for i := g; i < run; i++ {
			n.mask.clear(i)
		}
		released += run - g
		g = run
	}
	relWords := released * n.granuleWords
	n.committedWords -= relWords
	n.limiter.Release(int64(relWords))
}

// CommittedWordsInRange implements chunks.Backing: the contiguous
// committed run starting at base, in words, capped at words.
func (n *Node) CommittedWordsInRange(base uintptr, words int) int {
	offWords := int(base-n.base) / chunklevel.BytesPerWord
	g := offWords / n.granuleWords
	run := n.mask.contiguousSetFrom(g)
	if run == 0 {
		return 0
	}
	runWords := (g+run)*n.granuleWords - offWords
	if runWords > words {
		runWords = words
	}
	return runWords
}

// release unmaps the node and returns its headers and commit budget.
// Only legal on a fully free node whose chunks were already detached
// from the freelists.
func (n *Node) release() {
	for _, a := range n.areas {
		n.pool.Return(a.First())
	}
	n.areas = nil
	if n.committedWords > 0 {
		n.limiter.Release(int64(n.committedWords))
		n.committedWords = 0
	}
	_ = sysmem.Release(n.backing)
	n.backing = nil
}
