package chunks

import (
	"github.com/vmkit/metaspace/chunklevel"
)

// FreelistSink is the buddy area's view of the freelist manager. Split
// hands splinters to it; merge and enlarge pull absorbed buddies out of
// it. Implemented by the chunk freelist manager, which calls into the
// buddy area with its expand lock held.
type FreelistSink interface {
	AddFreeChunk(c *Chunk)
	RemoveFreeChunk(c *Chunk)
}

// BuddyArea tracks the live split state of one root-chunk-sized span of
// a reserved region. The binary split tree is implicit: it is fully
// determined by the levels and base alignment of the chunks on the
// physical chain, which tiles the span by address with no gaps or
// overlaps.
type BuddyArea struct {
	base    uintptr
	backing Backing
	pool    *HeaderPool

	// first chunk of the physical chain (lowest address)
	first *Chunk
}

// NewBuddyArea covers one root span starting at base and creates its
// initial chunk: a single free root-level chunk tiling the whole span.
func NewBuddyArea(backing Backing, pool *HeaderPool, base uintptr) *BuddyArea {
	a := &BuddyArea{base: base, backing: backing, pool: pool}
	c := pool.Get()
	c.initialize(a, backing, base, chunklevel.RootChunkLevel)
	a.first = c
	return a
}

// Base returns the span's start address.
func (a *BuddyArea) Base() uintptr { return a.base }

// End returns the first address past the span.
func (a *BuddyArea) End() uintptr {
	return a.base + uintptr(chunklevel.RootChunkWords*chunklevel.BytesPerWord)
}

// First returns the chunk at the span's base.
func (a *BuddyArea) First() *Chunk { return a.first }

// Split refines c down to targetLevel, halving it repeatedly. Each step
// creates one sibling header from the pool; every sibling except the
// final target is a splinter and is handed to sink as a free chunk at
// its level. c itself keeps its base address and ends up at targetLevel.
//
// Precondition: c is free and not currently on a freelist.
func (a *BuddyArea) Split(c *Chunk, targetLevel chunklevel.Level, sink FreelistSink) {
	assertf(c.IsFree(), "splitting non-free chunk: %s", c)
	assertf(chunklevel.IsValid(targetLevel) && targetLevel > c.level,
		"split target %v is not a refinement of %v", targetLevel, c.level)
	tracef("split %s -> %v", c, targetLevel)

	for c.level < targetLevel {
		c.level++
		sibling := a.pool.Get()
		sibling.initialize(a, a.backing, c.base+uintptr(c.WordSize()*chunklevel.BytesPerWord), c.level)
		a.insertAfter(c, sibling)
		sink.AddFreeChunk(sibling)
	}
	// The chunk's committed prefix may have been cut by the split.
	c.syncCommitted()

	if debugChunks {
		a.verify()
	}
}

// Merge fuses c with its buddy repeatedly, one level coarser each step,
// while the buddy exists, is free, and is unsplit. Absorbed buddy
// headers are removed from sink and returned to the pool. Returns the
// final chunk if at least one merge happened, nil otherwise.
//
// Precondition: c is free and not currently on a freelist.
func (a *BuddyArea) Merge(c *Chunk, sink FreelistSink) *Chunk {
	assertf(c.IsFree(), "merging non-free chunk: %s", c)
	assertf(c.used == 0, "merging chunk with used words: %s", c)

	merged := false
	for !c.IsRoot() {
		leader, trailer := c, c.nextPhys
		if !c.IsLeader() {
			leader, trailer = c.prevPhys, c
		}
		// The buddy must mirror the chunk exactly: same level means it
		// is not mid-split at a finer granularity.
		if leader == nil || trailer == nil ||
			leader.level != trailer.level || leader.level != c.level {
			break
		}
		buddy := trailer
		if buddy == c {
			buddy = leader
		}
		if !buddy.IsFree() || buddy.used != 0 {
			break
		}
		sink.RemoveFreeChunk(buddy)
		a.fuse(leader, trailer)
		c = leader
		merged = true
	}
	if merged {
		if debugChunks {
			a.verify()
		}
		return c
	}
	return nil
}

// AttemptEnlarge is the restricted one-step merge usable while c is in
// use: it succeeds only if c leads its buddy pair and the trailing
// sibling is free and unsplit. The sibling is removed from sink and c
// doubles in place, base address unchanged.
func (a *BuddyArea) AttemptEnlarge(c *Chunk, sink FreelistSink) bool {
	assertf(c.IsInUse(), "enlarging non-in-use chunk: %s", c)
	if c.IsRoot() || !c.IsLeader() {
		return false
	}
	sibling := c.nextPhys
	if sibling == nil || sibling.level != c.level || !sibling.IsFree() || sibling.used != 0 {
		return false
	}
	sink.RemoveFreeChunk(sibling)
	a.fuse(c, sibling)
	tracef("enlarged %s in place", c)

	if debugChunks {
		a.verify()
	}
	return true
}

// fuse collapses a buddy pair into the leader, one level coarser. The
// trailer's header goes back to the pool.
func (a *BuddyArea) fuse(leader, trailer *Chunk) {
	assertf(leader.nextPhys == trailer && trailer.prevPhys == leader,
		"fusing non-adjacent chunks @%x @%x", leader.base, trailer.base)
	assertf(leader.IsLeader(), "fuse target is not a leader: %s", leader)

	leader.nextPhys = trailer.nextPhys
	if trailer.nextPhys != nil {
		trailer.nextPhys.prevPhys = leader
	}
	a.pool.Return(trailer)

	leader.level--
	leader.syncCommitted()
}

// insertAfter links sibling into the physical chain right after c.
func (a *BuddyArea) insertAfter(c, sibling *Chunk) {
	sibling.prevPhys = c
	sibling.nextPhys = c.nextPhys
	if c.nextPhys != nil {
		c.nextPhys.prevPhys = sibling
	}
	c.nextPhys = sibling
}

// verify walks the physical chain and checks the tiling invariant: the
// chunks exactly cover the root span, in address order, with no gaps and
// no overlaps, and no mergeable free buddy pair is left unmerged.
func (a *BuddyArea) verify() {
	addr := a.base
	prevLevel := chunklevel.Level(-1)
	prevFree := false
	for c := a.first; c != nil; c = c.nextPhys {
		assertf(c.base == addr, "tiling gap/overlap at @%x, expected @%x", c.base, addr)
		assertf(c.state != StateDead, "dead chunk on physical chain: %s", c)
		if prevFree && c.IsFree() && c.level == prevLevel && c.prevPhys.IsLeader() {
			assertf(false, "unmerged free buddy pair at @%x", c.prevPhys.base)
		}
		prevLevel, prevFree = c.level, c.IsFree()
		addr = c.End()
	}
	assertf(addr == a.End(), "chain ends at @%x, span ends at @%x", addr, a.End())
}

// Verify runs the tiling check unconditionally, for tests.
func (a *BuddyArea) Verify() { a.verify() }

// IsFullyFree reports whether the span is one free root-level chunk,
// i.e. maximally merged with nothing handed out. Used by the wholesale
// reclaim sweep to decide whether a region node can be dropped.
func (a *BuddyArea) IsFullyFree() bool {
	return a.first != nil && a.first.IsRoot() && a.first.IsFree()
}
