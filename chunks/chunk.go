// Package chunks implements the buddy-chunk layer of the allocator:
// chunk descriptors, the pool that recycles them, per-level freelists,
// and the per-root-span buddy area with its split/merge machinery.
//
// A chunk descriptor is a lightweight header describing one power-of-two
// range of a reserved region. Headers are never colocated with the
// payload they describe: when two buddies merge, the absorbed header
// goes back to the pool and is later reused for an unrelated chunk.
package chunks

import (
	"fmt"

	"github.com/vmkit/metaspace/chunklevel"
	"github.com/vmkit/metaspace/commitlimit"
)

// State is the lifecycle state of a chunk descriptor.
type State uint8

const (
	// StateDead marks a recycled header with no payload association.
	StateDead State = iota
	// StateFree marks a chunk owned by the freelist manager.
	StateFree
	// StateInUse marks a chunk owned by exactly one arena.
	StateInUse
)

func (s State) String() string {
	switch s {
	case StateDead:
		return "dead"
	case StateFree:
		return "free"
	case StateInUse:
		return "in-use"
	}
	return "invalid"
}

// Backing is the view a chunk has of its owning reserved region. It
// covers commit bookkeeping only; the region keeps the authoritative
// per-granule commit map.
type Backing interface {
	// EnsureRangeCommitted commits whatever granules overlapping
	// [base, base+words) are still uncommitted, passing the delta
	// through the commit limiter first. Returns false, with no partial
	// state change visible to the caller, on limiter or OS failure.
	EnsureRangeCommitted(base uintptr, words int) bool

	// UncommitRange uncommits all granules fully inside
	// [base, base+words) and releases them to the commit limiter.
	UncommitRange(base uintptr, words int)

	// CommittedWordsInRange returns the length, in words, of the
	// contiguous committed run starting at base, capped at words.
	CommittedWordsInRange(base uintptr, words int) int
}

// Chunk describes one buddy chunk. The header carries the chunk's level,
// state and counters plus two sets of intrusive links: freelist links
// (doubly linked, also reused for an arena's chunk chain; a chunk is
// never on both at once) and physical-neighbor links ordering the
// chunks of one buddy area by address.
type Chunk struct {
	base  uintptr
	level chunklevel.Level
	state State

	// used is the bump pointer, in words from base. committed is the
	// length of the committed prefix, kept in sync with the region's
	// granule map across splits and merges.
	used      int
	committed int

	backing Backing
	area    *BuddyArea

	// freelist / arena-chain links
	prev, next *Chunk

	// physical neighbors inside the buddy area, by address
	prevPhys, nextPhys *Chunk
}

// Base returns the chunk's payload start address.
func (c *Chunk) Base() uintptr { return c.base }

// End returns the first address past the chunk's payload.
func (c *Chunk) End() uintptr {
	return c.base + uintptr(c.WordSize()*chunklevel.BytesPerWord)
}

// Level returns the chunk's current level.
func (c *Chunk) Level() chunklevel.Level { return c.level }

// WordSize returns the chunk's capacity in words.
func (c *Chunk) WordSize() int { return chunklevel.WordSize(c.level) }

// State returns the chunk's lifecycle state.
func (c *Chunk) State() State { return c.state }

// IsFree reports whether the chunk is owned by the freelist manager.
func (c *Chunk) IsFree() bool { return c.state == StateFree }

// IsInUse reports whether the chunk is owned by an arena.
func (c *Chunk) IsInUse() bool { return c.state == StateInUse }

// IsRoot reports whether the chunk spans a whole root area.
func (c *Chunk) IsRoot() bool { return c.level == chunklevel.RootChunkLevel }

// UsedWords returns the bump-allocated prefix length in words.
func (c *Chunk) UsedWords() int { return c.used }

// CommittedWords returns the committed prefix length in words.
func (c *Chunk) CommittedWords() int { return c.committed }

// FreeWords returns the capacity left above the bump pointer.
func (c *Chunk) FreeWords() int { return c.WordSize() - c.used }

// FreeBelowCommittedWords returns how many words can be bump-allocated
// without committing anything further.
func (c *Chunk) FreeBelowCommittedWords() int { return c.committed - c.used }

// Area returns the buddy area this chunk belongs to.
func (c *Chunk) Area() *BuddyArea { return c.area }

// IsLeader reports whether the chunk's offset inside its buddy area is
// aligned to twice its own size. Only leaders may claim their trailing
// sibling when enlarging in place.
func (c *Chunk) IsLeader() bool {
	if c.IsRoot() {
		return false
	}
	off := c.base - c.area.Base()
	return off%uintptr(2*c.WordSize()*chunklevel.BytesPerWord) == 0
}

// Allocate bump-allocates words from the chunk, growing the committed
// prefix on demand. On a commit-limit or OS commit failure the error
// wraps commitlimit.ErrLimitReached and the chunk is unchanged.
//
// The caller must have checked that words fits the chunk's free space;
// allocation past the chunk's capacity is a programming error.
func (c *Chunk) Allocate(words int) (uintptr, error) {
	assertf(c.IsInUse(), "allocating from %s chunk @%x", c.state, c.base)
	assertf(words > 0 && words <= c.FreeWords(),
		"allocation of %d words does not fit chunk @%x (free %d)", words, c.base, c.FreeWords())

	if c.FreeBelowCommittedWords() < words {
		if !c.EnsureCommitted(c.used + words) {
			return 0, fmt.Errorf("chunks: allocate %d words: %w", words, commitlimit.ErrLimitReached)
		}
	}
	addr := c.base + uintptr(c.used*chunklevel.BytesPerWord)
	c.used += words
	return addr, nil
}

// Rollback undoes the most recent allocation. It succeeds only if addr
// and words describe exactly the allocation at the top of the bump
// pointer; anything else returns false and changes nothing.
func (c *Chunk) Rollback(addr uintptr, words int) bool {
	if words <= 0 || words > c.used {
		return false
	}
	top := c.base + uintptr((c.used-words)*chunklevel.BytesPerWord)
	if addr != top {
		return false
	}
	c.used -= words
	return true
}

// EnsureCommitted grows the committed prefix to at least upToWords,
// rounded up to whole granules by the backing region. Returns false on
// commit-limit or OS failure; the committed mark only advances on full
// success.
func (c *Chunk) EnsureCommitted(upToWords int) bool {
	assertf(upToWords <= c.WordSize(),
		"commit target %d exceeds chunk size %d", upToWords, c.WordSize())
	if upToWords <= c.committed {
		return true
	}
	if !c.backing.EnsureRangeCommitted(c.base, upToWords) {
		return false
	}
	c.syncCommitted()
	return true
}

// Uncommit sheds the chunk's committed memory. Only legal on a free,
// unused chunk of at least one commit granule; smaller chunks share a
// granule with neighbors and can never be uncommitted alone.
func (c *Chunk) Uncommit() {
	assertf(c.IsFree() && c.used == 0, "uncommitting %s chunk @%x used=%d", c.state, c.base, c.used)
	c.backing.UncommitRange(c.base, c.WordSize())
	c.syncCommitted()
}

// syncCommitted pulls the committed prefix length from the region's
// granule map. Called after any commit, uncommit, split or merge.
func (c *Chunk) syncCommitted() {
	c.committed = c.backing.CommittedWordsInRange(c.base, c.WordSize())
}

// MarkInUse transitions the chunk from Free to InUse. Called by the
// freelist manager on handout, after removing it from its freelist.
func (c *Chunk) MarkInUse() {
	assertf(c.state == StateFree, "chunk @%x: free->in-use from %s", c.base, c.state)
	c.state = StateInUse
}

// MarkFree transitions the chunk back to Free and clears its used
// words. Called by the freelist manager when an arena returns it.
func (c *Chunk) MarkFree() {
	c.state = StateFree
	c.used = 0
}

// reset blanks the header for reuse as a different chunk's descriptor.
func (c *Chunk) reset() {
	*c = Chunk{state: StateDead}
}

// initialize binds a blank header to a payload range.
func (c *Chunk) initialize(area *BuddyArea, backing Backing, base uintptr, level chunklevel.Level) {
	assertf(c.state == StateDead, "initializing live header @%x", c.base)
	c.area = area
	c.backing = backing
	c.base = base
	c.level = level
	c.state = StateFree
	c.used = 0
	c.syncCommitted()
}

// String renders the chunk for logs and assertion messages.
func (c *Chunk) String() string {
	return fmt.Sprintf("chunk@%x %v %s used=%d committed=%d",
		c.base, c.level, c.state, c.used, c.committed)
}
