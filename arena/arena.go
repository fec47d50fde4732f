// Package arena implements the per-owner allocator: a bump pointer over
// a chain of chunks drawn from a shared chunk freelist manager, with a
// free-block reclaimer for deallocated and left-over ranges.
//
// One arena exists per class-loading context and dies with it. All
// allocation-capacity failures surface as error returns the owner can
// act on (typically by triggering a collection and retrying); nothing
// in this package panics on an exhausted budget.
package arena

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vmkit/metaspace/chunklevel"
	"github.com/vmkit/metaspace/chunkmgr"
	"github.com/vmkit/metaspace/chunks"
	"github.com/vmkit/metaspace/commitlimit"
	"github.com/vmkit/metaspace/freeblocks"
)

// ErrInvalidSize indicates a zero or negative allocation request.
var ErrInvalidSize = errors.New("arena: invalid allocation size")

// Config carries the arena policy knobs shared by all arenas of one
// context.
type Config struct {
	// EnlargeInPlace permits fusing the current chunk with its free
	// trailing buddy instead of retiring it, up to chunks of
	// EnlargeMaxWords after doubling.
	EnlargeInPlace  bool
	EnlargeMaxWords int

	// NewChunkCommitWords is how much of a freshly requested chunk to
	// pre-commit (best effort), beyond what the triggering allocation
	// itself needs.
	NewChunkCommitWords int

	// PoisonBlocks overwrites deallocated and salvaged blocks with a
	// recognizable pattern so stale references fail loudly.
	PoisonBlocks bool
}

// Stats counts one arena's activity.
type Stats struct {
	Allocations     int64
	FromReclaimer   int64
	Deallocations   int64
	Rollbacks       int64
	ChunksRetired   int64
	ChunksEnlarged  int64
	ReclaimerDrops  int64 // deallocations lost because the flavor keeps no reclaimer
	SalvagedWords   int64
}

// Arena is one owner's allocator. Its own lock serializes allocations;
// two arenas never contend on it. The shared freelist manager has its
// own lock for the chunk-level operations.
type Arena struct {
	mu     sync.Mutex
	mgr    *chunkmgr.Manager
	policy *GrowthPolicy
	kind   Kind
	cfg    Config

	// owned chunks in acquisition order; the last one is current
	owned []*chunks.Chunk

	// reclaimer; nil for micro arenas
	fbl *freeblocks.FreeBlocks

	usedWords int64

	// shared cross-arena counter maintained alongside usedWords, may
	// be nil
	totalUsed *atomic.Int64

	destroyed bool

	stats Stats
}

// New returns an arena of the given kind drawing from mgr. totalUsed,
// if non-nil, is a shared counter the arena keeps in sync with its own
// used words for cross-arena accounting.
func New(mgr *chunkmgr.Manager, kind Kind, cfg Config, totalUsed *atomic.Int64) *Arena {
	a := &Arena{
		mgr:       mgr,
		policy:    PolicyForKind(kind),
		kind:      kind,
		cfg:       cfg,
		totalUsed: totalUsed,
	}
	if kind != KindMicro {
		a.fbl = freeblocks.New()
	}
	return a
}

// Kind returns the arena's flavor.
func (a *Arena) Kind() Kind { return a.kind }

// Allocate returns the address of netWords words of metadata storage.
// The request is rounded up to the minimum block size; alignment is
// pointer-size, implicit in word addressing.
//
// Failure is an ordinary outcome: the error wraps the commit-limit or
// reservation-exhausted sentinel and the arena remains fully usable
// (the owner may retry after remedial action).
func (a *Arena) Allocate(netWords int) (uintptr, error) {
	if netWords <= 0 {
		return 0, ErrInvalidSize
	}
	raw := netWords
	if raw < freeblocks.MinWordSize {
		raw = freeblocks.MinWordSize
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkLive()
	a.stats.Allocations++

	// 1. the reclaimer, cheapest when it hits
	if a.fbl != nil && !a.fbl.IsEmpty() {
		if addr, got, ok := a.fbl.RemoveBlock(raw); ok {
			a.stats.FromReclaimer++
			// Re-donate the tail if it is still a viable block;
			// anything smaller is internal waste.
			if rem := got - raw; rem >= freeblocks.MinWordSize {
				a.fbl.AddBlock(addr+uintptr(raw*chunklevel.BytesPerWord), rem)
			}
			return addr, nil
		}
	}

	// 2. bump from the current chunk
	current := a.currentChunk()
	if current != nil && current.FreeWords() >= raw {
		addr, err := current.Allocate(raw)
		if err == nil {
			a.countAllocated(raw)
			return addr, nil
		}
		// A commit-limit hit on the current chunk: enlarging would
		// need just as much commit, so fall through to a new chunk,
		// which may arrive with committed memory from the freelists.
	} else if current != nil && a.eligibleForEnlarge(current, raw) {
		// 3. grow the current chunk in place and retry the bump
		if a.mgr.AttemptEnlargeChunk(current) {
			a.stats.ChunksEnlarged++
			addr, err := current.Allocate(raw)
			if err == nil {
				a.countAllocated(raw)
				return addr, nil
			}
		}
	}

	// 4. retire the current chunk and start a new one
	c, err := a.newChunk(raw)
	if err != nil {
		return 0, err
	}
	a.retireCurrentChunk()
	a.owned = append(a.owned, c)

	addr, err := c.Allocate(raw)
	if err != nil {
		// The fresh chunk was handed out short-committed and the
		// limit did not clear: surface the failure, keep the chunk.
		return 0, fmt.Errorf("arena: %w", err)
	}
	a.countAllocated(raw)
	return addr, nil
}

// Deallocate hands back a previously allocated block. If it was the
// most recent allocation the bump pointer is simply rolled back;
// otherwise the block is donated to the reclaimer. Advisory only:
// committed memory never shrinks here.
func (a *Arena) Deallocate(addr uintptr, netWords int) {
	if netWords <= 0 {
		return
	}
	raw := netWords
	if raw < freeblocks.MinWordSize {
		raw = freeblocks.MinWordSize
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkLive()
	a.stats.Deallocations++

	if current := a.currentChunk(); current != nil && current.Rollback(addr, raw) {
		a.stats.Rollbacks++
		a.countDeallocated(raw)
		return
	}
	if a.fbl == nil {
		// Micro arenas carry no reclaimer; the block is lost, which is
		// fine for one or two tiny allocations.
		a.stats.ReclaimerDrops++
		return
	}
	if a.cfg.PoisonBlocks {
		poisonWords(addr, raw)
	}
	a.fbl.AddBlock(addr, raw)
}

// Destroy returns every owned chunk to the freelist manager. The
// reclaimer's contents are discarded; they are sub-ranges of the very
// chunks being returned. The arena is dead afterwards: any further
// Allocate, Deallocate or Destroy panics.
func (a *Arena) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkLive()
	a.destroyed = true

	for _, c := range a.owned {
		a.mgr.ReturnChunk(c)
	}
	a.owned = nil
	a.fbl = nil
	if a.totalUsed != nil {
		a.totalUsed.Add(-a.usedWords)
	}
	a.usedWords = 0
}

// UsedWords returns the words bump-allocated across the arena's
// chunks. Blocks sitting in the reclaimer still count as used.
func (a *Arena) UsedWords() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usedWords
}

// NumChunks returns how many chunks the arena owns.
func (a *Arena) NumChunks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.owned)
}

// Statistics returns a copy of the arena's counters.
func (a *Arena) Statistics() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// checkLive catches use after Destroy. A destroyed standard arena
// would otherwise limp along like a micro arena, silently dropping
// deallocations into a nil reclaimer.
func (a *Arena) checkLive() {
	if a.destroyed {
		panic("arena: use after Destroy")
	}
}

func (a *Arena) currentChunk() *chunks.Chunk {
	if len(a.owned) == 0 {
		return nil
	}
	return a.owned[len(a.owned)-1]
}

func (a *Arena) countAllocated(words int) {
	a.usedWords += int64(words)
	if a.totalUsed != nil {
		a.totalUsed.Add(int64(words))
	}
}

func (a *Arena) countDeallocated(words int) {
	a.usedWords -= int64(words)
	if a.totalUsed != nil {
		a.totalUsed.Add(int64(-words))
	}
}

// eligibleForEnlarge applies the in-place growth policy: enabled,
// non-micro, chunk not already a root, doubling stays under the size
// cap, doubling actually makes the request fit, and the growth policy
// would not rather switch to a smaller chunk at this step anyway.
func (a *Arena) eligibleForEnlarge(c *chunks.Chunk, raw int) bool {
	if !a.cfg.EnlargeInPlace || a.kind == KindMicro || c.IsRoot() {
		return false
	}
	doubled := 2 * c.WordSize()
	if a.cfg.EnlargeMaxWords > 0 && doubled > a.cfg.EnlargeMaxWords {
		return false
	}
	if c.FreeWords()+c.WordSize() < raw {
		return false
	}
	// If the policy's next step is smaller than the doubled chunk,
	// retiring into that smaller chunk fragments less.
	next := a.policy.NextLevel(len(a.owned))
	return chunklevel.WordSize(next) <= doubled
}

// newChunk requests the arena's next chunk from the manager, sized by
// the growth policy but never too small for the triggering request.
func (a *Arena) newChunk(raw int) (*chunks.Chunk, error) {
	fitting, err := chunklevel.LevelFitting(raw)
	if err != nil {
		// Oversized requests are rejected here, before the chunk
		// layer ever sees them.
		return nil, fmt.Errorf("arena: allocation of %d words: %w", raw, err)
	}
	pref := a.policy.NextLevel(len(a.owned))
	if pref > fitting {
		pref = fitting // policy chunk too small for this request
	}
	commit := a.cfg.NewChunkCommitWords
	if commit < raw {
		commit = raw
	}
	c, err := a.mgr.GetChunk(pref, fitting, commit)
	if err != nil {
		return nil, fmt.Errorf("arena: new chunk: %w", err)
	}
	return c, nil
}

// retireCurrentChunk salvages the committed remainder of the current
// chunk into the reclaimer before a new chunk takes over. Micro arenas
// skip the bookkeeping.
func (a *Arena) retireCurrentChunk() {
	current := a.currentChunk()
	if current == nil {
		return
	}
	a.stats.ChunksRetired++
	if a.fbl == nil {
		return
	}
	leftover := current.FreeBelowCommittedWords()
	if leftover < freeblocks.MinWordSize {
		return
	}
	addr := current.Base() + uintptr(current.UsedWords()*chunklevel.BytesPerWord)
	if a.cfg.PoisonBlocks {
		poisonWords(addr, leftover)
	}
	a.fbl.AddBlock(addr, leftover)
	a.stats.SalvagedWords += int64(leftover)
}

// sentinel re-exports for callers matching failure causes
var (
	// ErrCommitLimit reports an allocation denied by the commit budget.
	ErrCommitLimit = commitlimit.ErrLimitReached
)
