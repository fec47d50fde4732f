// Package chunkmgr implements the chunk freelist manager: the shared
// component arenas draw their chunks from and return them to.
//
// One manager exists per metadata category, bound to one region list.
// It keeps freelists of chunk headers keyed by level and orchestrates
// handout, return, splitting and merging against the buddy areas and
// the region list. A single mutex, the expand lock, guards all of it;
// critical sections are short and never block on I/O.
package chunkmgr

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vmkit/metaspace/chunklevel"
	"github.com/vmkit/metaspace/chunks"
	"github.com/vmkit/metaspace/commitlimit"
	"github.com/vmkit/metaspace/vmem"
)

// Config carries the manager's policy knobs.
type Config struct {
	// UncommitOnReturn makes ReturnChunk shed the memory of returned
	// chunks of at least UncommitMinWords.
	UncommitOnReturn bool
	UncommitMinWords int
}

// Manager hands out and reclaims chunks for one metadata category.
type Manager struct {
	mu   sync.Mutex // the expand lock
	name string
	list *vmem.List
	cfg  Config

	freelists chunks.FreeListVector

	// words currently handed out to arenas; atomic so statistics can
	// be read without taking the expand lock
	inUseWords atomic.Int64

	stats Stats
}

// Stats counts manager activity, for tests and reporting.
type Stats struct {
	ChunksHandedOut int64
	ChunksReturned  int64
	Splits          int64
	Merges          int64
	Enlargements    int64
	RootsAllocated  int64
	NodesPurged     int64
}

// New returns a manager bound to list.
func New(name string, list *vmem.List, cfg Config) *Manager {
	return &Manager{name: name, list: list, cfg: cfg}
}

// Name returns the manager's category name.
func (m *Manager) Name() string { return m.name }

// InUseWords returns the words currently handed out to arenas.
func (m *Manager) InUseWords() int64 { return m.inUseWords.Load() }

// AddFreeChunk and RemoveFreeChunk implement chunks.FreelistSink for
// the buddy areas' split/merge callbacks. They are invoked with the
// expand lock already held and must not be called from outside.

func (m *Manager) AddFreeChunk(c *chunks.Chunk) { m.freelists.Add(c) }

func (m *Manager) RemoveFreeChunk(c *chunks.Chunk) { m.freelists.Remove(c) }

// GetChunk returns a chunk for an arena, preferring preferredLevel but
// accepting anything down to maxLevel (a smaller chunk, handed out
// as-is). The search order is fixed:
//
//  1. an exact match at preferredLevel,
//  2. a smaller free chunk, from just below preferred size toward
//     maxLevel,
//  3. a larger free chunk, split down to preferredLevel,
//  4. a fresh root chunk from the region list, split down likewise.
//
// After acquisition the chunk is committed up to commitWords as a best
// effort: a partially committed or uncommitted chunk is still returned
// rather than failing the call. The error is non-nil only when all four
// steps fail (commit budget or address space exhausted).
func (m *Manager) GetChunk(preferredLevel, maxLevel chunklevel.Level, commitWords int) (*chunks.Chunk, error) {
	if preferredLevel > maxLevel || !chunklevel.IsValid(preferredLevel) || !chunklevel.IsValid(maxLevel) {
		return nil, fmt.Errorf("chunkmgr: bad level range %v..%v", preferredLevel, maxLevel)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.acquireLocked(preferredLevel, maxLevel)
	if err != nil {
		return nil, err
	}

	if commitWords > c.WordSize() {
		commitWords = c.WordSize()
	}
	if commitWords > 0 {
		// Best effort; the arena discovers a short commit when its own
		// allocation crosses the committed boundary.
		_ = c.EnsureCommitted(commitWords)
	}

	c.MarkInUse()
	m.inUseWords.Add(int64(c.WordSize()))
	m.stats.ChunksHandedOut++
	return c, nil
}

func (m *Manager) acquireLocked(preferredLevel, maxLevel chunklevel.Level) (*chunks.Chunk, error) {
	// (1) exact match
	if c := m.freelists.FirstAt(preferredLevel); c != nil {
		m.freelists.Remove(c)
		return c, nil
	}
	// (2) smaller chunk, closest size first
	for l := preferredLevel + 1; l <= maxLevel; l++ {
		if c := m.freelists.FirstAt(l); c != nil {
			m.freelists.Remove(c)
			return c, nil
		}
	}
	// (3) larger chunk, split down to the preferred size
	for l := preferredLevel - 1; l >= chunklevel.RootChunkLevel; l-- {
		if c := m.freelists.FirstAt(l); c != nil {
			m.freelists.Remove(c)
			m.splitLocked(c, preferredLevel)
			return c, nil
		}
	}
	// (4) fresh root chunk
	c, err := m.list.AllocateRootChunk()
	if err != nil {
		return nil, err
	}
	m.stats.RootsAllocated++
	if c.Level() < preferredLevel {
		m.splitLocked(c, preferredLevel)
	}
	return c, nil
}

func (m *Manager) splitLocked(c *chunks.Chunk, target chunklevel.Level) {
	c.Area().Split(c, target, m)
	m.stats.Splits++
}

// ReturnChunk takes back a chunk from an arena: marks it free, merges
// it with free buddies as far as possible, optionally sheds its memory
// per policy, and files the result in the freelists.
func (m *Manager) ReturnChunk(c *chunks.Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !c.IsInUse() {
		panic(fmt.Sprintf("chunkmgr: double return of %s", c))
	}
	m.inUseWords.Add(int64(-c.WordSize()))
	m.stats.ChunksReturned++

	c.MarkFree()
	if merged := c.Area().Merge(c, m); merged != nil {
		c = merged
		m.stats.Merges++
	}
	if m.cfg.UncommitOnReturn && c.WordSize() >= m.cfg.UncommitMinWords {
		c.Uncommit()
	}
	m.freelists.Add(c)
}

// AttemptEnlargeChunk tries to double c in place by fusing it with its
// free trailing buddy. On success the absorbed words are accounted as
// handed out to the owning arena.
func (m *Manager) AttemptEnlargeChunk(c *chunks.Chunk) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := c.WordSize()
	if !c.Area().AttemptEnlarge(c, m) {
		return false
	}
	m.inUseWords.Add(int64(before))
	m.stats.Enlargements++
	return true
}

// WholesaleReclaim is the maintenance sweep: it uncommits large free
// chunks and unmaps region nodes containing only free chunks (where the
// region list permits). Never required for correctness, only footprint.
// Returns the number of nodes dropped.
func (m *Manager) WholesaleReclaim() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Shed memory of listed free chunks above the threshold. Remove and
	// re-add so the freelists' committed accounting stays right.
	for l := chunklevel.RootChunkLevel; l <= chunklevel.HighestLevel; l++ {
		if chunklevel.WordSize(l) < m.cfg.UncommitMinWords {
			break
		}
		var shed []*chunks.Chunk
		m.freelists.ForEachAt(l, func(c *chunks.Chunk) {
			if c.CommittedWords() > 0 {
				shed = append(shed, c)
			}
		})
		for _, c := range shed {
			m.freelists.Remove(c)
			c.Uncommit()
			m.freelists.Add(c)
		}
	}

	purged := m.list.Purge(func(c *chunks.Chunk) {
		m.freelists.Remove(c)
	})
	m.stats.NodesPurged += int64(purged)
	return purged
}

// Statistics returns a copy of the manager's counters plus freelist
// composition.
func (m *Manager) Statistics() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ManagerStats{
		Stats:              m.stats,
		InUseWords:         m.inUseWords.Load(),
		FreeChunks:         m.freelists.NumChunks(),
		FreeWords:          m.freelists.TotalWords(),
		FreeCommittedWords: m.freelists.CommittedWords(),
		ReservedWords:      int64(m.list.ReservedWords()),
		CommittedWords:     int64(m.list.CommittedWords()),
		Nodes:              m.list.NumNodes(),
		OutstandingHeaders: m.list.OutstandingHeaders(),
	}
}

// ManagerStats is a point-in-time snapshot of one manager.
type ManagerStats struct {
	Stats
	InUseWords         int64
	FreeChunks         int
	FreeWords          int
	FreeCommittedWords int
	ReservedWords      int64
	CommittedWords     int64
	Nodes              int
	OutstandingHeaders int
}

var _ chunks.FreelistSink = (*Manager)(nil)

// ErrCommitLimit is re-exported for callers matching handout failures.
var ErrCommitLimit = commitlimit.ErrLimitReached
