package metaspace

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/vmkit/metaspace/arena"
	"github.com/vmkit/metaspace/chunkmgr"
	"github.com/vmkit/metaspace/chunks"
	"github.com/vmkit/metaspace/commitlimit"
	"github.com/vmkit/metaspace/vmem"
)

// Kind selects an arena flavor; see the arena package for the growth
// behavior of each.
type Kind = arena.Kind

const (
	KindStandard = arena.KindStandard
	KindBoot     = arena.KindBoot
	KindClass    = arena.KindClass
	KindMicro    = arena.KindMicro
)

// Context is the root object: one commit budget, a growable region
// list for the normal category and, if configured, a bounded one for
// the class category, each with its own freelist manager. A process
// typically has exactly one.
type Context struct {
	settings Settings
	log      *slog.Logger

	limiter *commitlimit.Limiter

	nonclass *chunkmgr.Manager
	class    *chunkmgr.Manager // nil unless ClassSpaceWords is set

	arenaCfg arena.Config

	// words bump-allocated across all live arenas
	usedWords atomic.Int64
}

// New builds a Context from s. A nil logger discards lifecycle events.
func New(s Settings, logger *slog.Logger) (*Context, error) {
	s = s.withDefaults()
	if err := s.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Context{
		settings: s,
		log:      logger,
		limiter:  commitlimit.New(s.MaxCommittedWords),
		arenaCfg: arena.Config{
			EnlargeInPlace:      s.EnlargeInPlace,
			EnlargeMaxWords:     s.EnlargeMaxWords,
			NewChunkCommitWords: s.NewChunkCommitWords,
			PoisonBlocks:        s.PoisonBlocks,
		},
	}
	mgrCfg := chunkmgr.Config{
		UncommitOnReturn: s.UncommitOnReturn,
		UncommitMinWords: s.UncommitMinWords,
	}

	// Each category gets its own header pool: the pool is guarded by
	// its manager's expand lock, and the two managers lock
	// independently.
	nonclassList := vmem.NewGrowableList("nonclass", s.NodeWords, s.CommitGranuleWords, c.limiter, chunks.NewHeaderPool())
	c.nonclass = chunkmgr.New("nonclass", nonclassList, mgrCfg)

	if s.ClassSpaceWords > 0 {
		classList, err := vmem.NewBoundedList("class", s.ClassSpaceWords, s.CommitGranuleWords, c.limiter, chunks.NewHeaderPool())
		if err != nil {
			return nil, fmt.Errorf("metaspace: class space: %w", err)
		}
		c.class = chunkmgr.New("class", classList, mgrCfg)
	}

	logger.Info("metaspace initialized",
		"granule_words", s.CommitGranuleWords,
		"commit_cap_words", s.MaxCommittedWords,
		"class_space_words", s.ClassSpaceWords)
	return c, nil
}

// NewArena returns an arena of the given kind in the normal category.
// KindClass arenas draw from the class category when one is
// configured; without one they fall back to the normal category, same
// growth sequence.
func (c *Context) NewArena(kind Kind) *arena.Arena {
	mgr := c.nonclass
	if kind == KindClass && c.class != nil {
		mgr = c.class
	}
	return arena.New(mgr, kind, c.arenaCfg, &c.usedWords)
}

// ArenaPair bundles the two arenas of one owner: a standard arena for
// ordinary metadata and a class arena for the compressed-pointer
// category. Both die together in Destroy.
type ArenaPair struct {
	nonclass *arena.Arena
	class    *arena.Arena
}

// NewArenaPair returns a standard/class arena pair for one owner.
func (c *Context) NewArenaPair() *ArenaPair {
	return &ArenaPair{
		nonclass: c.NewArena(KindStandard),
		class:    c.NewArena(KindClass),
	}
}

// Allocate serves words from the class or the standard arena.
func (p *ArenaPair) Allocate(words int, class bool) (uintptr, error) {
	if class {
		return p.class.Allocate(words)
	}
	return p.nonclass.Allocate(words)
}

// Deallocate hands a block back to the arena it came from.
func (p *ArenaPair) Deallocate(addr uintptr, words int, class bool) {
	if class {
		p.class.Deallocate(addr, words)
		return
	}
	p.nonclass.Deallocate(addr, words)
}

// UsedWords returns the pair's combined used words.
func (p *ArenaPair) UsedWords() int64 {
	return p.nonclass.UsedWords() + p.class.UsedWords()
}

// Destroy returns all chunks of both arenas.
func (p *ArenaPair) Destroy() {
	p.nonclass.Destroy()
	p.class.Destroy()
}

// Reclaim runs the maintenance sweep over both categories: free
// committed chunks are uncommitted and reservation nodes containing
// only free chunks are unmapped (growable lists only). Returns the
// number of nodes unmapped. Safe to call concurrently with allocation.
func (c *Context) Reclaim() int {
	purged := c.nonclass.WholesaleReclaim()
	if c.class != nil {
		purged += c.class.WholesaleReclaim()
	}
	c.log.Info("reclaim sweep", "nodes_unmapped", purged,
		"committed_words", c.limiter.CommittedWords())
	return purged
}

// UsedWords returns the words bump-allocated across all live arenas.
func (c *Context) UsedWords() int64 { return c.usedWords.Load() }

// CommittedWords returns the total committed words, both categories.
func (c *Context) CommittedWords() int64 { return c.limiter.CommittedWords() }

// ReservedWords returns the total reserved address space in words.
// Reads go through the managers' locks; region lists are never
// touched directly.
func (c *Context) ReservedWords() int64 {
	r := c.nonclass.Statistics().ReservedWords
	if c.class != nil {
		r += c.class.Statistics().ReservedWords
	}
	return r
}

// PossibleExpansionWords returns how much more memory the commit
// budget allows right now.
func (c *Context) PossibleExpansionWords() int64 {
	return c.limiter.PossibleExpansionWords()
}
