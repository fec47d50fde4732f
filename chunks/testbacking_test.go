package chunks

import (
	"github.com/vmkit/metaspace/chunklevel"
	"github.com/vmkit/metaspace/commitlimit"
)

// fakeBacking emulates a reserved region's granule-level commit map over
// a synthetic address range. Chunk code only does address arithmetic, so
// no real memory is needed behind the addresses.
type fakeBacking struct {
	base         uintptr
	granuleWords int
	committed    []bool
	limiter      *commitlimit.Limiter
}

func newFakeBacking(base uintptr, spanWords, granuleWords int, limiter *commitlimit.Limiter) *fakeBacking {
	if limiter == nil {
		limiter = commitlimit.New(0)
	}
	return &fakeBacking{
		base:         base,
		granuleWords: granuleWords,
		committed:    make([]bool, (spanWords+granuleWords-1)/granuleWords),
		limiter:      limiter,
	}
}

func (b *fakeBacking) granuleOf(addr uintptr) int {
	return int(addr-b.base) / chunklevel.BytesPerWord / b.granuleWords
}

func (b *fakeBacking) EnsureRangeCommitted(base uintptr, words int) bool {
	g0 := b.granuleOf(base)
	g1 := b.granuleOf(base+uintptr(words*chunklevel.BytesPerWord)-1) + 1
	delta := 0
	for g := g0; g < g1; g++ {
		if !b.committed[g] {
			delta++
		}
	}
	if delta == 0 {
		return true
	}
	if !b.limiter.TryReserve(int64(delta * b.granuleWords)) {
		return false
	}
	for g := g0; g < g1; g++ {
		b.committed[g] = true
	}
	return true
}

func (b *fakeBacking) UncommitRange(base uintptr, words int) {
	g0 := b.granuleOf(base)
	g1 := g0 + words/b.granuleWords
	released := 0
	for g := g0; g < g1; g++ {
		if b.committed[g] {
			b.committed[g] = false
			released++
		}
	}
	b.limiter.Release(int64(released * b.granuleWords))
}

func (b *fakeBacking) CommittedWordsInRange(base uintptr, words int) int {
	offWords := int(base-b.base) / chunklevel.BytesPerWord
	g := offWords / b.granuleWords
	if g >= len(b.committed) || !b.committed[g] {
		return 0
	}
	// length of the committed run, in words from base
	run := (g+1)*b.granuleWords - offWords
	for g++; g < len(b.committed) && b.committed[g]; g++ {
		run += b.granuleWords
	}
	if run > words {
		run = words
	}
	return run
}

// listSink adapts a FreeListVector to the FreelistSink interface.
type listSink struct {
	FreeListVector
}

func (s *listSink) AddFreeChunk(c *Chunk)    { s.Add(c) }
func (s *listSink) RemoveFreeChunk(c *Chunk) { s.Remove(c) }
