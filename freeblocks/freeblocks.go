// Package freeblocks tracks deallocated and left-over word ranges for
// reuse inside one arena.
//
// Two regimes cover the size spectrum: a segregated array of exact-size
// lists for a narrow band of small sizes (O(1) insert and remove), and
// an unbalanced binary search tree keyed by size for everything above
// the band. Same-sized tree blocks chain off a single node, so the tree
// never holds duplicate keys.
//
// Bookkeeping nodes are pooled structs keyed by (address, size); the
// freed payload itself is never touched. Blocks handed back out may be
// larger than requested; callers re-donate the remainder if it is
// still a viable block, or swallow it as internal waste.
package freeblocks

// MinWordSize is the smallest block worth tracking. Deallocating or
// salvaging anything smaller loses it as internal waste.
const MinWordSize = 2

// maxBinWordSize is the top of the small-size band handled by the
// segregated lists; larger blocks go to the tree.
const maxBinWordSize = 16

// FreeBlocks is the per-arena reclaimer. Not safe for concurrent use;
// the owning arena's lock covers it.
type FreeBlocks struct {
	bins binList
	tree blockTree

	totalWords int
	numBlocks  int
}

// New returns an empty reclaimer.
func New() *FreeBlocks {
	return &FreeBlocks{}
}

// AddBlock donates a block. Blocks below MinWordSize are a programming
// error; the arena filters those before calling.
func (f *FreeBlocks) AddBlock(addr uintptr, words int) {
	if words < MinWordSize {
		panic("freeblocks: block below minimum viable size")
	}
	if words <= maxBinWordSize {
		f.bins.add(addr, words)
	} else {
		f.tree.add(addr, words)
	}
	f.totalWords += words
	f.numBlocks++
}

// RemoveBlock retrieves a block of at least minWords. The result may be
// larger than requested; the caller owns the whole of it. Returns
// ok=false if nothing fits.
func (f *FreeBlocks) RemoveBlock(minWords int) (addr uintptr, words int, ok bool) {
	if minWords < MinWordSize {
		minWords = MinWordSize
	}
	if minWords <= maxBinWordSize {
		addr, words, ok = f.bins.remove(minWords)
	}
	if !ok {
		addr, words, ok = f.tree.remove(minWords)
	}
	if ok {
		f.totalWords -= words
		f.numBlocks--
	}
	return addr, words, ok
}

// TotalWords returns the words currently tracked.
func (f *FreeBlocks) TotalWords() int { return f.totalWords }

// NumBlocks returns the number of tracked blocks.
func (f *FreeBlocks) NumBlocks() int { return f.numBlocks }

// IsEmpty reports whether nothing is tracked.
func (f *FreeBlocks) IsEmpty() bool { return f.numBlocks == 0 }
