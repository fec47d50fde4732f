// Package chunklevel defines the chunk size geometry used throughout the
// allocator.
//
// Chunks come in power-of-two sizes between 1 KiB and 4 MiB. Each size is
// identified by a level: level 0 is the root chunk (4 MiB, the unit in
// which address space is carved from a reserved region) and each
// subsequent level halves the size, down to the smallest chunk at
// HighestLevel. Splitting a chunk therefore increases its level by one;
// merging two buddies decreases it.
//
// All sizes in this package, and in the allocator as a whole, are counted
// in words (BytesPerWord bytes each), not bytes.
package chunklevel

import "fmt"

// Level identifies a chunk size. Smaller levels mean larger chunks.
type Level int

const (
	// BytesPerWord is the allocation word size. Every size in the
	// allocator is expressed in these words.
	BytesPerWord = 8

	// RootChunkLevel is the coarsest level. Root chunks are the unit in
	// which a region list hands out fresh address space.
	RootChunkLevel Level = 0

	// HighestLevel is the finest level (the smallest chunk).
	HighestLevel Level = 12

	// NumLevels is the number of distinct chunk sizes.
	NumLevels = int(HighestLevel) + 1

	// RootChunkWords is the word size of a root chunk (4 MiB).
	RootChunkWords = (4 * 1024 * 1024) / BytesPerWord

	// SmallestChunkWords is the word size of a chunk at HighestLevel
	// (1 KiB).
	SmallestChunkWords = RootChunkWords >> HighestLevel
)

// IsValid reports whether l is a usable chunk level.
func IsValid(l Level) bool {
	return l >= RootChunkLevel && l <= HighestLevel
}

// WordSize returns the size, in words, of a chunk at level l.
func WordSize(l Level) int {
	return RootChunkWords >> l
}

// ByteSize returns the size, in bytes, of a chunk at level l.
func ByteSize(l Level) int {
	return WordSize(l) * BytesPerWord
}

// LevelFitting returns the smallest chunk size able to hold words, as a
// level. Since levels grow toward smaller chunks, this is the numerically
// largest level whose chunk size is >= words.
//
// Returns ErrTooLarge if words exceeds the root chunk size. Arena-level
// requests are capped far below that, so only internal chunk-sizing code
// ever sees the top of the range.
func LevelFitting(words int) (Level, error) {
	if words <= 0 {
		return 0, fmt.Errorf("chunklevel: invalid word size %d", words)
	}
	if words > RootChunkWords {
		return 0, ErrTooLarge
	}
	l := HighestLevel
	for WordSize(l) < words {
		l--
	}
	return l, nil
}

// String renders the level together with its chunk size, for logs and
// freelist dumps.
func (l Level) String() string {
	if !IsValid(l) {
		return fmt.Sprintf("lv?%d", int(l))
	}
	sz := ByteSize(l)
	if sz >= 1024*1024 {
		return fmt.Sprintf("lv%02d(%dm)", int(l), sz/(1024*1024))
	}
	return fmt.Sprintf("lv%02d(%dk)", int(l), sz/1024)
}
