package arena

import "github.com/vmkit/metaspace/chunklevel"

// Kind selects an arena flavor. The flavors differ only in growth
// behavior: how large the chunks are that the arena requests as it
// fills up, and whether the micro shortcuts apply.
type Kind uint8

const (
	// KindStandard is the common flavor for ordinary owners.
	KindStandard Kind = iota
	// KindBoot serves the few early, very large owners; it starts with
	// a root chunk outright.
	KindBoot
	// KindClass is the flavor for the compressed-pointer category,
	// whose per-owner footprint is small and predictable.
	KindClass
	// KindMicro hosts owners expected to make one or two tiny
	// allocations in their whole lifetime. Micro arenas skip the
	// reclaimer and the retire/enlarge machinery; the bookkeeping
	// would outweigh the data.
	KindMicro
)

func (k Kind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindBoot:
		return "boot"
	case KindClass:
		return "class"
	case KindMicro:
		return "micro"
	}
	return "invalid"
}

// GrowthPolicy is a pure lookup: given how many chunks an arena already
// owns, the level it should request next. The last entry repeats once
// the sequence is exhausted.
type GrowthPolicy struct {
	levels []chunklevel.Level
}

// NextLevel returns the preferred level for the arena's n-th chunk
// (zero-based).
func (p *GrowthPolicy) NextLevel(numChunksOwned int) chunklevel.Level {
	if numChunksOwned >= len(p.levels) {
		return p.levels[len(p.levels)-1]
	}
	return p.levels[numChunksOwned]
}

// Growth sequences per kind, expressed as chunk sizes. Standard owners
// start small and roughly double up to 256 KiB; boot owners start at a
// full root chunk; class owners grow in smaller steps since class-space
// address range is a bounded resource; micro owners never leave the
// smallest chunk.
var growthPolicies = map[Kind]*GrowthPolicy{
	KindStandard: {levels: levelsForKiB(4, 4, 8, 16, 32, 64, 128, 256)},
	KindBoot:     {levels: levelsForKiB(4096, 1024, 256)},
	KindClass:    {levels: levelsForKiB(2, 4, 8, 16, 32, 64, 128)},
	KindMicro:    {levels: levelsForKiB(1)},
}

// PolicyForKind returns the growth policy for k.
func PolicyForKind(k Kind) *GrowthPolicy {
	p, ok := growthPolicies[k]
	if !ok {
		panic("arena: invalid kind")
	}
	return p
}

func levelsForKiB(sizes ...int) []chunklevel.Level {
	levels := make([]chunklevel.Level, len(sizes))
	for i, kib := range sizes {
		l, err := chunklevel.LevelFitting(kib * 1024 / chunklevel.BytesPerWord)
		if err != nil {
			panic(err)
		}
		levels[i] = l
	}
	return levels
}
