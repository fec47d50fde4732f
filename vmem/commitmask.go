package vmem

// commitMask tracks which commit granules of one reserved node are
// currently backed by committed memory. One bit per granule.
type commitMask struct {
	bits []uint64
	size int
}

func newCommitMask(numGranules int) commitMask {
	return commitMask{
		bits: make([]uint64, (numGranules+63)/64),
		size: numGranules,
	}
}

func (m *commitMask) get(i int) bool {
	return m.bits[i/64]&(1<<(i%64)) != 0
}

func (m *commitMask) set(i int) {
	m.bits[i/64] |= 1 << (i % 64)
}

func (m *commitMask) clear(i int) {
	m.bits[i/64] &^= 1 << (i % 64)
}

// countClearInRange returns the number of uncommitted granules in
// [from, to).
func (m *commitMask) countClearInRange(from, to int) int {
	n := 0
	for i := from; i < to; i++ {
		if !m.get(i) {
			n++
		}
	}
	return n
}

// contiguousSetFrom returns the length of the committed run starting at
// granule i.
func (m *commitMask) contiguousSetFrom(i int) int {
	n := 0
	for ; i < m.size && m.get(i); i++ {
		n++
	}
	return n
}
