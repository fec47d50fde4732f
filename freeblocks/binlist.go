package freeblocks

// binList segregates small blocks by exact size: one singly linked list
// per word size in [MinWordSize, maxBinWordSize].
type binList struct {
	heads [maxBinWordSize - MinWordSize + 1]*node
}

func binIndex(words int) int {
	return words - MinWordSize
}

func (b *binList) add(addr uintptr, words int) {
	n := getNode(addr, words)
	i := binIndex(words)
	n.next = b.heads[i]
	b.heads[i] = n
}

// remove pops a block of at least minWords: the exact bucket first,
// then the next larger ones in order.
func (b *binList) remove(minWords int) (uintptr, int, bool) {
	for i := binIndex(minWords); i < len(b.heads); i++ {
		if n := b.heads[i]; n != nil {
			b.heads[i] = n.next
			addr, words := n.addr, n.words
			putNode(n)
			return addr, words, true
		}
	}
	return 0, 0, false
}
