package chunks

import "github.com/vmkit/metaspace/chunklevel"

// FreeList is a doubly linked list of free chunks of one level, linked
// through the chunks' intrusive prev/next fields. Insertion prefers
// committed chunks at the front so that handing out a chunk tends to
// reuse memory that is already paid for.
type FreeList struct {
	first, last *Chunk
	numChunks   int
	// committed words across all listed chunks
	committedWords int
}

// Add inserts c. Fully or partially committed chunks go to the front,
// uncommitted ones to the back.
func (l *FreeList) Add(c *Chunk) {
	assertf(c.prev == nil && c.next == nil, "chunk already listed: %s", c)
	if c.committed > 0 || l.first == nil {
		c.next = l.first
		if l.first != nil {
			l.first.prev = c
		}
		l.first = c
		if l.last == nil {
			l.last = c
		}
	} else {
		c.prev = l.last
		l.last.next = c
		l.last = c
	}
	l.numChunks++
	l.committedWords += c.committed
}

// Remove unlinks c from the list.
func (l *FreeList) Remove(c *Chunk) {
	if c.prev != nil {
		c.prev.next = c.next
	} else {
		assertf(l.first == c, "chunk not on this list: %s", c)
		l.first = c.next
	}
	if c.next != nil {
		c.next.prev = c.prev
	} else {
		assertf(l.last == c, "chunk not on this list: %s", c)
		l.last = c.prev
	}
	c.prev, c.next = nil, nil
	l.numChunks--
	l.committedWords -= c.committed
}

// First returns the head of the list, nil if empty.
func (l *FreeList) First() *Chunk { return l.first }

// IsEmpty reports whether the list holds no chunks.
func (l *FreeList) IsEmpty() bool { return l.first == nil }

// NumChunks returns the list length.
func (l *FreeList) NumChunks() int { return l.numChunks }

// FreeListVector segregates free chunks by level.
type FreeListVector struct {
	lists [chunklevel.NumLevels]FreeList
}

// Add files c under its level.
func (v *FreeListVector) Add(c *Chunk) {
	assertf(c.IsFree(), "adding non-free chunk to freelist: %s", c)
	v.lists[c.level].Add(c)
}

// Remove unlinks c from its level's list.
func (v *FreeListVector) Remove(c *Chunk) {
	v.lists[c.level].Remove(c)
}

// FirstAt returns the head of the list for level l, nil if empty.
func (v *FreeListVector) FirstAt(l chunklevel.Level) *Chunk {
	return v.lists[l].First()
}

// ForEachAt calls fn for every listed chunk at level l. fn must not add
// or remove chunks while the walk runs.
func (v *FreeListVector) ForEachAt(l chunklevel.Level, fn func(*Chunk)) {
	for c := v.lists[l].first; c != nil; c = c.next {
		fn(c)
	}
}

// NumChunks returns the total number of listed chunks.
func (v *FreeListVector) NumChunks() int {
	n := 0
	for i := range v.lists {
		n += v.lists[i].numChunks
	}
	return n
}

// NumChunksAt returns the number of listed chunks at level l.
func (v *FreeListVector) NumChunksAt(l chunklevel.Level) int {
	return v.lists[l].numChunks
}

// TotalWords returns the summed capacity of all listed chunks.
func (v *FreeListVector) TotalWords() int {
	w := 0
	for i := range v.lists {
		w += v.lists[i].numChunks * chunklevel.WordSize(chunklevel.Level(i))
	}
	return w
}

// CommittedWords returns the committed memory held in the freelists.
func (v *FreeListVector) CommittedWords() int {
	w := 0
	for i := range v.lists {
		w += v.lists[i].committedWords
	}
	return w
}
