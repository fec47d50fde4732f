package chunks

// headerSlabSize is the number of chunk headers allocated at once when
// the pool runs dry.
const headerSlabSize = 128

// HeaderPool hands out blank chunk headers and recycles the headers of
// merged-away chunks. Headers and payload have independent lifetimes: a
// dead header re-enters circulation as the descriptor of a completely
// different chunk.
//
// Growing the pool allocates ordinary Go memory; if even that fails the
// runtime aborts the process. The allocator cannot track chunks it
// cannot describe.
//
// Not safe for concurrent use; callers hold their manager's expand lock.
type HeaderPool struct {
	slabs    [][]Chunk
	slabUsed int // headers handed out of the newest slab

	// dead headers ready for reuse, chained through next
	freelist *Chunk

	handedOut int
	returned  int
}

// NewHeaderPool returns an empty pool.
func NewHeaderPool() *HeaderPool {
	return &HeaderPool{}
}

// Get returns a blank header in StateDead, ready for initialize.
func (p *HeaderPool) Get() *Chunk {
	p.handedOut++
	if c := p.freelist; c != nil {
		p.freelist = c.next
		c.next = nil
		return c
	}
	if len(p.slabs) == 0 || p.slabUsed == headerSlabSize {
		p.slabs = append(p.slabs, make([]Chunk, headerSlabSize))
		p.slabUsed = 0
	}
	slab := p.slabs[len(p.slabs)-1]
	c := &slab[p.slabUsed]
	p.slabUsed++
	c.state = StateDead
	return c
}

// Return recycles a header whose chunk was merged away.
func (p *HeaderPool) Return(c *Chunk) {
	c.reset()
	c.next = p.freelist
	p.freelist = c
	p.returned++
}

// OutstandingHeaders returns how many headers are currently live.
func (p *HeaderPool) OutstandingHeaders() int {
	return p.handedOut - p.returned
}
