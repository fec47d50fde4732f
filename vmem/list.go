package vmem

import (
	"fmt"

	"github.com/vmkit/metaspace/chunklevel"
	"github.com/vmkit/metaspace/chunks"
	"github.com/vmkit/metaspace/commitlimit"
)

// DefaultNodeWords is the reservation size of a growable list's nodes:
// a small multiple of the root chunk size.
const DefaultNodeWords = 4 * chunklevel.RootChunkWords

// List owns an ordered collection of reserved nodes, created lazily. A
// growable list appends nodes indefinitely; a bounded list is fixed at
// its single initial reservation and reports ErrReservationExhausted
// once that is carved up.
type List struct {
	name         string
	growable     bool
	nodeWords    int
	granuleWords int

	limiter *commitlimit.Limiter
	pool    *chunks.HeaderPool

	first    *Node
	numNodes int

	reservedWords int
}

// NewGrowableList returns a list that reserves nodeWords-sized nodes on
// demand. The first reservation happens on the first root-chunk request.
func NewGrowableList(name string, nodeWords, granuleWords int, limiter *commitlimit.Limiter, pool *chunks.HeaderPool) *List {
	if nodeWords <= 0 {
		nodeWords = DefaultNodeWords
	}
	return &List{
		name:         name,
		growable:     true,
		nodeWords:    nodeWords,
		granuleWords: granuleWords,
		limiter:      limiter,
		pool:         pool,
	}
}

// NewBoundedList returns a list fixed at one node of totalWords,
// reserved eagerly so the size cap is known to hold from the start.
func NewBoundedList(name string, totalWords, granuleWords int, limiter *commitlimit.Limiter, pool *chunks.HeaderPool) (*List, error) {
	l := &List{
		name:         name,
		growable:     false,
		nodeWords:    totalWords,
		granuleWords: granuleWords,
		limiter:      limiter,
		pool:         pool,
	}
	if err := l.appendNode(); err != nil {
		return nil, fmt.Errorf("vmem: reserving bounded list %q: %w", name, err)
	}
	return l, nil
}

// Name returns the list's category name, for logs and stats.
func (l *List) Name() string { return l.name }

// IsGrowable reports whether the list may reserve further nodes.
func (l *List) IsGrowable() bool { return l.growable }

// NumNodes returns the number of live reservations.
func (l *List) NumNodes() int { return l.numNodes }

// ReservedWords returns the address space held across all nodes.
func (l *List) ReservedWords() int { return l.reservedWords }

// OutstandingHeaders returns the live header count of the list's pool.
// Callers synchronize like any other list access.
func (l *List) OutstandingHeaders() int { return l.pool.OutstandingHeaders() }

// CommittedWords sums the committed words across all nodes.
func (l *List) CommittedWords() int {
	w := 0
	for n := l.first; n != nil; n = n.next {
		w += n.committedWords
	}
	return w
}

// AllocateRootChunk returns a free, uncommitted root-level chunk carved
// from the current node, reserving a fresh node first if the current
// one is exhausted and the list may grow. Address bookkeeping only.
func (l *List) AllocateRootChunk() (*chunks.Chunk, error) {
	if l.first != nil {
		if c := l.first.AllocateRootChunk(); c != nil {
			return c, nil
		}
	}
	if l.first != nil && !l.growable {
		return nil, ErrReservationExhausted
	}
	if err := l.appendNode(); err != nil {
		return nil, err
	}
	c := l.first.AllocateRootChunk()
	if c == nil {
		// A fresh node always has at least one root span.
		panic("vmem: fresh node exhausted")
	}
	return c, nil
}

func (l *List) appendNode() error {
	n, err := newNode(l.nodeWords, l.granuleWords, l.limiter, l.pool)
	if err != nil {
		return err
	}
	n.next = l.first
	l.first = n
	l.numNodes++
	l.reservedWords += n.wordCapacity
	return nil
}

// Purge unmaps every node whose spans are all fully free, returning
// their committed words to the limiter. detach is called for each root
// chunk about to disappear so the owner can unlink it from its
// freelists first. Bounded lists never shed their reservation.
func (l *List) Purge(detach func(*chunks.Chunk)) int {
	if !l.growable {
		return 0
	}
	purged := 0
	var prev *Node
	n := l.first
	for n != nil {
		next := n.next
		if n.IsFullyFree() {
			for _, a := range n.areas {
				detach(a.First())
			}
			n.release()
			if prev == nil {
				l.first = next
			} else {
				prev.next = next
			}
			l.numNodes--
			l.reservedWords -= n.wordCapacity
			purged++
		} else {
			prev = n
		}
		n = next
	}
	return purged
}
