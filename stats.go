package metaspace

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/vmkit/metaspace/chunklevel"
	"github.com/vmkit/metaspace/chunkmgr"
	"github.com/vmkit/metaspace/commitlimit"
)

// CategoryStats is one category's freelist-manager snapshot.
type CategoryStats struct {
	Name string
	chunkmgr.ManagerStats
}

// Statistics is a point-in-time usage snapshot of the whole Context.
// Counters are read without a global lock, so the totals may be
// momentarily inconsistent with each other under concurrent load.
type Statistics struct {
	UsedWords          int64
	CommittedWords     int64
	ReservedWords      int64
	CommitCapWords     int64 // commitlimit.Unlimited if no cap
	OutstandingHeaders int
	Categories         []CategoryStats
}

// Statistics takes a usage snapshot.
func (c *Context) Statistics() Statistics {
	s := Statistics{
		UsedWords:      c.usedWords.Load(),
		CommittedWords: c.limiter.CommittedWords(),
		CommitCapWords: c.limiter.CapWords(),
	}
	s.Categories = append(s.Categories, CategoryStats{Name: c.nonclass.Name(), ManagerStats: c.nonclass.Statistics()})
	if c.class != nil {
		s.Categories = append(s.Categories, CategoryStats{Name: c.class.Name(), ManagerStats: c.class.Statistics()})
	}
	for _, cat := range s.Categories {
		s.ReservedWords += cat.ReservedWords
		s.OutstandingHeaders += cat.OutstandingHeaders
	}
	return s
}

func wordsIBytes(words int64) string {
	return humanize.IBytes(uint64(words) * chunklevel.BytesPerWord)
}

// String renders the snapshot as a short human-readable report.
func (s Statistics) String() string {
	var b strings.Builder
	cap := "unlimited"
	if s.CommitCapWords != commitlimit.Unlimited {
		cap = wordsIBytes(s.CommitCapWords)
	}
	fmt.Fprintf(&b, "metaspace: used %s, committed %s (cap %s), reserved %s\n",
		wordsIBytes(s.UsedWords), wordsIBytes(s.CommittedWords), cap, wordsIBytes(s.ReservedWords))
	for _, cat := range s.Categories {
		fmt.Fprintf(&b, "  %s: in use %s, free %d chunks / %s (%s committed), %d nodes\n",
			cat.Name, wordsIBytes(cat.InUseWords),
			cat.FreeChunks, wordsIBytes(int64(cat.FreeWords)),
			wordsIBytes(int64(cat.FreeCommittedWords)), cat.Nodes)
	}
	fmt.Fprintf(&b, "  chunk headers outstanding: %d", s.OutstandingHeaders)
	return b.String()
}
