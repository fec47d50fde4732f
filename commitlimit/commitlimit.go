// Package commitlimit provides the global gate on virtual-memory commit.
//
// Every commit step in the allocator, regardless of which region or arena
// triggered it, reserves its word count here first. The limiter is a
// single atomic counter with a ceiling, so it is safe to call from inside
// or outside any of the allocator's locks.
package commitlimit

import (
	"errors"
	"math"
	"sync/atomic"
)

// Unlimited disables the cap.
const Unlimited = int64(math.MaxInt64)

// ErrLimitReached is returned (usually wrapped) when an allocation fails
// because the commit limit would be exceeded. It is an ordinary, expected
// outcome, never a panic.
var ErrLimitReached = errors.New("commitlimit: commit limit reached")

// Limiter tracks committed words against a cap.
//
// The invariant committed <= cap holds at every observation point; a
// failed TryReserve leaves the counter untouched.
type Limiter struct {
	committed atomic.Int64
	cap       int64
}

// New returns a limiter with the given cap in words. A capWords of
// Unlimited (or anything <= 0) disables the ceiling.
func New(capWords int64) *Limiter {
	if capWords <= 0 {
		capWords = Unlimited
	}
	return &Limiter{cap: capWords}
}

// PossibleExpansionWords returns how many more words may be committed
// right now. With no cap the result is effectively unbounded.
func (l *Limiter) PossibleExpansionWords() int64 {
	if l.cap == Unlimited {
		return Unlimited
	}
	left := l.cap - l.committed.Load()
	if left < 0 {
		return 0
	}
	return left
}

// TryReserve atomically accounts words of commit if that keeps the total
// under the cap. Returns false, with no state change, otherwise.
func (l *Limiter) TryReserve(words int64) bool {
	if words < 0 {
		panic("commitlimit: negative reservation")
	}
	for {
		cur := l.committed.Load()
		next := cur + words
		if l.cap != Unlimited && next > l.cap {
			return false
		}
		if l.committed.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// Release returns words to the budget. Called on uncommit.
func (l *Limiter) Release(words int64) {
	if words < 0 {
		panic("commitlimit: negative release")
	}
	if l.committed.Add(-words) < 0 {
		panic("commitlimit: released more than was reserved")
	}
}

// CommittedWords returns the current committed total.
func (l *Limiter) CommittedWords() int64 {
	return l.committed.Load()
}

// CapWords returns the configured ceiling (Unlimited if none).
func (l *Limiter) CapWords() int64 {
	return l.cap
}
