package metaspace

import (
	"errors"

	"github.com/vmkit/metaspace/arena"
	"github.com/vmkit/metaspace/chunklevel"
	"github.com/vmkit/metaspace/commitlimit"
	"github.com/vmkit/metaspace/vmem"
)

// Failure sentinels from the inner packages, re-exported so callers
// can match with errors.Is without importing allocator internals.
var (
	// ErrCommitLimit reports an allocation denied by the commit budget.
	ErrCommitLimit = commitlimit.ErrLimitReached

	// ErrReservationExhausted reports a bounded region list that ran
	// out of address space.
	ErrReservationExhausted = vmem.ErrReservationExhausted

	// ErrTooLarge reports a request exceeding the largest chunk size.
	ErrTooLarge = chunklevel.ErrTooLarge

	// ErrInvalidSize reports a zero or negative request.
	ErrInvalidSize = arena.ErrInvalidSize

	// ErrBadSettings reports a Settings combination New refuses.
	ErrBadSettings = errors.New("metaspace: invalid settings")
)
