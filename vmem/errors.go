package vmem

import "errors"

// ErrReservationExhausted indicates that a region list cannot provide
// another root chunk: its nodes are fully carved up and the list is not
// allowed to reserve a new one. Like a commit-limit hit, this is an
// ordinary outcome the caller recovers from.
var ErrReservationExhausted = errors.New("vmem: address space reservation exhausted")
