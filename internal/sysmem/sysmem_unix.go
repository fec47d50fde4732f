//go:build unix

package sysmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Reserve maps size bytes of anonymous address space with no access
// permissions. Nothing is committed; touching the range faults until a
// sub-range is passed to Commit.
func Reserve(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("sysmem: invalid reservation size %d", size)
	}
	b, err := unix.Mmap(-1, 0, size, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("sysmem: reserve %d bytes: %w", size, err)
	}
	return b, nil
}

// Commit makes the given sub-range of a reservation readable and
// writable. The range must be page-aligned; the allocator only ever
// commits whole granules, which are multiples of the page size.
func Commit(b []byte) error {
	if err := unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("sysmem: commit %d bytes: %w", len(b), err)
	}
	return nil
}

// Uncommit returns the physical pages behind a committed sub-range to
// the OS and revokes access. The address range stays reserved.
func Uncommit(b []byte) error {
	// Drop the pages first; a failing madvise is not fatal as long as
	// access is revoked, but report it so callers can log.
	advErr := unix.Madvise(b, unix.MADV_DONTNEED)
	if err := unix.Mprotect(b, unix.PROT_NONE); err != nil {
		return fmt.Errorf("sysmem: uncommit %d bytes: %w", len(b), err)
	}
	if advErr != nil {
		return fmt.Errorf("sysmem: madvise on uncommit: %w", advErr)
	}
	return nil
}

// Release unmaps an entire reservation obtained from Reserve.
func Release(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := unix.Munmap(b); err != nil {
		return fmt.Errorf("sysmem: release: %w", err)
	}
	return nil
}
