//go:build !unix

// Package sysmem wraps the platform's reserve/commit/uncommit primitives.
//
// On unix hosts reservations are PROT_NONE anonymous mappings and commit
// is an mprotect; elsewhere this fallback backs reservations with plain
// heap memory, where every byte is committed from the start and the
// commit and uncommit calls only serve the allocator's accounting.
package sysmem

import "fmt"

// Reserve allocates size bytes of ordinary heap memory.
func Reserve(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("sysmem: invalid reservation size %d", size)
	}
	return make([]byte, size), nil
}

// Commit is a no-op; heap-backed reservations are always accessible.
func Commit(b []byte) error { return nil }

// Uncommit is a no-op for heap-backed reservations.
func Uncommit(b []byte) error { return nil }

// Release drops the reference; the Go heap reclaims the memory.
func Release(b []byte) error { return nil }
