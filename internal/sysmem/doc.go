//go:build unix

// Package sysmem wraps the platform's reserve/commit/uncommit primitives.
//
// A reservation is a large range of address space obtained once and paid
// for lazily: granules inside it are committed on demand and may be
// uncommitted again when the chunks above them go free. Callers are
// responsible for keeping commit ranges page-aligned; the allocator's
// commit granule is always a multiple of the page size.
package sysmem
