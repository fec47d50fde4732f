// Package metaspace is an arena allocator for runtime metadata:
// allocations that arrive in bursts, are almost never freed
// individually, and die together when their owner is unloaded.
//
// Memory is reserved in large regions and committed lazily in
// granules against a global commit budget. Regions are carved into
// chunks managed buddy-style across thirteen power-of-two levels, from
// 4 MiB root chunks down to 1 KiB. Each owner gets an Arena that bump-
// allocates from its current chunk and grows by fetching progressively
// larger chunks from a shared freelist manager; destroying the arena
// returns every chunk, merged back toward root size, for reuse by
// other owners.
//
// The entry point is Context:
//
//	ms, err := metaspace.New(metaspace.SettingsDefault(), nil)
//	a := ms.NewArena(metaspace.KindStandard)
//	addr, err := a.Allocate(128)
//	...
//	a.Destroy()
//
// All sizes are in machine words. Allocation failure (commit budget,
// reservation exhausted) is reported as a wrapped sentinel error and
// leaves the arena usable, so callers can trigger cleanup and retry.
package metaspace
