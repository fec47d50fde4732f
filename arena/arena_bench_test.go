package arena

import (
	"testing"
)

// BenchmarkArena_Allocate measures the bump fast path. Each iteration
// rolls its allocation back so the arena stays in steady state and the
// loop never pays for chunk growth.
func BenchmarkArena_Allocate(b *testing.B) {
	a, _ := newTestArena(b, KindStandard, nil, Config{})
	if _, err := a.Allocate(64); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		words := 2 + i%62
		addr, err := a.Allocate(words)
		if err != nil {
			b.Fatal(err)
		}
		a.Deallocate(addr, words)
	}
}

// BenchmarkArena_AllocateFromReclaimer measures the free-block hit
// path: one donated block cycles between the reclaimer and the caller.
func BenchmarkArena_AllocateFromReclaimer(b *testing.B) {
	a, _ := newTestArena(b, KindStandard, nil, Config{})
	donated, err := a.Allocate(512)
	if err != nil {
		b.Fatal(err)
	}
	// A later allocation keeps the donated block off the top of the
	// bump pointer, so deallocating it donates instead of rolling back.
	if _, err := a.Allocate(64); err != nil {
		b.Fatal(err)
	}
	a.Deallocate(donated, 512)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		addr, err := a.Allocate(512)
		if err != nil {
			b.Fatal(err)
		}
		a.Deallocate(addr, 512)
	}
}
