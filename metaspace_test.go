package metaspace

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vmkit/metaspace/arena"
	"github.com/vmkit/metaspace/chunklevel"
)

const granule = 64 * 1024 / chunklevel.BytesPerWord // default commit granule

func Test_Context_BadSettingsRejected(t *testing.T) {
	_, err := New(Settings{CommitGranuleWords: 100}, nil)
	require.ErrorIs(t, err, ErrBadSettings)

	_, err = New(Settings{NodeWords: chunklevel.RootChunkWords + 1}, nil)
	require.ErrorIs(t, err, ErrBadSettings)
}

// Test_Context_BootArenaLifecycle drives one large owner through the
// typical sequence: a tiny allocation, a huge one served from the same
// root chunk, and a third that forces a second chunk.
func Test_Context_BootArenaLifecycle(t *testing.T) {
	ms, err := New(SettingsDefault(), nil)
	require.NoError(t, err)

	a := ms.NewArena(KindBoot)
	_, err = a.Allocate(1)
	require.NoError(t, err)
	_, err = a.Allocate(500000)
	require.NoError(t, err)
	require.Equal(t, 1, a.NumChunks(), "both fit the first root chunk")

	_, err = a.Allocate(250000)
	require.NoError(t, err)
	require.Equal(t, 2, a.NumChunks())

	// 1 rounds up to the minimum block size of 2.
	require.EqualValues(t, 750002, a.UsedWords())
	require.Equal(t, a.UsedWords(), ms.UsedWords())

	a.Destroy()
	require.EqualValues(t, 0, ms.UsedWords())
}

// Test_Context_CommitLimitAndRecovery exercises the budget path: an
// allocation denied by the commit cap succeeds after another owner
// releases memory.
func Test_Context_CommitLimitAndRecovery(t *testing.T) {
	ms, err := New(SettingsBounded(3*granule), nil)
	require.NoError(t, err)

	a1 := ms.NewArena(KindStandard)
	a2 := ms.NewArena(KindStandard)

	_, err = a1.Allocate(granule)
	require.NoError(t, err)
	_, err = a2.Allocate(2 * granule)
	require.NoError(t, err)
	require.EqualValues(t, 3*granule, ms.CommittedWords(), "budget exhausted")

	// No headroom left: the request fails softly.
	_, err = a1.Allocate(granule)
	require.ErrorIs(t, err, ErrCommitLimit)

	// Destroying the other owner frees budget; the bounded preset
	// uncommits returned chunks, so the same request now succeeds.
	a2.Destroy()
	require.EqualValues(t, granule, ms.CommittedWords())
	_, err = a1.Allocate(granule)
	require.NoError(t, err)

	a1.Destroy()
}

// Test_Context_ReclaimReturnsMemory spins up many owners, destroys
// them all and checks that the maintenance sweep hands everything back
// to the OS: zero committed, zero reserved.
func Test_Context_ReclaimReturnsMemory(t *testing.T) {
	ms, err := New(SettingsDefault(), nil)
	require.NoError(t, err)

	var owners []*arena.Arena
	for i := 0; i < 32; i++ {
		a := ms.NewArena(KindStandard)
		for j := 0; j < 10; j++ {
			_, err := a.Allocate(300 + 37*j)
			require.NoError(t, err)
		}
		owners = append(owners, a)
	}
	require.Greater(t, ms.CommittedWords(), int64(0))

	for _, a := range owners {
		a.Destroy()
	}
	require.EqualValues(t, 0, ms.UsedWords())

	purged := ms.Reclaim()
	require.Greater(t, purged, 0, "the empty node gets unmapped")
	require.EqualValues(t, 0, ms.CommittedWords())
	require.EqualValues(t, 0, ms.ReservedWords(), "empty nodes unmapped")

	// The context stays usable after a full sweep.
	a := ms.NewArena(KindStandard)
	_, err = a.Allocate(64)
	require.NoError(t, err)
	a.Destroy()
}

func Test_Context_ClassCategoryRouting(t *testing.T) {
	ms, err := New(Settings{ClassSpaceWords: chunklevel.RootChunkWords}, nil)
	require.NoError(t, err)

	p := ms.NewArenaPair()
	_, err = p.Allocate(100, false)
	require.NoError(t, err)
	_, err = p.Allocate(50, true)
	require.NoError(t, err)

	st := ms.Statistics()
	require.Len(t, st.Categories, 2)
	var class CategoryStats
	for _, cat := range st.Categories {
		if cat.Name == "class" {
			class = cat
		}
	}
	require.Greater(t, class.InUseWords, int64(0), "class allocation landed in the class category")
	require.EqualValues(t, 150, p.UsedWords())

	p.Destroy()
	require.EqualValues(t, 0, ms.UsedWords())
}

func Test_Context_ClassSpaceIsBounded(t *testing.T) {
	ms, err := New(Settings{ClassSpaceWords: chunklevel.RootChunkWords}, nil)
	require.NoError(t, err)

	// The class reservation is a single root chunk; a second root's
	// worth cannot be carved.
	a := ms.NewArena(KindClass)
	_, err = a.Allocate(chunklevel.RootChunkWords)
	require.NoError(t, err)
	b := ms.NewArena(KindClass)
	_, err = b.Allocate(chunklevel.RootChunkWords)
	require.ErrorIs(t, err, ErrReservationExhausted)

	// The normal category is unaffected.
	n := ms.NewArena(KindStandard)
	_, err = n.Allocate(chunklevel.RootChunkWords)
	require.NoError(t, err)
}

func Test_Context_ConcurrentArenas(t *testing.T) {
	ms, err := New(SettingsDefault(), nil)
	require.NoError(t, err)

	const workers = 8
	const perWorker = 200

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			a := ms.NewArena(KindStandard)
			defer a.Destroy()
			for i := 0; i < perWorker; i++ {
				size := 2 + (seed*31+i*17)%900
				addr, err := a.Allocate(size)
				if err != nil {
					errs <- err
					return
				}
				if i%5 == 0 {
					a.Deallocate(addr, size)
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("worker allocation failed: %v", err)
	}

	// Every arena was destroyed; nothing may linger.
	require.EqualValues(t, 0, ms.UsedWords())
	require.EqualValues(t, 0, ms.Statistics().Categories[0].InUseWords)
}

// Test_Context_ConcurrentCategories drives the standard and class
// categories from separate goroutines, with arena churn so both
// managers split, merge and carve roots at the same time. The two
// expand locks are independent; each category's header pool and region
// list must be private to its manager for this to be race-free.
func Test_Context_ConcurrentCategories(t *testing.T) {
	ms, err := New(Settings{ClassSpaceWords: 4 * chunklevel.RootChunkWords}, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	bad := make(chan error, 8)
	for w := 0; w < 4; w++ {
		for _, kind := range []Kind{KindStandard, KindClass} {
			wg.Add(1)
			go func(seed int, kind Kind) {
				defer wg.Done()
				for round := 0; round < 5; round++ {
					a := ms.NewArena(kind)
					for i := 0; i < 50; i++ {
						if _, err := a.Allocate(16 + (seed*29+i*11)%512); err != nil {
							bad <- err
							a.Destroy()
							return
						}
					}
					a.Destroy()
				}
			}(w, kind)
		}
		// Stats snapshots race against both categories unless they go
		// through the managers' locks.
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_ = ms.Statistics().String()
				_ = ms.ReservedWords()
			}
		}()
	}
	wg.Wait()
	close(bad)
	for err := range bad {
		t.Fatalf("allocation failed: %v", err)
	}
	require.EqualValues(t, 0, ms.UsedWords())

	st := ms.Statistics()
	for _, cat := range st.Categories {
		if cat.InUseWords != 0 {
			t.Fatalf("category %s still has %d words out", cat.Name, cat.InUseWords)
		}
	}
}

// Test_Context_CommitBoundUnderConcurrency hammers a small budget from
// many arenas at once: allocations may fail, but the committed total
// must never exceed the cap and failures must carry the right sentinel.
func Test_Context_CommitBoundUnderConcurrency(t *testing.T) {
	const capWords = 8 * granule
	ms, err := New(SettingsBounded(capWords), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	bad := make(chan error, 16)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			a := ms.NewArena(KindStandard)
			defer a.Destroy()
			for i := 0; i < 100; i++ {
				_, err := a.Allocate(64 + (seed*13+i*7)%1024)
				if err != nil && !errors.Is(err, ErrCommitLimit) {
					bad <- err
					return
				}
				if ms.CommittedWords() > capWords {
					bad <- fmt.Errorf("committed %d over cap %d", ms.CommittedWords(), capWords)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(bad)
	for err := range bad {
		t.Fatalf("commit bound violated: %v", err)
	}
	require.LessOrEqual(t, ms.CommittedWords(), int64(capWords))
	require.EqualValues(t, 0, ms.UsedWords())
}

func Test_Statistics_Render(t *testing.T) {
	ms, err := New(SettingsBounded(1024*1024), nil)
	require.NoError(t, err)
	a := ms.NewArena(KindStandard)
	_, err = a.Allocate(5000)
	require.NoError(t, err)

	out := ms.Statistics().String()
	require.True(t, strings.HasPrefix(out, "metaspace: used "))
	require.Contains(t, out, "nonclass:")
	require.NotContains(t, out, "unlimited", "bounded preset renders its cap")

	unbounded, err := New(SettingsDefault(), nil)
	require.NoError(t, err)
	require.Contains(t, unbounded.Statistics().String(), "cap unlimited")
}
