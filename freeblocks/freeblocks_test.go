package freeblocks

import (
	"math/rand"
	"testing"
)

func Test_FreeBlocks_ExactSizeFastPath(t *testing.T) {
	f := New()

	// Deallocate a 50-word block, then request exactly 50 words: the
	// very same address comes back.
	f.AddBlock(0x1000, 50)
	addr, words, ok := f.RemoveBlock(50)
	if !ok {
		t.Fatal("RemoveBlock found nothing")
	}
	if addr != 0x1000 || words != 50 {
		t.Fatalf("got (%#x, %d), want (0x1000, 50)", addr, words)
	}
	if !f.IsEmpty() {
		t.Fatal("reclaimer should be empty")
	}
}

func Test_FreeBlocks_BinBandRouting(t *testing.T) {
	f := New()

	// Within the band: exact bucket first, then next larger.
	f.AddBlock(0x100, 4)
	f.AddBlock(0x200, 8)

	addr, words, ok := f.RemoveBlock(3)
	if !ok || addr != 0x100 || words != 4 {
		t.Fatalf("want the 4-word bin block, got (%#x, %d, %v)", addr, words, ok)
	}
	// 5 words: bucket 5..8 scan lands on the 8-word block.
	addr, words, ok = f.RemoveBlock(5)
	if !ok || addr != 0x200 || words != 8 {
		t.Fatalf("want the 8-word bin block, got (%#x, %d, %v)", addr, words, ok)
	}

	// A bin-band request may be satisfied from the tree if the bins
	// are empty.
	f.AddBlock(0x300, 100)
	addr, words, ok = f.RemoveBlock(10)
	if !ok || addr != 0x300 || words != 100 {
		t.Fatalf("bin miss should fall through to the tree, got (%#x, %d, %v)", addr, words, ok)
	}
}

func Test_FreeBlocks_ClosestFit(t *testing.T) {
	f := New()
	f.AddBlock(0x100, 100)
	f.AddBlock(0x200, 300)
	f.AddBlock(0x300, 200)
	f.AddBlock(0x400, 500)

	// 150 words: the closest fit is 200, not the root or the largest.
	addr, words, ok := f.RemoveBlock(150)
	if !ok || words != 200 || addr != 0x300 {
		t.Fatalf("closest fit: got (%#x, %d, %v), want (0x300, 200)", addr, words, ok)
	}

	// 150 again: now 300 is the closest remaining.
	_, words, ok = f.RemoveBlock(150)
	if !ok || words != 300 {
		t.Fatalf("second closest fit = %d, want 300", words)
	}

	// Nothing above 500 is left.
	if _, _, ok := f.RemoveBlock(501); ok {
		t.Fatal("found a block larger than anything donated")
	}
}

func Test_FreeBlocks_SameSizeChains(t *testing.T) {
	f := New()
	f.AddBlock(0x100, 64)
	f.AddBlock(0x200, 64)
	f.AddBlock(0x300, 64)

	seen := map[uintptr]bool{}
	for i := 0; i < 3; i++ {
		addr, words, ok := f.RemoveBlock(64)
		if !ok || words != 64 {
			t.Fatalf("chained removal %d failed: (%#x, %d, %v)", i, addr, words, ok)
		}
		if seen[addr] {
			t.Fatalf("address %#x served twice", addr)
		}
		seen[addr] = true
	}
	if !f.IsEmpty() {
		t.Fatal("chain not drained")
	}
}

func Test_FreeBlocks_TwoChildDeletion(t *testing.T) {
	f := New()
	// Build a tree where the removed node has two children and the
	// successor is deeper down: 400 root, 200/600 children, 500/700
	// under 600, 450 under 500.
	for _, b := range []struct {
		addr  uintptr
		words int
	}{
		{0x1, 400}, {0x2, 200}, {0x3, 600}, {0x4, 500}, {0x5, 700}, {0x6, 450},
	} {
		f.AddBlock(b.addr, b.words)
	}

	// Remove the root-keyed block (exactly 400). Its successor (450)
	// back-fills the position; everything stays reachable.
	addr, words, ok := f.RemoveBlock(400)
	if !ok || words != 400 || addr != 0x1 {
		t.Fatalf("got (%#x, %d, %v)", addr, words, ok)
	}
	for _, want := range []int{200, 450, 500, 600, 700} {
		_, words, ok := f.RemoveBlock(want)
		if !ok || words != want {
			t.Fatalf("lost block of %d words after deletion (got %d, %v)", want, words, ok)
		}
	}
	if !f.IsEmpty() {
		t.Fatalf("%d blocks unaccounted for", f.NumBlocks())
	}
}

func Test_FreeBlocks_NoDoubleServe(t *testing.T) {
	f := New()
	rng := rand.New(rand.NewSource(1))

	// Donate a few hundred random blocks at distinct addresses, then
	// drain with random requests; no address may come back twice and
	// every served block must be at least the requested size.
	next := uintptr(0x10000)
	donated := 0
	for i := 0; i < 400; i++ {
		words := MinWordSize + rng.Intn(600)
		f.AddBlock(next, words)
		next += uintptr(words * 8)
		donated += words
	}
	if f.TotalWords() != donated {
		t.Fatalf("total = %d, want %d", f.TotalWords(), donated)
	}

	served := map[uintptr]bool{}
	for !f.IsEmpty() {
		want := MinWordSize + rng.Intn(400)
		addr, words, ok := f.RemoveBlock(want)
		if !ok {
			// Nothing big enough left; drain the rest with tiny asks.
			addr, words, ok = f.RemoveBlock(MinWordSize)
			if !ok {
				t.Fatal("non-empty reclaimer served nothing for the minimum size")
			}
			want = MinWordSize
		}
		if words < want {
			t.Fatalf("served %d words for a %d-word request", words, want)
		}
		if served[addr] {
			t.Fatalf("address %#x served twice", addr)
		}
		served[addr] = true
	}
	if f.TotalWords() != 0 {
		t.Fatalf("total = %d after drain", f.TotalWords())
	}
}
