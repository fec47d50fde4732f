package arena

import "unsafe"

// poisonPattern marks words that left the live set: freed blocks on
// their way into the reclaimer and salvaged chunk tails. A stale
// pointer into poisoned memory reads back as an implausible address,
// which turns silent corruption into a loud test failure.
const poisonPattern = uintptr(0xf5eeb10cf5eeb10c)

func poisonWords(addr uintptr, words int) {
	p := unsafe.Slice((*uintptr)(unsafe.Pointer(addr)), words)
	for i := range p {
		p[i] = poisonPattern
	}
}
