package heap

import (
	"fmt"

	"github.com/chazu/quark/value"
)

// zapWord fills released spaces when debug checks are on so stale reads show
// up as obviously bogus values.
const zapWord = 0xDEADBEEFDEADBEEF

// Space is a bump-allocated arena of heap words at a fixed virtual base
// address. A Space never hands out memory twice and is never reused after
// Release; the collector always copies into a fresh one.
type Space struct {
	base   value.Address
	words  []uint64
	cursor uint64 // bytes in use
}

// NewSpace creates an empty space of capacity bytes (rounded up to whole
// words) starting at base.
func NewSpace(base value.Address, capacity uint64) *Space {
	if !value.IsAligned(uint64(base)) || base == 0 {
		panic(fmt.Sprintf("heap: invalid space base %#x", uint64(base)))
	}
	capacity = value.Align(capacity)
	return &Space{
		base:  base,
		words: make([]uint64, capacity/value.PointerSize),
	}
}

// Allocate reserves size bytes, rounded up to pointer alignment. On
// exhaustion it returns false and leaves the space untouched, so repeating
// the same request fails the same way.
func (s *Space) Allocate(size uint64) (value.Address, bool) {
	size = value.Align(size)
	if size == 0 || size > s.Capacity()-s.cursor {
		return 0, false
	}
	addr := s.base + value.Address(s.cursor)
	s.cursor += size
	return addr, true
}

// Contains reports whether addr falls inside [base, base+capacity).
func (s *Space) Contains(addr value.Address) bool {
	return addr >= s.base && uint64(addr-s.base) < s.Capacity()
}

// Base returns the first address of the space.
func (s *Space) Base() value.Address { return s.base }

// Top returns the address of the next allocation.
func (s *Space) Top() value.Address { return s.base + value.Address(s.cursor) }

// Used returns the number of allocated bytes.
func (s *Space) Used() uint64 { return s.cursor }

// Capacity returns the size of the space in bytes.
func (s *Space) Capacity() uint64 { return uint64(len(s.words)) * value.PointerSize }

// Available returns the number of bytes left.
func (s *Space) Available() uint64 { return s.Capacity() - s.cursor }

// Released reports whether Release has been called.
func (s *Space) Released() bool { return s.words == nil }

// Release drops the backing storage. Addresses inside the space stay
// reserved so pointers into it are recognisably dangling.
func (s *Space) Release() {
	if value.DebugChecks {
		s.zap()
	}
	s.words = nil
	s.cursor = 0
}

func (s *Space) zap() {
	for i := range s.words {
		s.words[i] = zapWord
	}
}

// grow extends the capacity in place. Only valid on a space no one has
// pointers into beyond its current top, which holds for a fresh to-space.
func (s *Space) grow(capacity uint64) {
	capacity = value.Align(capacity)
	if capacity <= s.Capacity() {
		return
	}
	words := make([]uint64, capacity/value.PointerSize)
	copy(words, s.words)
	s.words = words
}

func (s *Space) index(addr value.Address) uint64 {
	return uint64(addr-s.base) / value.PointerSize
}

// slot returns the storage cell for word i of the object at addr.
func (s *Space) slot(addr value.Address, i uint64) *uint64 {
	return &s.words[s.index(addr)+i]
}

// span returns the n words starting at addr.
func (s *Space) span(addr value.Address, n uint64) []uint64 {
	start := s.index(addr)
	return s.words[start : start+n]
}
