package heap

import (
	"sort"

	"github.com/chazu/quark/value"
)

// CensusEntry counts the objects of one instance type.
type CensusEntry struct {
	Type    string `msgpack:"type"`
	Objects int    `msgpack:"objects"`
	Bytes   uint64 `msgpack:"bytes"`
}

// Census summarises the contents of the active space.
type Census struct {
	Capacity uint64        `msgpack:"capacity"`
	Used     uint64        `msgpack:"used"`
	Entries  []CensusEntry `msgpack:"entries"`
}

// Walk calls fn for every object in the active space, in allocation order.
// Garbage not yet collected is included.
func (m *Memory) Walk(fn func(obj value.Value, size uint64)) {
	s := m.space
	for addr := s.Base(); addr < s.Top(); {
		words, _ := m.layout(addr)
		size := words * value.PointerSize
		fn(value.FromAddress(addr), size)
		addr += value.Address(size)
	}
}

// TakeCensus counts objects per instance type, largest total first.
func (h *Heap) TakeCensus() Census {
	byType := map[InstanceType]*CensusEntry{}
	h.mem.Walk(func(obj value.Value, size uint64) {
		t := h.InstanceTypeOf(obj)
		e, ok := byType[t]
		if !ok {
			e = &CensusEntry{Type: t.String()}
			byType[t] = e
		}
		e.Objects++
		e.Bytes += size
	})

	c := Census{Capacity: h.mem.space.Capacity(), Used: h.mem.space.Used()}
	for _, e := range byType {
		c.Entries = append(c.Entries, *e)
	}
	sort.Slice(c.Entries, func(i, j int) bool {
		if c.Entries[i].Bytes != c.Entries[j].Bytes {
			return c.Entries[i].Bytes > c.Entries[j].Bytes
		}
		return c.Entries[i].Type < c.Entries[j].Type
	})
	return c
}
