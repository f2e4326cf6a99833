package heap

import (
	"time"

	"github.com/chazu/quark/value"
)

// CollectGarbage runs a full copying collection: every object reachable from
// the registered root sources is copied into a fresh space, all references
// are rewritten, and the old space is released. It cannot fail; running out
// of room in the destination is fatal, as is collecting while a GCGuard is
// held.
func (m *Memory) CollectGarbage() GCStats {
	return m.collect(0)
}

// CollectGarbageFor collects and makes sure the new space can satisfy a
// pending request of size bytes if the growth limit allows it.
func (m *Memory) CollectGarbageFor(size uint64) GCStats {
	return m.collect(value.Align(size))
}

func (m *Memory) collect(request uint64) GCStats {
	if !m.allowGC {
		Fatalf(FatalGCDisallowed, "garbage collection while disallowed")
	}
	start := time.Now()

	from := m.space
	to := m.newSpace(from.Capacity())
	m.from, m.space = from, to

	c := &copier{
		mem:          m,
		from:         from,
		to:           to,
		fromUsed:     from.Used(),
		fromCapacity: from.Capacity(),
	}
	for _, e := range m.sources {
		e.src.VisitRoots(c.migrate)
	}
	c.scan()

	m.from = nil
	from.Release()
	m.grow(to, request)

	m.stats.Collections++
	stats := GCStats{
		Sequence:       m.stats.Collections,
		BytesBefore:    c.fromUsed,
		BytesAfter:     to.Used(),
		ObjectsCopied:  c.copied,
		CapacityBefore: c.fromCapacity,
		CapacityAfter:  to.Capacity(),
		Duration:       time.Since(start),
		Timestamp:      start,
	}
	m.stats.Last = stats

	m.notifyMonitors()
	for _, fn := range m.observers {
		fn(stats)
	}
	log.Infof("collected garbage: %d -> %d bytes, %d objects copied in %s",
		stats.BytesBefore, stats.BytesAfter, stats.ObjectsCopied, stats.Duration)
	return stats
}

// grow enlarges a freshly filled space when live data plus the pending
// request would leave it above the growth threshold, so the next
// allocations do not immediately exhaust it again.
func (m *Memory) grow(s *Space, request uint64) {
	need := float64(s.Used() + request)
	capacity := s.Capacity()
	for capacity < m.config.MaxSpace && need > m.config.GrowthThreshold*float64(capacity) {
		next := value.Align(uint64(float64(capacity) * m.config.GrowthFactor))
		if next <= capacity {
			next = capacity + value.PointerSize
		}
		capacity = next
	}
	if capacity > m.config.MaxSpace {
		capacity = m.config.MaxSpace
	}
	if capacity > s.Capacity() {
		log.Noticef("growing space from %d to %d bytes", s.Capacity(), capacity)
		s.grow(capacity)
	}
}

// copier evacuates objects from one space to another. Objects are copied
// shallowly when first reached; the scan pointer then walks the destination
// and migrates the fields of everything copied so far, so the destination
// itself serves as the work queue.
type copier struct {
	mem          *Memory
	from, to     *Space
	copied       uint64
	fromUsed     uint64
	fromCapacity uint64
}

func (c *copier) migrate(slot *value.Value) {
	v := *slot
	if v == 0 || !v.IsHeapObject() {
		return
	}
	addr := v.Address()
	if !c.from.Contains(addr) {
		if c.to.Contains(addr) {
			return
		}
		Fatalf(FatalDanglingPointer, "root %v points outside the collected space", v)
	}

	header := value.Value(*c.from.slot(addr, HeaderField))
	if header.IsForwardPointer() {
		*slot = value.FromAddress(header.ForwardTarget())
		return
	}

	words, _ := c.mem.layout(addr)
	dst, ok := c.to.Allocate(words * value.PointerSize)
	if !ok {
		Fatalf(FatalOutOfMemory, "destination space exhausted copying %d bytes", words*value.PointerSize)
	}
	copy(c.to.span(dst, words), c.from.span(addr, words))
	*c.from.slot(addr, HeaderField) = uint64(value.NewForwardPointer(dst))
	c.copied++
	*slot = value.FromAddress(dst)
}

// scan migrates the pointer fields of every object in the destination until
// the scan pointer catches up with the allocation top.
func (c *copier) scan() {
	for addr := c.to.Base(); addr < c.to.Top(); {
		words, pointers := c.mem.layout(addr)
		for i := uint64(0); i < pointers; i++ {
			c.migrate((*value.Value)(c.to.slot(addr, i)))
		}
		addr += value.Address(words * value.PointerSize)
	}
}
