package heap

import (
	"fmt"
	"time"

	"github.com/chazu/quark/value"
)

// Config controls space sizing.
type Config struct {
	// InitialSpace is the capacity in bytes of the first space.
	InitialSpace uint64
	// MaxSpace bounds how far the collector may grow a space.
	MaxSpace uint64
	// GrowthFactor multiplies the capacity each time a space grows.
	GrowthFactor float64
	// GrowthThreshold is the occupancy (live + pending request, as a fraction
	// of capacity) above which the fresh space is grown after a collection.
	GrowthThreshold float64
}

// DefaultConfig returns the sizing used when no configuration is given.
func DefaultConfig() Config {
	return Config{
		InitialSpace:    256 * 1024,
		MaxSpace:        64 * 1024 * 1024,
		GrowthFactor:    2,
		GrowthThreshold: 0.75,
	}
}

// Validate reports sizing that could never work.
func (c Config) Validate() error {
	switch {
	case c.InitialSpace < value.PointerSize:
		return fmt.Errorf("heap: initial space %d too small", c.InitialSpace)
	case c.MaxSpace < c.InitialSpace:
		return fmt.Errorf("heap: max space %d below initial space %d", c.MaxSpace, c.InitialSpace)
	case c.GrowthFactor <= 1:
		return fmt.Errorf("heap: growth factor %v must exceed 1", c.GrowthFactor)
	case c.GrowthThreshold <= 0 || c.GrowthThreshold > 1:
		return fmt.Errorf("heap: growth threshold %v outside (0, 1]", c.GrowthThreshold)
	}
	return nil
}

// RootSource is anything holding references the collector must treat as
// live and rewrite when objects move.
type RootSource interface {
	VisitRoots(visit func(*value.Value))
}

// RootSourceFunc adapts a function to RootSource.
type RootSourceFunc func(visit func(*value.Value))

// VisitRoots calls f.
func (f RootSourceFunc) VisitRoots(visit func(*value.Value)) { f(visit) }

// Stats accumulates allocation and collection counters.
type Stats struct {
	Collections      uint64
	BytesAllocated   uint64
	ObjectsAllocated uint64
	Last             GCStats
}

// GCStats describes a single collection.
type GCStats struct {
	Sequence       uint64
	BytesBefore    uint64
	BytesAfter     uint64
	ObjectsCopied  uint64
	CapacityBefore uint64
	CapacityAfter  uint64
	Duration       time.Duration
	Timestamp      time.Time
}

// Reclaimed returns the number of bytes freed by the collection.
func (s GCStats) Reclaimed() uint64 {
	if s.BytesAfter > s.BytesBefore {
		return 0
	}
	return s.BytesBefore - s.BytesAfter
}

// Memory owns the active space and the collector state. It is not safe for
// concurrent use; each runtime has its own.
type Memory struct {
	config   Config
	space    *Space
	from     *Space // only set while collecting
	nextBase value.Address

	sources   []rootEntry
	nextRoot  int
	observers []func(GCStats)

	allowGC  bool
	monitors *Monitor

	stats Stats
}

const (
	firstSpaceBase = 0x10000
	spaceAlignment = 0x10000
)

// NewMemory creates a Memory with one empty space.
func NewMemory(config Config) (*Memory, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	m := &Memory{
		config:   config,
		nextBase: firstSpaceBase,
		allowGC:  true,
	}
	m.space = m.newSpace(config.InitialSpace)
	return m, nil
}

// newSpace reserves a fresh virtual range big enough for any growth the
// space could see, plus a guard gap, so ranges are never reused.
func (m *Memory) newSpace(capacity uint64) *Space {
	s := NewSpace(m.nextBase, capacity)
	reserve := m.config.MaxSpace
	if capacity > reserve {
		reserve = capacity
	}
	reserve = (reserve + spaceAlignment - 1) &^ (spaceAlignment - 1)
	m.nextBase += value.Address(reserve + spaceAlignment)
	return s
}

// Config returns the sizing in use.
func (m *Memory) Config() Config { return m.config }

// Space returns the active space.
func (m *Memory) Space() *Space { return m.space }

// Stats returns a snapshot of the counters.
func (m *Memory) Stats() Stats { return m.stats }

type rootEntry struct {
	id  int
	src RootSource
}

// AddRootSource registers src; its roots are visited by every collection
// until the returned function is called.
func (m *Memory) AddRootSource(src RootSource) (remove func()) {
	m.nextRoot++
	id := m.nextRoot
	m.sources = append(m.sources, rootEntry{id: id, src: src})
	return func() {
		for i, e := range m.sources {
			if e.id == id {
				m.sources = append(m.sources[:i], m.sources[i+1:]...)
				return
			}
		}
	}
}

// OnCollect registers fn to run after every collection.
func (m *Memory) OnCollect(fn func(GCStats)) {
	m.observers = append(m.observers, fn)
}

// Allocate reserves size bytes in the active space. It never collects.
func (m *Memory) Allocate(size uint64) (value.Address, bool) {
	addr, ok := m.space.Allocate(size)
	if ok {
		m.stats.BytesAllocated += value.Align(size)
		m.stats.ObjectsAllocated++
	}
	return addr, ok
}

// slot resolves word i of the object at addr. During a collection both the
// source and destination spaces are addressable; anything else is fatal.
func (m *Memory) slot(addr value.Address, i uint64) *uint64 {
	target := addr + value.Address(i*value.PointerSize)
	switch {
	case m.space.Contains(target):
		return m.space.slot(addr, i)
	case m.from != nil && m.from.Contains(target):
		return m.from.slot(addr, i)
	}
	Fatalf(FatalDanglingPointer, "address %#x is outside every live space", uint64(target))
	return nil
}

// Load reads word i of the object at addr as a tagged value.
func (m *Memory) Load(addr value.Address, i uint64) value.Value {
	return value.Value(*m.slot(addr, i))
}

// Store writes a tagged value into word i of the object at addr. Signals and
// forward pointers never belong in a heap field.
func (m *Memory) Store(addr value.Address, i uint64, v value.Value) {
	if value.DebugChecks && (v.IsSignal() || v.IsForwardPointer()) {
		panic(fmt.Sprintf("heap: storing %v into %#x[%d]", v, uint64(addr), i))
	}
	*m.slot(addr, i) = uint64(v)
}

// LoadRaw reads an untagged payload word.
func (m *Memory) LoadRaw(addr value.Address, i uint64) uint64 {
	return *m.slot(addr, i)
}

// StoreRaw writes an untagged payload word.
func (m *Memory) StoreRaw(addr value.Address, i uint64, w uint64) {
	*m.slot(addr, i) = w
}

// SizeOf returns the size in bytes of the object at addr.
func (m *Memory) SizeOf(addr value.Address) uint64 {
	words, _ := m.layout(addr)
	return words * value.PointerSize
}

// Contains reports whether addr lies in the active space.
func (m *Memory) Contains(addr value.Address) bool {
	return m.space.Contains(addr)
}

// Release drops every space. The Memory is unusable afterwards.
func (m *Memory) Release() {
	m.space.Release()
	m.sources = nil
	m.observers = nil
}
