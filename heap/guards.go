package heap

// GCGuard forbids collection while held. Guards nest: releasing one
// restores whatever state was in effect when it was taken.
type GCGuard struct {
	mem      *Memory
	previous bool
	released bool
}

// DisallowGC forbids collection until the returned guard is released. Any
// collection attempted in between is fatal.
//
//	g := mem.DisallowGC()
//	defer g.Release()
func (m *Memory) DisallowGC() *GCGuard {
	g := &GCGuard{mem: m, previous: m.allowGC}
	m.allowGC = false
	return g
}

// Release restores the previous permission.
func (g *GCGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.mem.allowGC = g.previous
}

// GCAllowed reports whether a collection may run now.
func (m *Memory) GCAllowed() bool { return m.allowGC }

// Monitor records whether a collection happened during its lifetime. Code
// that caches raw addresses checks it to know the cache went stale. Monitors
// nest; every active monitor is notified.
type Monitor struct {
	mem       *Memory
	previous  *Monitor
	collected bool
	closed    bool
}

// Monitor starts a new monitor on top of the chain.
func (m *Memory) Monitor() *Monitor {
	mon := &Monitor{mem: m, previous: m.monitors}
	m.monitors = mon
	return mon
}

// HasCollectedGarbage reports whether a collection ran since the monitor
// started.
func (mon *Monitor) HasCollectedGarbage() bool { return mon.collected }

// Close removes the monitor from the chain. Monitors close in LIFO order.
func (mon *Monitor) Close() {
	if mon.closed {
		return
	}
	if mon.mem.monitors != mon {
		panic("heap: monitors closed out of order")
	}
	mon.closed = true
	mon.mem.monitors = mon.previous
}

func (m *Memory) notifyMonitors() {
	for mon := m.monitors; mon != nil; mon = mon.previous {
		mon.collected = true
	}
}
