package refs

import (
	"testing"

	"github.com/chazu/quark/heap"
	"github.com/chazu/quark/value"
)

func newHeap(t *testing.T, m *Manager) *heap.Heap {
	t.Helper()
	h, err := heap.New(heap.Config{
		InitialSpace:    8192,
		MaxSpace:        1 << 20,
		GrowthFactor:    2,
		GrowthThreshold: 0.75,
	})
	if err != nil {
		t.Fatalf("heap.New: %v", err)
	}
	h.Memory().AddRootSource(m)
	return h
}

func TestScopeReleasesHandles(t *testing.T) {
	m := NewManager()

	outer := m.NewScope()
	m.NewRef(value.FromInt(1))
	inner := m.NewScope()
	for i := 0; i < BlockSize+10; i++ {
		m.NewRef(value.FromInt(int64(i)))
	}
	if m.BlockCount() != 2 || m.ScopedCount() != BlockSize+11 {
		t.Fatalf("blocks=%d scoped=%d", m.BlockCount(), m.ScopedCount())
	}

	inner.Close()
	if m.BlockCount() != 1 || m.ScopedCount() != 1 {
		t.Fatalf("after inner close: blocks=%d scoped=%d", m.BlockCount(), m.ScopedCount())
	}
	outer.Close()
	if m.BlockCount() != 0 || m.ScopedCount() != 0 || m.Depth() != 0 {
		t.Fatalf("after outer close: blocks=%d scoped=%d depth=%d", m.BlockCount(), m.ScopedCount(), m.Depth())
	}
}

func TestScopeReusesSpareBlock(t *testing.T) {
	m := NewManager()
	s := m.NewScope()
	first := m.NewRef(value.FromInt(1))
	s.Close()

	s = m.NewScope()
	defer s.Close()
	second := m.NewRef(value.FromInt(2))
	if first.cell != second.cell {
		t.Error("the spare block should be reused for the next scope")
	}
}

func TestNewRefOutsideScopePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewRef without a scope should panic")
		}
	}()
	NewManager().NewRef(value.FromInt(1))
}

func TestScopesCloseInOrder(t *testing.T) {
	m := NewManager()
	outer := m.NewScope()
	m.NewScope()
	defer func() {
		if recover() == nil {
			t.Error("closing the outer scope first should panic")
		}
	}()
	outer.Close()
}

func TestPersistentDisposeSwapsLast(t *testing.T) {
	m := NewManager()
	a := m.NewPersistent(value.FromInt(1))
	b := m.NewPersistent(value.FromInt(2))
	c := m.NewPersistent(value.FromInt(3))

	a.Dispose()
	if m.PersistentCount() != 2 || !a.Disposed() {
		t.Fatalf("count=%d disposed=%v", m.PersistentCount(), a.Disposed())
	}
	if c.cell.index != 0 || m.persistent[0] != c.cell {
		t.Error("last cell should move into the disposed slot")
	}
	if b.Value().Int() != 2 || c.Value().Int() != 3 {
		t.Error("surviving handles changed value")
	}
	a.Dispose()
	if m.PersistentCount() != 2 {
		t.Error("double dispose should be a no-op")
	}
}

func TestVisitRootsCoversAllCells(t *testing.T) {
	m := NewManager()
	s := m.NewScope()
	defer s.Close()
	for i := 0; i < BlockSize+5; i++ {
		m.NewRef(value.FromInt(int64(i)))
	}
	p := m.NewPersistent(value.FromInt(-1))
	defer p.Dispose()

	n := 0
	m.VisitRoots(func(*value.Value) { n++ })
	if n != BlockSize+6 {
		t.Errorf("visited %d cells, want %d", n, BlockSize+6)
	}
}

// ---------------------------------------------------------------------------
// Collection through handles
// ---------------------------------------------------------------------------

func TestHandlesSurviveCollection(t *testing.T) {
	m := NewManager()
	h := newHeap(t, m)
	s := m.NewScope()
	defer s.Close()

	str, err := h.NewString("kept")
	if err != nil {
		t.Fatal(err)
	}
	ref := m.NewRef(str)
	tup, err := h.NewTupleOf(str, value.FromInt(5))
	if err != nil {
		t.Fatal(err)
	}
	p := m.NewPersistent(tup)
	defer p.Dispose()

	old := h.Memory().Space()
	h.Memory().CollectGarbage()

	m.VisitRoots(func(v *value.Value) {
		if v.IsHeapObject() && old.Contains(v.Address()) {
			t.Errorf("handle still points into the old space: %v", *v)
		}
	})
	if h.StringOf(ref.Value()) != "kept" {
		t.Errorf("scoped handle = %q", h.StringOf(ref.Value()))
	}
	if h.TupleAt(p.Value(), 0) != ref.Value() {
		t.Error("tuple element and handle disagree after the move")
	}
}

func TestClosedScopeStopsProtecting(t *testing.T) {
	m := NewManager()
	h := newHeap(t, m)

	s := m.NewScope()
	for i := 0; i < 20; i++ {
		v, err := h.NewTuple(8)
		if err != nil {
			t.Fatal(err)
		}
		m.NewRef(v)
	}
	s.Close()

	before := h.Memory().Space().Used()
	h.Memory().CollectGarbage()
	if after := h.Memory().Space().Used(); after >= before {
		t.Errorf("used %d -> %d; tuples from a closed scope should be collected", before, after)
	}
}

func TestEscapeMovesHandleOutward(t *testing.T) {
	m := NewManager()
	outer := m.NewScope()
	defer outer.Close()

	inner := m.NewScope()
	for i := 0; i < 5; i++ {
		m.NewRef(value.FromInt(int64(i)))
	}
	r := inner.Escape(m.NewRef(value.FromInt(99)))
	inner.Close()

	if m.Depth() != 1 {
		t.Fatalf("depth = %d, want 1", m.Depth())
	}
	if m.ScopedCount() != 1 {
		t.Errorf("scoped = %d, want 1", m.ScopedCount())
	}
	if r.Value().Int() != 99 {
		t.Errorf("escaped value = %v", r.Value())
	}
}
