package heap

import (
	"errors"
	"testing"

	"github.com/chazu/quark/value"
)

// rootSet is a plain slice of roots for tests.
type rootSet struct {
	vals []value.Value
}

func (r *rootSet) VisitRoots(visit func(*value.Value)) {
	for i := range r.vals {
		visit(&r.vals[i])
	}
}

func (r *rootSet) add(v value.Value) int {
	r.vals = append(r.vals, v)
	return len(r.vals) - 1
}

func testConfig() Config {
	return Config{
		InitialSpace:    4096,
		MaxSpace:        1 << 20,
		GrowthFactor:    2,
		GrowthThreshold: 0.75,
	}
}

func newTestHeap(t *testing.T) (*Heap, *rootSet) {
	t.Helper()
	h, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	roots := &rootSet{}
	h.Memory().AddRootSource(roots)
	return h, roots
}

// mustValue wraps an allocation result and fails the test on error:
//
//	s := mustValue(t)(h.NewString("x"))
func mustValue(t *testing.T) func(value.Value, error) value.Value {
	return func(v value.Value, err error) value.Value {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return v
	}
}

// ---------------------------------------------------------------------------
// Bootstrap and layouts
// ---------------------------------------------------------------------------

func TestBootstrapRoots(t *testing.T) {
	h, _ := newTestHeap(t)

	ss := h.Root(SpeciesSpeciesRoot)
	if h.SpeciesOf(ss) != ss {
		t.Error("species of species should describe itself")
	}
	if got := h.SpeciesName(ss); got != "Species" {
		t.Errorf("species species name = %q", got)
	}
	if got := h.InstanceTypeOf(h.Nil()); got != SingletonType {
		t.Errorf("nil instance type = %s", got)
	}
	if !h.IsNil(h.SpeciesParent(h.Root(ObjectSpeciesRoot))) {
		t.Error("Object should have no parent")
	}
	if got := h.SpeciesDistance(h.Root(TupleSpeciesRoot), h.Root(ObjectSpeciesRoot)); got != 1 {
		t.Errorf("Tuple -> Object distance = %d, want 1", got)
	}
	if got := h.SpeciesOf(value.FromInt(3)); got != h.Root(SmallIntegerSpeciesRoot) {
		t.Errorf("small integer species = %v", got)
	}
}

func TestTupleAccess(t *testing.T) {
	h, _ := newTestHeap(t)
	tup := mustValue(t)(h.NewTuple(3))

	if h.TupleLength(tup) != 3 {
		t.Fatalf("length = %d", h.TupleLength(tup))
	}
	for i := 0; i < 3; i++ {
		if !h.IsNil(h.TupleAt(tup, i)) {
			t.Errorf("element %d not nil", i)
		}
	}
	h.TupleSet(tup, 1, value.FromInt(9))
	if got := h.TupleAt(tup, 1); got.Int() != 9 {
		t.Errorf("element 1 = %v", got)
	}
	if got := h.SizeOf(tup); got != 5*value.PointerSize {
		t.Errorf("SizeOf = %d", got)
	}
}

func TestStringAndBlob(t *testing.T) {
	h, _ := newTestHeap(t)
	for _, s := range []string{"", "a", "exactly8", "longer than one word"} {
		v := mustValue(t)(h.NewString(s))
		if got := h.StringOf(v); got != s {
			t.Errorf("StringOf = %q, want %q", got, s)
		}
	}

	blob := mustValue(t)(h.NewBlob([]byte{1, 0, 2, 0, 3, 0, 4, 0, 5, 0}))
	for i, want := range []uint16{1, 2, 3, 4, 5} {
		if got := h.Uint16At(blob, i); got != want {
			t.Errorf("Uint16At(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestNewInstanceRequiresInstanceSpecies(t *testing.T) {
	h, _ := newTestHeap(t)
	name := mustValue(t)(h.NewString("Point"))
	point := mustValue(t)(h.NewSpecies(InstanceObjectType, 2, name, h.Root(ObjectSpeciesRoot)))

	p := mustValue(t)(h.NewInstance(point))
	if h.SizeOf(p) != 3*value.PointerSize {
		t.Errorf("instance size = %d", h.SizeOf(p))
	}
	if !h.IsNil(h.Field(p, 2)) {
		t.Error("fields should start nil")
	}
	if _, err := h.NewInstance(h.Root(TupleSpeciesRoot)); err == nil {
		t.Error("instantiating the tuple species should fail")
	}
}

func TestRawAllocationFailure(t *testing.T) {
	h, _ := newTestHeap(t)
	before := h.Memory().Space().Used()

	_, err := h.NewTuple(10000)
	if !errors.Is(err, ErrAllocationFailed) {
		t.Fatalf("err = %v, want ErrAllocationFailed", err)
	}
	var se *SignalError
	if !errors.As(err, &se) || se.Signal.SignalType() != value.AllocationFailed {
		t.Fatalf("err = %#v, want AllocationFailed signal", err)
	}
	if h.Memory().Space().Used() != before {
		t.Error("failed allocation changed the space")
	}
	if _, err := h.NewTuple(-1); err == nil {
		t.Error("negative tuple length should fail")
	}
}

func TestDescribe(t *testing.T) {
	h, _ := newTestHeap(t)
	s := mustValue(t)(h.NewString("hi"))
	tup := mustValue(t)(h.NewTupleOf(value.FromInt(1), s, h.Bool(true), h.Nil()))
	if got := h.Describe(tup); got != `(1, "hi", true, nil)` {
		t.Errorf("Describe = %s", got)
	}
}

func TestCensus(t *testing.T) {
	h, _ := newTestHeap(t)
	for i := 0; i < 4; i++ {
		mustValue(t)(h.NewTuple(2))
	}
	c := h.TakeCensus()
	var tuples *CensusEntry
	for i := range c.Entries {
		if c.Entries[i].Type == "Tuple" {
			tuples = &c.Entries[i]
		}
	}
	// Four new tuples plus the empty tuple from bootstrap.
	if tuples == nil || tuples.Objects != 5 {
		t.Fatalf("tuple census = %+v", tuples)
	}
	if c.Used != h.Memory().Space().Used() {
		t.Errorf("census used = %d", c.Used)
	}
}
