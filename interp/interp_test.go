package interp

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/chazu/quark/bytecode"
	"github.com/chazu/quark/heap"
	"github.com/chazu/quark/value"
)

// testGlobals is a name table that the collector also scans.
type testGlobals struct {
	names  []string
	values []value.Value
}

func (g *testGlobals) Global(name string) (value.Value, bool) {
	for i, n := range g.names {
		if n == name {
			return g.values[i], true
		}
	}
	return 0, false
}

func (g *testGlobals) set(name string, v value.Value) {
	g.names = append(g.names, name)
	g.values = append(g.values, v)
}

func (g *testGlobals) VisitRoots(visit func(*value.Value)) {
	for i := range g.values {
		visit(&g.values[i])
	}
}

type fixture struct {
	t       *testing.T
	h       *heap.Heap
	it      *Interpreter
	globals *testGlobals
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	h, err := heap.New(heap.Config{
		InitialSpace:    64 << 10,
		MaxSpace:        4 << 20,
		GrowthFactor:    2,
		GrowthThreshold: 0.75,
	})
	if err != nil {
		t.Fatal(err)
	}
	g := &testGlobals{}
	h.Memory().AddRootSource(g)
	it := New(h, g, cfg)
	t.Cleanup(func() {
		it.Close()
		h.Release()
	})
	return &fixture{t: t, h: h, it: it, globals: g}
}

func (f *fixture) must(v value.Value, err error) value.Value {
	f.t.Helper()
	if err != nil {
		f.t.Fatal(err)
	}
	return v
}

// lambda materialises a unit. Nothing here collects, so raw values stay
// valid until the lambda is built.
func (f *fixture) lambda(s *bytecode.CodeStream, name string, argc int) value.Value {
	f.t.Helper()
	u, err := s.Unit(name, argc)
	if err != nil {
		f.t.Fatal(err)
	}
	buf := make([]byte, 2*len(u.Code))
	for i, w := range u.Code {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(w))
	}
	code := f.must(f.h.NewBlob(buf))
	lits := f.must(f.h.NewTuple(len(u.Literals)))
	for i, l := range u.Literals {
		var v value.Value
		switch l.Kind {
		case bytecode.IntLiteral:
			v = value.FromInt(l.Int)
		case bytecode.StringLiteral:
			v = f.must(f.h.NewString(l.Str))
		case bytecode.TrueLiteral, bytecode.FalseLiteral:
			v = f.h.Bool(l.Kind == bytecode.TrueLiteral)
		default:
			v = f.h.Nil()
		}
		f.h.TupleSet(lits, i, v)
	}
	nameStr := f.must(f.h.NewString(name))
	return f.must(f.h.NewLambda(argc, code, lits, nameStr))
}

func (f *fixture) define(species value.Value, name string, sig []value.Value, body value.Value) {
	f.t.Helper()
	h := f.h
	nameStr := f.must(h.NewString(name))
	sel := f.must(h.NewSelector(nameStr, len(sig)))
	sigT := f.must(h.NewTupleOf(sig...))
	m := f.must(h.NewMethod(sel, sigT, body))
	old := h.SpeciesMethods(species)
	n := h.TupleLength(old)
	methods := f.must(h.NewTuple(n + 1))
	for i := 0; i < n; i++ {
		h.TupleSet(methods, i, h.TupleAt(old, i))
	}
	h.TupleSet(methods, n, m)
	h.SetSpeciesMethods(species, methods)
}

func (f *fixture) native(species value.Value, name string, sig []value.Value, fn NativeFunc) {
	f.t.Helper()
	id := f.it.RegisterNative(name, fn)
	f.define(species, name, sig, value.FromInt(int64(id)))
}

func (f *fixture) smallInt() value.Value { return f.h.Root(heap.SmallIntegerSpeciesRoot) }

func (f *fixture) addNative() {
	f.native(f.smallInt(), "+", []value.Value{f.smallInt()}, func(c *NativeCall) (value.Value, error) {
		return value.FromInt(c.Self.Int() + c.Args[0].Int()), nil
	})
}

func (f *fixture) call(l value.Value, args ...value.Value) value.Value {
	f.t.Helper()
	v, err := f.it.Call(l, f.h.Nil(), args...)
	if err != nil {
		f.t.Fatal(err)
	}
	return v
}

func wantInt(t *testing.T, got value.Value, want int64) {
	t.Helper()
	if !got.IsSmallInteger() || got.Int() != want {
		t.Errorf("result = %v, want %d", got, want)
	}
}

// ---------------------------------------------------------------------------
// Straight-line code
// ---------------------------------------------------------------------------

func TestLiteralReturn(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	s := bytecode.NewCodeStream()
	s.Return(s.Constant(bytecode.Int(7)))
	wantInt(t, f.call(f.lambda(s, "seven", 0)), 7)
}

func TestImplicitReturnOfLastResult(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	s := bytecode.NewCodeStream()
	s.Constant(bytecode.Int(1))
	s.Constant(bytecode.Int(3))
	wantInt(t, f.call(f.lambda(s, "three", 0)), 3)
}

func TestArgumentsAndNativeSend(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.addNative()

	s := bytecode.NewCodeStream()
	self := s.Argument(0)
	other := s.Argument(1)
	s.Return(s.Send("+", self, other))
	add := f.lambda(s, "add", 1)

	v, err := f.it.Call(add, value.FromInt(2), value.FromInt(40))
	if err != nil {
		t.Fatal(err)
	}
	wantInt(t, v, 42)
	if f.it.Sends() != 1 {
		t.Errorf("sends = %d, want 1", f.it.Sends())
	}
}

func TestGlobal(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.globals.set("answer", value.FromInt(42))
	s := bytecode.NewCodeStream()
	s.Return(s.Global("answer"))
	wantInt(t, f.call(f.lambda(s, "g", 0)), 42)
}

func TestUndefinedGlobal(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	s := bytecode.NewCodeStream()
	s.Return(s.Global("missing"))
	_, err := f.it.Call(f.lambda(s, "g", 0), f.h.Nil())
	if !errors.Is(err, ErrUndefinedGlobal) {
		t.Fatalf("err = %v, want ErrUndefinedGlobal", err)
	}
	var rt *RuntimeError
	if !errors.As(err, &rt) || rt.Op != bytecode.OpGlobal || rt.Offset != 0 || rt.Lambda != "g" {
		t.Errorf("runtime error = %+v", rt)
	}
}

func TestArityMismatch(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	s := bytecode.NewCodeStream()
	s.Return(s.Argument(1))
	_, err := f.it.Call(f.lambda(s, "one", 1), f.h.Nil())
	if !errors.Is(err, ErrArity) {
		t.Fatalf("err = %v, want ErrArity", err)
	}
}

// ---------------------------------------------------------------------------
// Branches
// ---------------------------------------------------------------------------

func branchOn(f *fixture, cond bytecode.Literal) value.Value {
	s := bytecode.NewCodeStream()
	s.Constant(cond)
	els := s.NewLabel()
	s.IfFalse(els)
	s.Return(s.Constant(bytecode.Int(1)))
	s.Mark(els)
	s.Return(s.Constant(bytecode.Int(2)))
	return f.call(f.lambda(s, "branch", 0))
}

func TestIfFalse(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	wantInt(t, branchOn(f, bytecode.Bool(true)), 1)
	wantInt(t, branchOn(f, bytecode.Int(0)), 1)
	wantInt(t, branchOn(f, bytecode.Bool(false)), 2)
	wantInt(t, branchOn(f, bytecode.Nil()), 2)
}

func TestGotoSkipsCode(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	s := bytecode.NewCodeStream()
	end := s.NewLabel()
	a := s.Constant(bytecode.Int(5))
	s.Goto(end)
	s.Constant(bytecode.Int(6))
	s.Mark(end)
	s.Return(a)
	wantInt(t, f.call(f.lambda(s, "skip", 0)), 5)
}

func TestIfTrueFalse(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	for _, tc := range []struct {
		cond bytecode.Literal
		want int64
	}{
		{bytecode.Bool(true), 10},
		{bytecode.Nil(), 20},
		{bytecode.String("x"), 10},
	} {
		s := bytecode.NewCodeStream()
		c := s.Constant(tc.cond)
		a := s.Constant(bytecode.Int(10))
		b := s.Constant(bytecode.Int(20))
		s.Return(s.IfTrueFalse(c, a, b))
		wantInt(t, f.call(f.lambda(s, "select", 0)), tc.want)
	}
}

// ---------------------------------------------------------------------------
// Sends and lookup
// ---------------------------------------------------------------------------

func TestSendToLambdaMethod(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.addNative()

	body := bytecode.NewCodeStream()
	self := body.Argument(0)
	body.Return(body.Send("+", self, self))
	f.define(f.smallInt(), "double", nil, f.lambda(body, "double", 0))

	entry := bytecode.NewCodeStream()
	n := entry.Constant(bytecode.Int(21))
	d := entry.Send("double", n)
	entry.Return(entry.Send("+", d, n))
	wantInt(t, f.call(f.lambda(entry, "main", 0)), 63)
	if f.it.Depth() != 0 {
		t.Errorf("depth = %d after return", f.it.Depth())
	}
}

func TestMethodNotFound(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	s := bytecode.NewCodeStream()
	n := s.Constant(bytecode.Int(1))
	s.Send("frobnicate", n)
	_, err := f.it.Call(f.lambda(s, "main", 0), f.h.Nil())
	if !errors.Is(err, ErrMethodNotFound) {
		t.Fatalf("err = %v, want ErrMethodNotFound", err)
	}
	var le *LookupError
	if !errors.As(err, &le) || le.Species != "SmallInteger" || le.Selector != "frobnicate" {
		t.Errorf("lookup error = %+v", le)
	}
	if f.it.Depth() != 0 {
		t.Errorf("depth = %d after failed call", f.it.Depth())
	}
}

func (f *fixture) pointSpecies() value.Value {
	name := f.must(f.h.NewString("Point"))
	return f.must(f.h.NewSpecies(heap.InstanceObjectType, 2, name, f.h.Root(heap.ObjectSpeciesRoot)))
}

func constant(n int64) NativeFunc {
	return func(*NativeCall) (value.Value, error) { return value.FromInt(n), nil }
}

func TestLookupAmbiguity(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	object := f.h.Root(heap.ObjectSpeciesRoot)
	point := f.pointSpecies()

	// Object>>meet: Point and Point>>meet: Object both score 1.
	f.native(object, "meet", []value.Value{point}, constant(1))
	f.native(point, "meet", []value.Value{object}, constant(2))

	p := f.must(f.h.NewInstance(point))
	q := f.must(f.h.NewInstance(point))
	_, err := Lookup(f.h, p, "meet", []value.Value{q})
	if !errors.Is(err, ErrAmbiguousMethod) {
		t.Fatalf("err = %v, want ErrAmbiguousMethod", err)
	}
	var le *LookupError
	if errors.As(err, &le) && le.Candidates != 2 {
		t.Errorf("candidates = %d, want 2", le.Candidates)
	}
}

func TestTypedParameterBeatsWildcard(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	si := f.smallInt()
	f.native(si, "pick", []value.Value{f.h.Nil()}, constant(1))
	f.native(si, "pick", []value.Value{si}, constant(2))

	m, err := Lookup(f.h, value.FromInt(0), "pick", []value.Value{value.FromInt(5)})
	if err != nil {
		t.Fatal(err)
	}
	if id := f.h.MethodBody(m).Int(); f.it.NativeName(int(id)) != "pick" || id != 1 {
		t.Errorf("picked native %d, want the typed one", id)
	}

	str := f.must(f.h.NewString("s"))
	m, err = Lookup(f.h, value.FromInt(0), "pick", []value.Value{str})
	if err != nil {
		t.Fatal(err)
	}
	if id := f.h.MethodBody(m).Int(); id != 0 {
		t.Errorf("picked native %d for a string, want the wildcard one", id)
	}
}

func TestSubspeciesOverride(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	object := f.h.Root(heap.ObjectSpeciesRoot)
	point := f.pointSpecies()
	f.native(object, "kind", nil, constant(1))
	f.native(point, "kind", nil, constant(2))

	s := bytecode.NewCodeStream()
	self := s.Argument(0)
	s.Return(s.Send("kind", self))
	kind := f.lambda(s, "kind", 0)

	p := f.must(f.h.NewInstance(point))
	v, err := f.it.Call(kind, p)
	if err != nil {
		t.Fatal(err)
	}
	wantInt(t, v, 2)

	v, err = f.it.Call(kind, value.FromInt(3))
	if err != nil {
		t.Fatal(err)
	}
	wantInt(t, v, 1)
}

func TestStackOverflow(t *testing.T) {
	f := newFixture(t, Config{StackSize: 16, MaxFrames: 50})
	body := bytecode.NewCodeStream()
	body.Send("loop", body.Argument(0))
	f.define(f.smallInt(), "loop", nil, f.lambda(body, "loop", 0))

	entry := bytecode.NewCodeStream()
	entry.Send("loop", entry.Constant(bytecode.Int(0)))
	_, err := f.it.Call(f.lambda(entry, "main", 0), f.h.Nil())
	if !errors.Is(err, ErrStackOverflow) {
		t.Fatalf("err = %v, want ErrStackOverflow", err)
	}
	if f.it.Depth() != 0 {
		t.Errorf("depth = %d after overflow", f.it.Depth())
	}
}

func TestNativeCallsBackIntoInterpreter(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.addNative()
	f.native(f.smallInt(), "apply", []value.Value{f.h.Root(heap.LambdaSpeciesRoot)}, func(c *NativeCall) (value.Value, error) {
		return c.Interp.Call(c.Args[0], c.Self)
	})

	doubler := bytecode.NewCodeStream()
	self := doubler.Argument(0)
	doubler.Return(doubler.Send("+", self, self))
	f.globals.set("doubler", f.lambda(doubler, "doubler", 0))

	entry := bytecode.NewCodeStream()
	n := entry.Constant(bytecode.Int(4))
	fn := entry.Global("doubler")
	entry.Return(entry.Send("apply", n, fn))
	wantInt(t, f.call(f.lambda(entry, "main", 0)), 8)
}

// ---------------------------------------------------------------------------
// Collection while running
// ---------------------------------------------------------------------------

func TestCollectionDuringNative(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.addNative()
	f.native(f.smallInt(), "collect", nil, func(c *NativeCall) (value.Value, error) {
		c.Interp.Heap().Memory().CollectGarbage()
		return c.Interp.Heap().Nil(), nil
	})

	s := bytecode.NewCodeStream()
	str := s.Constant(bytecode.String("hello"))
	one := s.Constant(bytecode.Int(1))
	s.Send("collect", one)
	two := s.Send("+", one, one)
	s.Send("collect", two)
	s.Return(str)
	entry := f.lambda(s, "main", 0)

	before := f.h.Memory().Stats().Collections
	v := f.call(entry)
	if got := f.h.Memory().Stats().Collections - before; got != 2 {
		t.Errorf("collections = %d, want 2", got)
	}
	if !f.h.Memory().Space().Contains(v.Address()) {
		t.Fatalf("result %v is not in the active space", v)
	}
	if got := f.h.StringOf(v); got != "hello" {
		t.Errorf("result = %q, want hello", got)
	}
	if f.it.Depth() != 0 {
		t.Errorf("depth = %d", f.it.Depth())
	}
}
