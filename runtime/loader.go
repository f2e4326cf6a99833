package runtime

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/chazu/quark/bytecode"
	"github.com/chazu/quark/heap"
	"github.com/chazu/quark/interp"
	"github.com/chazu/quark/refs"
	"github.com/chazu/quark/value"
)

var (
	// ErrUnknownSpecies means a program named a species that is not bound.
	ErrUnknownSpecies = errors.New("unknown species")
	// ErrDuplicateSpecies means a program defined a species twice.
	ErrDuplicateSpecies = errors.New("species already defined")
)

// Load materialises u as a heap lambda: its code becomes a blob of
// little-endian words and its literals a tuple. The handle belongs to the
// caller's scope.
func (rt *Runtime) Load(u *bytecode.Unit) (refs.Ref, error) {
	if err := u.Verify(); err != nil {
		return refs.Ref{}, err
	}
	s := rt.refs.NewScope()
	defer s.Close()

	f := rt.factory
	code, err := f.NewBlob(encodeCode(u.Code))
	if err != nil {
		return refs.Ref{}, err
	}
	lits, err := f.NewTuple(len(u.Literals))
	if err != nil {
		return refs.Ref{}, err
	}
	for i, l := range u.Literals {
		v, err := rt.literal(l)
		if err != nil {
			return refs.Ref{}, fmt.Errorf("%s: literal %d: %w", u.Name, i, err)
		}
		rt.heap.TupleSet(lits.Value(), i, v.Value())
	}
	name, err := f.NewString(u.Name)
	if err != nil {
		return refs.Ref{}, err
	}
	lambda, err := f.NewLambda(u.Argc, code.Value(), lits.Value(), name.Value())
	if err != nil {
		return refs.Ref{}, err
	}
	return s.Escape(lambda), nil
}

func encodeCode(code bytecode.Code) []byte {
	buf := make([]byte, 2*len(code))
	for i, w := range code {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(w))
	}
	return buf
}

func (rt *Runtime) literal(l bytecode.Literal) (refs.Ref, error) {
	switch l.Kind {
	case bytecode.IntLiteral:
		v, ok := value.TryFromInt(l.Int)
		if !ok {
			return refs.Ref{}, fmt.Errorf("%d: %w", l.Int, ErrOverflow)
		}
		return rt.refs.NewRef(v), nil
	case bytecode.StringLiteral:
		return rt.factory.NewString(l.Str)
	case bytecode.NilLiteral:
		return rt.refs.NewRef(rt.heap.Nil()), nil
	case bytecode.TrueLiteral, bytecode.FalseLiteral:
		return rt.refs.NewRef(rt.heap.Bool(l.Kind == bytecode.TrueLiteral)), nil
	}
	return refs.Ref{}, fmt.Errorf("cannot load %s", l.Source())
}

// Species returns the species bound to name.
func (rt *Runtime) Species(name string) (value.Value, error) {
	v, ok := rt.Global(name)
	if !ok || !rt.heap.Is(v, heap.SpeciesType) {
		return 0, fmt.Errorf("%w %q", ErrUnknownSpecies, name)
	}
	return v, nil
}

// DefineSpecies creates a species of instance objects and binds it as a
// global. Instances carry the parent's fields followed by def.Fields more.
func (rt *Runtime) DefineSpecies(def bytecode.SpeciesDef) (refs.Ref, error) {
	if _, ok := rt.globals[def.Name]; ok {
		return refs.Ref{}, fmt.Errorf("%w: %q", ErrDuplicateSpecies, def.Name)
	}
	parentName := def.Parent
	if parentName == "" {
		parentName = "Object"
	}
	parent, err := rt.Species(parentName)
	if err != nil {
		return refs.Ref{}, err
	}
	if t := rt.heap.SpeciesInstanceType(parent); t != heap.InstanceObjectType {
		return refs.Ref{}, fmt.Errorf("species %q cannot extend %s species %q", def.Name, t, parentName)
	}

	s := rt.refs.NewScope()
	defer s.Close()
	p := rt.refs.NewRef(parent)
	name, err := rt.factory.NewString(def.Name)
	if err != nil {
		return refs.Ref{}, err
	}
	fields := rt.heap.SpeciesFieldCount(p.Value()) + def.Fields
	species, err := rt.factory.NewSpecies(heap.InstanceObjectType, fields, name.Value(), p.Value())
	if err != nil {
		return refs.Ref{}, err
	}
	rt.SetGlobal(def.Name, species.Value())
	log.Debugf("defined species %s < %s (%d fields)", def.Name, parentName, fields)
	return s.Escape(species), nil
}

// DefineMethod installs a method on species. A method with the same
// selector and an identical signature is replaced. Signature entries past
// its length, and nil entries, accept any argument. The values passed in
// are read before anything is allocated.
func (rt *Runtime) DefineMethod(species value.Value, selector string, argc int, signature []value.Value, body value.Value) error {
	if len(signature) > argc {
		return fmt.Errorf("%s: signature has %d entries for %d arguments", selector, len(signature), argc)
	}
	h, f := rt.heap, rt.factory

	s := rt.refs.NewScope()
	defer s.Close()
	sp := rt.refs.NewRef(species)
	b := rt.refs.NewRef(body)

	sig, err := f.NewTupleOf(signature...)
	if err != nil {
		return err
	}
	name, err := f.NewString(selector)
	if err != nil {
		return err
	}
	sel, err := f.NewSelector(name.Value(), argc)
	if err != nil {
		return err
	}
	method, err := f.NewMethod(sel.Value(), sig.Value(), b.Value())
	if err != nil {
		return err
	}

	methods := h.SpeciesMethods(sp.Value())
	n := h.TupleLength(methods)
	for i := 0; i < n; i++ {
		old := h.TupleAt(methods, i)
		oldSel := h.MethodSelector(old)
		if h.SelectorArgc(oldSel) == argc && h.SelectorName(oldSel) == selector &&
			sameSignature(h, h.MethodSignature(old), sig.Value(), argc) {
			h.TupleSet(methods, i, method.Value())
			log.Debugf("replaced %s>>%s/%d", h.SpeciesName(sp.Value()), selector, argc)
			return nil
		}
	}

	grown, err := f.NewTuple(n + 1)
	if err != nil {
		return err
	}
	methods = h.SpeciesMethods(sp.Value())
	for i := 0; i < n; i++ {
		h.TupleSet(grown.Value(), i, h.TupleAt(methods, i))
	}
	h.TupleSet(grown.Value(), n, method.Value())
	h.SetSpeciesMethods(sp.Value(), grown.Value())
	return nil
}

func sameSignature(h *heap.Heap, a, b value.Value, argc int) bool {
	entry := func(sig value.Value, i int) value.Value {
		if i < h.TupleLength(sig) {
			return h.TupleAt(sig, i)
		}
		return h.Nil()
	}
	for i := 0; i < argc; i++ {
		if entry(a, i) != entry(b, i) {
			return false
		}
	}
	return true
}

// DefineNative installs fn as a method on species.
func (rt *Runtime) DefineNative(species value.Value, selector string, signature []value.Value, fn interp.NativeFunc) error {
	id := rt.interp.RegisterNative(selector, rt.scoped(fn))
	return rt.DefineMethod(species, selector, len(signature), signature, value.FromInt(int64(id)))
}

// scoped runs a native inside its own handle scope, so handles it creates
// do not pile up in the caller's scope.
func (rt *Runtime) scoped(fn interp.NativeFunc) interp.NativeFunc {
	return func(c *interp.NativeCall) (value.Value, error) {
		s := rt.refs.NewScope()
		defer s.Close()
		return fn(c)
	}
}

// LoadProgram defines the program's species and methods and returns its
// entry lambda.
func (rt *Runtime) LoadProgram(p *bytecode.Program) (refs.Ref, error) {
	if err := p.Verify(); err != nil {
		return refs.Ref{}, err
	}
	s := rt.refs.NewScope()
	defer s.Close()

	for _, def := range p.Species {
		if _, err := rt.DefineSpecies(def); err != nil {
			return refs.Ref{}, err
		}
	}
	for i := range p.Methods {
		if err := rt.loadMethod(&p.Methods[i]); err != nil {
			return refs.Ref{}, err
		}
	}
	entry, err := rt.Load(&p.Entry)
	if err != nil {
		return refs.Ref{}, err
	}
	return s.Escape(entry), nil
}

func (rt *Runtime) loadMethod(m *bytecode.MethodDef) error {
	s := rt.refs.NewScope()
	defer s.Close()

	body, err := rt.Load(&m.Body)
	if err != nil {
		return err
	}
	// Resolve names after loading: the values below are not protected.
	species, err := rt.Species(m.Species)
	if err != nil {
		return fmt.Errorf("%s>>%s: %w", m.Species, m.Selector, err)
	}
	sig := make([]value.Value, len(m.Signature))
	for i, name := range m.Signature {
		if name == "" {
			sig[i] = rt.heap.Nil()
			continue
		}
		if sig[i], err = rt.Species(name); err != nil {
			return fmt.Errorf("%s>>%s: %w", m.Species, m.Selector, err)
		}
	}
	return rt.DefineMethod(species, m.Selector, m.Body.Argc, sig, body.Value())
}

// Call runs lambda with the given receiver and arguments. The result
// handle belongs to the caller's scope.
func (rt *Runtime) Call(lambda, self value.Value, args ...value.Value) (refs.Ref, error) {
	v, err := rt.interp.Call(lambda, self, args...)
	if err != nil {
		return refs.Ref{}, err
	}
	return rt.refs.NewRef(v), nil
}

// Run loads p and runs its entry with nil as the receiver.
func (rt *Runtime) Run(p *bytecode.Program) (refs.Ref, error) {
	s := rt.refs.NewScope()
	defer s.Close()

	entry, err := rt.LoadProgram(p)
	if err != nil {
		return refs.Ref{}, err
	}
	result, err := rt.Call(entry.Value(), rt.heap.Nil())
	if err != nil {
		return refs.Ref{}, err
	}
	return s.Escape(result), nil
}

// Eval runs p and describes the result. Fatal heap conditions come back as
// a *heap.FatalError.
func (rt *Runtime) Eval(p *bytecode.Program) (out string, err error) {
	defer heap.CatchFatal(&err)
	s := rt.refs.NewScope()
	defer s.Close()

	result, err := rt.Run(p)
	if err != nil {
		return "", err
	}
	return rt.heap.Describe(result.Value()), nil
}
