// Package heap implements quark's object heap: bump-allocated semi-spaces,
// the closed set of object layouts, and a copying collector that moves live
// objects between spaces.
//
// Raw allocators on Heap never collect. They return an error wrapping an
// AllocationFailed signal when the active space is full; callers that need
// the collect-and-retry behaviour go through a GC-safe factory instead.
package heap

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/chazu/quark/value"
)

// Heap pairs a Memory with the roots table and knows how to build and read
// each kind of object.
type Heap struct {
	mem   *Memory
	roots *Roots
}

// New creates a heap and allocates the well-known objects.
func New(config Config) (*Heap, error) {
	mem, err := NewMemory(config)
	if err != nil {
		return nil, err
	}
	h := &Heap{mem: mem, roots: &Roots{}}
	mem.AddRootSource(h.roots)
	if err := h.bootstrap(); err != nil {
		return nil, fmt.Errorf("heap: bootstrap: %w", err)
	}
	return h, nil
}

// Memory returns the underlying memory.
func (h *Heap) Memory() *Memory { return h.mem }

// Roots returns the roots table.
func (h *Heap) Roots() *Roots { return h.roots }

// Root is shorthand for h.Roots().Get(r).
func (h *Heap) Root(r Root) value.Value { return h.roots.Get(r) }

// Nil returns the nil singleton.
func (h *Heap) Nil() value.Value { return h.roots.Get(NilRoot) }

// Bool returns the true or false singleton.
func (h *Heap) Bool(b bool) value.Value {
	if b {
		return h.roots.Get(TrueRoot)
	}
	return h.roots.Get(FalseRoot)
}

// Release drops all heap memory.
func (h *Heap) Release() { h.mem.Release() }

// ---------------------------------------------------------------------------
// Bootstrap
// ---------------------------------------------------------------------------

func (h *Heap) bootstrap() error {
	// The species of species describes itself; everything else hangs off it.
	ss, err := h.allocate(0, speciesWords)
	if err != nil {
		return err
	}
	h.mem.Store(ss, HeaderField, value.FromAddress(ss))
	h.initSpecies(ss, SpeciesType, 0)
	h.roots.set(SpeciesSpeciesRoot, value.FromAddress(ss))

	species := []struct {
		root  Root
		itype InstanceType
	}{
		{ObjectSpeciesRoot, InstanceObjectType},
		{NilSpeciesRoot, SingletonType},
		{TrueSpeciesRoot, SingletonType},
		{FalseSpeciesRoot, SingletonType},
		{TupleSpeciesRoot, TupleType},
		{StringSpeciesRoot, StringType},
		{BlobSpeciesRoot, BlobType},
		{LambdaSpeciesRoot, LambdaType},
		{MethodSpeciesRoot, MethodType},
		{SelectorSpeciesRoot, SelectorType},
		{SmallIntegerSpeciesRoot, InstanceObjectType},
	}
	for _, s := range species {
		addr, err := h.allocate(h.roots.Get(SpeciesSpeciesRoot), speciesWords)
		if err != nil {
			return err
		}
		h.initSpecies(addr, s.itype, 0)
		h.roots.set(s.root, value.FromAddress(addr))
	}

	singletons := []struct{ root, species Root }{
		{NilRoot, NilSpeciesRoot},
		{TrueRoot, TrueSpeciesRoot},
		{FalseRoot, FalseSpeciesRoot},
	}
	for _, s := range singletons {
		v, err := h.NewSingleton(h.roots.Get(s.species))
		if err != nil {
			return err
		}
		h.roots.set(s.root, v)
	}

	empty, err := h.NewTuple(0)
	if err != nil {
		return err
	}
	h.roots.set(EmptyTupleRoot, empty)

	names := map[Root]string{
		SpeciesSpeciesRoot:      "Species",
		ObjectSpeciesRoot:       "Object",
		NilSpeciesRoot:          "Nil",
		TrueSpeciesRoot:         "True",
		FalseSpeciesRoot:        "False",
		TupleSpeciesRoot:        "Tuple",
		StringSpeciesRoot:       "String",
		BlobSpeciesRoot:         "Blob",
		LambdaSpeciesRoot:       "Lambda",
		MethodSpeciesRoot:       "Method",
		SelectorSpeciesRoot:     "Selector",
		SmallIntegerSpeciesRoot: "SmallInteger",
	}
	for root := SpeciesSpeciesRoot; root <= FalseSpeciesRoot; root++ {
		name, err := h.NewString(names[root])
		if err != nil {
			return err
		}
		addr := h.roots.Get(root).Address()
		h.mem.Store(addr, SpeciesNameField, name)
		h.mem.Store(addr, SpeciesMethodsField, empty)
		parent := h.roots.Get(ObjectSpeciesRoot)
		if root == ObjectSpeciesRoot {
			parent = h.Nil()
		}
		h.mem.Store(addr, SpeciesParentField, parent)
	}
	return nil
}

// initSpecies fills the fields of a species. Name, methods and parent start
// as small integer zero until the singletons they refer to exist.
func (h *Heap) initSpecies(addr value.Address, itype InstanceType, fieldCount int64) {
	placeholder := value.FromInt(0)
	if nilv := h.roots.Get(NilRoot); nilv != 0 {
		placeholder = nilv
	}
	h.mem.Store(addr, SpeciesInstanceTypeField, value.FromInt(int64(itype)))
	h.mem.Store(addr, SpeciesFieldCountField, value.FromInt(fieldCount))
	h.mem.Store(addr, SpeciesNameField, placeholder)
	h.mem.Store(addr, SpeciesMethodsField, placeholder)
	h.mem.Store(addr, SpeciesParentField, placeholder)
}

// ---------------------------------------------------------------------------
// Raw allocation
// ---------------------------------------------------------------------------

// allocate reserves an object of the given number of words and stores its
// header. A zero species leaves the header for the caller.
func (h *Heap) allocate(species value.Value, words uint64) (value.Address, error) {
	size := words * value.PointerSize
	addr, ok := h.mem.Allocate(size)
	if !ok {
		return 0, allocationFailed(size)
	}
	if species != 0 {
		h.mem.Store(addr, HeaderField, species)
	}
	return addr, nil
}

func (h *Heap) allocateWithRoot(species Root, words uint64) (value.Address, error) {
	return h.allocate(h.roots.Get(species), words)
}

func checkedCount(what string, n int) (uint64, error) {
	c, err := safecast.Conv[uint64](n)
	if err != nil {
		return 0, fmt.Errorf("heap: %s count %d: %w", what, n, err)
	}
	return c, nil
}

// NewSpecies allocates a species describing objects of itype. Instances of
// an InstanceObjectType species carry fieldCount fields.
func (h *Heap) NewSpecies(itype InstanceType, fieldCount int, name, parent value.Value) (value.Value, error) {
	n, err := checkedCount("field", fieldCount)
	if err != nil {
		return 0, err
	}
	addr, err := h.allocateWithRoot(SpeciesSpeciesRoot, speciesWords)
	if err != nil {
		return 0, err
	}
	h.initSpecies(addr, itype, int64(n))
	h.mem.Store(addr, SpeciesNameField, name)
	h.mem.Store(addr, SpeciesMethodsField, h.roots.Get(EmptyTupleRoot))
	h.mem.Store(addr, SpeciesParentField, parent)
	return value.FromAddress(addr), nil
}

// NewTuple allocates a tuple of n elements, all nil.
func (h *Heap) NewTuple(n int) (value.Value, error) {
	count, err := checkedCount("tuple", n)
	if err != nil {
		return 0, err
	}
	addr, err := h.allocateWithRoot(TupleSpeciesRoot, tupleHeaderWords+count)
	if err != nil {
		return 0, err
	}
	h.mem.Store(addr, TupleLengthField, value.FromInt(int64(count)))
	nilv := h.roots.Get(NilRoot)
	for i := uint64(0); i < count; i++ {
		h.mem.Store(addr, tupleHeaderWords+i, nilv)
	}
	return value.FromAddress(addr), nil
}

// NewTupleOf allocates a tuple holding elems.
func (h *Heap) NewTupleOf(elems ...value.Value) (value.Value, error) {
	t, err := h.NewTuple(len(elems))
	if err != nil {
		return 0, err
	}
	for i, e := range elems {
		h.TupleSet(t, i, e)
	}
	return t, nil
}

// NewString allocates a string holding s.
func (h *Heap) NewString(s string) (value.Value, error) {
	return h.newBytes(StringSpeciesRoot, []byte(s))
}

// NewBlob allocates a blob holding data.
func (h *Heap) NewBlob(data []byte) (value.Value, error) {
	return h.newBytes(BlobSpeciesRoot, data)
}

func (h *Heap) newBytes(species Root, data []byte) (value.Value, error) {
	addr, err := h.allocateWithRoot(species, bytesHeaderWords+bytesWords(len(data)))
	if err != nil {
		return 0, err
	}
	h.mem.Store(addr, BytesLengthField, value.FromInt(int64(len(data))))
	for i := 0; i < len(data); i += value.PointerSize {
		var w uint64
		for j := 0; j < value.PointerSize && i+j < len(data); j++ {
			w |= uint64(data[i+j]) << (8 * j)
		}
		h.mem.StoreRaw(addr, bytesHeaderWords+uint64(i/value.PointerSize), w)
	}
	return value.FromAddress(addr), nil
}

// NewLambda allocates a code object.
func (h *Heap) NewLambda(argc int, code, literals, name value.Value) (value.Value, error) {
	n, err := checkedCount("argument", argc)
	if err != nil {
		return 0, err
	}
	addr, err := h.allocateWithRoot(LambdaSpeciesRoot, lambdaWords)
	if err != nil {
		return 0, err
	}
	h.mem.Store(addr, LambdaArgcField, value.FromInt(int64(n)))
	h.mem.Store(addr, LambdaCodeField, code)
	h.mem.Store(addr, LambdaLiteralsField, literals)
	h.mem.Store(addr, LambdaNameField, name)
	return value.FromAddress(addr), nil
}

// NewMethod allocates a method binding a selector and parameter signature to
// a body: either a lambda or a small integer naming a native.
func (h *Heap) NewMethod(selector, signature, body value.Value) (value.Value, error) {
	addr, err := h.allocateWithRoot(MethodSpeciesRoot, methodWords)
	if err != nil {
		return 0, err
	}
	h.mem.Store(addr, MethodSelectorField, selector)
	h.mem.Store(addr, MethodSignatureField, signature)
	h.mem.Store(addr, MethodBodyField, body)
	return value.FromAddress(addr), nil
}

// NewSelector allocates a (name, argc) selector.
func (h *Heap) NewSelector(name value.Value, argc int) (value.Value, error) {
	n, err := checkedCount("argument", argc)
	if err != nil {
		return 0, err
	}
	addr, err := h.allocateWithRoot(SelectorSpeciesRoot, selectorWords)
	if err != nil {
		return 0, err
	}
	h.mem.Store(addr, SelectorNameField, name)
	h.mem.Store(addr, SelectorArgcField, value.FromInt(int64(n)))
	return value.FromAddress(addr), nil
}

// NewInstance allocates an instance of species with every field nil.
func (h *Heap) NewInstance(species value.Value) (value.Value, error) {
	if t := h.SpeciesInstanceType(species); t != InstanceObjectType {
		return 0, fmt.Errorf("heap: cannot instantiate %s species %q", t, h.SpeciesName(species))
	}
	n := h.SpeciesFieldCount(species)
	addr, err := h.allocate(species, 1+uint64(n))
	if err != nil {
		return 0, err
	}
	nilv := h.roots.Get(NilRoot)
	for i := 1; i <= n; i++ {
		h.mem.Store(addr, uint64(i), nilv)
	}
	return value.FromAddress(addr), nil
}

// NewSingleton allocates a header-only object.
func (h *Heap) NewSingleton(species value.Value) (value.Value, error) {
	addr, err := h.allocate(species, singletonWords)
	if err != nil {
		return 0, err
	}
	return value.FromAddress(addr), nil
}
