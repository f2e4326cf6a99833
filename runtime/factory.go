package runtime

import (
	"errors"

	"github.com/chazu/quark/heap"
	"github.com/chazu/quark/refs"
	"github.com/chazu/quark/value"
)

// Factory allocates heap objects on behalf of native code. When the heap is
// full it collects once and retries once; a second failure is fatal.
//
// Value arguments are protected for the duration of a call, so callers may
// pass raw values read from handles just before the call. Results come back
// as handles in the innermost open scope.
type Factory struct {
	heap    *heap.Heap
	refs    *refs.Manager
	pinned  []value.Value
	retries uint64
	remove  func()
}

func newFactory(h *heap.Heap, m *refs.Manager) *Factory {
	f := &Factory{heap: h, refs: m}
	f.remove = h.Memory().AddRootSource(heap.RootSourceFunc(func(visit func(*value.Value)) {
		for i := range f.pinned {
			visit(&f.pinned[i])
		}
	}))
	return f
}

func (f *Factory) close() {
	if f.remove != nil {
		f.remove()
		f.remove = nil
	}
}

// Retries returns how many allocations needed a collection to succeed.
func (f *Factory) Retries() uint64 { return f.retries }

// gcSafe runs alloc with inputs pinned. alloc must read its inputs from the
// slice it is given, which the collector keeps current.
func (f *Factory) gcSafe(what string, inputs []value.Value, alloc func(in []value.Value) (value.Value, error)) (refs.Ref, error) {
	base := len(f.pinned)
	f.pinned = append(f.pinned, inputs...)
	defer func() {
		clear(f.pinned[base:])
		f.pinned = f.pinned[:base]
	}()

	v, err := alloc(f.pinned[base:])
	if err != nil {
		var se *heap.SignalError
		if !errors.As(err, &se) {
			return refs.Ref{}, err
		}
		size := uint64(se.Signal.SignalPayload())
		f.retries++
		log.Debugf("%s: %d bytes unavailable, collecting", what, size)
		f.heap.Memory().CollectGarbageFor(size)

		v, err = alloc(f.pinned[base:])
		if errors.As(err, &se) {
			heap.Fatalf(heap.FatalOutOfMemory, "%s: %d bytes unavailable after collection", what, size)
		}
		if err != nil {
			return refs.Ref{}, err
		}
	}
	return f.refs.NewRef(v), nil
}

// NewTuple allocates a tuple of n nils.
func (f *Factory) NewTuple(n int) (refs.Ref, error) {
	return f.gcSafe("tuple", nil, func([]value.Value) (value.Value, error) {
		return f.heap.NewTuple(n)
	})
}

// NewTupleOf allocates a tuple holding elems.
func (f *Factory) NewTupleOf(elems ...value.Value) (refs.Ref, error) {
	return f.gcSafe("tuple", elems, func(in []value.Value) (value.Value, error) {
		return f.heap.NewTupleOf(in...)
	})
}

// NewString allocates a string.
func (f *Factory) NewString(s string) (refs.Ref, error) {
	return f.gcSafe("string", nil, func([]value.Value) (value.Value, error) {
		return f.heap.NewString(s)
	})
}

// NewBlob allocates a blob holding a copy of data.
func (f *Factory) NewBlob(data []byte) (refs.Ref, error) {
	return f.gcSafe("blob", nil, func([]value.Value) (value.Value, error) {
		return f.heap.NewBlob(data)
	})
}

// NewSpecies allocates a species.
func (f *Factory) NewSpecies(itype heap.InstanceType, fieldCount int, name, parent value.Value) (refs.Ref, error) {
	return f.gcSafe("species", []value.Value{name, parent}, func(in []value.Value) (value.Value, error) {
		return f.heap.NewSpecies(itype, fieldCount, in[0], in[1])
	})
}

// NewLambda allocates a lambda.
func (f *Factory) NewLambda(argc int, code, literals, name value.Value) (refs.Ref, error) {
	return f.gcSafe("lambda", []value.Value{code, literals, name}, func(in []value.Value) (value.Value, error) {
		return f.heap.NewLambda(argc, in[0], in[1], in[2])
	})
}

// NewMethod allocates a method.
func (f *Factory) NewMethod(selector, signature, body value.Value) (refs.Ref, error) {
	return f.gcSafe("method", []value.Value{selector, signature, body}, func(in []value.Value) (value.Value, error) {
		return f.heap.NewMethod(in[0], in[1], in[2])
	})
}

// NewSelector allocates a selector.
func (f *Factory) NewSelector(name value.Value, argc int) (refs.Ref, error) {
	return f.gcSafe("selector", []value.Value{name}, func(in []value.Value) (value.Value, error) {
		return f.heap.NewSelector(in[0], argc)
	})
}

// NewInstance allocates an instance of species with every field nil.
func (f *Factory) NewInstance(species value.Value) (refs.Ref, error) {
	return f.gcSafe("instance", []value.Value{species}, func(in []value.Value) (value.Value, error) {
		return f.heap.NewInstance(in[0])
	})
}
