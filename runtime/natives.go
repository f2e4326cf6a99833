package runtime

import (
	"errors"
	"fmt"

	"github.com/chazu/quark/heap"
	"github.com/chazu/quark/interp"
	"github.com/chazu/quark/value"
)

var (
	// ErrOverflow means an integer result does not fit a small integer.
	ErrOverflow = errors.New("small integer overflow")
	// ErrZeroDivide means a division or remainder by zero.
	ErrZeroDivide = errors.New("division by zero")
	// ErrIndex means an index outside a tuple, string or instance.
	ErrIndex = errors.New("index out of range")
	// ErrWrongType means a native got a receiver or argument it cannot use.
	ErrWrongType = errors.New("wrong type")
)

// native describes one builtin method. Signature entries name builtin
// species, or wildcard for any argument.
type native struct {
	species   heap.Root
	selector  string
	signature []heap.Root
	fn        func(rt *Runtime, c *interp.NativeCall) (value.Value, error)
}

const wildcard heap.Root = -1

func (rt *Runtime) registerNatives() error {
	s := rt.refs.NewScope()
	defer s.Close()

	var all []native
	all = append(all, smallIntegerNatives...)
	all = append(all, objectNatives...)
	all = append(all, speciesNatives...)
	all = append(all, stringNatives...)
	all = append(all, tupleNatives...)

	for _, n := range all {
		sig := make([]value.Value, len(n.signature))
		for i, r := range n.signature {
			if r == wildcard {
				sig[i] = rt.heap.Nil()
			} else {
				sig[i] = rt.heap.Root(r)
			}
		}
		fn := n.fn
		err := rt.DefineNative(rt.heap.Root(n.species), n.selector, sig, func(c *interp.NativeCall) (value.Value, error) {
			return fn(rt, c)
		})
		if err != nil {
			return fmt.Errorf("runtime: native %s: %w", n.selector, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// SmallInteger
// ---------------------------------------------------------------------------

func arith(selector string, op func(a, b int64) (int64, error)) native {
	return native{
		species:   heap.SmallIntegerSpeciesRoot,
		selector:  selector,
		signature: []heap.Root{heap.SmallIntegerSpeciesRoot},
		fn: func(_ *Runtime, c *interp.NativeCall) (value.Value, error) {
			r, err := op(c.Self.Int(), c.Args[0].Int())
			if err != nil {
				return 0, err
			}
			v, ok := value.TryFromInt(r)
			if !ok {
				return 0, fmt.Errorf("%d %s %d: %w", c.Self.Int(), selector, c.Args[0].Int(), ErrOverflow)
			}
			return v, nil
		},
	}
}

func compare(selector string, op func(a, b int64) bool) native {
	return native{
		species:   heap.SmallIntegerSpeciesRoot,
		selector:  selector,
		signature: []heap.Root{heap.SmallIntegerSpeciesRoot},
		fn: func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
			return rt.heap.Bool(op(c.Self.Int(), c.Args[0].Int())), nil
		},
	}
}

// Operands are within the small integer range, so sums and differences
// cannot overflow int64; TryFromInt catches results outside the range.
var smallIntegerNatives = []native{
	arith("+", func(a, b int64) (int64, error) { return a + b, nil }),
	arith("-", func(a, b int64) (int64, error) { return a - b, nil }),
	arith("*", func(a, b int64) (int64, error) {
		r := a * b
		if a != 0 && r/a != b {
			return 0, ErrOverflow
		}
		return r, nil
	}),
	arith("/", func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, ErrZeroDivide
		}
		return a / b, nil
	}),
	arith("%", func(a, b int64) (int64, error) {
		if b == 0 {
			return 0, ErrZeroDivide
		}
		return a % b, nil
	}),
	compare("<", func(a, b int64) bool { return a < b }),
	compare("<=", func(a, b int64) bool { return a <= b }),
	compare(">", func(a, b int64) bool { return a > b }),
	compare(">=", func(a, b int64) bool { return a >= b }),
	compare("=", func(a, b int64) bool { return a == b }),
	compare("~=", func(a, b int64) bool { return a != b }),
}

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

var objectNatives = []native{
	{heap.ObjectSpeciesRoot, "==", []heap.Root{wildcard}, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		return rt.heap.Bool(c.Self == c.Args[0]), nil
	}},
	{heap.ObjectSpeciesRoot, "isNil", nil, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		return rt.heap.Bool(rt.heap.IsNil(c.Self)), nil
	}},
	{heap.ObjectSpeciesRoot, "species", nil, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		return rt.heap.SpeciesOf(c.Self), nil
	}},
	{heap.ObjectSpeciesRoot, "printString", nil, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		r, err := rt.factory.NewString(rt.heap.Describe(c.Self))
		if err != nil {
			return 0, err
		}
		return r.Value(), nil
	}},
	{heap.ObjectSpeciesRoot, "print", nil, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		text := rt.heap.Describe(c.Self)
		if rt.heap.Is(c.Self, heap.StringType) {
			text = rt.heap.StringOf(c.Self)
		}
		if _, err := fmt.Fprintln(rt.out, text); err != nil {
			return 0, err
		}
		return c.Self, nil
	}},
	{heap.ObjectSpeciesRoot, "slotAt", []heap.Root{heap.SmallIntegerSpeciesRoot}, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		i, err := rt.slotIndex(c.Self, c.Args[0])
		if err != nil {
			return 0, err
		}
		return rt.heap.Field(c.Self, i), nil
	}},
	{heap.ObjectSpeciesRoot, "slotAtPut", []heap.Root{heap.SmallIntegerSpeciesRoot, wildcard}, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		i, err := rt.slotIndex(c.Self, c.Args[0])
		if err != nil {
			return 0, err
		}
		rt.heap.SetField(c.Self, i, c.Args[1])
		return c.Args[1], nil
	}},
	{heap.ObjectSpeciesRoot, "collectGarbage", nil, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		stats := rt.CollectGarbage()
		v, ok := value.TryFromInt(int64(stats.Reclaimed()))
		if !ok {
			return 0, ErrOverflow
		}
		return v, nil
	}},
}

// slotIndex maps a zero-based slot number to a field index of an instance.
func (rt *Runtime) slotIndex(obj, index value.Value) (int, error) {
	h := rt.heap
	if !h.Is(obj, heap.InstanceObjectType) {
		return 0, fmt.Errorf("slots of %s: %w", h.Describe(obj), ErrWrongType)
	}
	i, n := index.Int(), h.SpeciesFieldCount(h.SpeciesOf(obj))
	if i < 0 || i >= int64(n) {
		return 0, fmt.Errorf("slot %d of %d: %w", i, n, ErrIndex)
	}
	return int(i) + 1, nil
}

// ---------------------------------------------------------------------------
// Species
// ---------------------------------------------------------------------------

var speciesNatives = []native{
	{heap.SpeciesSpeciesRoot, "new", nil, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		if rt.heap.SpeciesInstanceType(c.Self) != heap.InstanceObjectType || c.Self == rt.heap.Root(heap.SmallIntegerSpeciesRoot) {
			return 0, fmt.Errorf("new %s: %w", rt.heap.SpeciesName(c.Self), ErrWrongType)
		}
		r, err := rt.factory.NewInstance(c.Self)
		if err != nil {
			return 0, err
		}
		return r.Value(), nil
	}},
	{heap.SpeciesSpeciesRoot, "new", []heap.Root{heap.SmallIntegerSpeciesRoot}, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		if c.Self != rt.heap.Root(heap.TupleSpeciesRoot) {
			return 0, fmt.Errorf("new: %s: %w", rt.heap.SpeciesName(c.Self), ErrWrongType)
		}
		n := c.Args[0].Int()
		if n < 0 {
			return 0, fmt.Errorf("new: %d: %w", n, ErrIndex)
		}
		r, err := rt.factory.NewTuple(int(n))
		if err != nil {
			return 0, err
		}
		return r.Value(), nil
	}},
	{heap.SpeciesSpeciesRoot, "name", nil, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		return rt.heap.Field(c.Self, heap.SpeciesNameField), nil
	}},
	{heap.SpeciesSpeciesRoot, "parent", nil, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		return rt.heap.SpeciesParent(c.Self), nil
	}},
}

// ---------------------------------------------------------------------------
// String
// ---------------------------------------------------------------------------

var stringNatives = []native{
	{heap.StringSpeciesRoot, "size", nil, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		return value.FromInt(int64(rt.heap.ByteLength(c.Self))), nil
	}},
	{heap.StringSpeciesRoot, "concat", []heap.Root{heap.StringSpeciesRoot}, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		joined := rt.heap.StringOf(c.Self) + rt.heap.StringOf(c.Args[0])
		r, err := rt.factory.NewString(joined)
		if err != nil {
			return 0, err
		}
		return r.Value(), nil
	}},
	{heap.StringSpeciesRoot, "=", []heap.Root{heap.StringSpeciesRoot}, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		return rt.heap.Bool(rt.heap.StringOf(c.Self) == rt.heap.StringOf(c.Args[0])), nil
	}},
}

// ---------------------------------------------------------------------------
// Tuple
// ---------------------------------------------------------------------------

func (rt *Runtime) tupleIndex(t, index value.Value) (int, error) {
	i, n := index.Int(), rt.heap.TupleLength(t)
	if i < 0 || i >= int64(n) {
		return 0, fmt.Errorf("tuple index %d of %d: %w", i, n, ErrIndex)
	}
	return int(i), nil
}

var tupleNatives = []native{
	{heap.TupleSpeciesRoot, "size", nil, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		return value.FromInt(int64(rt.heap.TupleLength(c.Self))), nil
	}},
	{heap.TupleSpeciesRoot, "at", []heap.Root{heap.SmallIntegerSpeciesRoot}, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		i, err := rt.tupleIndex(c.Self, c.Args[0])
		if err != nil {
			return 0, err
		}
		return rt.heap.TupleAt(c.Self, i), nil
	}},
	{heap.TupleSpeciesRoot, "atPut", []heap.Root{heap.SmallIntegerSpeciesRoot, wildcard}, func(rt *Runtime, c *interp.NativeCall) (value.Value, error) {
		i, err := rt.tupleIndex(c.Self, c.Args[0])
		if err != nil {
			return 0, err
		}
		rt.heap.TupleSet(c.Self, i, c.Args[1])
		return c.Args[1], nil
	}},
}
