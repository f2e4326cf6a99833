package heap

import (
	"fmt"
	"strings"

	"github.com/chazu/quark/value"
)

// ---------------------------------------------------------------------------
// Generic access
// ---------------------------------------------------------------------------

// SpeciesOf returns the species describing v. Small integers share the
// SmallInteger species; they have no header of their own.
func (h *Heap) SpeciesOf(v value.Value) value.Value {
	if v.IsSmallInteger() {
		return h.roots.Get(SmallIntegerSpeciesRoot)
	}
	if !v.IsHeapObject() {
		panic(fmt.Sprintf("heap: SpeciesOf(%v)", v))
	}
	return h.mem.Load(v.Address(), HeaderField)
}

// InstanceTypeOf returns the instance type of a heap object.
func (h *Heap) InstanceTypeOf(obj value.Value) InstanceType {
	return h.SpeciesInstanceType(h.SpeciesOf(obj))
}

// Is reports whether v is a heap object of the given instance type.
func (h *Heap) Is(v value.Value, t InstanceType) bool {
	return v.IsHeapObject() && h.InstanceTypeOf(v) == t
}

// Field reads field i (i >= 1) of a heap object.
func (h *Heap) Field(obj value.Value, i int) value.Value {
	return h.mem.Load(obj.Address(), uint64(i))
}

// SetField writes field i (i >= 1) of a heap object.
func (h *Heap) SetField(obj value.Value, i int, v value.Value) {
	h.mem.Store(obj.Address(), uint64(i), v)
}

// SizeOf returns the size in bytes of a heap object.
func (h *Heap) SizeOf(obj value.Value) uint64 {
	return h.mem.SizeOf(obj.Address())
}

// IsNil reports whether v is the nil singleton.
func (h *Heap) IsNil(v value.Value) bool { return v == h.roots.Get(NilRoot) }

// Truthy reports whether v counts as true in a conditional: everything but
// false and nil.
func (h *Heap) Truthy(v value.Value) bool {
	return v != h.roots.Get(FalseRoot) && v != h.roots.Get(NilRoot)
}

// ---------------------------------------------------------------------------
// Species
// ---------------------------------------------------------------------------

// SpeciesInstanceType returns the instance type a species describes.
func (h *Heap) SpeciesInstanceType(species value.Value) InstanceType {
	return InstanceType(h.Field(species, SpeciesInstanceTypeField).Int())
}

// SpeciesFieldCount returns the field count of instances of species.
func (h *Heap) SpeciesFieldCount(species value.Value) int {
	return int(h.Field(species, SpeciesFieldCountField).Int())
}

// SpeciesName returns the name of a species.
func (h *Heap) SpeciesName(species value.Value) string {
	name := h.Field(species, SpeciesNameField)
	if !h.Is(name, StringType) {
		return "?"
	}
	return h.StringOf(name)
}

// SpeciesMethods returns the method tuple of a species.
func (h *Heap) SpeciesMethods(species value.Value) value.Value {
	return h.Field(species, SpeciesMethodsField)
}

// SetSpeciesMethods replaces the method tuple of a species.
func (h *Heap) SetSpeciesMethods(species, methods value.Value) {
	h.SetField(species, SpeciesMethodsField, methods)
}

// SpeciesParent returns the parent species, or nil at the root.
func (h *Heap) SpeciesParent(species value.Value) value.Value {
	return h.Field(species, SpeciesParentField)
}

// SpeciesDistance returns how many parent links separate species from
// ancestor, or -1 if ancestor is not on the chain.
func (h *Heap) SpeciesDistance(species, ancestor value.Value) int {
	for d := 0; !h.IsNil(species); d++ {
		if species == ancestor {
			return d
		}
		species = h.SpeciesParent(species)
	}
	return -1
}

// ---------------------------------------------------------------------------
// Tuples
// ---------------------------------------------------------------------------

// TupleLength returns the number of elements of a tuple.
func (h *Heap) TupleLength(t value.Value) int {
	return int(h.Field(t, TupleLengthField).Int())
}

// TupleAt returns element i of a tuple.
func (h *Heap) TupleAt(t value.Value, i int) value.Value {
	h.checkIndex(t, i)
	return h.Field(t, tupleHeaderWords+i)
}

// TupleSet replaces element i of a tuple.
func (h *Heap) TupleSet(t value.Value, i int, v value.Value) {
	h.checkIndex(t, i)
	h.SetField(t, tupleHeaderWords+i, v)
}

func (h *Heap) checkIndex(t value.Value, i int) {
	if n := h.TupleLength(t); i < 0 || i >= n {
		panic(fmt.Sprintf("heap: tuple index %d out of range [0, %d)", i, n))
	}
}

// ---------------------------------------------------------------------------
// Strings and blobs
// ---------------------------------------------------------------------------

// ByteLength returns the payload length of a string or blob.
func (h *Heap) ByteLength(obj value.Value) int {
	return int(h.Field(obj, BytesLengthField).Int())
}

// Bytes copies the payload of a string or blob.
func (h *Heap) Bytes(obj value.Value) []byte {
	n := h.ByteLength(obj)
	out := make([]byte, n)
	addr := obj.Address()
	for i := 0; i < n; i += value.PointerSize {
		w := h.mem.LoadRaw(addr, bytesHeaderWords+uint64(i/value.PointerSize))
		for j := 0; j < value.PointerSize && i+j < n; j++ {
			out[i+j] = byte(w >> (8 * j))
		}
	}
	return out
}

// StringOf returns the contents of a string object.
func (h *Heap) StringOf(s value.Value) string {
	return string(h.Bytes(s))
}

// Uint16At reads the i-th little-endian 16-bit unit of a blob. Code is
// stored this way.
func (h *Heap) Uint16At(blob value.Value, i int) uint16 {
	word := h.mem.LoadRaw(blob.Address(), bytesHeaderWords+uint64(i/4))
	return uint16(word >> (16 * (i % 4)))
}

// ---------------------------------------------------------------------------
// Lambdas, methods, selectors
// ---------------------------------------------------------------------------

// LambdaArgc returns the declared argument count of a lambda.
func (h *Heap) LambdaArgc(l value.Value) int { return int(h.Field(l, LambdaArgcField).Int()) }

// LambdaCode returns the code blob of a lambda.
func (h *Heap) LambdaCode(l value.Value) value.Value { return h.Field(l, LambdaCodeField) }

// LambdaLiterals returns the literal tuple of a lambda.
func (h *Heap) LambdaLiterals(l value.Value) value.Value { return h.Field(l, LambdaLiteralsField) }

// LambdaName returns the name of a lambda, or "" when anonymous.
func (h *Heap) LambdaName(l value.Value) string {
	name := h.Field(l, LambdaNameField)
	if !h.Is(name, StringType) {
		return ""
	}
	return h.StringOf(name)
}

// MethodSelector returns the selector of a method.
func (h *Heap) MethodSelector(m value.Value) value.Value { return h.Field(m, MethodSelectorField) }

// MethodSignature returns the parameter signature tuple of a method.
func (h *Heap) MethodSignature(m value.Value) value.Value { return h.Field(m, MethodSignatureField) }

// MethodBody returns a method's lambda or native index.
func (h *Heap) MethodBody(m value.Value) value.Value { return h.Field(m, MethodBodyField) }

// SelectorName returns the name of a selector.
func (h *Heap) SelectorName(s value.Value) string { return h.StringOf(h.Field(s, SelectorNameField)) }

// SelectorArgc returns the argument count of a selector.
func (h *Heap) SelectorArgc(s value.Value) int { return int(h.Field(s, SelectorArgcField).Int()) }

// ---------------------------------------------------------------------------
// Printing
// ---------------------------------------------------------------------------

// Describe renders v for diagnostics and REPL output.
func (h *Heap) Describe(v value.Value) string {
	var sb strings.Builder
	h.describe(&sb, v, 2)
	return sb.String()
}

func (h *Heap) describe(sb *strings.Builder, v value.Value, depth int) {
	switch {
	case v.IsSmallInteger():
		fmt.Fprintf(sb, "%d", v.Int())
		return
	case !v.IsHeapObject():
		sb.WriteString(v.String())
		return
	}

	switch v {
	case h.roots.Get(NilRoot):
		sb.WriteString("nil")
		return
	case h.roots.Get(TrueRoot):
		sb.WriteString("true")
		return
	case h.roots.Get(FalseRoot):
		sb.WriteString("false")
		return
	}

	switch h.InstanceTypeOf(v) {
	case StringType:
		fmt.Fprintf(sb, "%q", h.StringOf(v))
	case TupleType:
		if depth == 0 {
			sb.WriteString("(...)")
			return
		}
		sb.WriteByte('(')
		for i, n := 0, h.TupleLength(v); i < n; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			h.describe(sb, h.TupleAt(v, i), depth-1)
		}
		sb.WriteByte(')')
	case SpeciesType:
		fmt.Fprintf(sb, "#<species %s>", h.SpeciesName(v))
	case LambdaType:
		fmt.Fprintf(sb, "#<lambda %s/%d>", h.LambdaName(v), h.LambdaArgc(v))
	case SelectorType:
		fmt.Fprintf(sb, "#<selector %s/%d>", h.SelectorName(v), h.SelectorArgc(v))
	case MethodType:
		sel := h.MethodSelector(v)
		fmt.Fprintf(sb, "#<method %s/%d>", h.SelectorName(sel), h.SelectorArgc(sel))
	case BlobType:
		fmt.Fprintf(sb, "#<blob %d bytes>", h.ByteLength(v))
	default:
		fmt.Fprintf(sb, "#<%s>", h.SpeciesName(h.SpeciesOf(v)))
	}
}
