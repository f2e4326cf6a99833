package runtime

import (
	"fmt"
	"io"

	"github.com/chazu/quark/bytecode"
	"github.com/chazu/quark/heap"
	"github.com/chazu/quark/value"
)

// lambdaCode reads code words straight out of a heap blob.
type lambdaCode struct {
	heap *heap.Heap
	blob value.Value
}

func (c lambdaCode) Len() int { return c.heap.ByteLength(c.blob) / 2 }

func (c lambdaCode) At(i int) bytecode.Word { return bytecode.Word(c.heap.Uint16At(c.blob, i)) }

// lambdaLiterals turns a lambda's literal tuple back into literals.
type lambdaLiterals struct {
	heap  *heap.Heap
	tuple value.Value
}

func (l lambdaLiterals) Len() int { return l.heap.TupleLength(l.tuple) }

func (l lambdaLiterals) At(i int) bytecode.Literal {
	h := l.heap
	v := h.TupleAt(l.tuple, i)
	switch {
	case v.IsSmallInteger():
		return bytecode.Int(v.Int())
	case h.IsNil(v):
		return bytecode.Nil()
	case v == h.Bool(true):
		return bytecode.Bool(true)
	case v == h.Bool(false):
		return bytecode.Bool(false)
	case h.Is(v, heap.StringType):
		return bytecode.String(h.StringOf(v))
	}
	return bytecode.Literal{Kind: bytecode.OpaqueLiteral, Str: h.Describe(v)}
}

// FprintLambda writes the disassembly of a loaded lambda to w. Nothing is
// allocated, so lambda stays valid throughout.
func (rt *Runtime) FprintLambda(w io.Writer, lambda value.Value, colored bool) error {
	h := rt.heap
	if !h.Is(lambda, heap.LambdaType) {
		return fmt.Errorf("disassemble: %s: %w", h.Describe(lambda), ErrWrongType)
	}
	d := &bytecode.Disassembler{
		Literals: lambdaLiterals{heap: h, tuple: h.LambdaLiterals(lambda)},
		Color:    colored,
	}
	return d.Fprint(w, lambdaCode{heap: h, blob: h.LambdaCode(lambda)})
}
