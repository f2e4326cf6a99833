package interp

import (
	"github.com/chazu/quark/heap"
	"github.com/chazu/quark/value"
)

// WildcardScore is the cost of an argument matched by an untyped parameter.
// It exceeds any realistic species distance, so a typed match always wins.
const WildcardScore = 64

// Lookup finds the method a send should run. Candidates are the methods on
// the receiver's species and its ancestors whose selector has the given
// name and argument count. Each is scored by how far the receiver's species
// is from the defining species plus, per argument, how far the argument's
// species is from the parameter's (WildcardScore for an untyped
// parameter). The lowest score wins; a tie is an ambiguity, never resolved
// by definition order.
func Lookup(h *heap.Heap, receiver value.Value, name string, args []value.Value) (value.Value, error) {
	species := h.SpeciesOf(receiver)
	best := value.Value(0)
	bestScore, ties, seen := -1, 0, 0

	for d, s := 0, species; !h.IsNil(s); d, s = d+1, h.SpeciesParent(s) {
		methods := h.SpeciesMethods(s)
		for i, n := 0, h.TupleLength(methods); i < n; i++ {
			m := h.TupleAt(methods, i)
			sel := h.MethodSelector(m)
			if h.SelectorArgc(sel) != len(args) || h.SelectorName(sel) != name {
				continue
			}
			seen++
			score, ok := signatureScore(h, h.MethodSignature(m), args)
			if !ok {
				continue
			}
			score += d
			switch {
			case bestScore < 0 || score < bestScore:
				best, bestScore, ties = m, score, 1
			case score == bestScore:
				ties++
			}
		}
	}

	switch {
	case bestScore < 0:
		return 0, &LookupError{
			Err:        ErrMethodNotFound,
			Species:    h.SpeciesName(species),
			Selector:   name,
			Argc:       len(args),
			Candidates: seen,
		}
	case ties > 1:
		return 0, &LookupError{
			Err:        ErrAmbiguousMethod,
			Species:    h.SpeciesName(species),
			Selector:   name,
			Argc:       len(args),
			Candidates: ties,
		}
	}
	return best, nil
}

// signatureScore scores args against a signature tuple. An empty tuple
// accepts any arguments at the wildcard cost.
func signatureScore(h *heap.Heap, sig value.Value, args []value.Value) (int, bool) {
	n := h.TupleLength(sig)
	score := 0
	for i, arg := range args {
		var param value.Value
		if i < n {
			param = h.TupleAt(sig, i)
		}
		if param == 0 || h.IsNil(param) {
			score += WildcardScore
			continue
		}
		d := h.SpeciesDistance(h.SpeciesOf(arg), param)
		if d < 0 {
			return 0, false
		}
		score += d
	}
	return score, true
}
