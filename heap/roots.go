package heap

import "github.com/chazu/quark/value"

// Root identifies a well-known object every runtime needs.
type Root int

const (
	SpeciesSpeciesRoot Root = iota
	ObjectSpeciesRoot
	TupleSpeciesRoot
	StringSpeciesRoot
	BlobSpeciesRoot
	LambdaSpeciesRoot
	MethodSpeciesRoot
	SelectorSpeciesRoot
	SmallIntegerSpeciesRoot
	NilSpeciesRoot
	TrueSpeciesRoot
	FalseSpeciesRoot
	NilRoot
	TrueRoot
	FalseRoot
	EmptyTupleRoot
	rootCount
)

// Roots is the table of well-known objects. It is a root source in its own
// right.
type Roots struct {
	entries [rootCount]value.Value
}

// Get returns the current value of root r.
func (r *Roots) Get(root Root) value.Value { return r.entries[root] }

func (r *Roots) set(root Root, v value.Value) { r.entries[root] = v }

// VisitRoots visits every entry.
func (r *Roots) VisitRoots(visit func(*value.Value)) {
	for i := range r.entries {
		visit(&r.entries[i])
	}
}
