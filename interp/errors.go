package interp

import (
	"errors"
	"fmt"

	"github.com/chazu/quark/bytecode"
)

var (
	// ErrMethodNotFound means no method matched a send.
	ErrMethodNotFound = errors.New("method not found")
	// ErrAmbiguousMethod means two or more methods matched a send equally well.
	ErrAmbiguousMethod = errors.New("ambiguous method")
	// ErrUndefinedGlobal means a global instruction named an unbound global.
	ErrUndefinedGlobal = errors.New("undefined global")
	// ErrArity means a lambda was called with the wrong number of arguments.
	ErrArity = errors.New("wrong number of arguments")
	// ErrStackOverflow means the frame limit was reached.
	ErrStackOverflow = errors.New("stack overflow")
)

// LookupError describes a failed method lookup.
type LookupError struct {
	Err        error // ErrMethodNotFound or ErrAmbiguousMethod
	Species    string
	Selector   string
	Argc       int
	Candidates int
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	if errors.Is(e.Err, ErrAmbiguousMethod) {
		return fmt.Sprintf("%s>>%s/%d: %v (%d candidates tie)", e.Species, e.Selector, e.Argc, e.Err, e.Candidates)
	}
	return fmt.Sprintf("%s>>%s/%d: %v", e.Species, e.Selector, e.Argc, e.Err)
}

// Unwrap returns the sentinel.
func (e *LookupError) Unwrap() error { return e.Err }

// RuntimeError locates an error inside running code.
type RuntimeError struct {
	Lambda string
	Offset int
	Op     bytecode.Opcode
	Err    error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	name := e.Lambda
	if name == "" {
		name = "<anonymous>"
	}
	return fmt.Sprintf("%s @%d (%s): %v", name, e.Offset, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *RuntimeError) Unwrap() error { return e.Err }
