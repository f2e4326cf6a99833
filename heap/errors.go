package heap

import (
	"errors"
	"fmt"

	"github.com/chazu/quark/value"
)

// FatalCode identifies an unrecoverable runtime condition.
type FatalCode int

// Stable fatal codes - do not change values.
const (
	FatalOutOfMemory     FatalCode = 1001 // allocation failed after a collection
	FatalGCDisallowed    FatalCode = 1002 // collection requested inside a DisallowGC guard
	FatalDanglingPointer FatalCode = 1003 // address outside every live space
	FatalCorruptHeap     FatalCode = 1004 // malformed header or species
)

// String returns the code as "HEAP1001".
func (c FatalCode) String() string {
	return fmt.Sprintf("HEAP%d", int(c))
}

// FatalError is raised with panic when the runtime cannot continue. Callers
// at a process boundary recover it with CatchFatal.
type FatalError struct {
	Code    FatalCode
	Message string
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal %s: %s", e.Code, e.Message)
}

// Signal returns the signal word describing e.
func (e *FatalError) Signal() value.Value {
	return value.FatalErrorSignal(uint32(e.Code))
}

// Fatalf logs and panics with a *FatalError.
func Fatalf(code FatalCode, format string, args ...any) {
	err := &FatalError{Code: code, Message: fmt.Sprintf(format, args...)}
	log.Critical(err.Error())
	panic(err)
}

// CatchFatal recovers a *FatalError panic into *errp. Any other panic is
// re-raised. Use it deferred:
//
//	defer heap.CatchFatal(&err)
func CatchFatal(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if fe, ok := r.(*FatalError); ok {
		*errp = fe
		return
	}
	panic(r)
}

// ErrAllocationFailed matches every *SignalError carrying an
// AllocationFailed signal.
var ErrAllocationFailed = errors.New("allocation failed")

// SignalError carries a non-success signal out of a raw heap operation.
type SignalError struct {
	Signal value.Value
}

// Error implements the error interface.
func (e *SignalError) Error() string {
	return fmt.Sprintf("heap: %s (payload %d)", e.Signal.SignalType(), e.Signal.SignalPayload())
}

// Is reports whether target is the sentinel for e's signal type.
func (e *SignalError) Is(target error) bool {
	return target == ErrAllocationFailed && e.Signal.SignalType() == value.AllocationFailed
}

func allocationFailed(size uint64) error {
	return &SignalError{Signal: value.AllocationFailedSignal(size)}
}
