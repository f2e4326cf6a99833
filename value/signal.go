package value

import "fmt"

// SignalType is the 4-bit type code carried by a signal.
type SignalType uint8

const (
	Success SignalType = iota
	AllocationFailed
	InternalError
	FatalError
	Nothing
)

const (
	signalTypeBits  = 4
	signalTypeMask  = (1 << signalTypeBits) - 1
	signalTypeShift = tagBits
	signalDataShift = tagBits + signalTypeBits
)

var signalNames = [...]string{
	Success:          "Success",
	AllocationFailed: "AllocationFailed",
	InternalError:    "InternalError",
	FatalError:       "FatalError",
	Nothing:          "Nothing",
}

func (t SignalType) String() string {
	if int(t) < len(signalNames) {
		return signalNames[t]
	}
	return fmt.Sprintf("SignalType(%d)", uint8(t))
}

// NewSignal packs a type code and payload into a signal word.
func NewSignal(t SignalType, payload uint32) Value {
	return Value(uint64(payload)<<signalDataShift |
		uint64(t&signalTypeMask)<<signalTypeShift |
		uint64(TagSignal))
}

// SignalType returns the type code of a signal.
func (v Value) SignalType() SignalType {
	if DebugChecks && !v.IsSignal() {
		panic(fmt.Sprintf("value: SignalType of %s", v.Tag()))
	}
	return SignalType((uint64(v) >> signalTypeShift) & signalTypeMask)
}

// SignalPayload returns the 32-bit payload of a signal.
func (v Value) SignalPayload() uint32 {
	if DebugChecks && !v.IsSignal() {
		panic(fmt.Sprintf("value: SignalPayload of %s", v.Tag()))
	}
	return uint32(uint64(v) >> signalDataShift)
}

// SuccessSignal is the signal returned by operations with no other result.
func SuccessSignal() Value { return NewSignal(Success, 0) }

// AllocationFailedSignal records a failed request for size bytes. Sizes that
// do not fit the payload saturate.
func AllocationFailedSignal(size uint64) Value {
	if size > 0xFFFFFFFF {
		size = 0xFFFFFFFF
	}
	return NewSignal(AllocationFailed, uint32(size))
}

// InternalErrorSignal reports a recoverable internal condition.
func InternalErrorSignal(code uint32) Value { return NewSignal(InternalError, code) }

// FatalErrorSignal reports an unrecoverable condition.
func FatalErrorSignal(code uint32) Value { return NewSignal(FatalError, code) }

// NothingSignal is the "no result" marker used by lookups.
func NothingSignal() Value { return NewSignal(Nothing, 0) }
