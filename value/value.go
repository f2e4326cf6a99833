// Package value defines the tagged word every other quark package passes
// around. It is the only package that knows where the tag bits live.
package value

import "fmt"

// Value is a tagged machine word.
//
// The two low bits select one of four mutually exclusive classes:
//
//	00  heap object pointer (8-byte aligned virtual address)
//	01  small integer (signed, upper 62 bits)
//	10  forward pointer (address of an evacuated object's copy)
//	11  signal (4-bit type, 32-bit payload)
//
// Heap objects are aligned to PointerSize, so a raw address already has a
// zero tag and converts to a Value without shifting.
type Value uint64

// Tag identifies the class of a Value.
type Tag uint8

const (
	TagObject       Tag = 0
	TagSmallInteger Tag = 1
	TagForward      Tag = 2
	TagSignal       Tag = 3
)

const (
	tagBits = 2
	tagMask = (1 << tagBits) - 1
)

// PointerSize is the size in bytes of one heap word. All heap addresses and
// object sizes are multiples of it.
const PointerSize = 8

// SmallInteger range: word width minus tag width minus the sign bit.
const (
	MaxSmallInteger int64 = (1 << (64 - tagBits - 1)) - 1
	MinSmallInteger int64 = -(1 << (64 - tagBits - 1))
)

// Address is a virtual heap address. Zero is never a valid object address.
type Address uint64

// Tag returns the class of v.
func (v Value) Tag() Tag {
	return Tag(v & tagMask)
}

// Classify returns the class of v. It is total: every word has exactly one class.
func Classify(v Value) Tag {
	return v.Tag()
}

func (t Tag) String() string {
	switch t {
	case TagObject:
		return "HeapObjectPointer"
	case TagSmallInteger:
		return "SmallInteger"
	case TagForward:
		return "ForwardPointer"
	default:
		return "Signal"
	}
}

// IsHeapObject reports whether v is a heap object pointer.
func (v Value) IsHeapObject() bool { return v.Tag() == TagObject }

// IsSmallInteger reports whether v is a small integer.
func (v Value) IsSmallInteger() bool { return v.Tag() == TagSmallInteger }

// IsForwardPointer reports whether v is a forward pointer.
func (v Value) IsForwardPointer() bool { return v.Tag() == TagForward }

// IsSignal reports whether v is a signal.
func (v Value) IsSignal() bool { return v.Tag() == TagSignal }

// ---------------------------------------------------------------------------
// Heap pointers
// ---------------------------------------------------------------------------

// FromAddress tags a heap address as an object pointer.
func FromAddress(addr Address) Value {
	if DebugChecks && !IsAligned(uint64(addr)) {
		panic(fmt.Sprintf("value: unaligned object address %#x", uint64(addr)))
	}
	return Value(addr)
}

// Address returns the address of a heap object pointer.
func (v Value) Address() Address {
	if DebugChecks && !v.IsHeapObject() {
		panic(fmt.Sprintf("value: Address of %v", v))
	}
	return Address(v)
}

// NewForwardPointer builds the header word left behind in an evacuated object.
func NewForwardPointer(target Address) Value {
	if DebugChecks && !IsAligned(uint64(target)) {
		panic(fmt.Sprintf("value: unaligned forward target %#x", uint64(target)))
	}
	return Value(uint64(target) | uint64(TagForward))
}

// ForwardTarget returns the address a forward pointer refers to.
func (v Value) ForwardTarget() Address {
	if DebugChecks && !v.IsForwardPointer() {
		panic(fmt.Sprintf("value: ForwardTarget of %v", v))
	}
	return Address(uint64(v) &^ tagMask)
}

// Align rounds size up to the next multiple of PointerSize.
func Align(size uint64) uint64 {
	return (size + PointerSize - 1) &^ (PointerSize - 1)
}

// IsAligned reports whether n is a multiple of PointerSize.
func IsAligned(n uint64) bool {
	return n&(PointerSize-1) == 0
}

func (v Value) String() string {
	switch v.Tag() {
	case TagObject:
		return fmt.Sprintf("obj@%#x", uint64(v))
	case TagSmallInteger:
		return fmt.Sprintf("%d", v.Int())
	case TagForward:
		return fmt.Sprintf("fwd@%#x", uint64(v.ForwardTarget()))
	default:
		return fmt.Sprintf("signal(%s, %d)", v.SignalType(), v.SignalPayload())
	}
}
