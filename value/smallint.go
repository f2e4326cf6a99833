package value

import "fmt"

// FitsSmallInteger reports whether n can be represented as a small integer.
func FitsSmallInteger(n int64) bool {
	return n >= MinSmallInteger && n <= MaxSmallInteger
}

// FromInt encodes n as a small integer. The range is only checked when debug
// checks are compiled in; use TryFromInt for untrusted input.
func FromInt(n int64) Value {
	if DebugChecks && !FitsSmallInteger(n) {
		panic(fmt.Sprintf("value: %d out of small integer range", n))
	}
	return Value(uint64(n)<<tagBits | uint64(TagSmallInteger))
}

// TryFromInt encodes n, reporting false when it is out of range.
func TryFromInt(n int64) (Value, bool) {
	if !FitsSmallInteger(n) {
		return 0, false
	}
	return FromInt(n), true
}

// Int decodes a small integer. The shift is arithmetic so the sign survives.
func (v Value) Int() int64 {
	if DebugChecks && !v.IsSmallInteger() {
		panic(fmt.Sprintf("value: Int of %s", v.Tag()))
	}
	return int64(v) >> tagBits
}
