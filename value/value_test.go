package value

import "testing"

// ---------------------------------------------------------------------------
// Tag classification
// ---------------------------------------------------------------------------

func TestTagsAreDisjoint(t *testing.T) {
	samples := []Value{
		FromInt(0),
		FromInt(-1),
		FromInt(MaxSmallInteger),
		FromAddress(0x10000),
		FromAddress(0xFFFF_FFF8),
		NewForwardPointer(0x20008),
		SuccessSignal(),
		AllocationFailedSignal(64),
		NothingSignal(),
	}

	for _, v := range samples {
		n := 0
		for _, is := range []bool{v.IsHeapObject(), v.IsSmallInteger(), v.IsForwardPointer(), v.IsSignal()} {
			if is {
				n++
			}
		}
		if n != 1 {
			t.Errorf("%#x matched %d classes, want exactly 1", uint64(v), n)
		}
	}
}

func TestClassifyIsTotal(t *testing.T) {
	for w := uint64(0); w < 64; w++ {
		tag := Classify(Value(w))
		if tag > TagSignal {
			t.Fatalf("Classify(%d) = %d", w, tag)
		}
	}
}

// ---------------------------------------------------------------------------
// Small integers
// ---------------------------------------------------------------------------

func TestSmallIntegerRoundTrip(t *testing.T) {
	tests := []int64{0, 1, -1, 42, -42, 1 << 40, -(1 << 40), MaxSmallInteger, MinSmallInteger}

	for _, n := range tests {
		v := FromInt(n)
		if !v.IsSmallInteger() {
			t.Errorf("FromInt(%d) is %s", n, v.Tag())
			continue
		}
		if got := v.Int(); got != n {
			t.Errorf("FromInt(%d).Int() = %d", n, got)
		}
	}
}

func TestSmallIntegerRange(t *testing.T) {
	if !FitsSmallInteger(MaxSmallInteger) || !FitsSmallInteger(MinSmallInteger) {
		t.Error("range bounds should fit")
	}
	if FitsSmallInteger(MaxSmallInteger+1) || FitsSmallInteger(MinSmallInteger-1) {
		t.Error("values outside the range should not fit")
	}
	if _, ok := TryFromInt(MaxSmallInteger + 1); ok {
		t.Error("TryFromInt should reject overflow")
	}
	if v, ok := TryFromInt(-7); !ok || v.Int() != -7 {
		t.Errorf("TryFromInt(-7) = %v, %v", v, ok)
	}
}

// ---------------------------------------------------------------------------
// Pointers and signals
// ---------------------------------------------------------------------------

func TestAddressRoundTrip(t *testing.T) {
	v := FromAddress(0x12340)
	if v.Address() != 0x12340 {
		t.Errorf("Address() = %#x", uint64(v.Address()))
	}
	f := NewForwardPointer(0x12340)
	if f.ForwardTarget() != 0x12340 {
		t.Errorf("ForwardTarget() = %#x", uint64(f.ForwardTarget()))
	}
	if f == v {
		t.Error("forward pointer must differ from the object pointer")
	}
}

func TestSignalFields(t *testing.T) {
	s := AllocationFailedSignal(4096)
	if s.SignalType() != AllocationFailed {
		t.Errorf("type = %s", s.SignalType())
	}
	if s.SignalPayload() != 4096 {
		t.Errorf("payload = %d", s.SignalPayload())
	}
	if got := FatalErrorSignal(7).SignalType(); got != FatalError {
		t.Errorf("fatal type = %s", got)
	}
	if got := AllocationFailedSignal(1 << 40).SignalPayload(); got != 0xFFFFFFFF {
		t.Errorf("oversized payload = %#x, want saturated", got)
	}
}

func TestAlign(t *testing.T) {
	tests := []struct{ in, want uint64 }{{0, 0}, {1, 8}, {8, 8}, {9, 16}, {23, 24}}
	for _, tt := range tests {
		if got := Align(tt.in); got != tt.want {
			t.Errorf("Align(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
