//go:build quarkdebug

package value

import "testing"

func TestFromIntOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-range small integer")
		}
	}()
	FromInt(MaxSmallInteger + 1)
}
