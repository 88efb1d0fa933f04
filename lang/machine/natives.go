package machine

import (
	"time"

	"github.com/mna/loxvm/lang/value"
)

// registerNatives installs the native function surface into the globals
// table at thread start. Natives are ordinary global values like any
// user-declared one; there is no separate "predeclared" namespace.
func (t *Thread) registerNatives() {
	t.defineNative("clock", nativeClock)
}

func (t *Thread) defineNative(name string, fn value.NativeFn) {
	nameStr := t.heap.NewString(t, name)
	native := t.heap.NewNative(t, nameStr, fn)
	t.globals.Put(name, native)
}

// nativeClock returns the number of seconds elapsed since the Unix epoch as
// a floating point Number, matching the reference implementation's clock().
func nativeClock(args []value.Value) (value.Value, error) {
	return value.Number(float64(time.Now().UnixNano()) / 1e9), nil
}
