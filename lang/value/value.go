// Package value implements the runtime representation of every value the
// machine manipulates: the tagged {nil, bool, number, object} union, the
// heap object kinds (string, function, native, closure, upvalue), the
// bytecode Chunk that a Function owns, and the tracing mark-sweep garbage
// collector that owns the heap.
package value

import "strconv"

// Value is the interface implemented by every value the virtual machine can
// hold: Nil, Bool, Number, and every heap Obj kind. Unlike a tree-walking
// interpreter's Value there is no "class" or "instance" kind: those are an
// explicit non-goal of this implementation.
type Value interface {
	// String returns the value's canonical printed form, exactly as the
	// Print opcode renders it.
	String() string
	// Type names the value's dynamic type, e.g. "number" or "string".
	Type() string
}

// Nil is the sole value of the nil type.
type Nil struct{}

// None is the single Nil value; comparisons and the zero Value should use it
// rather than constructing a new Nil{}, though they are interchangeable.
var None = Nil{}

func (Nil) String() string { return "nil" }
func (Nil) Type() string   { return "nil" }

// Bool is the type of boolean values.
type Bool bool

const (
	False Bool = false
	True  Bool = true
)

func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (Bool) Type() string { return "bool" }

// Number is the language's only numeric type: an IEEE-754 double.
type Number float64

func (n Number) String() string { return strconv.FormatFloat(float64(n), 'g', -1, 64) }
func (Number) Type() string     { return "number" }

// Truth reports the truthiness of v: everything is truthy except Nil and
// Bool(false), including Number(0) and the empty string.
func Truth(v Value) bool {
	switch v := v.(type) {
	case Nil:
		return false
	case Bool:
		return bool(v)
	default:
		return true
	}
}

// Equal reports whether a and b are the same value: Nil equals Nil, Bool and
// Number compare by value, and every heap Obj kind compares by reference
// identity. Strings are deliberately NOT interned (see the String type doc),
// so two distinct String objects with identical contents are not Equal.
func Equal(a, b Value) bool {
	return a == b
}
