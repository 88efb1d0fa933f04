package value

// Obj is implemented by every heap-allocated Value kind: String, Function,
// Native, Closure, and Upvalue. It exists so the Heap can walk and mark the
// intrusive object list without knowing the concrete kind ahead of time.
type Obj interface {
	Value
	header() *objHeader
}

// objHeader is embedded by every Obj kind. It links the object into the
// heap's intrusive singly-linked allocation list and carries the GC mark
// bit. Embedding a struct (rather than requiring each kind to re-implement
// linkage) keeps every New* constructor in heap.go identical in shape.
type objHeader struct {
	marked bool
	next   Obj
}

func (h *objHeader) header() *objHeader { return h }

// String is an immutable heap-allocated string. Strings are deliberately
// NOT interned: equality of two String objects is reference identity (see
// Equal), even when their Chars are identical. Only the globals table looks
// strings up by content rather than identity.
type String struct {
	objHeader
	Chars string
	Hash  uint32
}

func (s *String) String() string { return s.Chars }
func (*String) Type() string     { return "string" }

// hashString computes the 32-bit FNV-1a hash used as String.Hash.
func hashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// FuncKind distinguishes a top-level script body from a user-declared
// function; both are represented by Function, following the source
// language's own choice to compile the whole script as an implicit
// zero-arity function.
type FuncKind uint8

const (
	FuncScript FuncKind = iota
	FuncFunction
)

// Function is a compiled function prototype: its arity, how many upvalues
// its closures must capture, and its own Chunk of bytecode. It carries no
// captured state itself; a Closure pairs a Function with its Upvalues.
type Function struct {
	objHeader
	Name         *String // never nil; the empty string names the implicit script function
	Arity        int
	UpvalueCount int
	Kind         FuncKind
	Chunk        Chunk
}

func (f *Function) String() string {
	switch {
	case f.Kind == FuncScript:
		return "<script>"
	case f.Name.Chars == "":
		return "<fn>"
	default:
		return "<fn " + f.Name.Chars + ">"
	}
}
func (*Function) Type() string { return "function" }

// NativeFn is the signature every native function implements. It receives
// its already-evaluated arguments and returns a result or a runtime error;
// the machine package is responsible for turning a returned error into the
// same kind of error a script-raised runtime fault would produce.
type NativeFn func(args []Value) (Value, error)

// Native wraps a Go function so it can be called from compiled code exactly
// like a Closure.
type Native struct {
	objHeader
	Name *String
	Fn   NativeFn
}

func (n *Native) String() string { return "<native fn>" }
func (*Native) Type() string     { return "native" }

// Closure pairs a Function with the Upvalues its body captured at the point
// it was created. Every callable value that isn't Native is a Closure, even
// a function that captures nothing: this matches the source language's own
// choice to wrap every OpClosure result uniformly, rather than special-case
// capture-free functions.
type Closure struct {
	objHeader
	Function *Function
	Upvalues []*Upvalue
}

func (c *Closure) String() string { return c.Function.String() }
func (*Closure) Type() string     { return "closure" }

// Upvalue is a reference to a variable captured by a closure. While Open is
// true, the upvalue refers to Index, a slot on the machine's value stack:
// writes through any closure sharing the upvalue are visible to the
// enclosing frame and vice versa. Closing the upvalue (when the owning
// frame returns) copies the slot's current value into Closed and marks it
// no longer Open.
//
// NextUpvalue threads every currently open Upvalue into a single list owned
// by the machine, ordered by descending Index, so that two closures
// capturing the same local share one Upvalue rather than observing
// diverging copies.
type Upvalue struct {
	objHeader
	Index       int
	Open        bool
	Closed      Value
	NextUpvalue *Upvalue
}

func (u *Upvalue) String() string { return "upvalue" }
func (*Upvalue) Type() string     { return "upvalue" }

// Get returns the upvalue's current value; stack is the machine's value
// stack, consulted only while the upvalue is still open.
func (u *Upvalue) Get(stack []Value) Value {
	if u.Open {
		return stack[u.Index]
	}
	return u.Closed
}

// Set assigns v through the upvalue, whether open or closed.
func (u *Upvalue) Set(stack []Value, v Value) {
	if u.Open {
		stack[u.Index] = v
		return
	}
	u.Closed = v
}

// Close copies the current value out of the stack slot and marks the
// upvalue no longer open; after Close, the upvalue no longer observes
// writes to the stack slot it used to share.
func (u *Upvalue) Close(stack []Value) {
	u.Closed = stack[u.Index]
	u.Open = false
}
