// Package machine implements the stack-based virtual machine that executes
// compiled bytecode: the value stack, the call-frame stack, the globals
// table, the open-upvalue list, and the instruction dispatch loop itself.
package machine

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dolthub/swiss"
	"github.com/mna/loxvm/lang/compiler"
	"github.com/mna/loxvm/lang/value"
)

// DefaultMaxCallDepth and DefaultStackSlots are the machine's minimum
// guaranteed capacity: 64 nested call frames and 256 value-stack slots per
// frame.
const (
	DefaultMaxCallDepth = 64
	DefaultStackSlots   = DefaultMaxCallDepth * 256
)

// callFrame records one active function activation: the Closure it is
// running, the offset of the next instruction to execute within that
// closure's function's chunk, and the absolute stack index where the
// callee's window begins (slot 0 is the closure itself, slot 1 the first
// argument).
type callFrame struct {
	closure *value.Closure
	ip      int
	base    int
}

// Thread is one virtual machine: it owns a value stack, a call-frame stack,
// a globals table, and the GC heap those structures are rooted against. The
// source language has no concurrency, so exactly one Thread ever runs
// against a given Heap at a time.
type Thread struct {
	// Stdout and Stderr are the standard I/O abstractions the thread prints
	// through. If nil, os.Stdout and os.Stderr are used respectively.
	Stdout io.Writer
	Stderr io.Writer

	// MaxCallDepth bounds the call-frame stack. A value <= 0 uses
	// DefaultMaxCallDepth.
	MaxCallDepth int
	// StackSlots sizes the value stack. A value <= 0 uses DefaultStackSlots.
	StackSlots int

	// Trace, when true, writes a disassembled instruction and the current
	// stack contents before executing each instruction.
	Trace bool
	// TraceGC, when true, dumps the heap's collector statistics to Stderr
	// once at the end of every Interpret call that compiled successfully.
	TraceGC bool

	heap    *value.Heap
	globals *swiss.Map[string, value.Value]

	stack    []value.Value
	stackTop int

	frames     []callFrame
	frameCount int

	openUpvalues *value.Upvalue

	stdout io.Writer
	stderr io.Writer
}

// NewThread returns a Thread backed by heap, ready to Interpret source.
func NewThread(heap *value.Heap) *Thread {
	return &Thread{heap: heap}
}

func (t *Thread) init() {
	if t.globals != nil {
		return
	}
	t.globals = swiss.NewMap[string, value.Value](64)

	maxCallDepth := t.MaxCallDepth
	if maxCallDepth <= 0 {
		maxCallDepth = DefaultMaxCallDepth
	}
	stackSlots := t.StackSlots
	if stackSlots <= 0 {
		stackSlots = DefaultStackSlots
	}
	t.frames = make([]callFrame, maxCallDepth)
	t.stack = make([]value.Value, stackSlots)

	if t.Stdout != nil {
		t.stdout = t.Stdout
	} else {
		t.stdout = os.Stdout
	}
	if t.Stderr != nil {
		t.stderr = t.Stderr
	} else {
		t.stderr = os.Stderr
	}

	t.registerNatives()
}

// Interpret compiles source and runs it to completion on this Thread. A
// compile error is returned as a *compiler.Error; a runtime fault as a
// *RuntimeError. Globals persist across calls to Interpret on the same
// Thread (so a REPL can call it once per line); the value stack and
// call-frame stack are reset to empty at the start of every call.
func (t *Thread) Interpret(ctx context.Context, source string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t.init()
	t.stackTop = 0
	t.frameCount = 0
	t.openUpvalues = nil

	fn, err := compiler.Compile(source, t.heap)
	if err != nil {
		return err
	}

	t.push(fn)
	closure := t.heap.NewClosure(t, fn, nil)
	t.pop()
	t.push(closure)
	if rerr := t.callValue(closure, 0); rerr != nil {
		return rerr
	}

	err = t.run(ctx)
	t.traceGC()
	return err
}

// Heap returns the thread's GC heap, primarily so the CLI can report GC
// statistics after running a script.
func (t *Thread) Heap() *value.Heap { return t.heap }

func (t *Thread) push(v value.Value) {
	t.stack[t.stackTop] = v
	t.stackTop++
}

func (t *Thread) pop() value.Value {
	t.stackTop--
	v := t.stack[t.stackTop]
	t.stack[t.stackTop] = nil
	return v
}

func (t *Thread) peek(distance int) value.Value {
	return t.stack[t.stackTop-1-distance]
}

// MarkRoots implements value.RootProvider: it exposes every value reachable
// directly from the machine's own state, the roots a collection triggered
// during execution must start from.
func (t *Thread) MarkRoots(mark func(value.Value)) {
	for i := 0; i < t.stackTop; i++ {
		if t.stack[i] != nil {
			mark(t.stack[i])
		}
	}
	for i := 0; i < t.frameCount; i++ {
		mark(t.frames[i].closure)
	}
	for uv := t.openUpvalues; uv != nil; uv = uv.NextUpvalue {
		mark(uv)
	}
	if t.globals != nil {
		t.globals.Iter(func(_ string, v value.Value) bool {
			mark(v)
			return false
		})
	}
}

func (t *Thread) runtimeError(format string, args ...interface{}) *RuntimeError {
	msg := fmt.Sprintf(format, args...)
	trace := make([]string, 0, t.frameCount)
	for i := t.frameCount - 1; i >= 0; i-- {
		f := &t.frames[i]
		line := f.closure.Function.Chunk.Lines[f.ip-1]
		if f.closure.Function.Kind == value.FuncScript {
			trace = append(trace, fmt.Sprintf("[line %d] in script", line))
		} else {
			trace = append(trace, fmt.Sprintf("[line %d] in %s()", line, f.closure.Function.Name.Chars))
		}
	}
	rerr := &RuntimeError{Msg: msg, Trace: trace}
	fmt.Fprintln(t.stderr, rerr.Error())

	t.stackTop = 0
	t.frameCount = 0
	t.openUpvalues = nil
	return rerr
}
