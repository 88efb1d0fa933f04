package machine

import (
	"fmt"

	"github.com/davecgh/go-spew/spew"
)

// traceInstruction writes the current stack contents followed by the
// disassembly of the instruction about to execute, grounded on the
// retrieved original implementation's debug_trace_execution flag
// (vm.rs/debug.rs).
func (t *Thread) traceInstruction(frame *callFrame) {
	fmt.Fprint(t.stdout, "          ")
	for i := 0; i < t.stackTop; i++ {
		fmt.Fprintf(t.stdout, "[ %s ]", t.stack[i].String())
	}
	fmt.Fprintln(t.stdout)
	frame.closure.Function.Chunk.DisassembleInstruction(t.stdout, frame.ip)
}

var gcStatsDumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	DisableMethods:          true,
}

// traceGC logs a snapshot of the heap's collector statistics; it is the
// home for the --trace-gc flag's output. go-spew is used here, rather than
// a hand-written formatter, because the statistics snapshot is an ordinary
// struct and dumping it is exactly the ambient debug-dump job the package
// is for elsewhere in the example pack.
func (t *Thread) traceGC() {
	if !t.TraceGC {
		return
	}
	stats := t.heap.Stats()
	fmt.Fprint(t.stderr, "-- gc ")
	gcStatsDumper.Fdump(t.stderr, stats)
}
