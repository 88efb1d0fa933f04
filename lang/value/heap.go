package value

// RootProvider is implemented by whoever owns values the heap cannot
// otherwise discover: the machine (its value stack, call frames, globals
// table and open-upvalue list) while a script runs, and the compiler (the
// chain of in-progress Function objects, enclosing function within
// enclosing function) while a script compiles. Heap.Collect asks its
// caller's RootProvider to mark every such root before tracing.
type RootProvider interface {
	MarkRoots(mark func(Value))
}

// Stats exposes garbage collector counters, surfaced to the CLI's
// --trace-gc flag and exercised directly by stress-mode tests.
type Stats struct {
	Collections    int
	BytesAllocated int
	NextGCBytes    int
}

// Heap owns every heap-allocated Obj and the tracing mark-sweep collector
// that reclaims them. A Heap has no notion of threads: the source language
// is single-threaded, so one Heap belongs to exactly one Thread (and,
// transiently, to whichever Compiler is building the Function that Thread
// will run).
type Heap struct {
	objects Obj

	bytesAllocated int
	nextGC         int
	gray           []Obj

	// GrowFactor controls the heuristic collection threshold: after a
	// collection, the next one triggers once bytesAllocated again reaches
	// bytesAllocated*GrowFactor. It is configurable (LOXVM_GC_GROW_FACTOR)
	// because the right trade-off between pause frequency and peak memory
	// depends on the embedding program.
	GrowFactor int
	// Stress, when true, forces a full collection on every single
	// allocation rather than waiting for the byte-budget heuristic. It
	// exists so tests can assert that a reachable object is never freed
	// even under maximally aggressive collection.
	Stress bool

	Collections int
}

// defaultHeapGrowBytes is the initial byte budget before the first
// heuristic collection, overridable via LOXVM_GC_HEAP_GROW_BYTES.
const defaultHeapGrowBytes = 1 << 20

// NewHeap returns an empty Heap using the default collection heuristics.
func NewHeap() *Heap {
	return &Heap{nextGC: defaultHeapGrowBytes, GrowFactor: 2}
}

// SetInitialGrowBytes overrides the byte budget before the first heuristic
// collection (LOXVM_GC_HEAP_GROW_BYTES). The value holds only until the
// next collection, which recomputes the budget from GrowFactor. A value
// <= 0 leaves the current budget untouched.
func (h *Heap) SetInitialGrowBytes(n int) {
	if n > 0 {
		h.nextGC = n
	}
}

// Stats reports the heap's current counters.
func (h *Heap) Stats() Stats {
	return Stats{Collections: h.Collections, BytesAllocated: h.bytesAllocated, NextGCBytes: h.nextGC}
}

func (h *Heap) link(o Obj, size int) {
	hdr := o.header()
	hdr.next = h.objects
	h.objects = o
	h.bytesAllocated += size
}

// maybeCollect runs a collection if stress mode is enabled or the byte
// budget has been exceeded. Constructors call it before linking in the new
// object, mirroring the reference implementation's choice to collect
// immediately before every allocation rather than after: the object being
// constructed is never itself a GC root, so any value it will hold must
// already be reachable through roots (typically still sitting on the
// machine's value stack, or referenced from a Function under compilation)
// before the constructor that will store it runs.
func (h *Heap) maybeCollect(roots RootProvider) {
	if h.Stress || h.bytesAllocated >= h.nextGC {
		h.Collect(roots)
	}
}

// Collect runs a full mark-sweep pass: every value roots exposes via
// MarkRoots is marked, the mark is traced transitively through every
// object's outgoing references, and every unmarked object is unlinked and
// discarded. roots may be nil, in which case only objects already marked
// from elsewhere in the process (none, in practice) survive; callers should
// always pass the current thread's or compiler's RootProvider.
func (h *Heap) Collect(roots RootProvider) {
	h.gray = h.gray[:0]
	if roots != nil {
		roots.MarkRoots(h.markValue)
	}
	for len(h.gray) > 0 {
		o := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		h.blacken(o)
	}
	h.sweep()
	h.nextGC = h.bytesAllocated * h.GrowFactor
	if h.nextGC < defaultHeapGrowBytes {
		h.nextGC = defaultHeapGrowBytes
	}
	h.Collections++
}

// markValue marks v if it refers to a heap object; Nil, Bool and Number
// values are not subject to collection at all.
func (h *Heap) markValue(v Value) {
	if o, ok := v.(Obj); ok {
		h.markObj(o)
	}
}

func (h *Heap) markObj(o Obj) {
	if o == nil {
		return
	}
	hdr := o.header()
	if hdr.marked {
		return
	}
	hdr.marked = true
	h.gray = append(h.gray, o)
}

// blacken marks every value directly reachable from o.
func (h *Heap) blacken(o Obj) {
	switch o := o.(type) {
	case *String:
		// no outgoing references.
	case *Native:
		h.markObj(o.Name)
	case *Function:
		h.markObj(o.Name)
		for _, c := range o.Chunk.Constants {
			h.markValue(c)
		}
	case *Closure:
		h.markObj(o.Function)
		for _, uv := range o.Upvalues {
			h.markObj(uv)
		}
	case *Upvalue:
		if !o.Open {
			h.markValue(o.Closed)
		}
		// while open, the slot it refers to is already a root via the
		// machine's value stack, so there is nothing further to trace.
	}
}

func (h *Heap) sweep() {
	var prev Obj
	cur := h.objects
	for cur != nil {
		hdr := cur.header()
		next := hdr.next
		if hdr.marked {
			hdr.marked = false
			prev = cur
			cur = next
			continue
		}
		if prev == nil {
			h.objects = next
		} else {
			prev.header().next = next
		}
		h.bytesAllocated -= objSize(cur)
		if h.bytesAllocated < 0 {
			h.bytesAllocated = 0
		}
		cur = next
	}
}

// objSize approximates an object's heap footprint for the byte-budget
// heuristic. It need not be exact: only its relative weighting across kinds
// matters for deciding when to collect.
func objSize(o Obj) int {
	switch o := o.(type) {
	case *String:
		return 24 + len(o.Chars)
	case *Function:
		return 64 + len(o.Chunk.Code) + len(o.Chunk.Constants)*8
	case *Native:
		return 32
	case *Closure:
		return 24 + len(o.Upvalues)*8
	case *Upvalue:
		return 24
	default:
		return 16
	}
}

// NewString allocates a String with the given contents.
func (h *Heap) NewString(roots RootProvider, s string) *String {
	h.maybeCollect(roots)
	obj := &String{Chars: s, Hash: hashString(s)}
	h.link(obj, objSize(obj))
	return obj
}

// NewFunction allocates an empty Function prototype ready to have its Chunk
// filled in by the compiler.
func (h *Heap) NewFunction(roots RootProvider, name *String, kind FuncKind) *Function {
	h.maybeCollect(roots)
	obj := &Function{Name: name, Kind: kind}
	h.link(obj, objSize(obj))
	return obj
}

// NewNative wraps fn as a callable Native value named name.
func (h *Heap) NewNative(roots RootProvider, name *String, fn NativeFn) *Native {
	h.maybeCollect(roots)
	obj := &Native{Name: name, Fn: fn}
	h.link(obj, objSize(obj))
	return obj
}

// NewClosure allocates a Closure over fn with upvalues (which the caller has
// already resolved and, where necessary, captured via NewUpvalue).
func (h *Heap) NewClosure(roots RootProvider, fn *Function, upvalues []*Upvalue) *Closure {
	h.maybeCollect(roots)
	obj := &Closure{Function: fn, Upvalues: upvalues}
	h.link(obj, objSize(obj))
	return obj
}

// NewUpvalue allocates an open Upvalue referring to the given stack index.
func (h *Heap) NewUpvalue(roots RootProvider, index int) *Upvalue {
	h.maybeCollect(roots)
	obj := &Upvalue{Index: index, Open: true}
	h.link(obj, objSize(obj))
	return obj
}
