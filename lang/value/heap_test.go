package value_test

import (
	"testing"

	"github.com/mna/loxvm/lang/value"
	"github.com/stretchr/testify/require"
)

// fakeRoots implements value.RootProvider over a fixed slice, standing in
// for a Thread's value stack or a Compiler's in-progress function chain.
type fakeRoots []value.Value

func (r fakeRoots) MarkRoots(mark func(value.Value)) {
	for _, v := range r {
		mark(v)
	}
}

func TestHeapStressNeverFreesReachableObject(t *testing.T) {
	h := value.NewHeap()
	h.Stress = true

	kept := h.NewString(nil, "kept")
	roots := fakeRoots{kept}

	// Allocate a lot of garbage while kept is rooted; every allocation
	// triggers a collection in stress mode.
	for i := 0; i < 500; i++ {
		h.NewString(roots, "garbage")
	}

	require.Equal(t, "kept", kept.String())
	require.Greater(t, h.Stats().Collections, 0)
}

func TestHeapSweepsUnreachableObjects(t *testing.T) {
	h := value.NewHeap()
	h.Stress = true

	h.NewString(nil, "unreachable")
	before := h.Stats().BytesAllocated

	h.Collect(fakeRoots{})

	require.Less(t, h.Stats().BytesAllocated, before)
}

func TestHeapTracesThroughClosure(t *testing.T) {
	h := value.NewHeap()
	h.Stress = true

	name := h.NewString(nil, "f")
	fn := h.NewFunction(nil, name, value.FuncFunction)
	upName := h.NewString(nil, "captured")
	stack := []value.Value{upName}
	uv := h.NewUpvalue(nil, 0)
	closure := h.NewClosure(nil, fn, []*value.Upvalue{uv})

	roots := fakeRoots{closure}
	for i := 0; i < 100; i++ {
		h.NewString(roots, "garbage")
	}

	require.Equal(t, "f", closure.Function.Name.Chars)
	require.Equal(t, "captured", closure.Upvalues[0].Get(stack).String())
}
