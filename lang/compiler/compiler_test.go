package compiler_test

import (
	"bytes"
	"testing"

	"github.com/mna/loxvm/lang/compiler"
	"github.com/mna/loxvm/lang/value"
	"github.com/stretchr/testify/require"
)

func TestCompileArithmeticExpressionStatement(t *testing.T) {
	heap := value.NewHeap()
	fn, err := compiler.Compile("1 + 2 * 3;", heap)
	require.NoError(t, err)
	require.Equal(t, value.FuncScript, fn.Kind)

	var buf bytes.Buffer
	fn.Chunk.Disassemble(&buf, "script")
	require.Contains(t, buf.String(), "OP_ADD")
	require.Contains(t, buf.String(), "OP_MULTIPLY")
	require.Contains(t, buf.String(), "OP_POP")
	require.Contains(t, buf.String(), "OP_RETURN")
}

func TestCompileVarAndPrint(t *testing.T) {
	heap := value.NewHeap()
	fn, err := compiler.Compile(`var x = "hi"; print x;`, heap)
	require.NoError(t, err)

	var buf bytes.Buffer
	fn.Chunk.Disassemble(&buf, "script")
	out := buf.String()
	require.Contains(t, out, "OP_DEFINE_GLOBAL")
	require.Contains(t, out, "OP_GET_GLOBAL")
	require.Contains(t, out, "OP_PRINT")
}

func TestCompileLocalsNoGlobalOps(t *testing.T) {
	heap := value.NewHeap()
	fn, err := compiler.Compile("{ var x = 1; print x; }", heap)
	require.NoError(t, err)

	var buf bytes.Buffer
	fn.Chunk.Disassemble(&buf, "script")
	out := buf.String()
	require.Contains(t, out, "OP_GET_LOCAL")
	require.NotContains(t, out, "OP_DEFINE_GLOBAL")
}

func TestCompileIfElseEmitsJumps(t *testing.T) {
	heap := value.NewHeap()
	fn, err := compiler.Compile(`if (true) { print 1; } else { print 2; }`, heap)
	require.NoError(t, err)

	var buf bytes.Buffer
	fn.Chunk.Disassemble(&buf, "script")
	out := buf.String()
	require.Contains(t, out, "OP_JUMP_IF_FALSE")
	require.Contains(t, out, "OP_JUMP ")
}

func TestCompileWhileEmitsLoop(t *testing.T) {
	heap := value.NewHeap()
	fn, err := compiler.Compile(`var i = 0; while (i < 3) { i = i + 1; }`, heap)
	require.NoError(t, err)

	var buf bytes.Buffer
	fn.Chunk.Disassemble(&buf, "script")
	require.Contains(t, buf.String(), "OP_LOOP")
}

func TestCompileFunctionEmitsClosure(t *testing.T) {
	heap := value.NewHeap()
	fn, err := compiler.Compile(`fun add(a, b) { return a + b; } print add(1, 2);`, heap)
	require.NoError(t, err)

	var buf bytes.Buffer
	fn.Chunk.Disassemble(&buf, "script")
	out := buf.String()
	require.Contains(t, out, "OP_CLOSURE")
	require.Contains(t, out, "OP_CALL")
}

func TestCompileClosureCapturesUpvalue(t *testing.T) {
	heap := value.NewHeap()
	src := `
fun outer() {
	var x = 1;
	fun inner() {
		return x;
	}
	return inner;
}
`
	fn, err := compiler.Compile(src, heap)
	require.NoError(t, err)

	// the capture of x is emitted by OP_CLOSURE for inner, which lives in
	// outer's own chunk, not in the script's.
	var outer *value.Function
	for _, k := range fn.Chunk.Constants {
		if f, ok := k.(*value.Function); ok {
			outer = f
		}
	}
	require.NotNil(t, outer)

	var buf bytes.Buffer
	outer.Chunk.Disassemble(&buf, "outer")
	require.Contains(t, buf.String(), "local 1")
}

func TestCompileSyntaxErrorReportsLineAndLocation(t *testing.T) {
	heap := value.NewHeap()
	_, err := compiler.Compile("var x = ;", heap)
	require.Error(t, err)

	var cerr *compiler.Error
	require.ErrorAs(t, err, &cerr)
	require.Len(t, cerr.Errs, 1)
	require.Equal(t, 1, cerr.Errs[0].Line)
	require.Equal(t, " at ';'", cerr.Errs[0].Where)
}

func TestCompileAccumulatesMultipleErrors(t *testing.T) {
	heap := value.NewHeap()
	src := "var ;\nvar ;\n"
	_, err := compiler.Compile(src, heap)
	require.Error(t, err)

	var cerr *compiler.Error
	require.ErrorAs(t, err, &cerr)
	require.GreaterOrEqual(t, len(cerr.Errs), 2)
}

func TestCompileClassIsUnsupported(t *testing.T) {
	heap := value.NewHeap()
	_, err := compiler.Compile(`class Foo { bar() {} }`, heap)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Classes are not supported.")
}

func TestCompileReturnOutsideFunctionIsError(t *testing.T) {
	heap := value.NewHeap()
	_, err := compiler.Compile(`return 1;`, heap)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Can't return from top-level code.")
}
