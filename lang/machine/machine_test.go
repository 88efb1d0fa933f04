package machine_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/mna/loxvm/lang/machine"
	"github.com/mna/loxvm/lang/value"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, src string) (string, string, error) {
	t.Helper()
	heap := value.NewHeap()
	th := machine.NewThread(heap)
	var out, errOut bytes.Buffer
	th.Stdout = &out
	th.Stderr = &errOut
	err := th.Interpret(context.Background(), src)
	return out.String(), errOut.String(), err
}

func TestScenarioArithmeticPrecedence(t *testing.T) {
	out, _, err := run(t, "print 1 + 2 * 3;")
	require.NoError(t, err)
	require.Equal(t, "7\n", out)
}

func TestScenarioStringConcatenation(t *testing.T) {
	out, _, err := run(t, `var a = "foo"; var b = "bar"; print a + b;`)
	require.NoError(t, err)
	require.Equal(t, "foobar\n", out)
}

func TestScenarioForLoopAccumulation(t *testing.T) {
	out, _, err := run(t, `var x = 0; for (var i = 0; i < 5; i = i + 1) { x = x + i; } print x;`)
	require.NoError(t, err)
	require.Equal(t, "10\n", out)
}

func TestScenarioClosureCounterSharesState(t *testing.T) {
	src := `
fun makeCounter() {
	var n = 0;
	fun c() {
		n = n + 1;
		return n;
	}
	return c;
}
var c = makeCounter();
print c();
print c();
print c();
`
	out, _, err := run(t, src)
	require.NoError(t, err)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestScenarioLogicalOperators(t *testing.T) {
	out, _, err := run(t, `if (!(1 == 2) and (3 <= 3 or false)) print "ok"; else print "no";`)
	require.NoError(t, err)
	require.Equal(t, "ok\n", out)
}

func TestScenarioImplicitNilReturnAndFunctionPrinting(t *testing.T) {
	out, _, err := run(t, `fun f() { return; } print f();`)
	require.NoError(t, err)
	require.Equal(t, "nil\n", out)

	out, _, err = run(t, `fun f() {} print f;`)
	require.NoError(t, err)
	require.Equal(t, "<fn f>\n", out)
}

func TestErrorScenarioMixedTypeAddition(t *testing.T) {
	_, errOut, err := run(t, `1 + "a";`)
	require.Error(t, err)
	require.Contains(t, errOut, "Operands must be two numbers or two strings.")
}

func TestErrorScenarioUndefinedVariable(t *testing.T) {
	_, errOut, err := run(t, `print undefined;`)
	require.Error(t, err)
	require.Contains(t, errOut, "Undefined variable undefined.")
}

func TestErrorScenarioStackOverflow(t *testing.T) {
	src := `
fun recurse() { return recurse(); }
recurse();
`
	_, errOut, err := run(t, src)
	require.Error(t, err)
	require.Contains(t, errOut, "Stack overflow.")
}

func TestSetGlobalOnUndefinedNameIsRuntimeError(t *testing.T) {
	_, errOut, err := run(t, `undefined = 1;`)
	require.Error(t, err)
	require.Contains(t, errOut, "Undefined variable undefined.")
}

func TestNativeClockReturnsNumberAndPrintsWithoutName(t *testing.T) {
	out, _, err := run(t, `print clock() >= 0; print clock;`)
	require.NoError(t, err)
	require.Equal(t, "true\n<native fn>\n", out)
}

func TestGlobalsPersistAcrossInterpretCalls(t *testing.T) {
	heap := value.NewHeap()
	th := machine.NewThread(heap)
	var out bytes.Buffer
	th.Stdout = &out

	require.NoError(t, th.Interpret(context.Background(), `var x = 1;`))
	require.NoError(t, th.Interpret(context.Background(), `print x;`))
	require.Equal(t, "1\n", out.String())
}

func TestStressGCNeverFreesReachableObjectsDuringExecution(t *testing.T) {
	heap := value.NewHeap()
	heap.Stress = true
	th := machine.NewThread(heap)
	var out bytes.Buffer
	th.Stdout = &out

	src := `
var kept = "hello";
fun f(n) {
	var s = "garbage";
	if (n > 0) return f(n - 1);
	return 0;
}
f(20);
print kept;
`
	err := th.Interpret(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, "hello\n", out.String())
	require.Greater(t, heap.Stats().Collections, 0)
}
