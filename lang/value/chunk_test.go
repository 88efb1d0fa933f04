package value_test

import (
	"bytes"
	"testing"

	"github.com/mna/loxvm/lang/value"
	"github.com/stretchr/testify/require"
)

func TestChunkAddConstantOverflow(t *testing.T) {
	c := &value.Chunk{}
	for i := 0; i < 256; i++ {
		_, err := c.AddConstant(value.Number(float64(i)))
		require.NoError(t, err)
	}
	_, err := c.AddConstant(value.Number(256))
	require.Error(t, err)
}

func TestDisassembleConstantAndReturn(t *testing.T) {
	c := &value.Chunk{}
	idx, err := c.AddConstant(value.Number(1.2))
	require.NoError(t, err)
	c.Write(byte(value.OpConstant), 1)
	c.Write(byte(idx), 1)
	c.Write(byte(value.OpReturn), 1)

	var buf bytes.Buffer
	c.Disassemble(&buf, "test")

	want := "== test ==\n" +
		"0000    1 OP_CONSTANT         0 '1.2'\n" +
		"0002    | OP_RETURN\n"
	require.Equal(t, want, buf.String())
}

func TestDisassembleJumpInstruction(t *testing.T) {
	c := &value.Chunk{}
	c.Write(byte(value.OpJump), 3)
	c.Write(0, 3)
	c.Write(2, 3)
	c.Write(byte(value.OpPop), 3)

	var buf bytes.Buffer
	c.Disassemble(&buf, "jumps")

	want := "== jumps ==\n" +
		"0000    3 OP_JUMP             0 -> 5\n" +
		"0003    | OP_POP\n"
	require.Equal(t, want, buf.String())
}
