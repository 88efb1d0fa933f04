package value_test

import (
	"testing"

	"github.com/mna/loxvm/lang/value"
	"github.com/stretchr/testify/require"
)

func TestTruth(t *testing.T) {
	require.False(t, value.Truth(value.None))
	require.False(t, value.Truth(value.False))
	require.True(t, value.Truth(value.True))
	require.True(t, value.Truth(value.Number(0)))
	require.True(t, value.Truth(value.Number(-1)))
}

func TestEqualPrimitives(t *testing.T) {
	require.True(t, value.Equal(value.None, value.None))
	require.True(t, value.Equal(value.Number(1), value.Number(1)))
	require.False(t, value.Equal(value.Number(1), value.Number(2)))
	require.True(t, value.Equal(value.True, value.True))
	require.False(t, value.Equal(value.True, value.False))
	require.False(t, value.Equal(value.None, value.False))
}

func TestEqualStringsByIdentityNotContent(t *testing.T) {
	h := value.NewHeap()
	a := h.NewString(nil, "hi")
	b := h.NewString(nil, "hi")
	require.False(t, value.Equal(a, b), "distinct String objects must not be Equal even with identical contents")
	require.True(t, value.Equal(a, a))
}

func TestNumberString(t *testing.T) {
	require.Equal(t, "1", value.Number(1).String())
	require.Equal(t, "1.5", value.Number(1.5).String())
	require.Equal(t, "-2", value.Number(-2).String())
}

func TestBoolString(t *testing.T) {
	require.Equal(t, "true", value.True.String())
	require.Equal(t, "false", value.False.String())
}
