package step

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	v, err := Add([]int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, int64(6), v)

	v, err = Add(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestMultiply(t *testing.T) {
	v, err := Multiply([]int64{2, 3, -4})
	require.NoError(t, err)
	assert.Equal(t, int64(-24), v)

	_, err = Multiply(nil)
	assert.Error(t, err)
}

func TestAdd_Overflow(t *testing.T) {
	_, err := Add([]int64{math.MaxInt64, 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOverflow)
	assert.True(t, IsFatal(err))

	_, err = Add([]int64{math.MinInt64, -1})
	assert.ErrorIs(t, err, ErrOverflow)

	v, err := Add([]int64{math.MaxInt64, 1, -1})
	require.Error(t, err, "an intermediate overflow fails even if the total fits")
	assert.Zero(t, v)

	v, err = Add([]int64{math.MaxInt64, -1, 1})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), v)
}

func TestMultiply_Overflow(t *testing.T) {
	_, err := Multiply([]int64{math.MaxInt64, 2})
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Multiply([]int64{math.MinInt64, -1})
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Multiply([]int64{1 << 32, 1 << 32})
	assert.ErrorIs(t, err, ErrOverflow)

	v, err := Multiply([]int64{math.MinInt64, 1})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), v)

	v, err = Multiply([]int64{math.MaxInt64, 2, 0})
	require.Error(t, err, "values are reduced in order")
	assert.Zero(t, v)

	v, err = Multiply([]int64{0, math.MaxInt64, 2})
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestRegistry_Lookup(t *testing.T) {
	reg := DefaultRegistry()

	op, err := reg.Lookup("add")
	require.NoError(t, err)
	v, err := op([]int64{40, 2})
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, err = reg.Lookup("divide")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOperation)
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), `"divide"`)
}

func TestRegistry_Names(t *testing.T) {
	assert.Equal(t, []string{"add", "multiply"}, DefaultRegistry().Names())
}
