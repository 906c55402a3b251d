package chunk_test

import (
	"testing"

	"github.com/mna/clox/lang/chunk"
	"github.com/mna/clox/lang/mem"
	"github.com/mna/clox/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndGetLine(t *testing.T) {
	c := chunk.New(mem.New(4096))
	c.Write(byte(chunk.OpNil), 1)
	c.Write(byte(chunk.OpNil), 1)
	c.Write(byte(chunk.OpTrue), 2)
	c.Write(byte(chunk.OpReturn), 2)

	assert.Equal(t, 1, c.GetLine(0))
	assert.Equal(t, 1, c.GetLine(1))
	assert.Equal(t, 2, c.GetLine(2))
	assert.Equal(t, 2, c.GetLine(3))
}

func TestGetLineMonotonicNonDecreasing(t *testing.T) {
	c := chunk.New(mem.New(4096))
	lines := []int{1, 1, 1, 3, 3, 7, 7, 7, 7, 9}
	for _, l := range lines {
		c.Write(byte(chunk.OpNil), l)
	}

	prev := -1
	for i := 0; i < c.Len(); i++ {
		got := c.GetLine(i)
		require.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestWriteConstant(t *testing.T) {
	c := chunk.New(mem.New(4096))
	idx, err := c.WriteConstant(value.NumberValue(42))
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 42.0, c.Constants[idx].AsNumber())
}

func TestGrowsPastInitialCapacity(t *testing.T) {
	c := chunk.New(mem.New(4096))
	for i := 0; i < 500; i++ {
		c.Write(byte(chunk.OpPop), 1)
	}
	assert.Equal(t, 500, c.Len())
	for i := 0; i < 500; i++ {
		assert.Equal(t, byte(chunk.OpPop), c.At(i))
	}
}
