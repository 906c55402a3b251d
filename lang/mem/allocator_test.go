package mem_test

import (
	"testing"

	"github.com/mna/clox/lang/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocFree(t *testing.T) {
	a := mem.New(1024)

	b, err := a.Alloc(16)
	require.NoError(t, err)
	assert.Len(t, b.Data, 16)
	assert.Equal(t, 16, a.Allocated())

	a.Free(b)
	assert.Equal(t, 0, a.Allocated())
}

func TestFreeListReuse(t *testing.T) {
	// Repeated alloc/free of the same size must never grow total reserved
	// bytes (spec §8 "Free-list" property).
	a := mem.New(1024)

	b1, err := a.Alloc(32)
	require.NoError(t, err)
	a.Free(b1)
	capAfterFirst := a.Cap()

	for i := 0; i < 50; i++ {
		b, err := a.Alloc(32)
		require.NoError(t, err)
		a.Free(b)
	}
	assert.Equal(t, capAfterFirst, a.Cap())
	assert.Equal(t, 0, a.Allocated())
}

func TestReallocateGrowsAndCopies(t *testing.T) {
	a := mem.New(1024)

	b, err := a.Alloc(4)
	require.NoError(t, err)
	copy(b.Data, []byte{1, 2, 3, 4})

	b2, err := a.Reallocate(b, 4, 8)
	require.NoError(t, err)
	require.Len(t, b2.Data, 8)
	assert.Equal(t, []byte{1, 2, 3, 4}, b2.Data[:4])
}

func TestOutOfMemory(t *testing.T) {
	a := mem.New(8)
	_, err := a.Alloc(4)
	require.NoError(t, err)
	_, err = a.Alloc(64)
	assert.ErrorIs(t, err, mem.ErrOutOfMemory)
}

func TestFreeReturnsBlockLargeEnough(t *testing.T) {
	a := mem.New(256)
	b, err := a.Alloc(20)
	require.NoError(t, err)
	a.Free(b)

	b2, err := a.Alloc(20)
	require.NoError(t, err)
	assert.Len(t, b2.Data, 20)
}
