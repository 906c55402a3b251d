package table_test

import (
	"testing"

	"github.com/mna/clox/lang/table"
	"github.com/mna/clox/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	tb := table.New()
	a := value.NewString("a")
	b := value.NewString("b")

	assert.True(t, tb.Set(a, value.NumberValue(1)))
	assert.True(t, tb.Set(b, value.NumberValue(2)))
	assert.False(t, tb.Set(a, value.NumberValue(3))) // overwrite, not new

	v, ok := tb.Get(a)
	require.True(t, ok)
	assert.Equal(t, 3.0, v.AsNumber())

	assert.True(t, tb.Delete(a))
	_, ok = tb.Get(a)
	assert.False(t, ok)

	v, ok = tb.Get(b)
	require.True(t, ok)
	assert.Equal(t, 2.0, v.AsNumber())
}

func TestTombstoneProbingSurvivesDelete(t *testing.T) {
	tb := table.New()
	var keys []*value.ObjString
	for i := 0; i < 20; i++ {
		k := value.NewString(string(rune('a' + i)))
		keys = append(keys, k)
		tb.Set(k, value.NumberValue(float64(i)))
	}
	for i := 0; i < 10; i++ {
		tb.Delete(keys[i])
	}
	for i := 10; i < 20; i++ {
		v, ok := tb.Get(keys[i])
		require.True(t, ok)
		assert.Equal(t, float64(i), v.AsNumber())
	}
}

func TestAddAll(t *testing.T) {
	src := table.New()
	dst := table.New()
	a := value.NewString("a")
	src.Set(a, value.NumberValue(1))

	table.AddAll(src, dst)
	v, ok := dst.Get(a)
	require.True(t, ok)
	assert.Equal(t, 1.0, v.AsNumber())
}

func TestFindByBytes(t *testing.T) {
	tb := table.New()
	s := value.NewString("hello")
	tb.Set(s, value.NilValue)

	found := tb.FindByBytes("hello", value.HashString("hello"))
	assert.Same(t, s, found)

	assert.Nil(t, tb.FindByBytes("nope", value.HashString("nope")))
}

func TestRemoveUnmarked(t *testing.T) {
	tb := table.New()
	marked := value.NewString("kept")
	value.Header(marked).Marked = true
	unmarked := value.NewString("gone")

	tb.Set(marked, value.NilValue)
	tb.Set(unmarked, value.NilValue)

	tb.RemoveUnmarked()

	_, ok := tb.Get(marked)
	assert.True(t, ok)
	found := tb.FindByBytes("gone", value.HashString("gone"))
	assert.Nil(t, found)
}
