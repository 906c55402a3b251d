package object_test

import (
	"testing"

	"github.com/mna/clox/lang/chunk"
	"github.com/mna/clox/lang/mem"
	"github.com/mna/clox/lang/object"
	"github.com/mna/clox/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionPrintable(t *testing.T) {
	fn := object.NewFunction(chunk.New(mem.New(256)))
	assert.Equal(t, "<script>", fn.String())

	fn.Name = value.NewString("add")
	assert.Equal(t, "<fn add>", fn.String())
}

func TestClosureTraceMarksFunctionAndUpvalues(t *testing.T) {
	fn := object.NewFunction(chunk.New(mem.New(256)))
	fn.UpvalueCount = 1
	cl := object.NewClosure(fn)
	slot := value.NumberValue(1)
	cl.Upvalues[0] = object.NewUpvalue(&slot)

	var marked []value.Object
	cl.Trace(func(o value.Object) { marked = append(marked, o) }, func(value.Value) {})
	require.Len(t, marked, 2)
	assert.Same(t, fn, marked[0])
	assert.Same(t, cl.Upvalues[0], marked[1])
}

func TestUpvalueCloseCopiesValue(t *testing.T) {
	slot := value.NumberValue(42)
	uv := object.NewUpvalue(&slot)
	assert.False(t, uv.IsClosed())

	uv.Close()
	assert.True(t, uv.IsClosed())
	assert.Equal(t, 42.0, uv.Closed.AsNumber())
}

func TestInstanceString(t *testing.T) {
	cl := object.NewClass(value.NewString("Counter"))
	inst := object.NewInstance(cl)
	assert.Equal(t, "Counter instance", inst.String())
}
