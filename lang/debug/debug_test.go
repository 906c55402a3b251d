package debug_test

import (
	"bytes"
	"testing"

	"github.com/mna/clox/lang/chunk"
	"github.com/mna/clox/lang/debug"
	"github.com/mna/clox/lang/mem"
	"github.com/mna/clox/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupOpcodeRoundTrips(t *testing.T) {
	op, ok := debug.LookupOpcode("OP_ADD")
	require.True(t, ok)
	assert.Equal(t, chunk.OpAdd, op)

	_, ok = debug.LookupOpcode("OP_DOES_NOT_EXIST")
	assert.False(t, ok)
}

func TestDisassembleConstantAndReturn(t *testing.T) {
	c := chunk.New(mem.New(256))
	idx, err := c.WriteConstant(value.NumberValue(1.5))
	require.NoError(t, err)
	c.Write(byte(chunk.OpConstant), 1)
	c.Write(byte(idx), 1)
	c.Write(byte(chunk.OpReturn), 1)

	var buf bytes.Buffer
	debug.Disassemble(&buf, c, "test chunk")
	out := buf.String()
	assert.Contains(t, out, "== test chunk ==")
	assert.Contains(t, out, "OP_CONSTANT")
	assert.Contains(t, out, "1.5")
	assert.Contains(t, out, "OP_RETURN")
}

func TestTraceStackFormatsValues(t *testing.T) {
	var buf bytes.Buffer
	debug.TraceStack(&buf, []value.Value{value.NumberValue(1), value.BoolValue(true)})
	assert.Equal(t, "          [ 1 ][ true ]\n", buf.String())
}
