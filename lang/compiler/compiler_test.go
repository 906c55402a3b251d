package compiler_test

import (
	"bytes"
	"testing"

	"github.com/mna/clox/lang/chunk"
	"github.com/mna/clox/lang/compiler"
	"github.com/mna/clox/lang/mem"
	"github.com/mna/clox/lang/object"
	"github.com/mna/clox/lang/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHeap is a minimal, non-interning-by-identity-but-correct-enough Heap
// for exercising the compiler in isolation from lang/vm: it interns strings
// in a plain map and tracks pushed compiler roots for assertions.
type fakeHeap struct {
	strings map[string]*value.ObjString
	roots   []*object.Function
}

func newFakeHeap() *fakeHeap {
	return &fakeHeap{strings: make(map[string]*value.ObjString)}
}

func (h *fakeHeap) InternString(chars string) *value.ObjString {
	if s, ok := h.strings[chars]; ok {
		return s
	}
	s := value.NewString(chars)
	h.strings[chars] = s
	return s
}

func (h *fakeHeap) NewChunk() *chunk.Chunk { return chunk.New(mem.New(4096)) }

func (h *fakeHeap) NewFunction(c *chunk.Chunk) *object.Function { return object.NewFunction(c) }

func (h *fakeHeap) PushCompilerRoot(fn *object.Function) { h.roots = append(h.roots, fn) }

func (h *fakeHeap) PopCompilerRoot() { h.roots = h.roots[:len(h.roots)-1] }

func compile(t *testing.T, src string) (*object.Function, *fakeHeap, string) {
	t.Helper()
	heap := newFakeHeap()
	var stderr bytes.Buffer
	fn, ok := compiler.Compile(src, heap, &stderr)
	require.True(t, ok, "unexpected compile errors: %s", stderr.String())
	require.Empty(t, heap.roots, "compiler roots must all be popped by the time Compile returns")
	return fn, heap, stderr.String()
}

func TestCompileArithmeticEmitsExpectedOpcodes(t *testing.T) {
	fn, _, _ := compile(t, "print 1 + 2 * 3;")
	code := fn.Chunk.Code()
	require.NotEmpty(t, code)
	assert.Equal(t, byte(chunk.OpConstant), code[0])
	assert.Equal(t, byte(chunk.OpReturn), code[len(code)-1])

	var ops []chunk.Opcode
	for i := 0; i < len(code); {
		op := chunk.Opcode(code[i])
		ops = append(ops, op)
		switch op {
		case chunk.OpConstant:
			i += 2
		default:
			i++
		}
	}
	assert.Contains(t, ops, chunk.OpAdd)
	assert.Contains(t, ops, chunk.OpMultiply)
	assert.Contains(t, ops, chunk.OpPrint)
}

func TestCompileSyntaxErrorReportsLineAndFails(t *testing.T) {
	heap := newFakeHeap()
	var stderr bytes.Buffer
	_, ok := compiler.Compile("var x = ;", heap, &stderr)
	assert.False(t, ok)
	assert.Contains(t, stderr.String(), "[line 1] Error")
}

func TestCompileTopLevelReturnIsCompileError(t *testing.T) {
	heap := newFakeHeap()
	var stderr bytes.Buffer
	_, ok := compiler.Compile("return 1;", heap, &stderr)
	assert.False(t, ok)
	assert.Contains(t, stderr.String(), "Can't return from top-level code.")
}

func TestCompileLocalsAndBlockScopePopsOnExit(t *testing.T) {
	fn, _, _ := compile(t, "{ var a = 1; var b = 2; }")
	code := fn.Chunk.Code()

	var pops int
	for _, b := range code {
		if chunk.Opcode(b) == chunk.OpPop {
			pops++
		}
	}
	assert.Equal(t, 2, pops)
}

func TestCompileClosureCapturesUpvalue(t *testing.T) {
	fn, _, _ := compile(t, `
fun makeCounter() {
  var count = 0;
  fun counter() {
    count = count + 1;
    return count;
  }
  return counter;
}
`)
	// top-level constant pool holds the global name "makeCounter", then the
	// makeCounter Function object.
	require.Len(t, fn.Chunk.Constants, 2)
	outer, ok := fn.Chunk.Constants[1].AsObj().(*object.Function)
	require.True(t, ok)

	var inner *object.Function
	for _, c := range outer.Chunk.Constants {
		if f, ok := c.AsObj().(*object.Function); ok {
			inner = f
		}
	}
	require.NotNil(t, inner)
	assert.Equal(t, 1, inner.UpvalueCount)
}

func TestCompileClassWithMethodAndInheritance(t *testing.T) {
	fn, _, errOut := compile(t, `
class Animal {
  speak() {
    return "...";
  }
}
class Dog < Animal {
  speak() {
    return super.speak();
  }
}
`)
	assert.Empty(t, errOut)
	code := fn.Chunk.Code()

	var found struct{ class, method, inherit, superInvoke bool }
	for _, b := range code {
		switch chunk.Opcode(b) {
		case chunk.OpClass:
			found.class = true
		case chunk.OpMethod:
			found.method = true
		case chunk.OpInherit:
			found.inherit = true
		}
	}
	assert.True(t, found.class)
	assert.True(t, found.method)
	assert.True(t, found.inherit)
}

func TestCompileThisOutsideClassIsError(t *testing.T) {
	heap := newFakeHeap()
	var stderr bytes.Buffer
	_, ok := compiler.Compile("print this;", heap, &stderr)
	assert.False(t, ok)
	assert.Contains(t, stderr.String(), "Can't use 'this' outside of a class.")
}
