// Package chunk implements the compiled bytecode container of spec §4.E: a
// byte stream of opcodes, a run-length-encoded line-number log, and a value
// constant pool.
package chunk

import (
	"errors"
	"fmt"

	"github.com/mna/clox/lang/mem"
	"github.com/mna/clox/lang/value"
)

// MaxConstants bounds the constant pool to what a 3-byte (24-bit) operand
// can address (spec §4.E "fails if > 2^24 constants").
const MaxConstants = 1 << 24

// ErrTooManyConstants is returned by WriteConstant once the pool is full.
var ErrTooManyConstants = errors.New("chunk: too many constants in one chunk")

// lineRun is one run-length-encoded node: line repeated across `count`
// consecutive instructions, mirroring clox's linked list of {lineNumber,
// instructions} nodes. A slice stands in for the linked list here; the
// behavioral contract (append-only, walked front-to-back by getLine) is
// identical.
type lineRun struct {
	line  int
	count int
}

// Chunk is the unit of a Function's compiled body (spec §4.E).
type Chunk struct {
	alloc *mem.Allocator
	code  mem.Block
	count int // bytes used within code.Data

	lines []lineRun

	Constants []value.Value
}

// New returns an empty Chunk backed by alloc for its bytecode buffer.
func New(alloc *mem.Allocator) *Chunk {
	return &Chunk{alloc: alloc}
}

// Code returns the bytes written so far (a view, not a copy).
func (c *Chunk) Code() []byte { return c.code.Data[:c.count] }

// Len returns the number of bytes written.
func (c *Chunk) Len() int { return c.count }

// At returns the byte at offset.
func (c *Chunk) At(offset int) byte { return c.code.Data[offset] }

// Write appends one byte to the code stream, recording line for it (spec
// §4.E). It panics only if the allocator is exhausted, which surfaces as a
// host OutOfMemory error per spec §7 — propagated instead via WriteErr for
// callers that want to handle it (the compiler uses Write: running out of
// the configured heap mid-compile is not a recoverable compile error).
func (c *Chunk) Write(b byte, line int) {
	if err := c.WriteErr(b, line); err != nil {
		panic(err)
	}
}

// WriteErr is Write but returns the allocator error instead of panicking.
func (c *Chunk) WriteErr(b byte, line int) error {
	if c.count+1 > len(c.code.Data) {
		oldCap := len(c.code.Data)
		newCap := growCapacity(oldCap)
		nb, err := c.alloc.Reallocate(c.code, oldCap, newCap)
		if err != nil {
			return fmt.Errorf("chunk: grow code buffer: %w", err)
		}
		c.code = nb
	}
	c.code.Data[c.count] = b
	c.writeLine(line)
	c.count++
	return nil
}

func (c *Chunk) writeLine(line int) {
	if n := len(c.lines); n > 0 && c.lines[n-1].line == line {
		c.lines[n-1].count++
		return
	}
	c.lines = append(c.lines, lineRun{line: line, count: 1})
}

// GetLine returns the source line for byte offset, per spec §8: the first
// line whose cumulative instruction count *strictly exceeds* offset (this
// resolves spec §9's "stale ordering test" ambiguity in favor of
// strict-less-than, confirmed against original_source/chunk.c's getLine).
func (c *Chunk) GetLine(offset int) int {
	remaining := offset
	for _, run := range c.lines {
		if remaining < run.count {
			return run.line
		}
		remaining -= run.count
	}
	return -1
}

// WriteConstant appends v to the constant pool and returns its index.
func (c *Chunk) WriteConstant(v value.Value) (int, error) {
	if len(c.Constants) >= MaxConstants {
		return 0, ErrTooManyConstants
	}
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1, nil
}

func growCapacity(cap int) int {
	if cap < 8 {
		return 8
	}
	return cap * 2
}
