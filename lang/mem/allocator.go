// Package mem implements the region allocator that backs the growable byte
// buffers of the virtual machine (chiefly a Chunk's bytecode stream). It is a
// bump-then-free-list allocator over a single fixed-size backing buffer,
// mirroring the host-level allocator of a C virtual machine: free blocks
// thread themselves into a list by storing their own link metadata in the
// freed bytes, so no separate bookkeeping structure is needed.
//
// The allocator is deliberately the one place in this module that manages
// memory by hand: every other Go value is left to the host garbage collector,
// while the bytecode buffer grows through this allocator and its live bytes
// are reported by Allocated. The VM's own collector (see lang/vm) does not
// read that count; it charges heap objects as they are registered.
package mem

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOutOfMemory is returned when no free block and no room at the end of the
// backing buffer can satisfy a request.
var ErrOutOfMemory = errors.New("mem: out of memory")

// blockHeaderSize is the number of bytes a free block uses to store its own
// link metadata (size, next offset). A block smaller than this can never be
// freed onto the list, so every allocation is rounded up to at least this
// size.
const blockHeaderSize = 8

// nilOffset marks the end of the free list.
const nilOffset = -1

// Block is a handle to a live allocation. It carries the backing offset
// alongside the byte view so Reallocate/Free can locate the block's header
// without resorting to unsafe pointer arithmetic on slice headers.
type Block struct {
	Data []byte

	off  int
	size int // size of the reserved region, >= len(Data) and >= blockHeaderSize
}

// Allocator is a single contiguous byte region with a first-fit free list.
// It is not safe for concurrent use; a VM owns exactly one Allocator.
type Allocator struct {
	buf       []byte
	freeHead  int // offset into buf, or nilOffset
	top       int // offset of the next never-yet-used byte
	allocated int // bytes currently handed out (reported by Allocated)
}

// New creates an Allocator backed by a buffer of the given size.
func New(size int) *Allocator {
	if size < blockHeaderSize {
		size = blockHeaderSize
	}
	return &Allocator{buf: make([]byte, size), freeHead: nilOffset, top: 0}
}

// Allocated returns the number of bytes currently handed out to live blocks.
func (a *Allocator) Allocated() int { return a.allocated }

// Cap returns the total size of the backing buffer.
func (a *Allocator) Cap() int { return len(a.buf) }

// Alloc reserves a fresh block of newSize usable bytes.
func (a *Allocator) Alloc(newSize int) (Block, error) {
	return a.Reallocate(Block{}, 0, newSize)
}

// Free returns a block to the free list.
func (a *Allocator) Free(b Block) {
	if b.Data == nil && b.size == 0 {
		return
	}
	a.free(b)
}

// Reallocate is the single entry point for growing, shrinking, or freeing a
// block, mirroring clox's reallocate(ptr, oldSize, newSize):
//
//   - newSize == 0 frees old and returns the zero Block.
//   - old is the zero Block and newSize > 0 allocates a fresh block via
//     first-fit.
//   - both set: allocates a new block, copies min(oldSize, newSize) bytes,
//     frees the old block.
func (a *Allocator) Reallocate(old Block, oldSize, newSize int) (Block, error) {
	if newSize == 0 {
		if old.Data != nil || old.size != 0 {
			a.free(old)
		}
		return Block{}, nil
	}

	nb, err := a.alloc(newSize)
	if err != nil {
		return Block{}, err
	}
	if old.Data != nil {
		n := oldSize
		if newSize < n {
			n = newSize
		}
		copy(nb.Data, old.Data[:n])
		a.free(old)
	}
	return nb, nil
}

// alloc finds or carves a block of exactly newSize usable bytes using
// first-fit.
func (a *Allocator) alloc(newSize int) (Block, error) {
	reqSize := newSize
	if reqSize < blockHeaderSize {
		reqSize = blockHeaderSize
	}

	prev := nilOffset // offset of previous free block's header
	cur := a.freeHead
	for cur != nilOffset {
		size, next := a.readHeader(cur)
		switch {
		case size == reqSize:
			a.relink(prev, next)
			a.allocated += reqSize
			return Block{Data: a.buf[cur : cur+newSize], off: cur, size: reqSize}, nil
		case size > reqSize:
			// Carve the prefix off, shrink the remainder in place.
			rem := cur + reqSize
			remSize := size - reqSize
			a.writeHeader(rem, remSize, next)
			a.relink(prev, rem)
			a.allocated += reqSize
			return Block{Data: a.buf[cur : cur+newSize], off: cur, size: reqSize}, nil
		}
		prev = cur
		cur = next
	}

	// No free block fits; carve from the untouched tail.
	if a.top+reqSize > len(a.buf) {
		return Block{}, fmt.Errorf("%w: requested %d bytes, %d available", ErrOutOfMemory, newSize, len(a.buf)-a.top)
	}
	start := a.top
	a.top += reqSize
	a.allocated += reqSize
	return Block{Data: a.buf[start : start+newSize], off: start, size: reqSize}, nil
}

// free returns b's reserved region to the free list, as a node of size
// max(b.size, blockHeaderSize).
func (a *Allocator) free(b Block) {
	size := b.size
	if size < blockHeaderSize {
		size = blockHeaderSize
	}
	a.writeHeader(b.off, size, a.freeHead)
	a.freeHead = b.off
	a.allocated -= size
	if a.allocated < 0 {
		a.allocated = 0
	}
}

func (a *Allocator) readHeader(off int) (size int, next int) {
	size = int(binary.BigEndian.Uint32(a.buf[off:]))
	next = int(int32(binary.BigEndian.Uint32(a.buf[off+4:])))
	return size, next
}

func (a *Allocator) writeHeader(off, size, next int) {
	binary.BigEndian.PutUint32(a.buf[off:], uint32(size))
	binary.BigEndian.PutUint32(a.buf[off+4:], uint32(int32(next)))
}

// relink points the free-list entry before the one just consumed (or the
// head, if there was none) at newNext.
func (a *Allocator) relink(prevOff, newNext int) {
	if prevOff == nilOffset {
		a.freeHead = newNext
		return
	}
	size, _ := a.readHeader(prevOff)
	a.writeHeader(prevOff, size, newNext)
}
