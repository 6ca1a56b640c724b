package cgpu

import (
	"sync/atomic"
	"unsafe"
)

// Allocator supplies host memory for the device layer's own bookkeeping,
// most importantly the descriptor update-record scratch of each
// DescriptorSet. An Allocator is injected per Instance with WithAllocator
// and threaded through every object created from it.
//
// Alloc returns a zeroed slice of exactly size bytes whose first element is
// aligned to align (a power of two; 0 or 1 means no requirement).
type Allocator interface {
	Alloc(size, align int) []byte
	Realloc(buf []byte, size, align int) []byte
	Free(buf []byte)
}

// HeapAllocator allocates from the Go heap.
type HeapAllocator struct{}

// Alloc implements Allocator.
func (HeapAllocator) Alloc(size, align int) []byte {
	if size == 0 {
		return nil
	}
	if align <= 8 {
		return make([]byte, size)
	}
	raw := make([]byte, size+align-1)
	off := alignOffset(raw, align)
	return raw[off : off+size : off+size]
}

// Realloc implements Allocator. Contents up to min(len(buf), size) survive.
func (h HeapAllocator) Realloc(buf []byte, size, align int) []byte {
	if size <= cap(buf) && isAligned(buf, align) {
		old := len(buf)
		buf = buf[:size]
		clear(buf[old:])
		return buf
	}
	out := h.Alloc(size, align)
	copy(out, buf)
	return out
}

// Free implements Allocator. The Go heap reclaims the memory.
func (HeapAllocator) Free([]byte) {}

// CountingAllocator wraps another Allocator and keeps live counters of the
// memory passing through it. It replaces process-wide malloc bookkeeping with
// a value owned by whoever wants the diagnostics.
type CountingAllocator struct {
	Base Allocator

	allocs atomic.Int64
	frees  atomic.Int64
	bytes  atomic.Int64
}

// NewCountingAllocator wraps base, or the heap when base is nil.
func NewCountingAllocator(base Allocator) *CountingAllocator {
	if base == nil {
		base = HeapAllocator{}
	}
	return &CountingAllocator{Base: base}
}

// Alloc implements Allocator.
func (c *CountingAllocator) Alloc(size, align int) []byte {
	c.allocs.Add(1)
	c.bytes.Add(int64(size))
	return c.Base.Alloc(size, align)
}

// Realloc implements Allocator.
func (c *CountingAllocator) Realloc(buf []byte, size, align int) []byte {
	c.bytes.Add(int64(size - len(buf)))
	return c.Base.Realloc(buf, size, align)
}

// Free implements Allocator.
func (c *CountingAllocator) Free(buf []byte) {
	c.frees.Add(1)
	c.bytes.Add(-int64(len(buf)))
	c.Base.Free(buf)
}

// Live returns the number of outstanding allocations and their total size.
func (c *CountingAllocator) Live() (count, bytes int64) {
	return c.allocs.Load() - c.frees.Load(), c.bytes.Load()
}

// Allocs returns the total number of Alloc calls.
func (c *CountingAllocator) Allocs() int64 { return c.allocs.Load() }

func alignOffset(buf []byte, align int) int {
	p := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	a := uintptr(align)
	return int((a - p%a) % a)
}

func isAligned(buf []byte, align int) bool {
	if align <= 1 || len(buf) == 0 {
		return true
	}
	return alignOffset(buf, align) == 0
}
