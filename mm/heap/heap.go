package heap

import (
	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/buf"
	"github.com/joshuapare/kmem/internal/fault"
	"github.com/joshuapare/kmem/internal/klog"
)

// Memory is the virtual access surface the heap runs on.
type Memory interface {
	Load64(vaddr uint64) uint64
	Store64(vaddr, v uint64)
	ZeroRange(vaddr, n uint64)
}

// Breaker moves the program break, returning the previous one.
type Breaker interface {
	Sbrk(incr uint64) uint64
}

// Stats reports heap usage.
type Stats struct {
	Base       uint64 // first chunk
	End        uint64 // current break
	TopSize    uint64 // payload bytes left in the top chunk
	InUse      uint64 // payload bytes in used chunks
	Allocs     int
	Frees      int
	Grows      int
	FreeChunks int // chunks parked on class lists
}

// Heap is a size-class allocator over memory obtained from a Breaker.
type Heap struct {
	mem  Memory
	brk  Breaker
	base uint64
	end  uint64
	top  chunk
	bins []chunk

	stats Stats
}

// New creates a heap whose top chunk initially spans pages pages taken from
// brk.
func New(mem Memory, brk Breaker, pages int) *Heap {
	if pages < 1 {
		pages = 1
	}
	n := uint64(pages) << arch.PageShift
	base := brk.Sbrk(n)

	h := &Heap{
		mem:  mem,
		brk:  brk,
		base: base,
		end:  base + n,
		top:  chunk(base),
		bins: make([]chunk, NumClasses()),
	}
	// Nothing precedes the first chunk, which therefore counts as used.
	h.setHeader(h.top, (n-wordSize)|flagPrevUsed)
	h.writeFooter(h.top)
	klog.Info("heap ready", "base", hex(base), "size", n)
	return h
}

// Kmalloc returns a pointer to at least size bytes, or 0 when size is 0.
// Requests above MaxRequest halt the kernel.
func (h *Heap) Kmalloc(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	if size > MaxRequest {
		fault.Halt("heap", ErrTooLarge, "kmalloc(%d)", size)
	}
	csize := classes.roundUp(size)
	i := classes.index(csize)

	var c chunk
	if h.bins[i] != 0 {
		c = h.pop(i)
		h.stats.FreeChunks--
	} else {
		c = h.carve(csize)
	}
	h.setFlag(c, flagUsed, true)
	h.setFlag(h.next(c), flagPrevUsed, true)

	h.stats.Allocs++
	h.stats.InUse += csize
	return payload(c)
}

// carve splits a free chunk of csize payload bytes off the front of the top
// chunk, growing the heap by a page first if the top would run short.
func (h *Heap) carve(csize uint64) chunk {
	if h.size(h.top) < csize+arch.PageSize {
		h.grow()
	}
	c := h.top
	h.top = h.split(c, csize)
	return c
}

func (h *Heap) grow() {
	old := h.brk.Sbrk(arch.PageSize)
	if old != h.end {
		fault.Halt("heap", ErrBreak, "break at %#x, heap ends at %#x", old, h.end)
	}
	h.end += arch.PageSize
	flags := h.header(h.top) & flagMask
	h.setHeader(h.top, (h.size(h.top)+arch.PageSize)|flags)
	h.writeFooter(h.top)
	h.stats.Grows++
	klog.Debug("heap grown", "end", hex(h.end))
}

// Kcalloc allocates n*size bytes and zeroes the whole chunk. It returns 0
// when either argument is 0.
func (h *Heap) Kcalloc(n, size uint64) uint64 {
	if n == 0 || size == 0 {
		return 0
	}
	total, ok := buf.MulOverflowSafe(n, size)
	if !ok {
		fault.Halt("heap", ErrOverflow, "kcalloc(%d, %d)", n, size)
	}
	ptr := h.Kmalloc(total)
	h.mem.ZeroRange(ptr, h.size(chunkOf(ptr)))
	return ptr
}

// Kfree releases a pointer returned by Kmalloc or Kcalloc. Freeing 0 is a
// no-op.
func (h *Heap) Kfree(ptr uint64) {
	if ptr == 0 {
		return
	}
	if ptr < payload(chunk(h.base)) || ptr >= payload(h.top) {
		fault.Halt("heap", ErrBadPointer, "kfree(%#x)", ptr)
	}
	c := chunkOf(ptr)
	if !h.used(c) {
		fault.Halt("heap", ErrDoubleFree, "kfree(%#x)", ptr)
	}
	size := h.size(c)
	i := classes.index(size)
	if i < 0 {
		fault.Halt("heap", ErrCorrupt, "kfree(%#x): size %d", ptr, size)
	}

	h.setFlag(c, flagUsed, false)
	h.writeFooter(c)
	h.push(i, c)
	h.setFlag(h.next(c), flagPrevUsed, false)

	h.stats.Frees++
	h.stats.FreeChunks++
	h.stats.InUse -= size
}

// Stats returns a snapshot of heap usage.
func (h *Heap) Stats() Stats {
	s := h.stats
	s.Base = h.base
	s.End = h.end
	s.TopSize = h.size(h.top)
	return s
}
