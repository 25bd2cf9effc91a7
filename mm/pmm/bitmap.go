package pmm

import (
	"fmt"
	"math/bits"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/fault"
	"github.com/joshuapare/kmem/internal/klog"
	"github.com/joshuapare/kmem/mm/region"
)

// Bitmap is the two-level bitmap frame allocator.
type Bitmap struct {
	win   Window
	vbase uint64 // window address of physical address 0

	ready    bool
	remapped bool

	base    uint64 // physical address of frame 0
	memSize uint64
	totBlk  uint64
	usedBlk uint64

	bm0, bm1           uint64 // window addresses of the two levels
	bm0Words, bm1Words uint64
	bmPhys, bmSize     uint64

	fastStart, fastEnd uint64 // physical, page aligned
	fastLo, fastHi     uint64 // frame indices

	allocs, frees uint64
}

var (
	_ Allocator = (*Bitmap)(nil)
	_ Remapper  = (*Bitmap)(nil)
)

// NewBitmap returns an uninitialized bitmap allocator that accesses its
// bitmaps through win at arch.KernelVBase+paddr.
func NewBitmap(win Window) *Bitmap {
	return &Bitmap{win: win, vbase: arch.KernelVBase}
}

// Init sizes the bitmaps for the span covered by m (from the region at address
// 0 up to the start of the highest region), places them in the lowest
// Available region that can hold them, and marks Available memory free and
// everything else, the bitmaps included, used.
func (b *Bitmap) Init(m *region.Map, fastStart, fastEnd uint64) {
	n := m.Len()
	fault.Assert(n > 1, "pmm", ErrTooFewRegions, "%d regions", n)

	b.base = m.At(n - 1).Start()
	b.memSize = m.At(0).Start() - b.base
	b.totBlk = b.memSize >> arch.PageShift
	b.usedBlk = b.totBlk

	b.bm0Words = arch.AlignUp(b.totBlk, arch.WordBits) >> arch.WordShift
	b.bm1Words = arch.AlignUp(b.bm0Words, arch.WordBits) >> arch.WordShift
	b.bmSize = arch.PageAlignUp((b.bm0Words + b.bm1Words) * 8)

	found := false
	for i := n - 1; i >= 1; i-- {
		r := m.At(i)
		if r.Type() == region.Available && m.End(i)-r.Start() >= b.bmSize {
			b.bmPhys = r.Start()
			found = true
			break
		}
	}
	if !found {
		fault.Halt("pmm", ErrNoBitmapSpace, "need %#x bytes", b.bmSize)
	}
	b.bm0 = b.vbase + b.bmPhys
	b.bm1 = b.bm0 + b.bm0Words*8

	for off := uint64(0); off < b.bmSize; off += 8 {
		b.win.Store64(b.bm0+off, arch.WordMax)
	}
	b.ready = true

	for i := 1; i < n; i++ {
		if m.At(i).Type() == region.Available {
			b.markRange(m.At(i).Start(), m.End(i), false)
		}
	}
	b.markRange(b.bmPhys, b.bmPhys+b.bmSize, true)
	m.MarkManaged(b.base, b.base+b.memSize)

	top := b.base + b.memSize
	b.fastStart = min(max(arch.PageAlignUp(fastStart), b.base), top)
	b.fastEnd = min(max(arch.PageAlignDown(fastEnd), b.fastStart), top)
	b.fastLo = (b.fastStart - b.base) >> arch.PageShift
	b.fastHi = (b.fastEnd - b.base) >> arch.PageShift

	klog.Info("pmm initialized",
		"base", hex(b.base), "frames", b.totBlk, "used", b.usedBlk,
		"bitmap", hex(b.bmPhys), "bitmap_bytes", b.bmSize,
		"fast_start", hex(b.fastStart), "fast_end", hex(b.fastEnd))
}

// Alloc returns the lowest free frame of the fast range, or InvalidFrame.
func (b *Bitmap) Alloc() Frame {
	fault.Assert(b.ready, "pmm", ErrNotInitialized, "")
	if b.usedBlk == b.totBlk {
		return InvalidFrame
	}
	hiWord := arch.AlignUp(b.fastHi, arch.WordBits) >> arch.WordShift
	for w := b.fastLo >> arch.WordShift; w < hiWord; {
		summary := b.win.Load64(b.bm1 + (w>>arch.WordShift)*8)
		if summary == arch.WordMax {
			w = (w | (arch.WordBits - 1)) + 1
			continue
		}
		if summary&(1<<(w&(arch.WordBits-1))) != 0 {
			w++
			continue
		}
		free := ^b.win.Load64(b.bm0+w*8) & wordMask(w, b.fastLo, b.fastHi)
		if free == 0 {
			w++
			continue
		}
		bit := w<<arch.WordShift + uint64(bits.TrailingZeros64(free))
		b.set(bit)
		b.usedBlk++
		b.allocs++
		return Frame(b.base + bit<<arch.PageShift)
	}
	return InvalidFrame
}

// Free returns f to the fast range. f must be aligned, inside the fast range,
// and currently allocated.
func (b *Bitmap) Free(f Frame) {
	fault.Assert(b.ready, "pmm", ErrNotInitialized, "")
	addr := uint64(f)
	fault.Assert(arch.IsPageAligned(addr), "pmm", ErrUnaligned, "free %s", f)
	fault.Assert(addr >= b.fastStart && addr < b.fastEnd, "pmm", ErrOutsideFast,
		"free %s outside [%#x, %#x)", f, b.fastStart, b.fastEnd)
	bit := (addr - b.base) >> arch.PageShift
	fault.Assert(b.test(bit), "pmm", ErrDoubleFree, "free %s", f)
	b.unset(bit)
	b.usedBlk--
	b.frees++
}

// RemapCB maps the bitmap frames at their offset-window addresses in the
// address space being prepared. It may run only once.
func (b *Bitmap) RemapCB(m Mapper) {
	fault.Assert(b.ready, "pmm", ErrNotInitialized, "")
	fault.Assert(!b.remapped, "pmm", ErrRemapTwice, "")
	m.MapTo(b.bm0, b.bmPhys, int(b.bmSize>>arch.PageShift), arch.PTEWritable|arch.PTENoExec)
	b.remapped = true
	klog.Debug("pmm bitmaps remapped", "vaddr", hex(b.bm0), "paddr", hex(b.bmPhys), "pages", b.bmSize>>arch.PageShift)
}

// TotalFrames returns the number of frames in the managed span.
func (b *Bitmap) TotalFrames() uint64 { return b.totBlk }

// UsedFrames returns the number of frames marked used.
func (b *Bitmap) UsedFrames() uint64 { return b.usedBlk }

// FastRange returns the physical bounds Alloc serves from.
func (b *Bitmap) FastRange() (start, end uint64) { return b.fastStart, b.fastEnd }

// Span returns the managed physical span.
func (b *Bitmap) Span() (base, size uint64) { return b.base, b.memSize }

// IsUsed reports whether f is marked used. Frames outside the managed span
// are always used.
func (b *Bitmap) IsUsed(f Frame) bool {
	addr := uint64(f)
	if addr < b.base || addr >= b.base+b.memSize {
		return true
	}
	return b.test((addr - b.base) >> arch.PageShift)
}

// Popcount counts the level-0 bits set within the managed span.
func (b *Bitmap) Popcount() uint64 {
	var n uint64
	for w := uint64(0); w < b.bm0Words; w++ {
		n += uint64(bits.OnesCount64(b.win.Load64(b.bm0+w*8) & wordMask(w, 0, b.totBlk)))
	}
	return n
}

// Stats returns a snapshot of the allocator counters.
func (b *Bitmap) Stats() Stats {
	st := Stats{
		TotalFrames: b.totBlk,
		UsedFrames:  b.usedBlk,
		FastFrames:  b.fastHi - b.fastLo,
		Allocs:      b.allocs,
		Frees:       b.frees,
		BitmapAddr:  b.bmPhys,
		BitmapBytes: b.bmSize,
	}
	for w := b.fastLo >> arch.WordShift; w < arch.AlignUp(b.fastHi, arch.WordBits)>>arch.WordShift; w++ {
		st.FastFree += uint64(bits.OnesCount64(^b.win.Load64(b.bm0+w*8) & wordMask(w, b.fastLo, b.fastHi)))
	}
	return st
}

func (b *Bitmap) test(bit uint64) bool {
	return b.win.Load64(b.bm0+(bit>>arch.WordShift)*8)&(1<<(bit&(arch.WordBits-1))) != 0
}

func (b *Bitmap) set(bit uint64) {
	w := bit >> arch.WordShift
	v := b.win.Load64(b.bm0+w*8) | 1<<(bit&(arch.WordBits-1))
	b.win.Store64(b.bm0+w*8, v)
	if v == arch.WordMax {
		b.setSummary(w, true)
	}
}

func (b *Bitmap) unset(bit uint64) {
	w := bit >> arch.WordShift
	v := b.win.Load64(b.bm0+w*8) &^ (1 << (bit & (arch.WordBits - 1)))
	b.win.Store64(b.bm0+w*8, v)
	b.setSummary(w, false)
}

// setSummary sets or clears the level-1 bit of level-0 word w.
func (b *Bitmap) setSummary(w uint64, full bool) {
	addr := b.bm1 + (w>>arch.WordShift)*8
	mask := uint64(1) << (w & (arch.WordBits - 1))
	v := b.win.Load64(addr)
	if full {
		v |= mask
	} else {
		v &^= mask
	}
	b.win.Store64(addr, v)
}

// markRange sets (used) or clears every bit for [start, end), a word at a
// time, keeping usedBlk and the summary level in step.
func (b *Bitmap) markRange(start, end uint64, used bool) {
	fault.Assert(start >= b.base && end <= b.base+b.memSize, "pmm", fault.ErrAssert,
		"mark [%#x, %#x) outside span", start, end)
	lo := (start - b.base) >> arch.PageShift
	hi := (end - b.base) >> arch.PageShift
	for i := lo; i < hi; {
		w := i >> arch.WordShift
		mask := wordMask(w, i, hi)
		old := b.win.Load64(b.bm0 + w*8)
		v := old &^ mask
		if used {
			v = old | mask
		}
		b.win.Store64(b.bm0+w*8, v)
		b.setSummary(w, v == arch.WordMax)

		changed := uint64(bits.OnesCount64(old ^ v))
		if used {
			b.usedBlk += changed
		} else {
			b.usedBlk -= changed
		}
		i = (w + 1) << arch.WordShift
	}
}

// wordMask selects the bits of level-0 word w whose frame index lies in [lo, hi).
func wordMask(w, lo, hi uint64) uint64 {
	first := w << arch.WordShift
	mask := arch.WordMax
	if lo > first {
		mask &= arch.WordMax << (lo - first)
	}
	if hi < first+arch.WordBits {
		if hi <= first {
			return 0
		}
		mask &= arch.WordMax >> (first + arch.WordBits - hi)
	}
	return mask
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}
