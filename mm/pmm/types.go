package pmm

import (
	"fmt"

	"github.com/joshuapare/kmem/mm/region"
)

// Frame is the physical address of a 4 KiB frame.
type Frame uint64

// InvalidFrame is returned by Alloc when the fast range is exhausted.
const InvalidFrame = ^Frame(0)

// Valid reports whether f is not InvalidFrame.
func (f Frame) Valid() bool { return f != InvalidFrame }

func (f Frame) String() string {
	if f == InvalidFrame {
		return "INVALID"
	}
	return fmt.Sprintf("%#x", uint64(f))
}

// Allocator hands out single physical frames.
type Allocator interface {
	// Init builds the allocator over the region map. Frames are only served
	// from [fastStart, fastEnd).
	Init(m *region.Map, fastStart, fastEnd uint64)

	// Alloc returns a free frame from the fast range, or InvalidFrame.
	Alloc() Frame

	// Free returns a frame. Freeing a frame that is not in use halts.
	Free(f Frame)
}

// Mapper installs eager mappings in the address space being prepared.
type Mapper interface {
	MapTo(vaddr, paddr uint64, n int, flags uint64)
}

// Remapper is implemented by allocators whose state must be mapped into the
// kernel's own address space before the switch.
type Remapper interface {
	RemapCB(m Mapper)
}

// Window is the virtual-access surface the bitmap reads and writes through.
// *cpu.CPU implements it.
type Window interface {
	Load64(vaddr uint64) uint64
	Store64(vaddr, v uint64)
}

// Stats summarizes allocator state.
type Stats struct {
	TotalFrames uint64
	UsedFrames  uint64
	FastFrames  uint64
	FastFree    uint64
	Allocs      uint64
	Frees       uint64
	BitmapAddr  uint64 // physical address of the bitmaps
	BitmapBytes uint64 // page-aligned footprint
}
