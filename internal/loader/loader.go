// Package loader installs the page tables a bootloader hands to the kernel:
// a top-level table carrying the recursive slot, the physical offset window at
// arch.KernelVBase and an identity map of low memory, both built from 2 MiB
// pages. The kernel runs on these tables until the VMM builds and switches to
// its own.
package loader

import (
	"errors"
	"fmt"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/klog"
	"github.com/joshuapare/kmem/internal/phys"
)

const (
	present  = arch.PTEPresent
	writable = arch.PTEWritable
	huge     = arch.PTEHuge

	hugeSize = 1 << 21
	gib      = 1 << 30

	// MaxWindow is the largest span the offset window can cover: the last
	// two top-level-slot-511 gigabytes.
	MaxWindow = 2 * gib
)

var (
	// ErrWindowTooLarge indicates a limit beyond MaxWindow.
	ErrWindowTooLarge = errors.New("loader: window larger than 2 GiB")

	// ErrNoRoom indicates the table frames do not fit in physical memory.
	ErrNoRoom = errors.New("loader: no room for tables")
)

// Tables describes the installed bootstrap tables.
type Tables struct {
	Top    uint64   // physical address of the top-level table, for CR3
	Frames []uint64 // every frame the tables occupy, Top first
	Window uint64   // bytes covered by the offset and identity maps
}

// FramesFor returns how many table frames Install uses to cover limit bytes.
func FramesFor(limit uint64) int {
	l2 := int(arch.AlignUp(max(limit, 1), gib) / gib)
	// top + high L3 + low L3 + one L2 per GiB in each map
	return 3 + 2*l2
}

// Install writes the bootstrap tables into mem at the page-aligned physical
// address at, covering [0, limit) of physical memory. Existing contents of the
// table frames are overwritten.
func Install(mem *phys.Memory, at, limit uint64) (*Tables, error) {
	if !arch.IsPageAligned(at) {
		return nil, fmt.Errorf("loader: table base %#x not page aligned", at)
	}
	limit = arch.AlignUp(max(limit, 1), hugeSize)
	if limit > MaxWindow {
		return nil, fmt.Errorf("%w: %#x", ErrWindowTooLarge, limit)
	}
	n := FramesFor(limit)
	if !mem.Contains(at, uint64(n)*arch.PageSize) {
		return nil, fmt.Errorf("%w: %d frames at %#x", ErrNoRoom, n, at)
	}

	t := &Tables{Window: limit}
	next := at
	alloc := func() uint64 {
		f := next
		next += arch.PageSize
		mem.Zero(f, arch.PageSize)
		t.Frames = append(t.Frames, f)
		return f
	}

	t.Top = alloc()
	mem.Write64(entry(t.Top, arch.RecursiveSlot), t.Top|present|writable)

	highL3 := alloc()
	lowL3 := alloc()
	mem.Write64(entry(t.Top, arch.Index(arch.KernelVBase, 4)), highL3|present|writable)
	mem.Write64(entry(t.Top, 0), lowL3|present|writable)

	base3 := arch.Index(arch.KernelVBase, 3)
	for g := uint64(0); g*gib < limit; g++ {
		high := alloc()
		low := alloc()
		mem.Write64(entry(highL3, base3+int(g)), high|present|writable)
		mem.Write64(entry(lowL3, int(g)), low|present|writable)
		for i := 0; i < arch.EntriesPerTable; i++ {
			p := g*gib + uint64(i)*hugeSize
			if p >= limit {
				break
			}
			mem.Write64(entry(high, i), p|present|writable|huge)
			mem.Write64(entry(low, i), p|present|writable|huge)
		}
	}

	klog.Debug("loader tables installed",
		"top", fmt.Sprintf("%#x", t.Top), "frames", len(t.Frames), "window", fmt.Sprintf("%#x", limit))
	return t, nil
}

// VAddr returns the offset-window address of paddr.
func VAddr(paddr uint64) uint64 {
	return arch.KernelVBase + paddr
}

func entry(table uint64, i int) uint64 {
	return table + uint64(i)*8
}
