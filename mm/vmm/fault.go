package vmm

import (
	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/cpu"
	"github.com/joshuapare/kmem/internal/fault"
	"github.com/joshuapare/kmem/internal/klog"
)

// HandlePageFault is the page-fault entry point. A not-present fault on a
// deferred leaf commits a fresh zeroed frame and returns, resuming the
// faulting access. Every other fault halts.
func (v *VMM) HandlePageFault(f cpu.Fault) {
	klog.Debug("page fault", "addr", hex(f.Addr), "rip", hex(f.RIP), "code", hex(f.Code))

	switch {
	case f.Code&cpu.ErrInstr != 0:
		fault.Halt("vmm", ErrNoExec, "addr=%#x rip=%#x", f.Addr, f.RIP)
	case f.Code&cpu.ErrReserved != 0:
		fault.Halt("vmm", ErrReservedBit, "addr=%#x rip=%#x", f.Addr, f.RIP)
	case f.Code&cpu.ErrPresent != 0:
		fault.Halt("vmm", ErrProtection, "addr=%#x rip=%#x code=%#x", f.Addr, f.RIP, f.Code)
	}

	page := arch.PageAlignDown(f.Addr)
	t, ok := v.walk(page, false)
	if !ok {
		fault.Halt("vmm", ErrRogue, "addr=%#x rip=%#x", f.Addr, f.RIP)
	}
	idx := arch.Index(page, 1)
	e := v.tables.Entry(t, idx)
	if !e.Has(FlagDeferred) {
		fault.Halt("vmm", ErrRogue, "addr=%#x rip=%#x entry=%#x", f.Addr, f.RIP, uint64(e))
	}

	frame := v.frames.Alloc()
	if !frame.Valid() {
		fault.Halt("vmm", ErrOutOfFrames, "commit %#x", page)
	}

	// Scrub the frame through a temporary writable mapping before the page
	// becomes visible with its real permissions.
	v.tables.SetEntry(t, idx, NewPTE(uint64(frame), tableFlags))
	v.c.Invlpg(page)
	v.c.ZeroRange(page, arch.PageSize)

	v.tables.SetEntry(t, idx, NewPTE(uint64(frame), (e.Flags()|FlagPresent)&^FlagDeferred))
	v.c.Invlpg(page)
	v.stats.FaultsResolved++
	klog.Debug("deferred page committed", "vaddr", hex(page), "frame", frame)
}
