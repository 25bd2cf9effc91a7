package vmm

import (
	"github.com/joshuapare/kmem/internal/fault"
	"github.com/joshuapare/kmem/internal/klog"
	"github.com/joshuapare/kmem/mm/pmm"
)

// Bootstrap builds the kernel's own top-level table and switches to it.
//
// remap runs while the new table is being edited in place of the active one,
// and must map everything the kernel needs to keep running (its sections, at
// minimum). If the frame allocator implements pmm.Remapper its RemapCB runs
// the same way. No-execute and write-protect enforcement are then enabled and
// the new table is activated. It returns the physical address of the new
// top-level table.
func (v *VMM) Bootstrap(remap func(m pmm.Mapper)) uint64 {
	fault.Assert(!v.bootstrapped, "vmm", ErrBootstrapped, "")
	fault.Assert(remap != nil, "vmm", ErrNoRemap, "")

	frame := v.frames.Alloc()
	if !frame.Valid() {
		fault.Halt("vmm", ErrOutOfFrames, "top-level table")
	}
	top := uint64(frame)
	v.tables.InitTop(top)
	v.stats.TablesAllocated++

	m := v.Mapper()
	v.tables.WithTop(top, func() { remap(m) })
	if r, ok := v.frames.(pmm.Remapper); ok {
		v.tables.WithTop(top, func() { r.RemapCB(m) })
	}

	v.c.EnableNX()
	v.c.EnableWriteProtect()
	old := v.SwitchAddrSpace(top)
	v.bootstrapped = true
	klog.Info("vmm bootstrapped", "top", hex(top), "loader_top", hex(old), "backend", v.tables.Name())
	return top
}

// Bootstrapped reports whether Bootstrap has completed.
func (v *VMM) Bootstrapped() bool { return v.bootstrapped }
