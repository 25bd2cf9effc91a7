package vmm

import (
	"fmt"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/cpu"
	"github.com/joshuapare/kmem/internal/fault"
	"github.com/joshuapare/kmem/internal/klog"
	"github.com/joshuapare/kmem/internal/phys"
	"github.com/joshuapare/kmem/mm/pmm"
)

// Stats counts VMM activity.
type Stats struct {
	TablesAllocated int
	TablesFreed     int
	PagesReserved   int
	PagesMapped     int
	PagesUnmapped   int
	FramesFreed     int
	FaultsResolved  int
}

// VMM is the virtual memory manager of one address space lineage: the tables
// active at construction and, after Bootstrap, the kernel's own.
type VMM struct {
	c      *cpu.CPU
	frames pmm.Allocator
	tables Tables

	bootstrapped bool
	brk          uint64
	stats        Stats
}

// New binds a VMM to the CPU and frame allocator and installs its page-fault
// handler. mem is used by the direct backend.
func New(c *cpu.CPU, mem *phys.Memory, frames pmm.Allocator, backend Backend) *VMM {
	v := &VMM{c: c, frames: frames}
	switch backend {
	case BackendDirect:
		v.tables = &directTables{c: c, mem: mem}
	default:
		v.tables = &recursiveTables{c: c, v: v}
	}
	c.SetFaultHandler(v.HandlePageFault)
	klog.Debug("vmm ready", "backend", v.tables.Name())
	return v
}

// Backend returns the name of the table backend in use.
func (v *VMM) Backend() string { return v.tables.Name() }

// Stats returns a snapshot of the counters.
func (v *VMM) Stats() Stats { return v.stats }

// Map reserves n pages at vaddr without committing frames. Intermediate tables
// are created eagerly; each leaf is marked deferred and not present, and is
// committed by the page-fault handler on first access.
func (v *VMM) Map(vaddr uint64, n int, flags PTE) {
	checkVAddr("map", vaddr)
	for i := 0; i < n; i++ {
		t := v.leafTable(vaddr)
		idx := arch.Index(vaddr, 1)
		if e := v.tables.Entry(t, idx); !e.Unused() {
			fault.Halt("vmm", ErrDoubleMap, "map %#x: leaf %#x", vaddr, uint64(e))
		}
		v.tables.SetEntry(t, idx, (flags|FlagDeferred)&^FlagPresent&^AddrMask)
		v.stats.PagesReserved++
		vaddr += arch.PageSize
	}
}

// MapTo maps n pages at vaddr to the physical range starting at paddr.
func (v *VMM) MapTo(vaddr, paddr uint64, n int, flags PTE) {
	checkVAddr("map_to", vaddr)
	if paddr&^arch.PAddrAlignMask != 0 {
		fault.Halt("vmm", ErrBadPhysAddress, "map_to %#x -> %#x", vaddr, paddr)
	}
	for i := 0; i < n; i++ {
		t := v.leafTable(vaddr)
		idx := arch.Index(vaddr, 1)
		if e := v.tables.Entry(t, idx); !e.Unused() {
			fault.Halt("vmm", ErrDoubleMap, "map_to %#x: leaf %#x", vaddr, uint64(e))
		}
		v.tables.SetEntry(t, idx, NewPTE(paddr, (flags|FlagPresent)&^FlagDeferred))
		v.stats.PagesMapped++
		vaddr += arch.PageSize
		paddr += arch.PageSize
	}
}

// Unmap clears n mappings starting at vaddr without releasing their frames.
func (v *VMM) Unmap(vaddr uint64, n int) { v.release(vaddr, n, false) }

// Free clears n mappings starting at vaddr and returns committed frames to the
// frame allocator.
func (v *VMM) Free(vaddr uint64, n int) { v.release(vaddr, n, true) }

func (v *VMM) release(vaddr uint64, n int, freeFrames bool) {
	op := "unmap"
	if freeFrames {
		op = "free"
	}
	checkVAddr(op, vaddr)
	for i := 0; i < n; i++ {
		var path [arch.TableLevels]Table // path[0] is the leaf table
		t := v.tables.Root()
		for level := arch.TableLevels; level > 1; level-- {
			path[level-1] = t
			e := v.tables.Entry(t, arch.Index(vaddr, level))
			if !e.Present() || e.Huge() {
				fault.Halt("vmm", ErrNotMapped, "%s %#x: level %d entry %#x", op, vaddr, level, uint64(e))
			}
			t = v.tables.Child(t, arch.Index(vaddr, level))
		}
		path[0] = t

		idx := arch.Index(vaddr, 1)
		e := v.tables.Entry(t, idx)
		if e.Unused() {
			fault.Halt("vmm", ErrNotMapped, "%s %#x", op, vaddr)
		}
		if freeFrames && e.Present() {
			v.frames.Free(pmm.Frame(e.Frame()))
			v.stats.FramesFreed++
		}
		v.tables.SetEntry(t, idx, 0)
		v.c.Invlpg(vaddr)
		v.stats.PagesUnmapped++

		v.reclaim(vaddr, path)
		vaddr += arch.PageSize
	}
}

// reclaim frees empty tables on the path to vaddr, leaf table first. The top
// level is never freed.
func (v *VMM) reclaim(vaddr uint64, path [arch.TableLevels]Table) {
	for level := 1; level < arch.TableLevels; level++ {
		if !v.empty(path[level-1]) {
			return
		}
		parent := path[level]
		idx := arch.Index(vaddr, level+1)
		frame := v.tables.Entry(parent, idx).Frame()
		v.tables.SetEntry(parent, idx, 0)
		v.tables.Invalidate(path[level-1])
		v.frames.Free(pmm.Frame(frame))
		v.stats.TablesFreed++
	}
}

func (v *VMM) empty(t Table) bool {
	for i := 0; i < arch.EntriesPerTable; i++ {
		if !v.tables.Entry(t, i).Unused() {
			return false
		}
	}
	return true
}

// leafTable walks to the leaf table covering vaddr, allocating and zeroing
// missing tables on the way.
func (v *VMM) leafTable(vaddr uint64) Table {
	t, _ := v.walk(vaddr, true)
	return t
}

// walk descends to the leaf table covering vaddr. Without create, a missing or
// huge level returns ok=false.
func (v *VMM) walk(vaddr uint64, create bool) (Table, bool) {
	t := v.tables.Root()
	for level := arch.TableLevels; level > 1; level-- {
		idx := arch.Index(vaddr, level)
		e := v.tables.Entry(t, idx)
		switch {
		case e.Present() && e.Huge():
			if create {
				fault.Halt("vmm", ErrHugeConflict, "%#x at level %d", vaddr, level)
			}
			return 0, false
		case e.Present():
			t = v.tables.Child(t, idx)
		case !create:
			return 0, false
		default:
			frame := v.frames.Alloc()
			if !frame.Valid() {
				fault.Halt("vmm", ErrOutOfFrames, "table for %#x", vaddr)
			}
			v.tables.SetEntry(t, idx, NewPTE(uint64(frame), tableFlags))
			child := v.tables.Child(t, idx)
			v.tables.Invalidate(child)
			v.tables.Zero(child)
			v.stats.TablesAllocated++
			t = child
		}
	}
	return t, true
}

// Translate returns the physical address vaddr maps to, or InvalidAddr.
// Reserved but uncommitted pages translate to InvalidAddr.
func (v *VMM) Translate(vaddr uint64) uint64 {
	if !arch.Canonical(vaddr) {
		fault.Halt("vmm", ErrBadAddress, "translate %#x", vaddr)
	}
	t := v.tables.Root()
	for level := arch.TableLevels; level >= 1; level-- {
		idx := arch.Index(vaddr, level)
		e := v.tables.Entry(t, idx)
		if !e.Present() || e.Huge() && level == arch.TableLevels {
			return InvalidAddr
		}
		if level == 1 || e.Huge() {
			span := arch.LevelSpan(level)
			return e.Frame() + vaddr&(span-1)
		}
		t = v.tables.Child(t, idx)
	}
	return InvalidAddr
}

// SwitchAddrSpace activates the top-level table at newTop and returns the
// previous one.
func (v *VMM) SwitchAddrSpace(newTop uint64) uint64 {
	old := v.c.ReadCR3()
	v.c.WriteCR3(newTop)
	klog.Info("address space switched", "from", hex(old), "to", hex(newTop))
	return old
}

// Mapper adapts the VMM to pmm.Mapper for remap callbacks.
func (v *VMM) Mapper() pmm.Mapper { return mapper{v} }

type mapper struct{ v *VMM }

func (m mapper) MapTo(vaddr, paddr uint64, n int, flags uint64) {
	m.v.MapTo(vaddr, paddr, n, PTE(flags))
}

// checkVAddr rejects the null page, non-canonical and unaligned addresses, and
// the recursive window.
func checkVAddr(op string, vaddr uint64) {
	inWindow := vaddr >= arch.HigherHalf && arch.Index(vaddr, arch.TableLevels) == arch.RecursiveSlot
	if vaddr == 0 || !arch.Canonical(vaddr) || !arch.IsPageAligned(vaddr) || inWindow {
		fault.Halt("vmm", ErrBadAddress, "%s %#x", op, vaddr)
	}
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}
