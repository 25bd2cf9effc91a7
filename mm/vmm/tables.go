package vmm

import (
	"fmt"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/cpu"
	"github.com/joshuapare/kmem/internal/phys"
)

// Table identifies one page table. Its meaning depends on the backend: a
// virtual address in the recursive window, or a physical address.
type Table uint64

// Tables is the walk and mutate contract shared by the table backends.
type Tables interface {
	// Root returns the top-level table currently being edited.
	Root() Table

	// Child returns the table referenced by entry idx of parent, which must be
	// present and not huge.
	Child(parent Table, idx int) Table

	Entry(t Table, idx int) PTE
	SetEntry(t Table, idx int, e PTE)

	// Zero clears every entry of t.
	Zero(t Table)

	// Invalidate drops any cached translation of t itself.
	Invalidate(t Table)

	// InitTop turns frame into an empty top-level table carrying the
	// recursive slot.
	InitTop(frame uint64)

	// WithTop runs fn with Root resolving to the hierarchy under top.
	WithTop(top uint64, fn func())

	// Name identifies the backend.
	Name() string
}

// Backend selects a Tables implementation.
type Backend int

const (
	BackendRecursive Backend = iota
	BackendDirect
)

func (b Backend) String() string {
	switch b {
	case BackendRecursive:
		return "recursive"
	case BackendDirect:
		return "direct"
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}

// ParseBackend parses "recursive" or "direct".
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "recursive", "":
		return BackendRecursive, nil
	case "direct":
		return BackendDirect, nil
	}
	return 0, fmt.Errorf("vmm: unknown backend %q", s)
}

const tableFlags = FlagPresent | FlagWritable

// recursiveTables reaches tables through the self-map at slot 510 using
// ordinary virtual accesses.
type recursiveTables struct {
	c *cpu.CPU
	v *VMM
}

func (r *recursiveTables) Root() Table { return Table(arch.TopTableVAddr) }

func (r *recursiveTables) Child(parent Table, idx int) Table {
	return Table(uint64(parent)<<9 | 0xffff000000000000 | uint64(idx)<<arch.PageShift)
}

func (r *recursiveTables) Entry(t Table, idx int) PTE {
	return PTE(r.c.Load64(uint64(t) + uint64(idx)*8))
}

func (r *recursiveTables) SetEntry(t Table, idx int, e PTE) {
	r.c.Store64(uint64(t)+uint64(idx)*8, uint64(e))
}

func (r *recursiveTables) Zero(t Table) { r.c.ZeroRange(uint64(t), arch.PageSize) }

func (r *recursiveTables) Invalidate(t Table) { r.c.Invlpg(uint64(t)) }

func (r *recursiveTables) InitTop(frame uint64) {
	r.v.MapTo(arch.TempVAddr, frame, 1, tableFlags)
	r.c.ZeroRange(arch.TempVAddr, arch.PageSize)
	r.c.Store64(arch.TempVAddr+arch.RecursiveSlot*8, uint64(NewPTE(frame, tableFlags)))
	r.v.Unmap(arch.TempVAddr, 1)
}

// WithTop maps the current top-level table at the scratch page, points its
// recursive slot at top, and flushes the TLB so the whole window follows.
func (r *recursiveTables) WithTop(top uint64, fn func()) {
	backup := r.c.ReadCR3()
	slot := arch.TempVAddr + arch.RecursiveSlot*8

	r.v.MapTo(arch.TempVAddr, backup, 1, tableFlags)
	r.c.Store64(slot, uint64(NewPTE(top, tableFlags)))
	r.c.FlushTLB()

	fn()

	r.c.Store64(slot, uint64(NewPTE(backup, tableFlags)))
	r.c.FlushTLB()
	r.v.Unmap(arch.TempVAddr, 1)
}

func (r *recursiveTables) Name() string { return BackendRecursive.String() }

// directTables reaches tables by physical address.
type directTables struct {
	c        *cpu.CPU
	mem      *phys.Memory
	override uint64
}

func (d *directTables) Root() Table {
	if d.override != 0 {
		return Table(d.override)
	}
	return Table(d.c.ReadCR3())
}

func (d *directTables) Child(parent Table, idx int) Table {
	return Table(d.Entry(parent, idx).Frame())
}

func (d *directTables) Entry(t Table, idx int) PTE {
	return PTE(d.mem.Read64(uint64(t) + uint64(idx)*8))
}

func (d *directTables) SetEntry(t Table, idx int, e PTE) {
	d.mem.Write64(uint64(t)+uint64(idx)*8, uint64(e))
}

func (d *directTables) Zero(t Table) { d.mem.Zero(uint64(t), arch.PageSize) }

func (d *directTables) Invalidate(Table) {}

func (d *directTables) InitTop(frame uint64) {
	d.mem.Zero(frame, arch.PageSize)
	d.mem.Write64(frame+arch.RecursiveSlot*8, uint64(NewPTE(frame, tableFlags)))
}

func (d *directTables) WithTop(top uint64, fn func()) {
	saved := d.override
	d.override = top
	defer func() { d.override = saved }()
	fn()
}

func (d *directTables) Name() string { return BackendDirect.String() }
