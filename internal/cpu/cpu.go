package cpu

import (
	"errors"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/fault"
	"github.com/joshuapare/kmem/internal/klog"
	"github.com/joshuapare/kmem/internal/phys"
)

// Page-fault error-code bits, as pushed by the processor.
const (
	ErrPresent  uint64 = 1 << 0 // fault on a present page (protection violation)
	ErrWrite    uint64 = 1 << 1 // the access was a write
	ErrUser     uint64 = 1 << 2 // the access came from ring 3
	ErrReserved uint64 = 1 << 3 // a reserved bit was set in a paging entry
	ErrInstr    uint64 = 1 << 4 // the access was an instruction fetch
)

const (
	bitPresent  = arch.PTEPresent
	bitWritable = arch.PTEWritable
	bitAccessed = arch.PTEAccessed
	bitDirty    = arch.PTEDirty
	bitHuge     = arch.PTEHuge
	bitGlobal   = arch.PTEGlobal
	bitNoExec   = arch.PTENoExec
	addrMask    = arch.PTEAddrMask
)

var (
	// ErrNoHandler indicates a page fault with no handler installed.
	ErrNoHandler = errors.New("cpu: page fault with no handler")

	// ErrUnresolved indicates the handler returned but the access faulted again.
	ErrUnresolved = errors.New("cpu: unresolved page fault")

	// ErrNestedFault indicates a page fault raised while handling another.
	ErrNestedFault = errors.New("cpu: nested page fault")

	// ErrNonCanonical indicates an access to a non-canonical address.
	ErrNonCanonical = errors.New("cpu: non-canonical address")
)

// Fault is the state the processor hands to the page-fault handler.
type Fault struct {
	Addr uint64 // faulting linear address (CR2)
	RIP  uint64 // instruction pointer at the time of the fault
	Code uint64 // error code
}

// Handler services a page fault. Returning resumes the faulting access.
type Handler func(f Fault)

type access uint8

const (
	accessRead access = iota
	accessWrite
	accessFetch
)

type tlbEntry struct {
	page     uint64 // physical address of the 4 KiB page
	writable bool
	noExec   bool
	global   bool
	dirty    bool
}

// Stats counts MMU events.
type Stats struct {
	Faults     int
	TLBHits    int
	TLBMisses  int
	TLBFlushes int
	Invlpgs    int
}

// CPU is one simulated hardware thread bound to a physical memory arena.
type CPU struct {
	mem     *phys.Memory
	cr3     uint64
	nxe     bool
	wp      bool
	rip     uint64
	tlb     map[uint64]tlbEntry
	handler Handler
	inFault bool
	stats   Stats
}

// New creates a CPU with paging structures rooted at physical address 0 until
// WriteCR3 is called.
func New(mem *phys.Memory) *CPU {
	return &CPU{
		mem: mem,
		tlb: make(map[uint64]tlbEntry, 256),
	}
}

// Memory returns the physical arena the CPU is attached to.
func (c *CPU) Memory() *phys.Memory { return c.mem }

// ReadCR3 returns the physical address of the active top-level table.
func (c *CPU) ReadCR3() uint64 { return c.cr3 }

// WriteCR3 switches the active top-level table. Non-global TLB entries are
// dropped, as on hardware.
func (c *CPU) WriteCR3(top uint64) {
	c.cr3 = top & addrMask
	c.FlushTLB()
}

// EnableNX sets EFER.NXE. Until then bit 63 of a paging entry is reserved.
func (c *CPU) EnableNX() { c.nxe = true }

// EnableWriteProtect sets CR0.WP so supervisor writes honour read-only pages.
func (c *CPU) EnableWriteProtect() { c.wp = true }

// NXEnabled reports EFER.NXE.
func (c *CPU) NXEnabled() bool { return c.nxe }

// WriteProtectEnabled reports CR0.WP.
func (c *CPU) WriteProtectEnabled() bool { return c.wp }

// SetRIP records the instruction pointer reported with subsequent faults.
func (c *CPU) SetRIP(rip uint64) { c.rip = rip }

// RIP returns the current instruction pointer.
func (c *CPU) RIP() uint64 { return c.rip }

// SetFaultHandler installs the page-fault entry point.
func (c *CPU) SetFaultHandler(h Handler) { c.handler = h }

// Invlpg drops the TLB entry for the page containing vaddr.
func (c *CPU) Invlpg(vaddr uint64) {
	c.stats.Invlpgs++
	delete(c.tlb, vaddr>>arch.PageShift)
}

// FlushTLB drops every non-global TLB entry (a CR3 reload).
func (c *CPU) FlushTLB() {
	c.stats.TLBFlushes++
	for k, e := range c.tlb {
		if !e.global {
			delete(c.tlb, k)
		}
	}
}

// Stats returns a snapshot of the MMU counters.
func (c *CPU) Stats() Stats { return c.stats }

// translate resolves vaddr for the given access. On failure it returns the
// error code the processor would push.
func (c *CPU) translate(vaddr uint64, kind access) (uint64, uint64, bool) {
	if !arch.Canonical(vaddr) {
		fault.Halt("cpu", ErrNonCanonical, "%#x", vaddr)
	}
	vpn := vaddr >> arch.PageShift
	off := vaddr & arch.PageMask

	if e, ok := c.tlb[vpn]; ok && (kind != accessWrite || e.dirty) {
		if code, denied := c.check(e.writable, e.noExec, kind); denied {
			return 0, code, false
		}
		c.stats.TLBHits++
		return e.page | off, 0, true
	}
	c.stats.TLBMisses++

	kindCode := uint64(0)
	switch kind {
	case accessWrite:
		kindCode = ErrWrite
	case accessFetch:
		if c.nxe {
			kindCode = ErrInstr
		}
	}

	table := c.cr3
	writable, noExec := true, false
	for level := arch.TableLevels; level >= 1; level-- {
		slot := table + uint64(arch.Index(vaddr, level))*8
		e := c.mem.Read64(slot)
		if e&bitPresent == 0 {
			return 0, kindCode, false
		}
		if e&bitNoExec != 0 && !c.nxe {
			return 0, kindCode | ErrPresent | ErrReserved, false
		}
		if e&bitHuge != 0 && (level == arch.TableLevels || level == 1) {
			return 0, kindCode | ErrPresent | ErrReserved, false
		}
		writable = writable && e&bitWritable != 0
		noExec = noExec || e&bitNoExec != 0

		leaf := level == 1 || e&bitHuge != 0
		if !leaf {
			if e&bitAccessed == 0 {
				c.mem.Write64(slot, e|bitAccessed)
			}
			table = e & addrMask
			continue
		}

		if code, denied := c.check(writable, noExec, kind); denied {
			return 0, code, false
		}
		upd := e | bitAccessed
		if kind == accessWrite {
			upd |= bitDirty
		}
		if upd != e {
			c.mem.Write64(slot, upd)
		}
		span := arch.LevelSpan(level)
		page := (e & addrMask &^ (span - 1)) + (vaddr & (span - 1) &^ arch.PageMask)
		c.tlb[vpn] = tlbEntry{
			page:     page,
			writable: writable,
			noExec:   noExec,
			global:   e&bitGlobal != 0,
			dirty:    upd&bitDirty != 0,
		}
		return page | off, 0, true
	}
	return 0, kindCode, false
}

// check applies the protection rules to a resolved translation.
func (c *CPU) check(writable, noExec bool, kind access) (uint64, bool) {
	switch {
	case kind == accessWrite && !writable && c.wp:
		return ErrPresent | ErrWrite, true
	case kind == accessFetch && noExec && c.nxe:
		return ErrPresent | ErrInstr, true
	}
	return 0, false
}

// resolve translates vaddr, raising a page fault and retrying once on failure.
func (c *CPU) resolve(vaddr uint64, kind access) uint64 {
	pa, code, ok := c.translate(vaddr, kind)
	if ok {
		return pa
	}
	c.raise(Fault{Addr: vaddr, RIP: c.rip, Code: code})
	pa, code, ok = c.translate(vaddr, kind)
	if !ok {
		fault.Halt("cpu", ErrUnresolved, "addr=%#x code=%#x", vaddr, code)
	}
	return pa
}

func (c *CPU) raise(f Fault) {
	c.stats.Faults++
	if c.handler == nil {
		fault.Halt("cpu", ErrNoHandler, "addr=%#x rip=%#x code=%#x", f.Addr, f.RIP, f.Code)
	}
	if c.inFault {
		fault.Halt("cpu", ErrNestedFault, "addr=%#x rip=%#x code=%#x", f.Addr, f.RIP, f.Code)
	}
	klog.Debug("page fault", "addr", hex(f.Addr), "rip", hex(f.RIP), "code", hex(f.Code))
	c.inFault = true
	defer func() { c.inFault = false }()
	c.handler(f)
}

// Walk translates vaddr without touching the TLB, the accessed/dirty bits or
// the fault handler.
func (c *CPU) Walk(vaddr uint64) (uint64, bool) {
	if !arch.Canonical(vaddr) {
		return 0, false
	}
	table := c.cr3
	for level := arch.TableLevels; level >= 1; level-- {
		e := c.mem.Read64(table + uint64(arch.Index(vaddr, level))*8)
		if e&bitPresent == 0 {
			return 0, false
		}
		if level == 1 || e&bitHuge != 0 {
			span := arch.LevelSpan(level)
			return (e & addrMask &^ (span - 1)) + (vaddr & (span - 1)), true
		}
		table = e & addrMask
	}
	return 0, false
}
