package vmm

import (
	"strings"

	"github.com/joshuapare/kmem/internal/arch"
)

// PTE is a raw page-table entry.
type PTE uint64

// Entry flags.
const (
	FlagPresent      = PTE(arch.PTEPresent)
	FlagWritable     = PTE(arch.PTEWritable)
	FlagUser         = PTE(arch.PTEUser)
	FlagWriteThrough = PTE(arch.PTEWriteThrough)
	FlagNoCache      = PTE(arch.PTENoCache)
	FlagAccessed     = PTE(arch.PTEAccessed)
	FlagDirty        = PTE(arch.PTEDirty)
	FlagHuge         = PTE(arch.PTEHuge)
	FlagGlobal       = PTE(arch.PTEGlobal)
	FlagDeferred     = PTE(arch.PTEDeferred)
	FlagNoExec       = PTE(arch.PTENoExec)

	// AddrMask selects the frame address.
	AddrMask = PTE(arch.PTEAddrMask)
)

// InvalidAddr is returned by Translate for unmapped addresses.
const InvalidAddr = ^uint64(0)

// NewPTE builds an entry pointing at frame with the given flags.
func NewPTE(frame uint64, flags PTE) PTE {
	return PTE(frame)&AddrMask | flags&^AddrMask
}

// Frame returns the physical address the entry points to.
func (e PTE) Frame() uint64 { return uint64(e & AddrMask) }

// Flags returns the entry without its address bits.
func (e PTE) Flags() PTE { return e &^ AddrMask }

// Has reports whether every bit of f is set.
func (e PTE) Has(f PTE) bool { return e&f == f }

// Unused reports whether the entry is entirely zero.
func (e PTE) Unused() bool { return e == 0 }

// Present reports whether the entry is present.
func (e PTE) Present() bool { return e&FlagPresent != 0 }

// Huge reports whether the entry maps a large page.
func (e PTE) Huge() bool { return e&FlagHuge != 0 }

var flagNames = []struct {
	f    PTE
	name string
}{
	{FlagPresent, "P"},
	{FlagWritable, "W"},
	{FlagUser, "U"},
	{FlagWriteThrough, "WT"},
	{FlagNoCache, "NC"},
	{FlagAccessed, "A"},
	{FlagDirty, "D"},
	{FlagHuge, "H"},
	{FlagGlobal, "G"},
	{FlagDeferred, "DEF"},
	{FlagNoExec, "NX"},
}

// String renders the flags in a compact form, e.g. "P|W|NX".
func (e PTE) String() string {
	var parts []string
	for _, fn := range flagNames {
		if e&fn.f != 0 {
			parts = append(parts, fn.name)
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}
