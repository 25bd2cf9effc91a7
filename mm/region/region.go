package region

import (
	"fmt"

	"github.com/joshuapare/kmem/internal/arch"
)

// Type tags a region. The numeric value is the precedence used when ranges
// overlap: higher wins.
type Type uint8

const (
	None            Type = iota // placeholder for the empty map
	Available                   // usable RAM
	FirmwareTable               // boot information table
	Kernel                      // the loaded kernel image
	ACPIReclaimable             // ACPI tables, reusable once parsed
	ACPINVS                     // ACPI non-volatile storage
	Reserved                    // unusable
)

const (
	typeMask    = 0x7
	managedBit  = 1 << 3
	startMask   = arch.PAddrAlignMask
	numTypes    = int(Reserved) + 1
	unknownName = "<Unknown>"
)

var typeNames = [numTypes]string{
	None:            "None",
	Available:       "Available",
	FirmwareTable:   "Multiboot2 Table",
	Kernel:          "Kernel",
	ACPIReclaimable: "ACPI Reclaimable",
	ACPINVS:         "ACPI Non Volatile",
	Reserved:        "Reserved",
}

func (t Type) String() string {
	if int(t) < numTypes {
		return typeNames[t]
	}
	return unknownName
}

// Valid reports whether t is one of the defined types.
func (t Type) Valid() bool { return int(t) < numTypes }

// ParseType accepts a symbolic name (case-sensitive, as printed by String) or
// one of the short forms used in map files.
func ParseType(s string) (Type, error) {
	for i, n := range typeNames {
		if n == s {
			return Type(i), nil
		}
	}
	switch s {
	case "avail", "available", "AVAIL":
		return Available, nil
	case "rsvd", "reserved", "RSVD":
		return Reserved, nil
	case "kernel":
		return Kernel, nil
	case "acpi", "acpi-reclaim":
		return ACPIReclaimable, nil
	case "nvs", "acpi-nvs":
		return ACPINVS, nil
	case "mb2", "firmware":
		return FirmwareTable, nil
	}
	return None, fmt.Errorf("region: unknown type %q", s)
}

// Region packs a page-aligned start address (bits 12..55), a Type (bits 0..2)
// and the managed flag (bit 3) into one word.
type Region uint64

// New returns a region starting at start with type t. The low 12 bits of start
// are discarded.
func New(start uint64, t Type) Region {
	return Region(start&startMask | uint64(t)&typeMask)
}

// Start returns the region's first physical address.
func (r Region) Start() uint64 { return uint64(r) & startMask }

// Type returns the region's type tag.
func (r Region) Type() Type { return Type(uint64(r) & typeMask) }

// Managed reports whether the frame allocator tracks this region.
func (r Region) Managed() bool { return uint64(r)&managedBit != 0 }

// WithStart returns r moved to start.
func (r Region) WithStart(start uint64) Region {
	return Region(uint64(r)&^startMask | start&startMask)
}

// WithType returns r retagged as t.
func (r Region) WithType(t Type) Region {
	return Region(uint64(r)&^typeMask | uint64(t)&typeMask)
}

// WithManaged returns r with the managed flag set to m.
func (r Region) WithManaged(m bool) Region {
	if m {
		return r | managedBit
	}
	return r &^ managedBit
}

func (r Region) String() string {
	return fmt.Sprintf("%#x:%s", r.Start(), r.Type())
}

// Range is a decoded region with an explicit end, used by consumers that walk
// the map in ascending order.
type Range struct {
	Start   uint64
	End     uint64
	Type    Type
	Managed bool
}

// Size returns End - Start.
func (r Range) Size() uint64 { return r.End - r.Start }

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}
