package region

import (
	"slices"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/fault"
	"github.com/joshuapare/kmem/internal/klog"
)

// Firmware (E820) memory types.
const (
	E820Available    uint32 = 1
	E820Reserved     uint32 = 2
	E820ACPIReclaim  uint32 = 3
	E820ACPINVS      uint32 = 4
	E820BadMemory    uint32 = 5
	acpiEnabledField uint32 = 1 << 0
)

// Entry is one raw firmware memory-map record.
type Entry struct {
	Base   uint64
	Length uint64
	Type   uint32 // E820 type code
	ACPI   uint32 // ACPI 3.0 extended attributes, 0 if absent
}

// End returns Base+Length, saturated at the end of the physical address space.
func (e Entry) End() uint64 {
	end := e.Base + e.Length
	if end < e.Base || end > arch.PAddrMax {
		return arch.PAddrMax
	}
	return end
}

// Ignored reports whether the firmware marked the entry as to be ignored: an
// extended attribute word is present but its enabled bit is clear.
func (e Entry) Ignored() bool {
	return e.ACPI != 0 && e.ACPI&acpiEnabledField == 0
}

// FirmwareType maps an E820 type code to a region type.
func FirmwareType(code uint32) Type {
	switch code {
	case E820Available:
		return Available
	case E820ACPIReclaim:
		return ACPIReclaimable
	case E820ACPINVS:
		return ACPINVS
	default:
		return Reserved
	}
}

type span struct {
	start, end uint64
	typ        Type
}

// normalize resolves the entry's type and aligns it: usable memory shrinks to
// whole pages, everything else grows to cover partial pages.
func normalize(e Entry) (span, bool) {
	if e.Ignored() || e.Base >= arch.PAddrMax {
		return span{}, false
	}
	s := span{start: e.Base, end: e.End(), typ: FirmwareType(e.Type)}
	if s.typ == Available {
		s.start, s.end = arch.PageAlignUp(s.start), arch.PageAlignDown(s.end)
	} else {
		s.start, s.end = arch.PageAlignDown(s.start), min(arch.PageAlignUp(s.end), arch.PAddrMax)
	}
	return s, s.start < s.end
}

// Translate turns raw firmware entries into a canonical region map.
//
// Entries are sorted by end address descending (ties by base descending) and
// swept from the top of the address space down. Space not covered by any
// entry becomes Reserved, an entry of the same type as the region just emitted
// extends it, and the part of an entry that overlaps already-emitted regions is
// resolved with Insert's precedence rule once the sweep is done.
//
// An empty input yields nil. A single entry cannot describe a terminated map
// and is fatal.
func Translate(entries []Entry) *Map {
	if len(entries) == 0 {
		return nil
	}
	fault.Assert(len(entries) >= 2, "region", ErrTooFewEntries, "got %d", len(entries))

	spans := make([]span, 0, len(entries))
	for _, e := range entries {
		if s, ok := normalize(e); ok {
			spans = append(spans, s)
		} else {
			klog.Debug("firmware entry dropped", "base", hex(e.Base), "len", hex(e.Length), "type", e.Type, "acpi", e.ACPI)
		}
	}
	slices.SortStableFunc(spans, func(a, b span) int {
		if a.end != b.end {
			return cmpDesc(a.end, b.end)
		}
		return cmpDesc(a.start, b.start)
	})

	var out []Region
	var overlaps []span
	last := arch.PAddrMax

	emit := func(start uint64, t Type) {
		if n := len(out); n > 0 && out[n-1].Type() == t {
			out[n-1] = out[n-1].WithStart(start)
		} else {
			out = append(out, New(start, t))
		}
		last = start
	}

	for _, s := range spans {
		if s.end < last {
			emit(s.end, Reserved)
		}
		if s.end > last {
			overlaps = append(overlaps, span{start: max(s.start, last), end: s.end, typ: s.typ})
		}
		if s.start < last {
			emit(s.start, s.typ)
		}
	}
	if last > 0 {
		emit(0, Reserved)
	}

	if len(out) > MaxEntries {
		fault.Halt("region", ErrMapFull, "translate produced %d regions", len(out))
	}
	m := &Map{n: len(out)}
	copy(m.r[:], out)

	for _, o := range overlaps {
		m.Insert(o.start, o.end, o.typ)
	}
	klog.Debug("region map translated", "entries", len(entries), "regions", m.n, "overlaps", len(overlaps))
	return m
}

func cmpDesc(a, b uint64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}
