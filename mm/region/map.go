package region

import (
	"slices"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/fault"
)

// MaxEntries is the capacity of a Map, terminator included.
const MaxEntries = 128

// Map is the physical region map. The zero value is not usable; call NewMap.
type Map struct {
	r [MaxEntries]Region
	n int // regions in use, terminator included

	// splits holds boundaries opened by SplitAt that still separate two
	// regions of the same type.
	splits []uint64
}

// NewMap returns a map covering the whole address space with a single None
// region.
func NewMap() *Map {
	m := &Map{n: 1}
	m.r[0] = New(0, None)
	return m
}

// Len returns the number of regions, terminator included.
func (m *Map) Len() int { return m.n }

// At returns region i, where 0 is the highest.
func (m *Map) At(i int) Region { return m.r[i] }

// End returns the exclusive end address of region i.
func (m *Map) End(i int) uint64 {
	if i == 0 {
		return arch.PAddrMax
	}
	return m.r[i-1].Start()
}

// Regions returns a copy of the regions through the terminator.
func (m *Map) Regions() []Region {
	return slices.Clone(m.r[:m.n])
}

// Lookup returns the region containing addr and its index.
func (m *Map) Lookup(addr uint64) (Region, int) {
	for i := 0; i < m.n; i++ {
		if m.r[i].Start() <= addr {
			return m.r[i], i
		}
	}
	// The terminator starts at 0, so this is only reached on a corrupt map.
	fault.Halt("region", ErrNoTerminator, "lookup %#x", addr)
	return 0, -1
}

// Ranges returns the map in ascending address order.
func (m *Map) Ranges() []Range {
	out := make([]Range, 0, m.n)
	for i := m.n - 1; i >= 0; i-- {
		r := m.r[i]
		out = append(out, Range{Start: r.Start(), End: m.End(i), Type: r.Type(), Managed: r.Managed()})
	}
	return out
}

// Insert merges [start, end) into the map with type t. Each covered sub-range
// takes t only if t's precedence is at least that of its current type.
// Neighbouring regions of equal type inside or touching the range are merged
// afterwards.
func (m *Map) Insert(start, end uint64, t Type) {
	if start == end {
		return
	}
	fault.Assert(arch.IsPageAligned(start) && arch.IsPageAligned(end), "region", ErrUnaligned,
		"insert [%#x, %#x)", start, end)
	fault.Assert(start < end && end <= arch.PAddrMax && t.Valid(), "region", ErrBadRange,
		"insert [%#x, %#x) %s", start, end, t)

	var tmp [MaxEntries + 2]Region
	rs := append(tmp[:0], m.r[:m.n]...)
	rs = splitAt(rs, end)
	rs = splitAt(rs, start)

	for i := range rs {
		lo, hi := rs[i].Start(), endOf(rs, i)
		if lo >= start && hi <= end && t >= rs[i].Type() {
			rs[i] = rs[i].WithType(t)
		}
	}
	rs = mergeBetween(rs, start, end)
	m.store(rs, "insert [%#x, %#x) %s", start, end, t)
	m.pruneSplits()
}

// SplitAt makes addr an exact region boundary. Both halves keep the original
// type and are not merged back until a later Insert touches them.
func (m *Map) SplitAt(addr uint64) {
	fault.Assert(arch.IsPageAligned(addr), "region", ErrUnaligned, "split at %#x", addr)
	fault.Assert(addr < arch.PAddrMax, "region", ErrBadRange, "split at %#x", addr)

	var tmp [MaxEntries + 1]Region
	rs := splitAt(append(tmp[:0], m.r[:m.n]...), addr)
	m.store(rs, "split at %#x", addr)
	if addr != 0 && !slices.Contains(m.splits, addr) {
		m.splits = append(m.splits, addr)
	}
	m.pruneSplits()
}

// isSplit reports whether addr is a live SplitAt boundary.
func (m *Map) isSplit(addr uint64) bool {
	return slices.Contains(m.splits, addr)
}

// pruneSplits forgets split boundaries that were merged away or whose
// neighbours no longer share a type.
func (m *Map) pruneSplits() {
	m.splits = slices.DeleteFunc(m.splits, func(addr uint64) bool {
		for i := 0; i+1 < m.n; i++ {
			if m.r[i].Start() == addr {
				return m.r[i].Type() != m.r[i+1].Type()
			}
		}
		return true
	})
}

// MarkManaged flags every region lying entirely inside [start, end).
func (m *Map) MarkManaged(start, end uint64) {
	for i := 0; i < m.n; i++ {
		if m.r[i].Start() >= start && m.End(i) <= end {
			m.r[i] = m.r[i].WithManaged(true)
		}
	}
}

func (m *Map) store(rs []Region, format string, args ...any) {
	if len(rs) > MaxEntries {
		fault.Halt("region", ErrMapFull, format, args...)
	}
	copy(m.r[:], rs)
	if len(rs) < m.n {
		clear(m.r[len(rs):m.n])
	}
	m.n = len(rs)
}

func endOf(rs []Region, i int) uint64 {
	if i == 0 {
		return arch.PAddrMax
	}
	return rs[i-1].Start()
}

// splitAt shifts the tail of rs right by one to open a boundary at addr.
func splitAt(rs []Region, addr uint64) []Region {
	if addr == 0 || addr >= arch.PAddrMax {
		return rs
	}
	for i, r := range rs {
		if r.Start() == addr {
			return rs
		}
		if r.Start() < addr {
			return slices.Insert(rs, i, r.WithStart(addr))
		}
	}
	return rs
}

// mergeBetween folds a region into its lower neighbour when both share a type
// and their boundary lies in [lo, hi]. The lower region survives, so the
// terminator is never removed.
func mergeBetween(rs []Region, lo, hi uint64) []Region {
	for i := 0; i+1 < len(rs); {
		b := rs[i].Start()
		if b >= lo && b <= hi && rs[i].Type() == rs[i+1].Type() {
			rs = slices.Delete(rs, i, i+1)
			continue
		}
		i++
	}
	return rs
}
