package region

import (
	"fmt"
	"io"
)

// Validate checks the structural invariants: strictly decreasing starts, a
// terminator at address 0, and no two neighbours of the same type. A boundary
// opened by SplitAt is exempt from the last rule until an Insert merges it.
func (m *Map) Validate() error {
	if m.n == 0 || m.r[m.n-1].Start() != 0 {
		return ErrNoTerminator
	}
	for i := 0; i+1 < m.n; i++ {
		if m.r[i].Start() <= m.r[i+1].Start() {
			return fmt.Errorf("%w: [%d]=%#x [%d]=%#x", ErrNotDecreasing, i, m.r[i].Start(), i+1, m.r[i+1].Start())
		}
		if m.r[i].Type() == m.r[i+1].Type() && !m.isSplit(m.r[i].Start()) {
			return fmt.Errorf("%w: %s at %#x and %#x", ErrAdjacentSameType, m.r[i].Type(), m.r[i].Start(), m.r[i+1].Start())
		}
	}
	return nil
}

// Dump writes one line per region, terminator included.
func (m *Map) Dump(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "REGIONS:"); err != nil {
		return err
	}
	for i := 0; i < m.n; i++ {
		r := m.r[i]
		mark := ""
		if r.Managed() {
			mark = " (managed)"
		}
		if _, err := fmt.Fprintf(w, "  B: %#16x | T: %s%s\n", r.Start(), r.Type(), mark); err != nil {
			return err
		}
	}
	return nil
}
