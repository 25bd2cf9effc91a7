package vmm

import (
	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/fault"
	"github.com/joshuapare/kmem/internal/klog"
)

// SetBreak places the initial break at base. It may be called once.
func (v *VMM) SetBreak(base uint64) {
	fault.Assert(v.brk == 0, "vmm", ErrBreak, "break already at %#x", v.brk)
	checkVAddr("set_break", base)
	v.brk = base
}

// Break returns the current break.
func (v *VMM) Break() uint64 { return v.brk }

// Sbrk grows the break by incr bytes rounded up to whole pages, reserving the
// new pages as deferred writable, non-executable memory. It returns the
// previous break.
func (v *VMM) Sbrk(incr uint64) uint64 {
	fault.Assert(v.brk != 0, "vmm", ErrBreak, "break not set")
	old := v.brk
	n := arch.PageAlignUp(incr) >> arch.PageShift
	if n > 0 {
		v.Map(old, int(n), FlagWritable|FlagNoExec)
		v.brk += n << arch.PageShift
		klog.Debug("break moved", "from", hex(old), "to", hex(v.brk))
	}
	return old
}
