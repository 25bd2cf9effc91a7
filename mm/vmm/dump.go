package vmm

import (
	"fmt"
	"io"
	"strings"

	"github.com/joshuapare/kmem/internal/arch"
)

// Dump writes every populated entry of the active tables, one line per entry,
// indented by level. Leaf lines carry the virtual address they map. The
// recursive slot is listed but not descended into.
func (v *VMM) Dump(w io.Writer) error {
	d := dumper{w: w, t: v.tables}
	root := v.tables.Root()
	d.printf("\nPML4: %#x\n", uint64(root))
	for i := 0; i < arch.EntriesPerTable && d.err == nil; i++ {
		e := v.tables.Entry(root, i)
		if e.Unused() {
			continue
		}
		if i == arch.RecursiveSlot {
			d.printf("pml4[%d] -> %#x  (recursive)\n", i, uint64(e))
			continue
		}
		d.printf("pml4[%d] -> %#x\n", i, uint64(e))
		if e.Present() && !e.Huge() {
			d.level(v.tables.Child(root, i), 3, [3]int{i})
		}
	}
	return d.err
}

type dumper struct {
	w   io.Writer
	t   Tables
	err error
}

var levelNames = [...]string{1: "pt", 2: "pd", 3: "pdp"}

func (d *dumper) level(t Table, level int, path [3]int) {
	indent := strings.Repeat("  ", arch.TableLevels-level)
	for i := 0; i < arch.EntriesPerTable && d.err == nil; i++ {
		e := d.t.Entry(t, i)
		if e.Unused() {
			continue
		}
		if level == 1 {
			vaddr := arch.VAddrFromIndices(path[0], path[1], path[2], i, 0)
			d.printf("%s%s[%d] -> %#x  --  (%#x)\n", indent, levelNames[level], i, uint64(e), vaddr)
			continue
		}
		d.printf("%s%s[%d] -> %#x\n", indent, levelNames[level], i, uint64(e))
		if e.Present() && !e.Huge() {
			next := path
			next[arch.TableLevels-level] = i
			d.level(d.t.Child(t, i), level-1, next)
		}
	}
}

func (d *dumper) printf(format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}
