// Package machinetest builds a simulated machine for tests: physical memory,
// a CPU running on the loader's tables, a region map and an initialized frame
// allocator. The VMM is left to the caller.
package machinetest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/kmem/internal/cpu"
	"github.com/joshuapare/kmem/internal/loader"
	"github.com/joshuapare/kmem/internal/phys"
	"github.com/joshuapare/kmem/mm/pmm"
	"github.com/joshuapare/kmem/mm/region"
)

// Layout of the default machine.
const (
	DefaultRAM  = 16 << 20
	KernelStart = 0x100000
	KernelEnd   = 0x200000
	TablesAt    = 0x1f0000 // loader tables, inside the kernel image
	FastStart   = 0x100000
)

// Machine is a booted-to-PMM simulated machine.
type Machine struct {
	Mem     *phys.Memory
	CPU     *cpu.CPU
	Regions *region.Map
	PMM     *pmm.Bitmap
	Loader  *loader.Tables
}

// New returns a machine with DefaultRAM bytes of memory.
func New(t testing.TB) *Machine {
	return NewWithRAM(t, DefaultRAM)
}

// NewWithRAM returns a machine with ram bytes of Available memory above the
// kernel image. ram must exceed KernelEnd.
func NewWithRAM(t testing.TB, ram uint64) *Machine {
	t.Helper()

	regions := region.Translate([]region.Entry{
		{Base: 0, Length: KernelStart, Type: region.E820Available},
		{Base: KernelStart, Length: ram - KernelStart, Type: region.E820Available},
	})
	regions.Insert(KernelStart, KernelEnd, region.Kernel)

	mem, err := phys.New(ram)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.Close() })

	tables, err := loader.Install(mem, TablesAt, min(ram, loader.MaxWindow))
	require.NoError(t, err)

	c := cpu.New(mem)
	c.WriteCR3(tables.Top)

	frames := pmm.NewBitmap(c)
	frames.Init(regions, FastStart, ram)

	return &Machine{Mem: mem, CPU: c, Regions: regions, PMM: frames, Loader: tables}
}
