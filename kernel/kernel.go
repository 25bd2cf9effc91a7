// Package kernel brings the memory-management core up on a simulated machine
// and holds the result as one explicit context.
//
// Boot follows the order a real kernel uses: translate the firmware map,
// reserve the kernel image, start the frame allocator on the loader's tables,
// bootstrap the kernel's own page tables and finally open the heap on the VMM
// break.
package kernel

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/cpu"
	"github.com/joshuapare/kmem/internal/fault"
	"github.com/joshuapare/kmem/internal/klog"
	"github.com/joshuapare/kmem/internal/loader"
	"github.com/joshuapare/kmem/internal/phys"
	"github.com/joshuapare/kmem/mm/bootinfo"
	"github.com/joshuapare/kmem/mm/heap"
	"github.com/joshuapare/kmem/mm/pmm"
	"github.com/joshuapare/kmem/mm/region"
	"github.com/joshuapare/kmem/mm/vmm"
)

var (
	// ErrNoMemoryMap is returned by Boot when the memory map is empty.
	ErrNoMemoryMap = errors.New("kernel: empty memory map")

	// ErrNoImage is returned by Boot when the kernel image occupies no memory.
	ErrNoImage = errors.New("kernel: empty kernel image")
)

// Kernel is a booted machine.
type Kernel struct {
	Config  Config
	Memory  *phys.Memory
	CPU     *cpu.CPU
	Regions *region.Map
	PMM     *pmm.Bitmap
	VMM     *vmm.VMM
	Heap    *heap.Heap
	Image   bootinfo.Image
	Loader  *loader.Tables
}

// Boot brings up a machine whose RAM is described by entries and whose kernel
// image is img. A halt during bring-up is returned as an error.
func Boot(cfg Config, entries []region.Entry, img bootinfo.Image) (*Kernel, error) {
	klog.Init(cfg.Log)
	if len(entries) == 0 {
		return nil, ErrNoMemoryMap
	}

	k := &Kernel{Config: cfg, Image: img}
	var bootErr error
	err := fault.Catch(func() { bootErr = k.boot(entries) })
	if err == nil {
		err = bootErr
	}
	if err != nil {
		k.Close()
		return nil, fmt.Errorf("kernel: boot: %w", err)
	}
	return k, nil
}

func (k *Kernel) boot(entries []region.Entry) error {
	cfg := k.Config
	if k.Image.PhysEnd <= k.Image.PhysStart {
		return ErrNoImage
	}

	regions := region.Translate(entries)
	regions.Insert(k.Image.PhysStart, k.Image.PhysEnd, region.Kernel)
	if cfg.BootTableSize > 0 {
		lo := arch.PageAlignDown(cfg.BootTableAddr)
		hi := arch.PageAlignUp(cfg.BootTableAddr + cfg.BootTableSize)
		regions.Insert(lo, hi, region.FirmwareTable)
	}

	ram := ramTop(regions)
	if ram == 0 {
		return fmt.Errorf("%w: no usable memory", ErrNoMemoryMap)
	}
	window := min(ram, loader.MaxWindow)

	// The loader left its tables right after the image.
	tablesAt := arch.PageAlignUp(k.Image.PhysEnd)
	tablesEnd := tablesAt + uint64(loader.FramesFor(window))*arch.PageSize
	regions.Insert(tablesAt, tablesEnd, region.Kernel)

	fastEnd := min(arch.PageAlignDown(cfg.FastEnd), ram, regions.At(0).Start())
	if fastEnd > 0 {
		regions.SplitAt(fastEnd)
	}
	k.Regions = regions

	mem, err := phys.New(ram)
	if err != nil {
		return err
	}
	k.Memory = mem
	k.Loader, err = loader.Install(mem, tablesAt, window)
	if err != nil {
		return err
	}
	k.CPU = cpu.New(mem)
	k.CPU.WriteCR3(k.Loader.Top)

	k.PMM = pmm.NewBitmap(k.CPU)
	k.PMM.Init(regions, cfg.FastStart, fastEnd)

	k.VMM = vmm.New(k.CPU, mem, k.PMM, cfg.Backend)
	k.VMM.Bootstrap(k.Image.Remap)

	k.VMM.SetBreak(cfg.HeapBase)
	k.Heap = heap.New(k.CPU, k.VMM, cfg.HeapInitialPages)

	if err := regions.Dump(klog.Writer(slog.LevelDebug, "region map")); err != nil {
		klog.Debug("region map dump failed", "error", err)
	}
	klog.Info("kernel booted",
		"ram", ram, "frames", k.PMM.TotalFrames(), "used", k.PMM.UsedFrames(), "backend", k.VMM.Backend())
	return nil
}

// ramTop returns the end of the highest region that is neither reserved nor
// unknown.
func ramTop(m *region.Map) uint64 {
	for i := 0; i < m.Len(); i++ {
		switch m.At(i).Type() {
		case region.None, region.Reserved:
			continue
		}
		if i == 0 {
			// Nothing bounds the first region.
			return 0
		}
		return m.End(i)
	}
	return 0
}

// Run calls fn and returns the halt it ended in, if any.
func (k *Kernel) Run(fn func(k *Kernel)) error {
	return fault.Catch(func() { fn(k) })
}

// DumpTables writes the active page tables to the kernel log.
func (k *Kernel) DumpTables() error {
	return k.VMM.Dump(klog.Writer(slog.LevelDebug, "page tables"))
}

// Close releases the machine's memory.
func (k *Kernel) Close() error {
	if k.Memory == nil {
		return nil
	}
	err := k.Memory.Close()
	k.Memory = nil
	return err
}
