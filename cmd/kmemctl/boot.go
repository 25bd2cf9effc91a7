package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/kmem/internal/klog"
	"github.com/joshuapare/kmem/kernel"
	"github.com/joshuapare/kmem/mm/bootinfo"
	"github.com/joshuapare/kmem/mm/heap"
	"github.com/joshuapare/kmem/mm/pmm"
	"github.com/joshuapare/kmem/mm/vmm"
)

// bootOptions are the flags shared by every command that boots a machine.
type bootOptions struct {
	format      string
	backend     string
	fastStart   uint64
	fastEnd     uint64
	kernelStart uint64
	kernelEnd   uint64
	kernelELF   string
	bootTable   uint64
}

func (o *bootOptions) register(cmd *cobra.Command) {
	def := kernel.DefaultConfig()
	f := cmd.Flags()
	f.StringVar(&o.format, "format", formatAuto, "Memory map format: auto, text, e820 or mb2")
	f.StringVar(&o.backend, "backend", def.Backend.String(), "Page table access: recursive or direct")
	f.Uint64Var(&o.fastStart, "fast-start", def.FastStart, "Start of the frame allocator's fast range")
	f.Uint64Var(&o.fastEnd, "fast-end", def.FastEnd, "End of the frame allocator's fast range")
	f.Uint64Var(&o.kernelStart, "kernel-start", 0x100000, "Physical start of the kernel image")
	f.Uint64Var(&o.kernelEnd, "kernel-end", 0x200000, "Physical end of the kernel image")
	f.StringVar(&o.kernelELF, "kernel", "", "Kernel ELF file to take sections from")
	f.Uint64Var(&o.bootTable, "mb2-addr", 0, "Physical address of the multiboot2 table, reserved at boot")
}

// bootMachine loads the memory map and kernel image and boots them.
func (o *bootOptions) bootMachine(path string) (*kernel.Kernel, error) {
	lm, err := loadMap(path, o.format)
	if err != nil {
		return nil, err
	}
	img, err := o.image(lm)
	if err != nil {
		return nil, err
	}

	cfg := kernel.DefaultConfig()
	if cfg.Backend, err = vmm.ParseBackend(o.backend); err != nil {
		return nil, err
	}
	cfg.FastStart = o.fastStart
	cfg.FastEnd = o.fastEnd
	if lm.MB2 != nil && o.bootTable != 0 {
		cfg.BootTableAddr = o.bootTable
		cfg.BootTableSize = lm.MB2.Size
	}
	cfg.Log = klog.Options{Enabled: verbose && !quiet, Level: slog.LevelDebug}

	printVerbose("Booting with %d firmware entries, %s tables\n", len(lm.Entries), cfg.Backend)
	return kernel.Boot(cfg, lm.Entries, img)
}

func (o *bootOptions) image(lm *loadedMap) (bootinfo.Image, error) {
	if o.kernelELF != "" {
		f, err := os.Open(o.kernelELF)
		if err != nil {
			return bootinfo.Image{}, fmt.Errorf("failed to open kernel: %w", err)
		}
		defer f.Close()
		return bootinfo.ImageFromELF(f)
	}
	if lm.MB2 != nil && len(lm.MB2.Sections) > 0 {
		return bootinfo.NewImage(lm.MB2.Sections), nil
	}
	return bootinfo.SyntheticImage(o.kernelStart, o.kernelEnd), nil
}

var (
	bootOpts    bootOptions
	bootAllocs  int
	bootHeapOps int
)

func init() {
	cmd := newBootCmd()
	bootOpts.register(cmd)
	cmd.Flags().IntVar(&bootAllocs, "allocs", 10, "Frames to allocate after boot")
	cmd.Flags().IntVar(&bootHeapOps, "heap-ops", 1000, "Random heap operations to run after boot")
	rootCmd.AddCommand(cmd)
}

func newBootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "boot <map>",
		Short: "Boot the memory manager and report its state",
		Long: `The boot command brings up the frame allocator, the kernel page tables and
the heap on a simulated machine described by a firmware memory map, then
exercises the allocators and reports what they did.

Example:
  kmemctl boot qemu.map
  kmemctl boot qemu.map --backend direct --allocs 32
  kmemctl boot boot.mb2 --format mb2 --mb2-addr 0x10000 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoot(args)
		},
	}
	return cmd
}

// BootReport is the JSON form of the boot command's output.
type BootReport struct {
	Regions []RegionJSON `json:"regions"`
	PMM     pmm.Stats    `json:"pmm"`
	VMM     vmm.Stats    `json:"vmm"`
	Heap    heap.Stats   `json:"heap"`
	Frames  []string     `json:"frames"`
	Backend string       `json:"backend"`
	HeapOK  bool         `json:"heap_ok"`
}

func runBoot(args []string) error {
	k, err := bootOpts.bootMachine(args[0])
	if err != nil {
		return err
	}
	defer k.Close()

	var frames []pmm.Frame
	var heapErr error
	halt := k.Run(func(k *kernel.Kernel) {
		for i := 0; i < bootAllocs; i++ {
			f := k.PMM.Alloc()
			if !f.Valid() {
				break
			}
			frames = append(frames, f)
		}
		heapErr = exerciseHeap(k, bootHeapOps)
	})
	if halt != nil {
		return halt
	}

	if jsonOut {
		report := BootReport{
			Regions: regionsJSON(k.Regions),
			PMM:     k.PMM.Stats(),
			VMM:     k.VMM.Stats(),
			Heap:    k.Heap.Stats(),
			Backend: k.VMM.Backend(),
			HeapOK:  heapErr == nil,
		}
		for _, f := range frames {
			report.Frames = append(report.Frames, f.String())
		}
		return printJSON(report)
	}

	printRegionTable(k.Regions)
	printInfo("\n")
	printPMMStats(k.PMM.Stats())
	printInfo("\n%s\n", styled(headerStyle, fmt.Sprintf("First %d allocations", len(frames))))
	for i, f := range frames {
		printInfo("  %3d  %s\n", i, f)
	}
	printInfo("\n")
	printVMMStats(k.VMM.Backend(), k.VMM.Stats())
	printInfo("\n")
	printHeapStats(k.Heap.Stats(), heapErr)
	return heapErr
}

// exerciseHeap runs ops random allocations and frees with a fixed seed, then
// frees everything still live and checks the heap.
func exerciseHeap(k *kernel.Kernel, ops int) error {
	rng := rand.New(rand.NewSource(42))
	var live []uint64
	for i := 0; i < ops; i++ {
		if len(live) > 0 && rng.Intn(3) == 0 {
			j := rng.Intn(len(live))
			k.Heap.Kfree(live[j])
			live = append(live[:j], live[j+1:]...)
			continue
		}
		p := k.Heap.Kmalloc(uint64(rng.Intn(heap.MaxRequest) + 1))
		k.CPU.Store64(p, uint64(i))
		live = append(live, p)
	}
	for _, p := range live {
		k.Heap.Kfree(p)
	}
	return k.Heap.Check()
}

func printPMMStats(s pmm.Stats) {
	printInfo("%s\n", styled(headerStyle, "Frame allocator"))
	printInfo("  %s", numbers.Sprintf("Frames:      %d total, %d used, %d free\n", s.TotalFrames, s.UsedFrames, s.TotalFrames-s.UsedFrames))
	printInfo("  %s", numbers.Sprintf("Fast range:  %d frames, %d free\n", s.FastFrames, s.FastFree))
	printInfo("  Bitmap:      %#x (%s)\n", s.BitmapAddr, humanSize(s.BitmapBytes))
	printInfo("  %s", numbers.Sprintf("Activity:    %d allocs, %d frees\n", s.Allocs, s.Frees))
}

func printVMMStats(backend string, s vmm.Stats) {
	printInfo("%s\n", styled(headerStyle, "Page tables ("+backend+")"))
	printInfo("  Tables:      %d allocated, %d reclaimed\n", s.TablesAllocated, s.TablesFreed)
	printInfo("  Pages:       %d mapped, %d reserved, %d unmapped\n", s.PagesMapped, s.PagesReserved, s.PagesUnmapped)
	printInfo("  Faults:      %d resolved\n", s.FaultsResolved)
}

func printHeapStats(s heap.Stats, checkErr error) {
	printInfo("%s\n", styled(headerStyle, "Heap"))
	printInfo("  Range:       %#x - %#x (%s)\n", s.Base, s.End, humanSize(s.End-s.Base))
	printInfo("  %s", numbers.Sprintf("Activity:    %d allocs, %d frees, %d grows\n", s.Allocs, s.Frees, s.Grows))
	printInfo("  %s", numbers.Sprintf("Free chunks: %d\n", s.FreeChunks))
	if checkErr != nil {
		printInfo("  Check:       %v\n", checkErr)
		return
	}
	printInfo("  Check:       ok\n")
}
