package bootinfo

import (
	"debug/elf"
	"fmt"
	"io"
	"sort"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/mm/pmm"
)

// ELF section attribute flags.
const (
	SHFWrite     = uint64(elf.SHF_WRITE)
	SHFAlloc     = uint64(elf.SHF_ALLOC)
	SHFExecInstr = uint64(elf.SHF_EXECINSTR)
)

// Section is one section of the loaded kernel image.
type Section struct {
	Name  string
	Addr  uint64 // virtual address it was linked at
	Size  uint64
	Flags uint64 // SHF_* bits
}

// Alloc reports whether the section occupies memory at run time.
func (s Section) Alloc() bool { return s.Flags&SHFAlloc != 0 }

// PageFlags derives page-table flags from the section attributes: writable
// sections are mapped writable and non-executable sections no-exec.
func (s Section) PageFlags() uint64 {
	var f uint64
	if s.Flags&SHFWrite != 0 {
		f |= arch.PTEWritable
	}
	if s.Flags&SHFExecInstr == 0 {
		f |= arch.PTENoExec
	}
	return f
}

// PhysAddr returns the physical load address of the section. Sections linked
// in the loader's offset window load at their offset from it.
func (s Section) PhysAddr() uint64 {
	if s.Addr >= arch.KernelVBase {
		return s.Addr - arch.KernelVBase
	}
	return s.Addr
}

// Image describes the loaded kernel.
type Image struct {
	Sections  []Section
	PhysStart uint64
	PhysEnd   uint64
}

// NewImage builds an Image from sections, computing the physical extent of
// the allocated ones.
func NewImage(sections []Section) Image {
	img := Image{Sections: sections}
	first := true
	for _, s := range sections {
		if !s.Alloc() || s.Size == 0 {
			continue
		}
		lo := arch.PageAlignDown(s.PhysAddr())
		hi := arch.PageAlignUp(s.PhysAddr() + s.Size)
		if first || lo < img.PhysStart {
			img.PhysStart = lo
		}
		if first || hi > img.PhysEnd {
			img.PhysEnd = hi
		}
		first = false
	}
	return img
}

// SyntheticImage lays out a conventional kernel in [start, end): text in the
// first half, read-only data in the next quarter, then data and bss.
func SyntheticImage(start, end uint64) Image {
	start, end = arch.PageAlignDown(start), arch.PageAlignUp(end)
	size := end - start
	text := arch.PageAlignUp(size / 2)
	rodata := arch.PageAlignUp(size / 4)
	data := (end - start - text - rodata) / 2 &^ arch.PageMask
	bss := end - start - text - rodata - data

	at := arch.KernelVBase + start
	var sections []Section
	add := func(name string, n, flags uint64) {
		sections = append(sections, Section{Name: name, Addr: at, Size: n, Flags: flags})
		at += n
	}
	add(".text", text, SHFAlloc|SHFExecInstr)
	add(".rodata", rodata, SHFAlloc)
	add(".data", data, SHFAlloc|SHFWrite)
	add(".bss", bss, SHFAlloc|SHFWrite)
	return NewImage(sections)
}

// ImageFromELF reads the section headers of an ELF kernel.
func ImageFromELF(r io.ReaderAt) (Image, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return Image{}, fmt.Errorf("bootinfo: %w", err)
	}
	defer f.Close()

	var sections []Section
	for _, sh := range f.Sections {
		if sh.Type == elf.SHT_NULL {
			continue
		}
		sections = append(sections, Section{
			Name:  sh.Name,
			Addr:  sh.Addr,
			Size:  sh.Size,
			Flags: uint64(sh.Flags),
		})
	}
	return NewImage(sections), nil
}

// Remap maps every allocated section at its link address. Pages shared by
// two sections get the more permissive flags of the two. Pass it to
// vmm.Bootstrap.
func (img Image) Remap(m pmm.Mapper) {
	pages := make(map[uint64]uint64) // vaddr -> flags
	for _, s := range img.Sections {
		if !s.Alloc() || s.Size == 0 {
			continue
		}
		want := s.PageFlags()
		for v := arch.PageAlignDown(s.Addr); v < s.Addr+s.Size; v += arch.PageSize {
			prev, seen := pages[v]
			if !seen {
				pages[v] = want
				continue
			}
			// Writable if either is, executable if either is.
			pages[v] = (prev|want)&arch.PTEWritable | prev&want&arch.PTENoExec
		}
	}

	vaddrs := make([]uint64, 0, len(pages))
	for v := range pages {
		vaddrs = append(vaddrs, v)
	}
	sort.Slice(vaddrs, func(i, j int) bool { return vaddrs[i] < vaddrs[j] })

	// Coalesce runs of contiguous pages with equal flags into one call.
	for i := 0; i < len(vaddrs); {
		j := i + 1
		for j < len(vaddrs) && vaddrs[j] == vaddrs[j-1]+arch.PageSize && pages[vaddrs[j]] == pages[vaddrs[i]] {
			j++
		}
		v := vaddrs[i]
		m.MapTo(v, Section{Addr: v}.PhysAddr(), j-i, pages[v])
		i = j
	}
}
