package bootinfo

import (
	"bytes"
	"fmt"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/buf"
	"github.com/joshuapare/kmem/mm/region"
)

// Multiboot2 tag types.
const (
	TagEnd        = 0
	TagCmdline    = 1
	TagBootloader = 2
	TagModule     = 3
	TagMemoryMap  = 6
	TagFramebuf   = 8
	TagELF        = 9
)

const (
	tagHeaderSize = 8
	tagAlign      = 8
	mmapHeaderLen = 16 // type, size, entry size, version
	elfHeaderLen  = 20 // type, size, num, entry size, shndx
	elfShdrSize   = 64
)

// Module is a boot module loaded alongside the kernel.
type Module struct {
	Start, End uint64
	Cmdline    string
}

// Info is the decoded Multiboot2 information table.
type Info struct {
	Size       uint64 // total table size in bytes
	Cmdline    string
	Bootloader string
	MemoryMap  []region.Entry
	Sections   []Section
	Modules    []Module
}

// ParseMultiboot2 validates and decodes a Multiboot2 information table. The
// table must carry a memory-map tag.
func ParseMultiboot2(b []byte) (*Info, error) {
	if len(b) < tagHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(b))
	}
	size := uint64(buf.U32LE(b))
	if size == 0 || buf.U32LE(b[4:]) != 0 {
		return nil, fmt.Errorf("%w: size %d, reserved %#x", ErrBadTable, size, buf.U32LE(b[4:]))
	}
	if size > uint64(len(b)) || size < 2*tagHeaderSize {
		return nil, fmt.Errorf("%w: table claims %d bytes, have %d", ErrTruncated, size, len(b))
	}
	b = b[:size]
	last := b[size-tagHeaderSize:]
	if buf.U32LE(last) != TagEnd || buf.U32LE(last[4:]) != tagHeaderSize {
		return nil, fmt.Errorf("%w: missing end tag", ErrBadTable)
	}

	info := &Info{Size: size}
	seenMap := false
	for off := uint64(tagHeaderSize); off < size; {
		if off+tagHeaderSize > size {
			return nil, fmt.Errorf("%w: tag header at %#x crosses the end", ErrBadTable, off)
		}
		typ := buf.U32LE(b[off:])
		tsize := uint64(buf.U32LE(b[off+4:]))
		tag, ok := buf.Slice(b, off, tsize)
		if !ok || tsize < tagHeaderSize {
			return nil, fmt.Errorf("%w: tag %d at %#x has size %d", ErrBadTable, typ, off, tsize)
		}
		if typ == TagEnd {
			break
		}

		var err error
		switch typ {
		case TagCmdline:
			info.Cmdline = cstring(tag[8:])
		case TagBootloader:
			info.Bootloader = cstring(tag[8:])
		case TagModule:
			if len(tag) < 16 {
				return nil, fmt.Errorf("%w: module tag", ErrTruncated)
			}
			info.Modules = append(info.Modules, Module{
				Start:   uint64(buf.U32LE(tag[8:])),
				End:     uint64(buf.U32LE(tag[12:])),
				Cmdline: cstring(tag[16:]),
			})
		case TagMemoryMap:
			info.MemoryMap, err = parseMemoryMapTag(tag)
			seenMap = true
		case TagELF:
			info.Sections, err = parseELFTag(tag)
		}
		if err != nil {
			return nil, err
		}
		off += arch.AlignUp(tsize, tagAlign)
	}

	if !seenMap {
		return nil, ErrNoMemoryMap
	}
	return info, nil
}

func parseMemoryMapTag(tag []byte) ([]region.Entry, error) {
	if len(tag) < mmapHeaderLen {
		return nil, fmt.Errorf("%w: memory map tag", ErrTruncated)
	}
	stride := uint64(buf.U32LE(tag[8:]))
	if stride < E820EntrySize {
		return nil, fmt.Errorf("%w: memory map entry size %d", ErrBadTable, stride)
	}
	n := (uint64(len(tag)) - mmapHeaderLen) / stride
	entries := decodeEntries(tag[mmapHeaderLen:], int(n), int(stride))
	// The fourth word of a Multiboot2 record is reserved, not ACPI attributes.
	for i := range entries {
		entries[i].ACPI = 0
	}
	return entries, nil
}

func parseELFTag(tag []byte) ([]Section, error) {
	if len(tag) < elfHeaderLen {
		return nil, fmt.Errorf("%w: elf sections tag", ErrTruncated)
	}
	num := uint64(buf.U32LE(tag[8:]))
	stride := uint64(buf.U32LE(tag[12:]))
	if stride < elfShdrSize {
		return nil, fmt.Errorf("%w: elf section entry size %d", ErrBadTable, stride)
	}
	if _, err := buf.CheckArrayBounds(uint64(len(tag)), elfHeaderLen, num, stride); err != nil {
		return nil, fmt.Errorf("%w: elf sections tag: %v", ErrTruncated, err)
	}

	sections := make([]Section, 0, num)
	for i := uint64(0); i < num; i++ {
		sh := tag[elfHeaderLen+i*stride:]
		sections = append(sections, Section{
			Name:  fmt.Sprintf("[%d]", i),
			Flags: buf.U64LE(sh[8:]),
			Addr:  buf.U64LE(sh[16:]),
			Size:  buf.U64LE(sh[32:]),
		})
	}
	return sections, nil
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
