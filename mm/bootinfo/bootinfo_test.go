package bootinfo

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/buf"
	"github.com/joshuapare/kmem/mm/region"
)

var pcMap = []region.Entry{
	{Base: 0, Length: 0x9fc00, Type: region.E820Available},
	{Base: 0x9fc00, Length: 0x400, Type: region.E820Reserved},
	{Base: 0xf0000, Length: 0x10000, Type: region.E820Reserved},
	{Base: 0x100000, Length: 0x7ee0000, Type: region.E820Available},
	{Base: 0x7fe0000, Length: 0x20000, Type: region.E820ACPIReclaim, ACPI: 1},
}

func Test_E820_Decode(t *testing.T) {
	got, err := ParseE820(EncodeE820(pcMap))
	require.NoError(t, err)
	require.Equal(t, pcMap, got)

	m := region.Translate(got)
	require.NoError(t, m.Validate())
}

func Test_E820_Truncated(t *testing.T) {
	_, err := ParseE820([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrTruncated)

	b := EncodeE820(pcMap)
	_, err = ParseE820(b[:len(b)-1])
	require.ErrorIs(t, err, ErrTruncated)

	// A count that would overflow the size computation.
	huge := make([]byte, 8)
	buf.PutU64LE(huge, ^uint64(0))
	_, err = ParseE820(huge)
	require.ErrorIs(t, err, ErrTruncated)
}

// mb2 assembles a Multiboot2 information table from raw tags.
type mb2 struct{ tags [][]byte }

func (m *mb2) tag(typ uint32, body []byte) *mb2 {
	t := make([]byte, 8+len(body))
	buf.PutU32LE(t, typ)
	buf.PutU32LE(t[4:], uint32(len(t)))
	copy(t[8:], body)
	m.tags = append(m.tags, t)
	return m
}

func (m *mb2) memoryMap(entries []region.Entry) *mb2 {
	body := make([]byte, 8)
	buf.PutU32LE(body, E820EntrySize)
	body = append(body, EncodeE820(entries)[8:]...)
	return m.tag(TagMemoryMap, body)
}

func (m *mb2) elfSections(sections []Section) *mb2 {
	body := make([]byte, 12+len(sections)*elfShdrSize)
	buf.PutU32LE(body, uint32(len(sections)))
	buf.PutU32LE(body[4:], elfShdrSize)
	for i, s := range sections {
		sh := body[12+i*elfShdrSize:]
		buf.PutU64LE(sh[8:], s.Flags)
		buf.PutU64LE(sh[16:], s.Addr)
		buf.PutU64LE(sh[32:], s.Size)
	}
	return m.tag(TagELF, body)
}

func (m *mb2) bytes() []byte {
	out := make([]byte, 8)
	for _, t := range append(m.tags, []byte{0, 0, 0, 0, 8, 0, 0, 0}) {
		out = append(out, t...)
		for len(out)%8 != 0 {
			out = append(out, 0)
		}
	}
	buf.PutU32LE(out, uint32(len(out)))
	return out
}

func Test_Multiboot2_DecodesTags(t *testing.T) {
	sections := []Section{
		{Addr: arch.KernelVBase + 0x100000, Size: 0x8000, Flags: SHFAlloc | SHFExecInstr},
		{Addr: arch.KernelVBase + 0x108000, Size: 0x2000, Flags: SHFAlloc | SHFWrite},
	}
	table := (&mb2{}).
		tag(TagCmdline, []byte("console=ttyS0\x00")).
		tag(TagBootloader, []byte("GRUB 2.06\x00")).
		memoryMap(pcMap[:4]).
		elfSections(sections).
		bytes()

	info, err := ParseMultiboot2(table)
	require.NoError(t, err)
	require.Equal(t, uint64(len(table)), info.Size)
	require.Equal(t, "console=ttyS0", info.Cmdline)
	require.Equal(t, "GRUB 2.06", info.Bootloader)
	require.Equal(t, pcMap[:4], info.MemoryMap)
	require.Len(t, info.Sections, 2)
	require.Equal(t, sections[1].Addr, info.Sections[1].Addr)
	require.Equal(t, sections[1].Flags, info.Sections[1].Flags)
}

func Test_Multiboot2_Validation(t *testing.T) {
	good := (&mb2{}).memoryMap(pcMap).bytes()

	cases := map[string]struct {
		mutate func([]byte) []byte
		want   error
	}{
		"zero size": {func(b []byte) []byte { buf.PutU32LE(b, 0); return b }, ErrBadTable},
		"reserved":  {func(b []byte) []byte { buf.PutU32LE(b[4:], 1); return b }, ErrBadTable},
		"short":     {func(b []byte) []byte { return b[:len(b)-8] }, ErrTruncated},
		"no end tag": {func(b []byte) []byte {
			buf.PutU32LE(b[len(b)-8:], TagFramebuf)
			return b
		}, ErrBadTable},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			b := tc.mutate(bytes.Clone(good))
			_, err := ParseMultiboot2(b)
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := ParseMultiboot2((&mb2{}).tag(TagCmdline, []byte("x\x00")).bytes())
	require.ErrorIs(t, err, ErrNoMemoryMap)
}

func Test_Text_Parse(t *testing.T) {
	in := `# firmware map
0x0        0x9fc00    available
0x9fc00    0x400      2
0xf0000    65536      reserved   # BIOS
0x100000   0x7ee0000  1
0x7fe0000  0x20000    acpi       0x1
`
	got, err := ParseText(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, pcMap, got)

	var out bytes.Buffer
	require.NoError(t, FormatText(&out, got))
	again, err := ParseText(&out)
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func Test_Text_UTF16WithBOM(t *testing.T) {
	src := "0x0 0x1000 1\n"
	in := []byte{0xff, 0xfe}
	for _, r := range src {
		in = append(in, byte(r), 0)
	}
	got, err := ParseText(bytes.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, []region.Entry{{Base: 0, Length: 0x1000, Type: 1}}, got)
}

func Test_Text_BadLines(t *testing.T) {
	for _, line := range []string{"0x0 0x1000", "0x0 0x1000 spare", "zz 0x1000 1", "0 1 1 1 1"} {
		_, err := ParseText(strings.NewReader(line))
		require.ErrorIs(t, err, ErrBadLine, line)
	}
}

func Test_Section_PageFlags(t *testing.T) {
	require.Equal(t, uint64(0), Section{Flags: SHFAlloc | SHFExecInstr}.PageFlags())
	require.Equal(t, arch.PTENoExec, Section{Flags: SHFAlloc}.PageFlags())
	require.Equal(t, arch.PTEWritable|arch.PTENoExec, Section{Flags: SHFAlloc | SHFWrite}.PageFlags())
	require.Equal(t, uint64(0x1000), Section{Addr: arch.KernelVBase + 0x1000}.PhysAddr())
}

func Test_Image_Synthetic(t *testing.T) {
	img := SyntheticImage(0x100000, 0x200000)
	require.Equal(t, uint64(0x100000), img.PhysStart)
	require.Equal(t, uint64(0x200000), img.PhysEnd)
	require.Len(t, img.Sections, 4)

	var total uint64
	for _, s := range img.Sections {
		require.True(t, arch.IsPageAligned(s.Addr), s.Name)
		total += s.Size
	}
	require.Equal(t, uint64(0x100000), total)
}

type call struct {
	vaddr, paddr uint64
	n            int
	flags        uint64
}

type recorder struct{ calls []call }

func (r *recorder) MapTo(vaddr, paddr uint64, n int, flags uint64) {
	r.calls = append(r.calls, call{vaddr, paddr, n, flags})
}

func Test_Image_RemapMergesSharedPages(t *testing.T) {
	base := arch.KernelVBase + 0x100000
	img := NewImage([]Section{
		{Name: ".text", Addr: base, Size: 0x1800, Flags: SHFAlloc | SHFExecInstr},
		{Name: ".data", Addr: base + 0x1800, Size: 0x1000, Flags: SHFAlloc | SHFWrite},
		{Name: ".comment", Addr: 0, Size: 0x40},
	})
	require.Equal(t, uint64(0x100000), img.PhysStart)
	require.Equal(t, uint64(0x103000), img.PhysEnd)

	var r recorder
	img.Remap(&r)
	require.Equal(t, []call{
		{base, 0x100000, 1, 0},
		{base + 0x1000, 0x101000, 1, arch.PTEWritable},
		{base + 0x2000, 0x102000, 1, arch.PTEWritable | arch.PTENoExec},
	}, r.calls)
}

func Test_Image_FromELF(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	f, err := os.Open(exe)
	require.NoError(t, err)
	defer f.Close()

	img, err := ImageFromELF(f)
	if err != nil {
		t.Skipf("test binary is not ELF: %v", err)
	}
	var text *Section
	for i := range img.Sections {
		if img.Sections[i].Name == ".text" {
			text = &img.Sections[i]
		}
	}
	require.NotNil(t, text)
	require.True(t, text.Alloc())
	require.Zero(t, text.PageFlags()&arch.PTENoExec)
	require.Less(t, img.PhysStart, img.PhysEnd)
}
