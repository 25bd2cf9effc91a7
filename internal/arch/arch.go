// Package arch holds the x86-64 paging constants and the address arithmetic
// shared by the memory-management packages.
package arch

const (
	// PageSize is the size of a page and of a physical frame.
	PageSize = 4096

	// PageShift is log2(PageSize).
	PageShift = 12

	// PageMask selects the offset bits inside a page.
	PageMask = PageSize - 1

	// WordBits is the width of a bitmap word.
	WordBits = 64

	// WordShift is log2(WordBits).
	WordShift = 6

	// WordMax is a bitmap word with every bit set.
	WordMax = ^uint64(0)

	// EntriesPerTable is the number of entries in one page-table level.
	EntriesPerTable = 512

	// TableLevels is the depth of the page-table tree.
	TableLevels = 4
)

const (
	// PAddrBits is the number of physical address bits the region map can express.
	PAddrBits = 56

	// PAddrMax is the exclusive end of the physical address space.
	PAddrMax = uint64(1) << PAddrBits

	// PAddrAlignMask keeps the page-aligned part of a physical address.
	PAddrAlignMask = uint64(0x00fffffffffff000)
)

const (
	// KernelVBase is where the loader maps physical memory (and the kernel image)
	// before the kernel installs its own tables: vaddr = KernelVBase + paddr.
	KernelVBase = uint64(0xffffffff80000000)

	// RecursiveSlot is the top-level slot that maps the top-level table onto itself.
	RecursiveSlot = 510

	// TopTableVAddr is the address of the active top-level table through the
	// recursive slot (indices 510, 510, 510, 510).
	TopTableVAddr = uint64(0xffffff7fbfdfe000)

	// TempVAddr is a scratch page used while preparing tables that are not active.
	TempVAddr = uint64(0xffffff8000000000)

	// HigherHalf is the first canonical address of the upper half.
	HigherHalf = uint64(0xffff800000000000)
)

// AlignUp rounds n up to a multiple of a (a power of two).
func AlignUp(n, a uint64) uint64 {
	return (n + a - 1) &^ (a - 1)
}

// AlignDown rounds n down to a multiple of a (a power of two).
func AlignDown(n, a uint64) uint64 {
	return n &^ (a - 1)
}

// PageAlignUp rounds n up to the next page boundary.
func PageAlignUp(n uint64) uint64 {
	return AlignUp(n, PageSize)
}

// PageAlignDown rounds n down to a page boundary.
func PageAlignDown(n uint64) uint64 {
	return AlignDown(n, PageSize)
}

// IsPageAligned reports whether n sits on a page boundary.
func IsPageAligned(n uint64) bool {
	return n&PageMask == 0
}

// Canonical reports whether vaddr is a canonical 48-bit address (bits 47..63
// all equal).
func Canonical(vaddr uint64) bool {
	top := vaddr & 0xffff800000000000
	return top == 0 || top == 0xffff800000000000
}

// Index returns the table index of vaddr at the given level, where level 4 is
// the top-level table and level 1 the leaf table.
func Index(vaddr uint64, level int) int {
	return int((vaddr >> (PageShift + 9*uint(level-1))) & 0x1ff)
}

// VAddrFromIndices rebuilds a canonical virtual address from its four table
// indices (top first) and an in-page offset.
func VAddrFromIndices(l4, l3, l2, l1 int, off uint64) uint64 {
	v := uint64(l4)<<39 | uint64(l3)<<30 | uint64(l2)<<21 | uint64(l1)<<12 | off&PageMask
	if l4 >= 256 {
		v |= 0xffff000000000000
	}
	return v
}

// LevelSpan is the number of bytes mapped by one entry at the given level.
func LevelSpan(level int) uint64 {
	return uint64(PageSize) << (9 * uint(level-1))
}

// Paging-entry bits shared by the MMU model and the VMM.
const (
	PTEPresent      = uint64(1) << 0
	PTEWritable     = uint64(1) << 1
	PTEUser         = uint64(1) << 2
	PTEWriteThrough = uint64(1) << 3
	PTENoCache      = uint64(1) << 4
	PTEAccessed     = uint64(1) << 5
	PTEDirty        = uint64(1) << 6
	PTEHuge         = uint64(1) << 7
	PTEGlobal       = uint64(1) << 8
	PTEDeferred     = uint64(1) << 9 // software bit: reserved, frame not yet committed
	PTENoExec       = uint64(1) << 63

	// PTEAddrMask selects the frame address of an entry.
	PTEAddrMask = uint64(0x000ffffffffff000)
)
