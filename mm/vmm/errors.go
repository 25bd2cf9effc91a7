package vmm

import "errors"

var (
	// ErrBadAddress indicates a null, non-canonical, unaligned or reserved virtual address.
	ErrBadAddress = errors.New("vmm: bad virtual address")

	// ErrBadPhysAddress indicates an unaligned or out-of-range physical address.
	ErrBadPhysAddress = errors.New("vmm: bad physical address")

	// ErrDoubleMap indicates a map over a leaf that is already in use.
	ErrDoubleMap = errors.New("vmm: page already mapped")

	// ErrNotMapped indicates an unmap of a page that is not mapped.
	ErrNotMapped = errors.New("vmm: page not mapped")

	// ErrHugeConflict indicates a 4 KiB operation inside a huge-page mapping.
	ErrHugeConflict = errors.New("vmm: range covered by a huge page")

	// ErrOutOfFrames indicates the frame allocator is exhausted.
	ErrOutOfFrames = errors.New("vmm: out of physical frames")

	// ErrNoExec indicates an instruction fetch from a no-execute page.
	ErrNoExec = errors.New("vmm: execute on no-exec page")

	// ErrReservedBit indicates the processor found a reserved bit set.
	ErrReservedBit = errors.New("vmm: reserved bit set")

	// ErrRogue indicates an access to memory that was never mapped.
	ErrRogue = errors.New("vmm: rogue pointer")

	// ErrProtection indicates a protection violation on a present page.
	ErrProtection = errors.New("vmm: protection violation")

	// ErrBootstrapped indicates a second Bootstrap.
	ErrBootstrapped = errors.New("vmm: already bootstrapped")

	// ErrNoRemap indicates Bootstrap without a remap callback.
	ErrNoRemap = errors.New("vmm: remap callback required")

	// ErrBreak indicates misuse of the break (unset, set twice, or unaligned).
	ErrBreak = errors.New("vmm: bad break")
)
