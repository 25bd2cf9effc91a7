package bootinfo

import "errors"

var (
	// ErrTruncated indicates input shorter than its own headers claim.
	ErrTruncated = errors.New("bootinfo: truncated")

	// ErrBadTable indicates a Multiboot2 table that fails validation.
	ErrBadTable = errors.New("bootinfo: invalid multiboot2 table")

	// ErrNoMemoryMap indicates a Multiboot2 table without a memory-map tag.
	ErrNoMemoryMap = errors.New("bootinfo: no memory map")

	// ErrBadLine indicates a malformed line in a text memory map.
	ErrBadLine = errors.New("bootinfo: malformed memory map line")
)
