package heap

import "errors"

var (
	// ErrTooLarge indicates a request above the largest size class.
	ErrTooLarge = errors.New("heap: request too large")

	// ErrOverflow indicates that Kcalloc's element count times size overflowed.
	ErrOverflow = errors.New("heap: size overflow")

	// ErrBadPointer indicates a pointer outside the heap.
	ErrBadPointer = errors.New("heap: pointer outside heap")

	// ErrDoubleFree indicates a free of a chunk that is not in use.
	ErrDoubleFree = errors.New("heap: chunk not in use")

	// ErrBreak indicates the break moved somewhere other than the heap end.
	ErrBreak = errors.New("heap: break not contiguous")

	// ErrCorrupt is returned by Check for malformed heap metadata.
	ErrCorrupt = errors.New("heap: corrupt")
)
