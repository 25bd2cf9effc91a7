package pmm

import "errors"

var (
	// ErrNoBitmapSpace indicates no Available region can hold the bitmaps.
	ErrNoBitmapSpace = errors.New("pmm: no space for bitmap in provided regions")

	// ErrTooFewRegions indicates a region map without a usable span.
	ErrTooFewRegions = errors.New("pmm: region map has no span")

	// ErrUnaligned indicates a frame address that is not 4 KiB aligned.
	ErrUnaligned = errors.New("pmm: unaligned frame")

	// ErrOutsideFast indicates a frame outside the fast range.
	ErrOutsideFast = errors.New("pmm: frame outside fast range")

	// ErrDoubleFree indicates a free of a frame that is not in use.
	ErrDoubleFree = errors.New("pmm: double free")

	// ErrRemapTwice indicates a second RemapCB call.
	ErrRemapTwice = errors.New("pmm: remap callback already run")

	// ErrNotInitialized indicates use before Init.
	ErrNotInitialized = errors.New("pmm: not initialized")
)
