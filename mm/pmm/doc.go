// Package pmm provides physical frame allocation for the kernel.
//
// # Overview
//
// Frames are 4 KiB units of physical memory. The Allocator interface is the
// only abstraction the VMM and heap bring-up depend on:
//
//   - Init(regions, fastStart, fastEnd): build allocator state from the region map
//   - Alloc(): take one frame from the fast range, or InvalidFrame
//   - Free(frame): return a frame; freeing a free frame halts the kernel
//
// Allocators whose own state lives in memory mapped by the loader also
// implement Remapper, so the VMM can carry that memory over when it switches
// to the kernel's page tables.
//
// # Bitmap
//
// Bitmap is a two-level bitmap manager. Level 0 has one bit per frame of the
// managed span; level 1 has one bit per level-0 word, set iff that word is
// full, so a search skips 64 used frames per level-1 bit. Both levels are
// stored in physical memory, inside the first Available region large enough
// to hold them, and accessed through the loader's offset window at
// arch.KernelVBase.
//
// Only frames inside the fast range [fastStart, fastEnd) are ever handed out.
//
// # Thread Safety
//
// Bitmap is not safe for concurrent use.
package pmm
