// Package heap provides the kernel's small-object allocator.
//
// # Overview
//
// The heap lives in virtual memory above the VMM break and grows with Sbrk.
// Memory is carved into chunks, each led by one header word:
//
//	header = payload size | used (bit 0) | predecessor used (bit 1)
//
// Free chunks additionally carry next/prev free-list links in their first two
// payload words and a footer repeating the payload size in their last word, so
// the smallest payload is 24 bytes.
//
// # Size Classes
//
// Requests are rounded to one of 54 classes whose stride widens with size:
// 8 bytes up to 128, then 16, 32, 64, 128 and 256 bytes, ending at 3840.
// Each class has a LIFO free list. Larger requests halt the kernel.
//
// # Allocation
//
//   - Kmalloc pops the class list head, or carves a chunk off the front of the
//     top chunk, growing the break first when the top chunk runs short
//   - Kfree pushes the chunk on its class list; adjacent free chunks are not
//     coalesced
//   - Kcalloc zeroes the whole rounded chunk
//
// # Thread Safety
//
// Heap is not safe for concurrent use.
package heap
