// Package region builds and maintains the physical region map: the sorted,
// gap-free, type-tagged description of the physical address space that the
// frame allocator is initialized from.
//
// A Map is a fixed array of at most MaxEntries regions stored in strictly
// decreasing order of start address. Each region is a single word (see
// Region) and extends up to the start of its predecessor; the first region
// extends to the end of the physical address space and the region starting at
// address 0 terminates the list.
//
// Overlaps are resolved by type precedence: a sub-range takes a new type only
// if the new type's ordinal is greater than or equal to the type already there,
// so Reserved beats ACPI memory, which beats kernel and firmware tables, which
// beat Available.
//
// # Thread Safety
//
// A Map is not safe for concurrent use. It is built once at boot and is
// read-only afterwards.
package region
