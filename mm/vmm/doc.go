// Package vmm manages the kernel's four-level page tables.
//
// # Overview
//
// A virtual page is in one of three states, encoded entirely in its leaf
// entry: unmapped (entry zero), reserved (FlagDeferred set, not present, no
// frame) and committed (present, frame assigned). Map reserves pages, MapTo
// commits them to a given frame immediately, and the page-fault handler
// commits reserved pages on first touch and resumes the faulting access.
//
// Intermediate tables are created from the frame allocator on demand and
// reclaimed bottom-up as soon as they become empty.
//
// # Table access
//
// Tables are reached through a Tables backend:
//
//   - Recursive: the active top-level table maps itself at slot 510, so every
//     live table is addressable at a virtual address computed from its path.
//   - Direct: tables are read and written by physical address.
//
// Both satisfy the same walk and mutate contract and produce identical
// tables.
//
// # Bootstrap
//
// Bootstrap builds the kernel's own top-level table while the loader's tables
// are still active. The caller's remap callback runs "as if" the new table
// were active: the recursive slot of the current table is temporarily pointed
// at the new one, so Map and MapTo edit the new hierarchy.
//
// # Thread Safety
//
// A VMM is not safe for concurrent use. The page-fault handler must not fault
// itself.
package vmm
