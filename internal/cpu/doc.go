// Package cpu is a software model of the parts of an x86-64 core that the
// memory manager talks to: CR3, the NXE and WP enable bits, the TLB, the
// four-level page walk, and delivery of page faults.
//
// Every virtual access the kernel makes (table edits through the recursive
// window, bitmap updates, heap headers) goes through Load64/Store64 and
// friends. A failed translation is raised to the registered fault handler
// with the hardware error-code bits, and the access is retried once after the
// handler returns, which is the trap-and-resume contract the kernel's lazy
// allocation relies on.
//
// # Thread Safety
//
// A CPU models a single hardware thread. It is not safe for concurrent use.
package cpu
