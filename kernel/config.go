package kernel

import (
	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/klog"
	"github.com/joshuapare/kmem/mm/vmm"
)

// Config controls bring-up.
type Config struct {
	// FastStart and FastEnd bound the physical range the frame allocator
	// serves. FastEnd is clipped to the top of memory.
	FastStart uint64
	FastEnd   uint64

	// Backend selects how the VMM reaches page tables.
	Backend vmm.Backend

	// HeapBase is the initial break; the heap starts there.
	HeapBase         uint64
	HeapInitialPages int

	// BootTableAddr and BootTableSize locate the boot information table in
	// physical memory. It is reserved as a firmware table when Size is set.
	BootTableAddr uint64
	BootTableSize uint64

	Log klog.Options
}

// DefaultConfig returns the standard bring-up settings.
func DefaultConfig() Config {
	return Config{
		FastStart:        0x100000,
		FastEnd:          0x4000000,
		Backend:          vmm.BackendRecursive,
		HeapBase:         arch.HigherHalf,
		HeapInitialPages: 2,
	}
}
