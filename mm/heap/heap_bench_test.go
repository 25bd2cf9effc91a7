package heap

import (
	"math/rand"
	"testing"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/machinetest"
	"github.com/joshuapare/kmem/mm/vmm"
)

func newBenchHeap(b *testing.B) *Heap {
	b.Helper()
	m := machinetest.NewWithRAM(b, 64<<20)
	m.CPU.EnableNX()
	v := vmm.New(m.CPU, m.Mem, m.PMM, vmm.BackendRecursive)
	v.SetBreak(arch.HigherHalf)
	return New(m.CPU, v, 2)
}

// BenchmarkKmalloc_Kfree measures the bin fast path: the freed chunk is the
// next one returned.
func BenchmarkKmalloc_Kfree(b *testing.B) {
	h := newBenchHeap(b)

	b.ResetTimer()
	b.ReportAllocs()

	for i := range b.N {
		size := uint64(64 + (i%64)*2) // 64-190 bytes
		h.Kfree(h.Kmalloc(size))
	}
}

// BenchmarkKmalloc_Mixed keeps a window of live chunks of random sizes so
// that allocations alternate between bins and the top chunk.
func BenchmarkKmalloc_Mixed(b *testing.B) {
	h := newBenchHeap(b)
	rng := rand.New(rand.NewSource(42))
	live := make([]uint64, 256)
	for i := range live {
		live[i] = h.Kmalloc(uint64(rng.Intn(MaxRequest) + 1))
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := range b.N {
		j := i % len(live)
		h.Kfree(live[j])
		live[j] = h.Kmalloc(uint64(rng.Intn(MaxRequest) + 1))
	}
}
