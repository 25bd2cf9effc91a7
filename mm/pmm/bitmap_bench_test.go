package pmm_test

import (
	"testing"

	"github.com/joshuapare/kmem/internal/machinetest"
	"github.com/joshuapare/kmem/mm/pmm"
)

// BenchmarkBitmap_AllocFree measures the alloc/free round trip on an empty
// fast range. The freed frame is the lowest free one, so every Alloc hits
// the first summary word.
func BenchmarkBitmap_AllocFree(b *testing.B) {
	m := machinetest.New(b)

	b.ResetTimer()
	b.ReportAllocs()

	for range b.N {
		f := m.PMM.Alloc()
		if !f.Valid() {
			b.Fatal("out of frames")
		}
		m.PMM.Free(f)
	}
}

// BenchmarkBitmap_AllocDeep measures Alloc when the low part of the fast
// range is full and the search has to skip summary words.
func BenchmarkBitmap_AllocDeep(b *testing.B) {
	m := machinetest.NewWithRAM(b, 256<<20)
	for range 32768 {
		if !m.PMM.Alloc().Valid() {
			b.Fatal("out of frames")
		}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for range b.N {
		f := m.PMM.Alloc()
		if !f.Valid() {
			b.Fatal("out of frames")
		}
		m.PMM.Free(f)
	}
}

// BenchmarkBitmap_Init measures building the bitmaps over a 1 GiB machine.
func BenchmarkBitmap_Init(b *testing.B) {
	m := machinetest.NewWithRAM(b, 1<<30)
	fs, fe := m.PMM.FastRange()

	b.ResetTimer()
	b.ReportAllocs()

	for range b.N {
		bm := pmm.NewBitmap(m.CPU)
		bm.Init(m.Regions, fs, fe)
	}
}
