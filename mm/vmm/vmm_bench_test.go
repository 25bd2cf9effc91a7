package vmm

import "testing"

func forEachBackendB(b *testing.B, fn func(b *testing.B, be Backend)) {
	for _, be := range backends {
		b.Run(be.String(), func(b *testing.B) { fn(b, be) })
	}
}

// BenchmarkVMM_MapToUnmap measures an eager mapping and its teardown. The
// intermediate tables are created and reclaimed every iteration.
func BenchmarkVMM_MapToUnmap(b *testing.B) {
	forEachBackendB(b, func(b *testing.B, be Backend) {
		v, _ := newVMM(b, be)

		b.ResetTimer()
		b.ReportAllocs()

		for range b.N {
			v.MapTo(testV, testP, 1, FlagWritable)
			v.Unmap(testV, 1)
		}
	})
}

// BenchmarkVMM_LazyCommit measures reserving a page, committing it through
// the fault handler and freeing it.
func BenchmarkVMM_LazyCommit(b *testing.B) {
	forEachBackendB(b, func(b *testing.B, be Backend) {
		v, m := newVMM(b, be)

		b.ResetTimer()
		b.ReportAllocs()

		for i := range b.N {
			v.Map(testV, 1, FlagWritable|FlagNoExec)
			m.CPU.Store64(testV, uint64(i))
			v.Free(testV, 1)
		}
	})
}

// BenchmarkVMM_Translate measures a software walk of a mapped page.
func BenchmarkVMM_Translate(b *testing.B) {
	forEachBackendB(b, func(b *testing.B, be Backend) {
		v, _ := newVMM(b, be)
		v.MapTo(testV, testP, 16, FlagWritable)

		b.ResetTimer()
		b.ReportAllocs()

		for i := range b.N {
			if v.Translate(testV+uint64(i&15)<<12) == 0 {
				b.Fatal("unmapped")
			}
		}
	})
}
