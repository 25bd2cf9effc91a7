package cpu

import "testing"

// BenchmarkCPU_Load64 measures a load that hits the TLB.
func BenchmarkCPU_Load64(b *testing.B) {
	c, _ := newMachine(b, bitPresent|bitWritable)
	c.Load64(testVAddr)

	b.ResetTimer()
	b.ReportAllocs()

	for i := range b.N {
		c.Load64(testVAddr + uint64(i&511)*8)
	}
}

// BenchmarkCPU_Load64Walk measures a load that walks all four table levels.
func BenchmarkCPU_Load64Walk(b *testing.B) {
	c, _ := newMachine(b, bitPresent|bitWritable)

	b.ResetTimer()
	b.ReportAllocs()

	for range b.N {
		c.FlushTLB()
		c.Load64(testVAddr)
	}
}
