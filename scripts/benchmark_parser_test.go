package main

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleOutput = `goos: linux
goarch: amd64
pkg: github.com/joshuapare/kmem/mm/vmm
BenchmarkVMM_MapToUnmap/recursive-8      500000    2400 ns/op    0 B/op    0 allocs/op
BenchmarkVMM_MapToUnmap/direct-8         800000    1200 ns/op    0 B/op    0 allocs/op
BenchmarkVMM_Translate/recursive-8      9000000     120 ns/op
{"Action":"output","Output":"BenchmarkVMM_Translate/direct-8  10000000   150 ns/op\n"}
BenchmarkKmalloc_Kfree-8               20000000      61.2 ns/op    0 B/op    0 allocs/op
PASS
`

func Test_Parser_SplitName(t *testing.T) {
	op, be := splitName("BenchmarkVMM_LazyCommit/direct-16")
	require.Equal(t, "VMM_LazyCommit", op)
	require.Equal(t, "direct", be)

	op, be = splitName("BenchmarkBitmap_AllocFree-8")
	require.Equal(t, "Bitmap_AllocFree", op)
	require.Empty(t, be)

	op, be = splitName("BenchmarkTable/small-8")
	require.Equal(t, "Table/small", op)
	require.Empty(t, be)
}

func Test_Parser_Report(t *testing.T) {
	results := parseBenchmarks(bufio.NewScanner(strings.NewReader(sampleOutput)))
	require.Len(t, results, 5)

	comparisons, single := generateComparisons(results)
	require.Len(t, comparisons, 2)
	require.Equal(t, "VMM_MapToUnmap", comparisons[0].Operation)
	require.InDelta(t, 2.0, comparisons[0].Ratio, 1e-9)
	require.InDelta(t, 0.8, comparisons[1].Ratio, 1e-9)
	require.Len(t, single, 1)

	report := generateMarkdownReport(comparisons, single)
	require.Contains(t, report, "| VMM_MapToUnmap | 2.40K | 1.20K | 2.00x ✓ | 0 vs 0 |")
	require.Contains(t, report, "| Kmalloc_Kfree | 61 | 0 B | 0 |")
	require.Contains(t, report, "direct faster: 1 (50.0%)")
}
