package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Page-table backends compared by the report.
const (
	backendRecursive = "recursive"
	backendDirect    = "direct"
)

// BenchmarkResult represents a parsed benchmark result.
type BenchmarkResult struct {
	Name        string
	Operation   string
	Backend     string // "recursive", "direct" or "" for backend-independent benchmarks
	Iterations  int
	NsPerOp     float64
	BytesPerOp  int64
	AllocsPerOp int64
}

// ComparisonResult pairs the two backends for one operation.
type ComparisonResult struct {
	Operation       string
	RecursiveNs     float64
	DirectNs        float64
	Ratio           float64 // recursive / direct; > 1 means direct is faster
	RecursiveAllocs int64
	DirectAllocs    int64
}

var (
	inputFile = flag.String(
		"input",
		"",
		"Input file with benchmark output (stdin if not specified)",
	)
	outputFile = flag.String("output", "", "Output markdown file (stdout if not specified)")
	quiet      = flag.Bool("quiet", false, "Suppress progress output")
)

func main() {
	flag.Parse()

	// Read benchmark output
	var scanner *bufio.Scanner
	var inputF *os.File
	if *inputFile != "" {
		f, err := os.Open(*inputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening input file: %v\n", err)
			os.Exit(1)
		}
		inputF = f
		scanner = bufio.NewScanner(f)
	} else {
		scanner = bufio.NewScanner(os.Stdin)
	}

	results := parseBenchmarks(scanner)
	if inputF != nil {
		inputF.Close()
	}

	if !*quiet {
		fmt.Fprintf(os.Stderr, "Parsed %d benchmark results\n", len(results))
	}

	comparisons, single := generateComparisons(results)

	if !*quiet {
		fmt.Fprintf(os.Stderr, "Generated %d backend comparisons\n", len(comparisons))
	}

	report := generateMarkdownReport(comparisons, single)

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, []byte(report), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		if !*quiet {
			fmt.Fprintf(os.Stderr, "Report written to %s\n", *outputFile)
		}
		return
	}
	fmt.Fprint(os.Stdout, report)
}

// BenchmarkVMM_MapToUnmap/recursive-8    500000    2450 ns/op    0 B/op    0 allocs/op
var benchmarkRegex = regexp.MustCompile(
	`^(Benchmark\S+)\s+(\d+)\s+([\d.]+)\s+ns/op(?:\s+([\d.]+)\s+(?:B|MB)/op)?(?:\s+([\d.]+)\s+allocs/op)?`,
)

func parseBenchmarks(scanner *bufio.Scanner) []BenchmarkResult {
	var results []BenchmarkResult

	for scanner.Scan() {
		line := scanner.Text()

		// Try to parse as JSON (from -json flag)
		var testEvent map[string]any
		if err := json.Unmarshal([]byte(line), &testEvent); err == nil {
			if output, ok := testEvent["Output"].(string); ok {
				line = output
			}
		}

		matches := benchmarkRegex.FindStringSubmatch(strings.TrimSpace(line))
		if matches == nil {
			continue
		}

		r := BenchmarkResult{Name: matches[1]}
		r.Iterations, _ = strconv.Atoi(matches[2])
		r.NsPerOp, _ = strconv.ParseFloat(matches[3], 64)
		if matches[4] != "" {
			r.BytesPerOp, _ = strconv.ParseInt(matches[4], 10, 64)
		}
		if matches[5] != "" {
			r.AllocsPerOp, _ = strconv.ParseInt(matches[5], 10, 64)
		}
		r.Operation, r.Backend = splitName(r.Name)
		results = append(results, r)
	}

	return results
}

// splitName extracts the operation and backend from a benchmark name.
// Format: Benchmark<Operation>[/<backend>]-<procs>
func splitName(name string) (operation, backend string) {
	name = strings.TrimPrefix(name, "Benchmark")
	if idx := strings.LastIndex(name, "-"); idx > 0 {
		if _, err := strconv.Atoi(name[idx+1:]); err == nil {
			name = name[:idx]
		}
	}
	operation, backend, _ = strings.Cut(name, "/")
	if backend != backendRecursive && backend != backendDirect && backend != "" {
		// a sub-benchmark that is not a backend split
		return name, ""
	}
	return operation, backend
}

func generateComparisons(results []BenchmarkResult) ([]ComparisonResult, []BenchmarkResult) {
	grouped := make(map[string]map[string]BenchmarkResult)
	var single []BenchmarkResult

	for _, r := range results {
		if r.Backend == "" {
			single = append(single, r)
			continue
		}
		if grouped[r.Operation] == nil {
			grouped[r.Operation] = make(map[string]BenchmarkResult)
		}
		grouped[r.Operation][r.Backend] = r
	}

	var comparisons []ComparisonResult
	for op, backends := range grouped {
		rec, hasRec := backends[backendRecursive]
		dir, hasDir := backends[backendDirect]
		if !hasRec || !hasDir {
			for _, r := range backends {
				single = append(single, r)
			}
			continue
		}
		c := ComparisonResult{
			Operation:       op,
			RecursiveNs:     rec.NsPerOp,
			DirectNs:        dir.NsPerOp,
			RecursiveAllocs: rec.AllocsPerOp,
			DirectAllocs:    dir.AllocsPerOp,
		}
		if dir.NsPerOp > 0 {
			c.Ratio = rec.NsPerOp / dir.NsPerOp
		}
		comparisons = append(comparisons, c)
	}

	sort.Slice(comparisons, func(i, j int) bool {
		return comparisons[i].Operation < comparisons[j].Operation
	})
	sort.Slice(single, func(i, j int) bool {
		return single[i].Name < single[j].Name
	})
	return comparisons, single
}

func generateMarkdownReport(comparisons []ComparisonResult, single []BenchmarkResult) string {
	var sb strings.Builder

	sb.WriteString("# Benchmark Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05")))

	directFaster := 0
	for _, c := range comparisons {
		if c.Ratio > 1.0 {
			directFaster++
		}
	}

	sb.WriteString("## Summary\n\n")
	sb.WriteString(fmt.Sprintf("- **Total benchmarks**: %d\n", len(comparisons)*2+len(single)))
	sb.WriteString(fmt.Sprintf("- **Backend comparisons**: %d\n", len(comparisons)))
	if len(comparisons) > 0 {
		sb.WriteString(fmt.Sprintf("  - direct faster: %d (%.1f%%)\n",
			directFaster, float64(directFaster)/float64(len(comparisons))*100))
	}
	sb.WriteString("\n")

	if len(comparisons) > 0 {
		sb.WriteString("## Page-Table Backends\n\n")
		sb.WriteString("| Operation | recursive (ns/op) | direct (ns/op) | recursive/direct | Allocs |\n")
		sb.WriteString("|-----------|-------------------|----------------|------------------|--------|\n")
		for _, c := range comparisons {
			indicator := ""
			if c.Ratio > 1.0 {
				indicator = " ✓"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.2fx%s | %s vs %s |\n",
				c.Operation,
				formatNumber(c.RecursiveNs),
				formatNumber(c.DirectNs),
				c.Ratio,
				indicator,
				formatNumber(float64(c.RecursiveAllocs)),
				formatNumber(float64(c.DirectAllocs)),
			))
		}
		sb.WriteString("\n")
	}

	if len(single) > 0 {
		sb.WriteString("## Allocators and MMU\n\n")
		sb.WriteString("| Benchmark | ns/op | Memory (B/op) | Allocs |\n")
		sb.WriteString("|-----------|-------|---------------|--------|\n")
		for _, r := range single {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				r.Operation,
				formatNumber(r.NsPerOp),
				formatBytes(r.BytesPerOp),
				formatNumber(float64(r.AllocsPerOp)),
			))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Notes\n\n")
	sb.WriteString("- **recursive/direct > 1.0**: the direct physical window is faster ✓\n")
	sb.WriteString("- The recursive backend pays a TLB invalidation per table it touches\n")
	sb.WriteString("- **Allocations**: Go heap allocations; the kernel paths should report 0\n")

	return sb.String()
}

func formatNumber(n float64) string {
	switch {
	case n >= 1e9:
		return fmt.Sprintf("%.2fG", n/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.2fM", n/1e6)
	case n >= 1e3:
		return fmt.Sprintf("%.2fK", n/1e3)
	}
	return fmt.Sprintf("%.0f", n)
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(b)/(1<<10))
	}
	return fmt.Sprintf("%d B", b)
}
