package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joshuapare/kmem/mm/bootinfo"
	"github.com/joshuapare/kmem/mm/region"
)

// qemuMap is the layout QEMU's SeaBIOS reports for a 16 MiB guest.
var qemuMap = []region.Entry{
	{Base: 0, Length: 0x9fc00, Type: region.E820Available},
	{Base: 0x9fc00, Length: 0x400, Type: region.E820Reserved},
	{Base: 0xf0000, Length: 0x10000, Type: region.E820Reserved},
	{Base: 0x100000, Length: 0xee0000, Type: region.E820Available},
	{Base: 0xfe0000, Length: 0x20000, Type: region.E820Reserved},
	{Base: 0xfffc0000, Length: 0x40000, Type: region.E820Reserved},
}

// writeMap stores entries in a temp file, encoded according to the extension
// of name.
func writeMap(t *testing.T, name string, entries []region.Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)

	var data []byte
	switch detectFormat(path) {
	case formatE820:
		data = bootinfo.EncodeE820(entries)
	default:
		var buf bytes.Buffer
		if err := bootinfo.FormatText(&buf, entries); err != nil {
			t.Fatalf("failed to format map: %v", err)
		}
		data = buf.Bytes()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write map: %v", err)
	}
	return path
}

// resetFlags restores every global flag to its default.
func resetFlags() {
	verbose = false
	quiet = false
	jsonOut = false
	noColor = true
	exploreOpts = defaultBootOptions()
	regionsFormat = formatAuto
	regionsRaw = false
	renderFormat = formatAuto
	renderWidth = 1024
	bootAllocs = 10
	bootHeapOps = 1000
	bootOpts = defaultBootOptions()
	ptdumpOpts = defaultBootOptions()
}

func defaultBootOptions() bootOptions {
	return bootOptions{
		format:      formatAuto,
		backend:     "recursive",
		fastStart:   0x100000,
		fastEnd:     0x4000000,
		kernelStart: 0x100000,
		kernelEnd:   0x200000,
	}
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	// Drain concurrently so large dumps cannot fill the pipe.
	done := make(chan struct{})
	var buf bytes.Buffer
	go func() {
		defer close(done)
		_, _ = buf.ReadFrom(r)
	}()

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout
	<-done
	r.Close()

	return buf.String(), fnErr
}

// assertJSON checks that output is valid JSON
func assertJSON(t *testing.T, output string) {
	t.Helper()
	var result interface{}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Errorf("invalid JSON output: %v\nOutput: %s", err, output)
	}
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}

// assertNotContains checks that output doesn't contain unwanted strings
func assertNotContains(t *testing.T, output string, unwanted []string) {
	t.Helper()
	for _, dont := range unwanted {
		if strings.Contains(output, dont) {
			t.Errorf("output contains unwanted string %q\nGot: %s", dont, output)
		}
	}
}
