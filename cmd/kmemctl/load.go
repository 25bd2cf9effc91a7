package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joshuapare/kmem/mm/bootinfo"
	"github.com/joshuapare/kmem/mm/region"
)

// Memory map encodings accepted by --format.
const (
	formatAuto = "auto"
	formatText = "text"
	formatE820 = "e820"
	formatMB2  = "mb2"
)

// loadedMap is a parsed memory map plus the Multiboot2 table it came from,
// if any.
type loadedMap struct {
	Entries []region.Entry
	MB2     *bootinfo.Info
	Format  string
}

func loadMap(path, format string) (*loadedMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read memory map: %w", err)
	}
	if format == "" || format == formatAuto {
		format = detectFormat(path)
	}
	printVerbose("Reading %s memory map: %s\n", format, path)

	out := &loadedMap{Format: format}
	switch format {
	case formatText:
		out.Entries, err = bootinfo.ParseText(bytes.NewReader(data))
	case formatE820:
		out.Entries, err = bootinfo.ParseE820(data)
	case formatMB2:
		out.MB2, err = bootinfo.ParseMultiboot2(data)
		if err == nil {
			out.Entries = out.MB2.MemoryMap
		}
	default:
		return nil, fmt.Errorf("unknown memory map format %q (want text, e820 or mb2)", format)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".e820", ".bin":
		return formatE820
	case ".mb2", ".mbi":
		return formatMB2
	}
	return formatText
}
