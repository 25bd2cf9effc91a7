package bootinfo

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/joshuapare/kmem/mm/region"
)

const commentPrefix = "#"

var typeNames = map[string]uint32{
	"available":    region.E820Available,
	"usable":       region.E820Available,
	"reserved":     region.E820Reserved,
	"acpi":         region.E820ACPIReclaim,
	"acpi-reclaim": region.E820ACPIReclaim,
	"nvs":          region.E820ACPINVS,
	"acpi-nvs":     region.E820ACPINVS,
	"bad":          region.E820BadMemory,
}

// ParseText reads a memory map written one entry per line as
//
//	base length type [acpi]
//
// Numbers are decimal or 0x-prefixed hex. type is an E820 code or one of
// available, reserved, acpi, nvs and bad. Blank lines and lines starting with
// # are skipped. UTF-16 input with a byte-order mark is accepted.
func ParseText(r io.Reader) ([]region.Entry, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	scanner := bufio.NewScanner(transform.NewReader(r, dec))

	var entries []region.Entry
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, commentPrefix); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadLine, lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseLine(line string) (region.Entry, error) {
	fields := strings.Fields(line)
	if len(fields) < 3 || len(fields) > 4 {
		return region.Entry{}, fmt.Errorf("want 3 or 4 fields, have %d", len(fields))
	}
	base, err := strconv.ParseUint(fields[0], 0, 64)
	if err != nil {
		return region.Entry{}, fmt.Errorf("base: %w", err)
	}
	length, err := strconv.ParseUint(fields[1], 0, 64)
	if err != nil {
		return region.Entry{}, fmt.Errorf("length: %w", err)
	}
	typ, ok := typeNames[strings.ToLower(fields[2])]
	if !ok {
		n, err := strconv.ParseUint(fields[2], 0, 32)
		if err != nil {
			return region.Entry{}, fmt.Errorf("type %q", fields[2])
		}
		typ = uint32(n)
	}
	e := region.Entry{Base: base, Length: length, Type: typ}
	if len(fields) == 4 {
		acpi, err := strconv.ParseUint(fields[3], 0, 32)
		if err != nil {
			return region.Entry{}, fmt.Errorf("acpi: %w", err)
		}
		e.ACPI = uint32(acpi)
	}
	return e, nil
}

// FormatText writes entries in the form ParseText reads.
func FormatText(w io.Writer, entries []region.Entry) error {
	for _, e := range entries {
		var err error
		if e.ACPI != 0 {
			_, err = fmt.Fprintf(w, "%#x %#x %d %#x\n", e.Base, e.Length, e.Type, e.ACPI)
		} else {
			_, err = fmt.Fprintf(w, "%#x %#x %d\n", e.Base, e.Length, e.Type)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
