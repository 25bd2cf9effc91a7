package bootinfo

import (
	"fmt"

	"github.com/joshuapare/kmem/internal/buf"
	"github.com/joshuapare/kmem/mm/region"
)

// E820EntrySize is the size of one firmware memory-map record.
const E820EntrySize = 24

// ParseE820 decodes a counted array of firmware memory-map records.
func ParseE820(b []byte) ([]region.Entry, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("%w: e820 header needs 8 bytes, have %d", ErrTruncated, len(b))
	}
	count := buf.U64LE(b)
	if _, err := buf.CheckArrayBounds(uint64(len(b)), 8, count, E820EntrySize); err != nil {
		return nil, fmt.Errorf("%w: e820 with %d entries: %v", ErrTruncated, count, err)
	}
	return decodeEntries(b[8:], int(count), E820EntrySize), nil
}

// decodeEntries reads n records of stride bytes laid out as
// {base u64, length u64, type u32, acpi u32}.
func decodeEntries(b []byte, n, stride int) []region.Entry {
	entries := make([]region.Entry, 0, n)
	for i := 0; i < n; i++ {
		rec := b[i*stride:]
		entries = append(entries, region.Entry{
			Base:   buf.U64LE(rec),
			Length: buf.U64LE(rec[8:]),
			Type:   buf.U32LE(rec[16:]),
			ACPI:   buf.U32LE(rec[20:]),
		})
	}
	return entries
}

// EncodeE820 is the inverse of ParseE820.
func EncodeE820(entries []region.Entry) []byte {
	out := make([]byte, 8+len(entries)*E820EntrySize)
	buf.PutU64LE(out, uint64(len(entries)))
	for i, e := range entries {
		rec := out[8+i*E820EntrySize:]
		buf.PutU64LE(rec, e.Base)
		buf.PutU64LE(rec[8:], e.Length)
		buf.PutU32LE(rec[16:], e.Type)
		buf.PutU32LE(rec[20:], e.ACPI)
	}
	return out
}
