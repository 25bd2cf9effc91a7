// Package buf contains little-endian helpers for the binary structures the
// kernel consumes (firmware memory maps, boot-protocol tags) and stores
// (page-table entries, heap chunk headers).
package buf

import "encoding/binary"

// U32LE reads a little-endian uint32 from b. Returns 0 when b is too short.
func U32LE(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U64LE reads a little-endian uint64 from b. Returns 0 when b is too short.
func U64LE(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// PutU32LE writes v at the start of b. Reports false when b is too short.
func PutU32LE(b []byte, v uint32) bool {
	if len(b) < 4 {
		return false
	}
	binary.LittleEndian.PutUint32(b, v)
	return true
}

// PutU64LE writes v at the start of b. Reports false when b is too short.
func PutU64LE(b []byte, v uint64) bool {
	if len(b) < 8 {
		return false
	}
	binary.LittleEndian.PutUint64(b, v)
	return true
}
