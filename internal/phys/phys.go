// Package phys simulates the machine's physical RAM.
//
// The arena is one contiguous byte range indexed by physical address. On Unix
// it is an anonymous, lazily-committed mapping so that multi-GiB firmware maps
// cost nothing until a frame is touched; elsewhere it is a Go slice.
package phys

import (
	"errors"
	"fmt"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/buf"
	"github.com/joshuapare/kmem/internal/fault"
)

// ErrOutOfRange indicates an access beyond the end of the arena.
var ErrOutOfRange = errors.New("phys: address out of range")

// Memory is the physical address space [0, Size()).
//
// Not safe for concurrent use.
type Memory struct {
	data    []byte
	release func() error
}

// New reserves a zeroed arena of size bytes, rounded up to a whole frame.
func New(size uint64) (*Memory, error) {
	if size == 0 {
		return nil, fmt.Errorf("phys: zero-sized arena")
	}
	size = arch.PageAlignUp(size)
	if size > uint64(^uint(0)>>1) {
		return nil, fmt.Errorf("phys: arena too large (%d bytes)", size)
	}
	data, release, err := reserve(int(size))
	if err != nil {
		return nil, fmt.Errorf("phys: reserve %d bytes: %w", size, err)
	}
	return &Memory{data: data, release: release}, nil
}

// Close releases the arena. Further accesses halt.
func (m *Memory) Close() error {
	if m.release == nil {
		return nil
	}
	err := m.release()
	m.release = nil
	m.data = nil
	return err
}

// Size returns the arena size in bytes.
func (m *Memory) Size() uint64 {
	return uint64(len(m.data))
}

// Contains reports whether [paddr, paddr+n) lies inside the arena.
func (m *Memory) Contains(paddr, n uint64) bool {
	_, ok := buf.Slice(m.data, paddr, n)
	return ok
}

func (m *Memory) span(paddr, n uint64) []byte {
	b, ok := buf.Slice(m.data, paddr, n)
	if !ok {
		fault.Halt("phys", ErrOutOfRange, "%#x+%#x (size %#x)", paddr, n, len(m.data))
	}
	return b
}

// Read64 loads the little-endian word at paddr.
func (m *Memory) Read64(paddr uint64) uint64 {
	return buf.U64LE(m.span(paddr, 8))
}

// Write64 stores v at paddr.
func (m *Memory) Write64(paddr, v uint64) {
	buf.PutU64LE(m.span(paddr, 8), v)
}

// Read copies len(p) bytes starting at paddr into p.
func (m *Memory) Read(paddr uint64, p []byte) {
	copy(p, m.span(paddr, uint64(len(p))))
}

// Write copies p to paddr.
func (m *Memory) Write(paddr uint64, p []byte) {
	copy(m.span(paddr, uint64(len(p))), p)
}

// Fill sets n bytes starting at paddr to b.
func (m *Memory) Fill(paddr, n uint64, b byte) {
	dst := m.span(paddr, n)
	for i := range dst {
		dst[i] = b
	}
}

// Zero clears n bytes starting at paddr.
func (m *Memory) Zero(paddr, n uint64) {
	clear(m.span(paddr, n))
}

// Frame returns the 4 KiB frame containing paddr as a slice aliasing the arena.
func (m *Memory) Frame(paddr uint64) []byte {
	return m.span(arch.PageAlignDown(paddr), arch.PageSize)
}
