package cpu

import (
	"fmt"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/buf"
)

// Load64 reads the little-endian word at vaddr.
func (c *CPU) Load64(vaddr uint64) uint64 {
	if vaddr&arch.PageMask <= arch.PageSize-8 {
		return c.mem.Read64(c.resolve(vaddr, accessRead))
	}
	var b [8]byte
	c.LoadBytes(vaddr, b[:])
	return buf.U64LE(b[:])
}

// Store64 writes v at vaddr.
func (c *CPU) Store64(vaddr, v uint64) {
	if vaddr&arch.PageMask <= arch.PageSize-8 {
		c.mem.Write64(c.resolve(vaddr, accessWrite), v)
		return
	}
	var b [8]byte
	buf.PutU64LE(b[:], v)
	c.StoreBytes(vaddr, b[:])
}

// LoadBytes copies len(p) bytes starting at vaddr into p, page by page.
func (c *CPU) LoadBytes(vaddr uint64, p []byte) {
	for len(p) > 0 {
		n := chunk(vaddr, len(p))
		c.mem.Read(c.resolve(vaddr, accessRead), p[:n])
		p = p[n:]
		vaddr += uint64(n)
	}
}

// StoreBytes copies p to vaddr, page by page.
func (c *CPU) StoreBytes(vaddr uint64, p []byte) {
	for len(p) > 0 {
		n := chunk(vaddr, len(p))
		c.mem.Write(c.resolve(vaddr, accessWrite), p[:n])
		p = p[n:]
		vaddr += uint64(n)
	}
}

// ZeroRange clears n bytes starting at vaddr.
func (c *CPU) ZeroRange(vaddr, n uint64) {
	for n > 0 {
		k := uint64(chunk(vaddr, int(min(n, arch.PageSize))))
		c.mem.Zero(c.resolve(vaddr, accessWrite), k)
		n -= k
		vaddr += k
	}
}

// Fetch performs an instruction fetch of one word at vaddr.
func (c *CPU) Fetch(vaddr uint64) uint64 {
	return c.mem.Read64(c.resolve(vaddr, accessFetch))
}

// chunk returns how many of n bytes starting at vaddr fit in its page.
func chunk(vaddr uint64, n int) int {
	room := int(arch.PageSize - vaddr&arch.PageMask)
	return min(room, n)
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}
