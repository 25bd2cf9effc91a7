package heap

const (
	wordSize = 8

	flagUsed     = 1 << 0
	flagPrevUsed = 1 << 1
	flagMask     = 7

	// offsets from the chunk header
	offNext = wordSize
	offPrev = 2 * wordSize
)

// chunk is the virtual address of a chunk header.
type chunk uint64

func (h *Heap) header(c chunk) uint64       { return h.mem.Load64(uint64(c)) }
func (h *Heap) setHeader(c chunk, v uint64) { h.mem.Store64(uint64(c), v) }

// size returns the payload size of c.
func (h *Heap) size(c chunk) uint64 { return h.header(c) &^ flagMask }

func (h *Heap) used(c chunk) bool     { return h.header(c)&flagUsed != 0 }
func (h *Heap) prevUsed(c chunk) bool { return h.header(c)&flagPrevUsed != 0 }

func (h *Heap) setFlag(c chunk, f uint64, on bool) {
	v := h.header(c)
	if on {
		v |= f
	} else {
		v &^= f
	}
	h.setHeader(c, v)
}

// payload returns the address handed to callers for c.
func payload(c chunk) uint64 { return uint64(c) + wordSize }

func chunkOf(ptr uint64) chunk { return chunk(ptr - wordSize) }

// next returns the chunk physically following c.
func (h *Heap) next(c chunk) chunk { return c + chunk(wordSize+h.size(c)) }

func (h *Heap) footer(c chunk) uint64 { return uint64(c) + h.size(c) }

func (h *Heap) writeFooter(c chunk) { h.mem.Store64(h.footer(c), h.size(c)) }

// split cuts c, which must be free, after a payload of leftSize bytes. Both
// halves come out free and unlinked with their footers written; c keeps its
// flags and the right half is marked as following a free chunk. It returns
// the right half.
func (h *Heap) split(c chunk, leftSize uint64) chunk {
	total := h.size(c)
	flags := h.header(c) & flagMask
	right := c + chunk(wordSize+leftSize)

	h.setHeader(right, total-leftSize-wordSize)
	h.setHeader(c, leftSize|flags)
	h.writeFooter(c)
	h.writeFooter(right)
	for _, x := range []chunk{c, right} {
		h.mem.Store64(uint64(x)+offNext, 0)
		h.mem.Store64(uint64(x)+offPrev, 0)
	}
	return right
}

// push links c at the head of class list i.
func (h *Heap) push(i int, c chunk) {
	head := h.bins[i]
	h.mem.Store64(uint64(c)+offNext, uint64(head))
	h.mem.Store64(uint64(c)+offPrev, 0)
	if head != 0 {
		h.mem.Store64(uint64(head)+offPrev, uint64(c))
	}
	h.bins[i] = c
}

// pop unlinks and returns the head of class list i, which must be non-empty.
func (h *Heap) pop(i int) chunk {
	c := h.bins[i]
	next := chunk(h.mem.Load64(uint64(c) + offNext))
	if next != 0 {
		h.mem.Store64(uint64(next)+offPrev, 0)
	}
	h.bins[i] = next
	return c
}
