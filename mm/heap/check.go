package heap

import "fmt"

// Check walks every chunk from the heap base to the top chunk and every class
// list, and reports the first inconsistency found.
func (h *Heap) Check() error {
	free := make(map[chunk]int)
	for i, head := range h.bins {
		var prev chunk
		for c := head; c != 0; c = chunk(h.mem.Load64(uint64(c) + offNext)) {
			if _, dup := free[c]; dup {
				return fmt.Errorf("%w: class %d list loops at %#x", ErrCorrupt, i, uint64(c))
			}
			if got := chunk(h.mem.Load64(uint64(c) + offPrev)); got != prev {
				return fmt.Errorf("%w: chunk %#x prev link %#x, want %#x", ErrCorrupt, uint64(c), uint64(got), uint64(prev))
			}
			if size := h.size(c); size != ClassSize(i) {
				return fmt.Errorf("%w: chunk %#x of size %d on class %d list", ErrCorrupt, uint64(c), size, i)
			}
			free[c] = i
			prev = c
		}
	}

	prevUsed := true
	seen := 0
	c := chunk(h.base)
	for c != h.top {
		if uint64(c) >= h.end {
			return fmt.Errorf("%w: walk overran the top chunk at %#x", ErrCorrupt, uint64(c))
		}
		size := h.size(c)
		if classes.index(size) < 0 {
			return fmt.Errorf("%w: chunk %#x has size %d", ErrCorrupt, uint64(c), size)
		}
		if h.prevUsed(c) != prevUsed {
			return fmt.Errorf("%w: chunk %#x prev-used bit is %t", ErrCorrupt, uint64(c), !prevUsed)
		}
		used := h.used(c)
		if !used {
			if f := h.mem.Load64(h.footer(c)); f != size {
				return fmt.Errorf("%w: chunk %#x footer %d, size %d", ErrCorrupt, uint64(c), f, size)
			}
			if _, ok := free[c]; !ok {
				return fmt.Errorf("%w: free chunk %#x is on no list", ErrCorrupt, uint64(c))
			}
			seen++
		}
		prevUsed = used
		c = h.next(c)
	}

	if seen != len(free) {
		return fmt.Errorf("%w: %d listed chunks, %d found in the heap", ErrCorrupt, len(free), seen)
	}
	if h.used(h.top) || h.prevUsed(h.top) != prevUsed {
		return fmt.Errorf("%w: top chunk header %#x", ErrCorrupt, h.header(h.top))
	}
	if end := uint64(h.next(h.top)); end != h.end {
		return fmt.Errorf("%w: top chunk ends at %#x, break at %#x", ErrCorrupt, end, h.end)
	}
	return nil
}

func hex(v uint64) string {
	return fmt.Sprintf("%#x", v)
}
