package heap

import "slices"

// classStride describes one run of size classes: from, from+step, ... to.
type classStride struct {
	from, to, step uint64
}

var strides = []classStride{
	{16, 120, 8},
	{128, 240, 16},
	{256, 480, 32},
	{512, 960, 64},
	{1024, 1920, 128},
	{2048, 3840, 256},
}

const (
	// MinPayload is the smallest payload a chunk can carry: two free-list
	// links and a footer.
	MinPayload = 24

	// MaxRequest is the largest request Kmalloc serves.
	MaxRequest = 3840
)

// sizeClassTable holds the payload size of each class in ascending order.
type sizeClassTable struct {
	sizes []uint64
}

func newSizeClassTable() *sizeClassTable {
	t := &sizeClassTable{sizes: make([]uint64, 0, 64)}
	for _, s := range strides {
		for size := s.from; size <= s.to; size += s.step {
			t.sizes = append(t.sizes, size)
		}
	}
	return t
}

var classes = newSizeClassTable()

// roundUp returns the class payload size serving a request of req bytes.
// req must be in (0, MaxRequest]. Requests below MinPayload land in the 24-byte
// class, so the 16-byte class keeps its bin but never receives a chunk.
func (t *sizeClassTable) roundUp(req uint64) uint64 {
	if req <= MinPayload {
		return MinPayload
	}
	for _, s := range strides {
		if req <= s.to+s.step {
			return (req + s.step - 1) &^ (s.step - 1)
		}
	}
	return 0
}

// index returns the class of an exact class size, or -1.
func (t *sizeClassTable) index(size uint64) int {
	i, ok := slices.BinarySearch(t.sizes, size)
	if !ok {
		return -1
	}
	return i
}

// NumClasses returns the number of size classes.
func NumClasses() int { return len(classes.sizes) }

// ClassSize returns the payload size of class i.
func ClassSize(i int) uint64 { return classes.sizes[i] }
