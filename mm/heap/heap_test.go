package heap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/fault"
	"github.com/joshuapare/kmem/internal/machinetest"
	"github.com/joshuapare/kmem/mm/vmm"
)

type testHeap struct {
	*Heap
	m *machinetest.Machine
	v *vmm.VMM
}

func newHeap(t *testing.T) testHeap {
	t.Helper()
	m := machinetest.New(t)
	m.CPU.EnableNX()
	v := vmm.New(m.CPU, m.Mem, m.PMM, vmm.BackendRecursive)
	v.SetBreak(arch.HigherHalf)
	h := New(m.CPU, v, 2)
	require.NoError(t, h.Check())
	return testHeap{Heap: h, m: m, v: v}
}

func Test_SizeClasses_Table(t *testing.T) {
	require.Equal(t, 54, NumClasses())
	require.Equal(t, uint64(16), ClassSize(0))
	require.Equal(t, uint64(120), ClassSize(13))
	require.Equal(t, uint64(128), ClassSize(14))
	require.Equal(t, uint64(3840), ClassSize(NumClasses()-1))

	for i := 1; i < NumClasses(); i++ {
		require.Less(t, ClassSize(i-1), ClassSize(i))
		require.Equal(t, i, classes.index(ClassSize(i)))
	}
	require.Equal(t, -1, classes.index(4096))
}

func Test_SizeClasses_RoundUp(t *testing.T) {
	cases := map[uint64]uint64{
		1:    MinPayload,
		24:   24,
		25:   32,
		121:  128,
		129:  144,
		257:  288,
		1000: 1024,
		1921: 2048,
		3585: 3840,
		3840: 3840,
	}
	for req, want := range cases {
		got := classes.roundUp(req)
		require.Equal(t, want, got, "request %d", req)
		require.GreaterOrEqual(t, classes.index(got), 0)
	}

	for req := uint64(1); req <= MinPayload; req++ {
		require.NotEqual(t, ClassSize(0), classes.roundUp(req), "request %d", req)
	}
}

func Test_Heap_DistinctSmallAllocations(t *testing.T) {
	h := newHeap(t)

	a := h.Kmalloc(16)
	b := h.Kmalloc(16)
	require.NotEqual(t, a, b)
	if a > b {
		a, b = b, a
	}
	require.GreaterOrEqual(t, b-a, uint64(16))

	h.m.CPU.Store64(a, 0x1111)
	h.m.CPU.Store64(a+8, 0x2222)
	h.m.CPU.Store64(b, 0x3333)
	h.m.CPU.Store64(b+8, 0x4444)
	require.Equal(t, uint64(0x1111), h.m.CPU.Load64(a))
	require.Equal(t, uint64(0x2222), h.m.CPU.Load64(a+8))
	require.NoError(t, h.Check())
}

func Test_Heap_FreeThenMallocReusesChunk(t *testing.T) {
	h := newHeap(t)

	p := h.Kmalloc(100)
	guard := h.Kmalloc(100)
	h.Kfree(p)
	require.NoError(t, h.Check())

	require.Equal(t, p, h.Kmalloc(97), "same class")
	require.NoError(t, h.Check())

	// LIFO within a class.
	h.Kfree(guard)
	h.Kfree(p)
	require.Equal(t, p, h.Kmalloc(100))
	require.Equal(t, guard, h.Kmalloc(100))
	require.NoError(t, h.Check())
}

func Test_Heap_ZeroSizeReturnsNull(t *testing.T) {
	h := newHeap(t)
	require.Zero(t, h.Kmalloc(0))
	require.Zero(t, h.Kcalloc(0, 8))
	require.Zero(t, h.Kcalloc(8, 0))
	h.Kfree(0)
	require.Zero(t, h.Stats().Allocs)
}

func Test_Heap_TooLargeIsFatal(t *testing.T) {
	h := newHeap(t)
	require.NotZero(t, h.Kmalloc(MaxRequest))
	err := fault.Catch(func() { h.Kmalloc(MaxRequest + 1) })
	require.ErrorIs(t, err, ErrTooLarge)
}

func Test_Heap_BadFreesAreFatal(t *testing.T) {
	h := newHeap(t)
	p := h.Kmalloc(32)
	h.Kfree(p)

	require.ErrorIs(t, fault.Catch(func() { h.Kfree(p) }), ErrDoubleFree)
	require.ErrorIs(t, fault.Catch(func() { h.Kfree(arch.HigherHalf - 8) }), ErrBadPointer)
	require.ErrorIs(t, fault.Catch(func() { h.Kfree(h.Stats().End) }), ErrBadPointer)
}

func Test_Heap_KcallocZeroes(t *testing.T) {
	h := newHeap(t)

	p := h.Kmalloc(64)
	for off := uint64(0); off < 64; off += 8 {
		h.m.CPU.Store64(p+off, ^uint64(0))
	}
	h.Kfree(p)

	q := h.Kcalloc(8, 8)
	require.Equal(t, p, q)
	for off := uint64(0); off < 64; off += 8 {
		require.Zero(t, h.m.CPU.Load64(q+off))
	}

	err := fault.Catch(func() { h.Kcalloc(1<<40, 1<<40) })
	require.ErrorIs(t, err, ErrOverflow)
}

func Test_Heap_GrowsThroughBreak(t *testing.T) {
	h := newHeap(t)
	start := h.Stats().End

	var ptrs []uint64
	for i := 0; i < 10; i++ {
		p := h.Kmalloc(MaxRequest)
		h.m.CPU.Store64(p+MaxRequest-8, uint64(i))
		ptrs = append(ptrs, p)
	}

	s := h.Stats()
	require.Positive(t, s.Grows)
	require.Greater(t, s.End, start)
	require.Equal(t, h.v.Break(), s.End)
	require.Equal(t, uint64(10*MaxRequest), s.InUse)
	for i, p := range ptrs {
		require.Equal(t, uint64(i), h.m.CPU.Load64(p+MaxRequest-8))
	}
	require.NoError(t, h.Check())
}

func Test_Heap_ForeignBreakMoveIsFatal(t *testing.T) {
	h := newHeap(t)
	h.v.Sbrk(arch.PageSize)

	err := fault.Catch(func() {
		for i := 0; i < 4; i++ {
			h.Kmalloc(MaxRequest)
		}
	})
	require.ErrorIs(t, err, ErrBreak)
}

func Test_Heap_SplitProducesWellFormedChunks(t *testing.T) {
	h := newHeap(t)
	c := h.top
	total := h.size(c)
	flags := h.header(c) & flagMask

	right := h.split(c, 48)

	require.Equal(t, c+chunk(wordSize+48), right)
	require.Equal(t, uint64(48), h.size(c))
	require.Equal(t, flags, h.header(c)&flagMask)
	require.Equal(t, total-48-wordSize, h.size(right))
	require.Equal(t, uint64(48), h.m.CPU.Load64(h.footer(c)))
	require.Equal(t, h.size(right), h.m.CPU.Load64(h.footer(right)))
	require.False(t, h.used(right))
	require.False(t, h.prevUsed(right))
	require.Equal(t, h.next(right), chunk(h.Stats().End))
}

func Test_Heap_CheckDetectsCorruption(t *testing.T) {
	h := newHeap(t)
	p := h.Kmalloc(40)
	h.Kmalloc(40)
	h.Kfree(p)
	require.NoError(t, h.Check())

	// Break the footer of the free chunk.
	h.m.CPU.Store64(p+40-8, 1)
	require.ErrorIs(t, h.Check(), ErrCorrupt)
}

func Test_Heap_RandomOpsKeepInvariants(t *testing.T) {
	h := newHeap(t)
	rng := rand.New(rand.NewSource(42))

	live := map[uint64]uint64{} // ptr -> tag
	for i := 0; i < 2000; i++ {
		if len(live) > 0 && rng.Intn(3) == 0 {
			for p, tag := range live {
				require.Equal(t, tag, h.m.CPU.Load64(p), "allocation %#x clobbered", p)
				h.Kfree(p)
				delete(live, p)
				break
			}
		} else {
			size := uint64(rng.Intn(MaxRequest) + 1)
			p := h.Kmalloc(size)
			_, dup := live[p]
			require.False(t, dup, "pointer %#x handed out twice", p)
			tag := rng.Uint64()
			h.m.CPU.Store64(p, tag)
			live[p] = tag
		}
		if i%250 == 0 {
			require.NoError(t, h.Check())
		}
	}
	require.NoError(t, h.Check())

	s := h.Stats()
	require.Equal(t, len(live), s.Allocs-s.Frees)
}
