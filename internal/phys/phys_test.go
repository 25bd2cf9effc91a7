package phys

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/kmem/internal/fault"
)

func newMem(t *testing.T, size uint64) *Memory {
	t.Helper()
	m, err := New(size)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, m.Close()) })
	return m
}

func Test_Phys_RoundsToFrames(t *testing.T) {
	m := newMem(t, 5000)
	require.Equal(t, uint64(8192), m.Size())
	require.True(t, m.Contains(8184, 8))
	require.False(t, m.Contains(8188, 8))
}

func Test_Phys_WordsAndBytes(t *testing.T) {
	m := newMem(t, 16*4096)

	m.Write64(0x1008, 0x1122334455667788)
	require.Equal(t, uint64(0x1122334455667788), m.Read64(0x1008))
	require.Equal(t, byte(0x88), m.Frame(0x1fff)[8])

	m.Fill(0x2000, 16, 0xff)
	require.Equal(t, ^uint64(0), m.Read64(0x2008))
	m.Zero(0x2000, 8)
	require.Zero(t, m.Read64(0x2000))
	require.Equal(t, ^uint64(0), m.Read64(0x2008))

	m.Write(0x3000, []byte("frame"))
	got := make([]byte, 5)
	m.Read(0x3000, got)
	require.Equal(t, "frame", string(got))
}

func Test_Phys_FreshArenaIsZero(t *testing.T) {
	m := newMem(t, 64<<20)
	require.Zero(t, m.Read64(0))
	require.Zero(t, m.Read64(m.Size()-8))
}

func Test_Phys_OutOfRangeHalts(t *testing.T) {
	m := newMem(t, 4096)
	err := fault.Catch(func() { m.Read64(4096) })
	require.ErrorIs(t, err, ErrOutOfRange)
}

func Test_Phys_ZeroSizeRejected(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
}
