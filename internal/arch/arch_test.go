package arch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Arch_Alignment(t *testing.T) {
	require.Equal(t, uint64(4096), PageAlignUp(1))
	require.Equal(t, uint64(4096), PageAlignUp(4096))
	require.Equal(t, uint64(8192), PageAlignUp(4097))
	require.Equal(t, uint64(0), PageAlignDown(4095))
	require.True(t, IsPageAligned(0x200000))
	require.False(t, IsPageAligned(0x200008))
}

func Test_Arch_TopTableAddressUsesRecursiveSlot(t *testing.T) {
	for level := 4; level >= 1; level-- {
		require.Equal(t, RecursiveSlot, Index(TopTableVAddr, level), "level %d", level)
	}
	require.Equal(t, TopTableVAddr, VAddrFromIndices(RecursiveSlot, RecursiveSlot, RecursiveSlot, RecursiveSlot, 0))
}

func Test_Arch_Canonical(t *testing.T) {
	require.True(t, Canonical(0x00007fffffffffff))
	require.True(t, Canonical(KernelVBase))
	require.False(t, Canonical(0x0000800000000000))
	require.False(t, Canonical(0xfff0000000000000))
}

func Test_Arch_IndicesRoundTrip(t *testing.T) {
	v := uint64(0xffff8000dead5000)
	got := VAddrFromIndices(Index(v, 4), Index(v, 3), Index(v, 2), Index(v, 1), 0)
	require.Equal(t, v, got)
	require.Equal(t, uint64(1<<21), LevelSpan(2))
	require.Equal(t, uint64(1<<30), LevelSpan(3))
}
