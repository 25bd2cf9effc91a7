package loader

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/cpu"
	"github.com/joshuapare/kmem/internal/phys"
)

func Test_Loader_FramesFor(t *testing.T) {
	require.Equal(t, 5, FramesFor(16<<20))
	require.Equal(t, 5, FramesFor(1<<30))
	require.Equal(t, 7, FramesFor(1<<30+1))
}

func Test_Loader_OffsetAndIdentityMaps(t *testing.T) {
	mem, err := phys.New(16 << 20)
	require.NoError(t, err)
	defer mem.Close()

	tbl, err := Install(mem, 0x100000, mem.Size())
	require.NoError(t, err)
	require.Len(t, tbl.Frames, FramesFor(mem.Size()))
	require.Equal(t, uint64(0x100000), tbl.Top)

	c := cpu.New(mem)
	c.WriteCR3(tbl.Top)

	mem.Write64(0x345678, 0xabcdef)
	require.Equal(t, uint64(0xabcdef), c.Load64(VAddr(0x345678)))
	require.Equal(t, uint64(0xabcdef), c.Load64(0x345678))

	// The recursive slot exposes the top table at its fixed address.
	require.Equal(t, tbl.Top, c.Load64(arch.TopTableVAddr+arch.RecursiveSlot*8)&arch.PAddrAlignMask)
	pa, ok := c.Walk(arch.TopTableVAddr)
	require.True(t, ok)
	require.Equal(t, tbl.Top, pa)
}

func Test_Loader_Errors(t *testing.T) {
	mem, err := phys.New(1 << 20)
	require.NoError(t, err)
	defer mem.Close()

	_, err = Install(mem, 0x100, mem.Size())
	require.Error(t, err)

	_, err = Install(mem, 0xff000, mem.Size())
	require.ErrorIs(t, err, ErrNoRoom)

	_, err = Install(mem, 0, 4<<30)
	require.ErrorIs(t, err, ErrWindowTooLarge)
}
