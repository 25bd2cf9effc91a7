package explorer

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/kmem/kernel"
	"github.com/joshuapare/kmem/mm/bootinfo"
	"github.com/joshuapare/kmem/mm/pmm"
	"github.com/joshuapare/kmem/mm/region"
)

var sixteenMiB = []region.Entry{
	{Base: 0, Length: 0x9fc00, Type: region.E820Available},
	{Base: 0xf0000, Length: 0x10000, Type: region.E820Reserved},
	{Base: 0x100000, Length: 0xf00000, Type: region.E820Available},
}

func newModel(t *testing.T) Model {
	t.Helper()
	k, err := kernel.Boot(kernel.DefaultConfig(), sixteenMiB, bootinfo.SyntheticImage(0x100000, 0x200000))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, k.Close()) })

	m := New(k, "test.map")
	m.SetClipboard(func(string) error { return nil })
	return send(t, m, tea.WindowSizeMsg{Width: 160, Height: 48})
}

func send(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func Test_Explorer_InitialView(t *testing.T) {
	m := newModel(t)
	require.Equal(t, 0, m.Cursor())
	require.Equal(t, RegionPane, m.Focused())

	view := m.View()
	require.Contains(t, view, "Kernel Memory Explorer")
	require.Contains(t, view, "test.map")
	require.Contains(t, view, "Regions (")
	require.Contains(t, view, "Page tables")
	require.Contains(t, view, "PML4: ")
}

func Test_Explorer_CursorMovement(t *testing.T) {
	m := newModel(t)
	n := len(m.regions)

	m = send(t, m, keyRunes("j"))
	require.Equal(t, 1, m.Cursor())
	require.Equal(t, m.regions[1], m.Detail().Region)

	m = send(t, m, keyRunes("k"))
	m = send(t, m, keyRunes("k"))
	require.Equal(t, 0, m.Cursor(), "cursor stops at the first region")

	m = send(t, m, keyRunes("G"))
	require.Equal(t, n-1, m.Cursor())
	m = send(t, m, keyRunes("j"))
	require.Equal(t, n-1, m.Cursor(), "cursor stops at the last region")

	m = send(t, m, keyRunes("g"))
	require.Equal(t, 0, m.Cursor())
}

func Test_Explorer_KernelRegionIsFullyUsed(t *testing.T) {
	m := newModel(t)
	for i, r := range m.regions {
		if r.Type == region.Kernel {
			for m.Cursor() < i {
				m = send(t, m, keyRunes("j"))
			}
			break
		}
	}
	d := m.Detail()
	require.Equal(t, region.Kernel, d.Region.Type)
	require.NotZero(t, d.Frames)
	require.Equal(t, d.Frames, d.Used)
	require.True(t, d.Fast)
}

func Test_Explorer_AllocAndFreeFrames(t *testing.T) {
	m := newModel(t)
	before := m.k.PMM.UsedFrames()

	m = send(t, m, keyRunes("a"))
	m = send(t, m, keyRunes("a"))
	require.Len(t, m.Frames(), 2)
	require.Equal(t, before+2, m.k.PMM.UsedFrames())
	require.Contains(t, m.Status(), "Allocated frame")
	require.True(t, m.k.PMM.IsUsed(m.Frames()[1]))

	last := m.Frames()[1]
	m = send(t, m, keyRunes("f"))
	require.Len(t, m.Frames(), 1)
	require.False(t, m.k.PMM.IsUsed(last))
	require.Contains(t, m.Status(), "Freed frame")

	m = send(t, m, keyRunes("f"))
	m = send(t, m, keyRunes("f"))
	require.Equal(t, "No frames to free", m.Status())
	require.Equal(t, before, m.k.PMM.UsedFrames())
}

func Test_Explorer_MallocRefreshesTables(t *testing.T) {
	m := newModel(t)
	faults := m.k.VMM.Stats().FaultsResolved

	for i := 0; i < 40; i++ {
		m = send(t, m, keyRunes("m"))
	}
	require.Len(t, m.Chunks(), 40)
	require.Greater(t, m.k.VMM.Stats().FaultsResolved, faults)
	require.Contains(t, m.Status(), "kmalloc(256)")
	require.NoError(t, m.k.Heap.Check())
	require.NoError(t, m.Err())
}

func Test_Explorer_HaltShowsErrorScreen(t *testing.T) {
	m := newModel(t)
	// a frame the explorer never allocated, so freeing it halts the PMM
	m.frames = []pmm.Frame{0x800000, 0x800000}
	m = send(t, m, keyRunes("f"))
	require.Error(t, m.Err())
	require.Contains(t, m.View(), "Machine halted")

	// keys other than quit are ignored once halted
	m = send(t, m, keyRunes("a"))
	require.Len(t, m.Frames(), 2)
	_, cmd := m.Update(keyRunes("q"))
	require.NotNil(t, cmd)
}

func Test_Explorer_TabAndHelpOverlay(t *testing.T) {
	m := newModel(t)

	m = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, TablePane, m.Focused())

	// movement keys scroll the table instead of the region list
	m = send(t, m, keyRunes("j"))
	require.Equal(t, 0, m.Cursor())

	m = send(t, m, keyRunes("?"))
	require.Contains(t, m.View(), "allocate frame")
	m = send(t, m, keyRunes("a"))
	require.Empty(t, m.Frames(), "keys are swallowed while help is open")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotContains(t, m.View(), "free last frame")

	m = send(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, RegionPane, m.Focused())
}

func Test_Explorer_CopyAddress(t *testing.T) {
	m := newModel(t)
	var copied string
	m.SetClipboard(func(s string) error { copied = s; return nil })

	m = send(t, m, keyRunes("j"))
	m = send(t, m, keyRunes("y"))
	require.Equal(t, "0x9f000", copied)
	require.Equal(t, "Copied 0x9f000", m.Status())

	m.SetClipboard(func(string) error { return errors.New("no display") })
	m = send(t, m, keyRunes("y"))
	require.Equal(t, "Copy failed: no display", m.Status())
}
