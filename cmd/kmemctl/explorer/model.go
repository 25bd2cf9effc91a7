// Package explorer is an interactive terminal view of a booted machine: the
// region map on the left, the selected region's frame usage and the live page
// tables on the right. Frames and heap chunks can be allocated from the
// keyboard and the views refresh as the kernel changes them.
package explorer

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/internal/fault"
	"github.com/joshuapare/kmem/internal/klog"
	"github.com/joshuapare/kmem/kernel"
	"github.com/joshuapare/kmem/mm/pmm"
	"github.com/joshuapare/kmem/mm/region"
)

// Pane represents which pane is focused
type Pane int

const (
	RegionPane Pane = iota
	TablePane
)

// Layout constants
const (
	HeaderHeight = 2 // title line plus spacing
	StatusHeight = 2 // status line plus key hints
	DetailHeight = 7 // region detail block above the page tables
	MallocSize   = 256
)

// RegionDetail is the frame accounting for one region, computed when the
// cursor or the allocator state changes.
type RegionDetail struct {
	Region region.Range
	Frames uint64 // frames of the region inside the managed span
	Used   uint64
	Fast   bool // region overlaps the allocator's fast range
}

// Model is the main application model
type Model struct {
	k     *kernel.Kernel
	name  string
	keys  KeyMap
	help  help.Model
	clip  func(string) error
	table viewport.Model

	regions []region.Range
	cursor  int
	detail  RegionDetail

	focusedPane Pane
	width       int
	height      int
	showHelp    bool

	// Status message for temporary feedback
	statusMessage string

	frames []pmm.Frame
	chunks []uint64

	err error
}

// New creates a model over a booted kernel. name labels the header.
func New(k *kernel.Kernel, name string) Model {
	m := Model{
		k:       k,
		name:    name,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		clip:    clipboard.WriteAll,
		table:   viewport.New(0, 0),
		regions: k.Regions.Ranges(),
	}
	m.refresh()
	return m
}

// SetClipboard replaces the clipboard writer.
func (m *Model) SetClipboard(fn func(string) error) { m.clip = fn }

// Cursor returns the index of the selected region.
func (m Model) Cursor() int { return m.cursor }

// Focused returns the focused pane.
func (m Model) Focused() Pane { return m.focusedPane }

// Status returns the current status message.
func (m Model) Status() string { return m.statusMessage }

// Detail returns the accounting for the selected region.
func (m Model) Detail() RegionDetail { return m.detail }

// Frames returns the frames allocated from the keyboard, oldest first.
func (m Model) Frames() []pmm.Frame { return m.frames }

// Chunks returns the heap chunks allocated from the keyboard.
func (m Model) Chunks() []uint64 { return m.chunks }

// Err returns the halt that stopped the machine, if any.
func (m Model) Err() error { return m.err }

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.focusedPane == TablePane {
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.err != nil {
		return m, nil
	}
	if m.showHelp {
		if key.Matches(msg, m.keys.Help, m.keys.Esc) {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
	case key.Matches(msg, m.keys.Tab):
		if m.focusedPane == RegionPane {
			m.focusedPane = TablePane
		} else {
			m.focusedPane = RegionPane
		}
	case key.Matches(msg, m.keys.Alloc):
		m.allocFrame()
	case key.Matches(msg, m.keys.Free):
		m.freeFrame()
	case key.Matches(msg, m.keys.Malloc):
		m.malloc()
	case key.Matches(msg, m.keys.Copy):
		m.copyAddress()
	case m.focusedPane == TablePane:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	default:
		m.moveCursor(msg)
	}
	return m, nil
}

func (m *Model) moveCursor(msg tea.KeyMsg) {
	prev := m.cursor
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.regions)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Home):
		m.cursor = 0
	case key.Matches(msg, m.keys.End):
		m.cursor = len(m.regions) - 1
	}
	if m.cursor != prev {
		m.detail = m.regionDetail(m.regions[m.cursor])
	}
}

// run executes fn against the kernel. A halt freezes the explorer on the
// error screen.
func (m *Model) run(fn func()) bool {
	if err := fault.Catch(fn); err != nil {
		klog.Error("explorer: machine halted", "err", err)
		m.err = err
		return false
	}
	return true
}

func (m *Model) allocFrame() {
	var f pmm.Frame
	if !m.run(func() { f = m.k.PMM.Alloc() }) {
		return
	}
	if !f.Valid() {
		m.statusMessage = "Out of frames in the fast range"
		return
	}
	m.frames = append(m.frames, f)
	m.statusMessage = fmt.Sprintf("Allocated frame %s", f)
	m.refresh()
}

func (m *Model) freeFrame() {
	if len(m.frames) == 0 {
		m.statusMessage = "No frames to free"
		return
	}
	f := m.frames[len(m.frames)-1]
	if !m.run(func() { m.k.PMM.Free(f) }) {
		return
	}
	m.frames = m.frames[:len(m.frames)-1]
	m.statusMessage = fmt.Sprintf("Freed frame %s", f)
	m.refresh()
}

func (m *Model) malloc() {
	var p uint64
	ok := m.run(func() {
		p = m.k.Heap.Kmalloc(MallocSize)
		m.k.CPU.Store64(p, uint64(len(m.chunks)))
	})
	if !ok {
		return
	}
	m.chunks = append(m.chunks, p)
	m.statusMessage = fmt.Sprintf("kmalloc(%d) = %#x", MallocSize, p)
	m.refresh()
}

func (m *Model) copyAddress() {
	addr := fmt.Sprintf("%#x", m.regions[m.cursor].Start)
	if err := m.clip(addr); err != nil {
		m.statusMessage = fmt.Sprintf("Copy failed: %v", err)
		return
	}
	m.statusMessage = fmt.Sprintf("Copied %s", addr)
}

// refresh recomputes everything derived from kernel state.
func (m *Model) refresh() {
	m.detail = m.regionDetail(m.regions[m.cursor])
	var b strings.Builder
	if !m.run(func() { _ = m.k.VMM.Dump(&b) }) {
		return
	}
	m.table.SetContent(strings.TrimLeft(b.String(), "\n"))
}

func (m *Model) regionDetail(r region.Range) RegionDetail {
	d := RegionDetail{Region: r}
	base, size := m.k.PMM.Span()
	lo, hi := max(r.Start, base), min(r.End, base+size)
	lo = arch.PageAlignUp(lo)
	for addr := lo; addr < hi; addr += arch.PageSize {
		d.Frames++
		if m.k.PMM.IsUsed(pmm.Frame(addr)) {
			d.Used++
		}
	}
	fs, fe := m.k.PMM.FastRange()
	d.Fast = r.Start < fe && r.End > fs
	return d
}

func (m *Model) resize() {
	w := m.width - m.width/2 - 4
	h := m.height - HeaderHeight - StatusHeight - DetailHeight - 4
	m.table.Width = max(w, 10)
	m.table.Height = max(h, 3)
}
