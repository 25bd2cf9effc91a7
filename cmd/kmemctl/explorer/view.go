package explorer

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	overlay "github.com/rmhubbert/bubbletea-overlay"
)

// View renders the entire UI
func (m Model) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Machine halted: %v\n\nPress q to quit.", m.err))
	}

	screen := lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		m.renderContent(),
		m.renderStatus(),
	)
	if !m.showHelp {
		return screen
	}

	box := helpBoxStyle.Render(lipgloss.JoinVertical(
		lipgloss.Left,
		paneTitleStyle.Render("Keys"),
		"",
		m.help.FullHelpView(m.keys.FullHelp()),
	))
	return overlay.New(
		staticView(box),
		staticView(screen),
		overlay.Center,
		overlay.Center,
		0,
		0,
	).View()
}

// staticView adapts a rendered string to tea.Model for the overlay.
type staticView string

func (s staticView) Init() tea.Cmd                       { return nil }
func (s staticView) Update(tea.Msg) (tea.Model, tea.Cmd) { return s, nil }
func (s staticView) View() string                        { return string(s) }

func (m Model) renderHeader() string {
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		headerStyle.Render("Kernel Memory Explorer"),
		"  ",
		pathStyle.Render(fmt.Sprintf("Map: %s  Tables: %s", m.name, m.k.VMM.Backend())),
	) + "\n"
}

func (m Model) renderContent() string {
	leftWidth := max(m.width/2-2, 30)
	paneHeight := max(m.height-HeaderHeight-StatusHeight-2, DetailHeight+5)

	left := paneStyle
	right := paneStyle
	if m.focusedPane == RegionPane {
		left = activePaneStyle
	} else {
		right = activePaneStyle
	}

	regions := left.Width(leftWidth).Height(paneHeight).Render(
		paneTitleStyle.Render(fmt.Sprintf("Regions (%d)", len(m.regions))) + "\n" + m.renderRegions(paneHeight-1),
	)
	tables := right.Height(paneHeight).Render(
		m.renderDetail() + "\n" + paneTitleStyle.Render("Page tables") + "\n" + m.table.View(),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, regions, tables)
}

// renderRegions draws the visible window of the region list, keeping the
// cursor on screen.
func (m Model) renderRegions(rows int) string {
	rows = max(rows, 1)
	first := 0
	if m.cursor >= rows {
		first = m.cursor - rows + 1
	}
	var b strings.Builder
	for i := first; i < len(m.regions) && i < first+rows; i++ {
		r := m.regions[i]
		line := fmt.Sprintf("%#012x - %#012x  ", r.Start, r.End)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render(line + r.Type.String()))
		} else {
			b.WriteString(line + typeStyle(r.Type).Render(r.Type.String()))
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderDetail() string {
	d := m.detail
	r := d.Region
	row := func(label, value string) string {
		return labelStyle.Render(fmt.Sprintf("%-9s", label)) + " " + value + "\n"
	}
	var b strings.Builder
	b.WriteString(paneTitleStyle.Render("Region") + "\n")
	b.WriteString(row("Range", fmt.Sprintf("%#x - %#x", r.Start, r.End)))
	b.WriteString(row("Type", typeStyle(r.Type).Render(r.Type.String())))
	b.WriteString(row("Frames", fmt.Sprintf("%d (%d used, %d free)", d.Frames, d.Used, d.Frames-d.Used)))
	managed := "no"
	if r.Managed {
		managed = "yes"
	}
	if d.Fast {
		managed += ", fast range"
	}
	b.WriteString(row("Managed", managed))
	st := m.k.PMM.Stats()
	b.WriteString(row("PMM", fmt.Sprintf("%d/%d frames used", st.UsedFrames, st.TotalFrames)))
	return b.String()
}

func (m Model) renderStatus() string {
	status := m.statusMessage
	if status == "" {
		hs := m.k.Heap.Stats()
		status = fmt.Sprintf("heap %#x-%#x  %d chunks allocated here  %d frames allocated here",
			hs.Base, hs.End, len(m.chunks), len(m.frames))
	}
	return statusStyle.Render(status) + "\n" + m.help.View(m.keys)
}
