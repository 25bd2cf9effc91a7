package main

import (
	"image/color"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/kmem/cmd/kmemctl/explorer"
	"github.com/joshuapare/kmem/mm/region"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// styled renders s with style unless color is disabled.
func styled(style lipgloss.Style, s string) string {
	if noColor {
		return s
	}
	return style.Render(s)
}

func typeLabel(t region.Type) string {
	return styled(lipgloss.NewStyle().Foreground(explorer.Palette[t]), t.String())
}

// typeColor returns the palette entry for t as an image color.
func typeColor(t region.Type) color.Color {
	return explorer.Palette[t]
}

// numbers groups digits in counts and byte sizes.
var numbers = message.NewPrinter(language.English)

// humanSize formats a byte count with a binary unit.
func humanSize(n uint64) string {
	units := []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB", "EiB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	if i == 0 {
		return numbers.Sprintf("%d B", n)
	}
	return numbers.Sprintf("%.1f %s", v, units[i])
}
