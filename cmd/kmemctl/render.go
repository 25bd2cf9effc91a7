package main

import (
	"fmt"
	"math"

	"github.com/fogleman/gg"
	"github.com/spf13/cobra"

	"github.com/joshuapare/kmem/mm/region"
)

var (
	renderFormat string
	renderOutput string
	renderWidth  int
)

func init() {
	cmd := newRenderCmd()
	cmd.Flags().StringVar(&renderFormat, "format", formatAuto, "Memory map format: auto, text, e820 or mb2")
	cmd.Flags().StringVarP(&renderOutput, "output", "o", "regions.png", "PNG file to write")
	cmd.Flags().IntVar(&renderWidth, "width", 1024, "Image width in pixels")
	rootCmd.AddCommand(cmd)
}

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <map>",
		Short: "Draw the region map as a PNG",
		Long: `The render command translates a firmware memory map and draws the region
map as a horizontal bar, one colored band per region. Band widths are
logarithmic in region size so small firmware holes stay visible.

Example:
  kmemctl render qemu.map -o qemu.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(args)
		},
	}
	return cmd
}

const (
	renderBarHeight    = 48
	renderLegendHeight = 24
	renderMargin       = 16
)

func runRender(args []string) error {
	lm, err := loadMap(args[0], renderFormat)
	if err != nil {
		return err
	}
	m, err := translate(lm.Entries)
	if err != nil {
		return err
	}
	if renderWidth < 2*renderMargin+1 {
		return fmt.Errorf("width %d is too small", renderWidth)
	}

	dc := drawRegions(m, renderWidth)
	if err := dc.SavePNG(renderOutput); err != nil {
		return fmt.Errorf("failed to write %s: %w", renderOutput, err)
	}
	printInfo("Wrote %s (%d regions)\n", renderOutput, m.Len())
	return nil
}

// drawRegions lays the regions out left to right in ascending address order.
// The unbounded top region is drawn with a fixed minimal weight.
func drawRegions(m *region.Map, width int) *gg.Context {
	ranges := m.Ranges()
	types := map[region.Type]bool{}
	weights := make([]float64, len(ranges))
	var total float64
	for i, r := range ranges {
		w := 1.0
		if i < len(ranges)-1 {
			w = math.Log2(float64(r.Size())+1) - 11 // a page weighs 1
			w = math.Max(w, 1)
		}
		weights[i] = w
		total += w
		types[r.Type] = true
	}

	height := 2*renderMargin + renderBarHeight + renderLegendHeight*len(types)
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	span := float64(width - 2*renderMargin)
	x := float64(renderMargin)
	for i, r := range ranges {
		w := span * weights[i] / total
		dc.SetColor(typeColor(r.Type))
		dc.DrawRectangle(x, renderMargin, w, renderBarHeight)
		dc.Fill()
		dc.SetRGB(0, 0, 0)
		dc.SetLineWidth(1)
		dc.DrawLine(x, renderMargin, x, renderMargin+renderBarHeight)
		dc.Stroke()
		x += w
	}

	y := float64(2*renderMargin + renderBarHeight)
	for t := region.None; t.Valid(); t++ {
		if !types[t] {
			continue
		}
		dc.SetColor(typeColor(t))
		dc.DrawRectangle(renderMargin, y, 16, 16)
		dc.Fill()
		dc.SetRGB(0, 0, 0)
		dc.DrawString(t.String(), renderMargin+24, y+12)
		y += renderLegendHeight
	}
	return dc
}
