package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/kmem/internal/fault"
	"github.com/joshuapare/kmem/mm/region"
)

var (
	regionsFormat string
	regionsRaw    bool
)

func init() {
	cmd := newRegionsCmd()
	cmd.Flags().StringVar(&regionsFormat, "format", formatAuto, "Memory map format: auto, text, e820 or mb2")
	cmd.Flags().BoolVar(&regionsRaw, "raw", false, "Print the kernel's region dump instead of a table")
	rootCmd.AddCommand(cmd)
}

func newRegionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regions <map>",
		Short: "Translate a firmware memory map into the kernel region map",
		Long: `The regions command reads a firmware memory map, translates it the way the
kernel does at boot, and prints the resulting region map.

Example:
  kmemctl regions qemu.map
  kmemctl regions boot.mb2 --format mb2
  kmemctl regions qemu.map --raw`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegions(args)
		},
	}
	return cmd
}

// RegionJSON is one region in JSON output.
type RegionJSON struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Size    uint64 `json:"size"`
	Type    string `json:"type"`
	Managed bool   `json:"managed,omitempty"`
}

func runRegions(args []string) error {
	lm, err := loadMap(args[0], regionsFormat)
	if err != nil {
		return err
	}
	m, err := translate(lm.Entries)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(regionsJSON(m))
	}
	if regionsRaw {
		return m.Dump(os.Stdout)
	}
	printRegionTable(m)
	return nil
}

// translate runs region.Translate, reporting a halt as an error.
func translate(entries []region.Entry) (*region.Map, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("memory map is empty")
	}
	var m *region.Map
	if err := fault.Catch(func() { m = region.Translate(entries) }); err != nil {
		return nil, err
	}
	return m, nil
}

func regionsJSON(m *region.Map) []RegionJSON {
	var out []RegionJSON
	for _, r := range m.Ranges() {
		out = append(out, RegionJSON{
			Start:   fmt.Sprintf("%#x", r.Start),
			End:     fmt.Sprintf("%#x", r.End),
			Size:    r.Size(),
			Type:    r.Type.String(),
			Managed: r.Managed,
		})
	}
	return out
}

func printRegionTable(m *region.Map) {
	printInfo("%s\n", styled(headerStyle, fmt.Sprintf("Regions (%d)", m.Len())))
	for _, r := range m.Ranges() {
		managed := ""
		if r.Managed {
			managed = styled(mutedStyle, " (managed)")
		}
		printInfo("  %#016x - %#016x  %12s  %s%s\n", r.Start, r.End, humanSize(r.Size()), typeLabel(r.Type), managed)
	}
}
