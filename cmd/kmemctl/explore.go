package main

import (
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/joshuapare/kmem/cmd/kmemctl/explorer"
	"github.com/joshuapare/kmem/internal/klog"
)

var exploreOpts bootOptions

func init() {
	cmd := newExploreCmd()
	exploreOpts.register(cmd)
	rootCmd.AddCommand(cmd)
}

func newExploreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explore <map>",
		Short: "Boot and browse the machine interactively",
		Long: `The explore command boots the memory manager and opens a terminal UI with the
region map, per-region frame usage and the live page tables. Frames and heap
chunks can be allocated from the keyboard; press ? for the key list.

Example:
  kmemctl explore qemu.map
  kmemctl explore qemu.map --backend direct`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplore(args)
		},
	}
	return cmd
}

func runExplore(args []string) error {
	k, err := exploreOpts.bootMachine(args[0])
	if err != nil {
		return err
	}
	defer k.Close()
	// The alternate screen owns the terminal from here on.
	klog.Init(klog.Options{})

	p := tea.NewProgram(
		explorer.New(k, filepath.Base(args[0])),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	if m, ok := final.(explorer.Model); ok && m.Err() != nil {
		return m.Err()
	}
	return nil
}
