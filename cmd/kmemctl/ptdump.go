package main

import (
	"os"

	"github.com/spf13/cobra"
)

var ptdumpOpts bootOptions

func init() {
	cmd := newPtdumpCmd()
	ptdumpOpts.register(cmd)
	rootCmd.AddCommand(cmd)
}

func newPtdumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ptdump <map>",
		Short: "Boot and dump the kernel page tables",
		Long: `The ptdump command boots the memory manager and prints every populated entry
of the kernel's page tables, one line per entry. Leaf lines show the virtual
address they map.

Example:
  kmemctl ptdump qemu.map
  kmemctl ptdump qemu.map --backend direct`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPtdump(args)
		},
	}
	return cmd
}

func runPtdump(args []string) error {
	k, err := ptdumpOpts.bootMachine(args[0])
	if err != nil {
		return err
	}
	defer k.Close()
	return k.VMM.Dump(os.Stdout)
}
