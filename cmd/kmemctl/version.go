package main

import (
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/joshuapare/kmem/internal/arch"
	"github.com/joshuapare/kmem/mm/vmm"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the kmemctl version, the commit it was built from and the page-table
backends it can boot. Commit and build time fall back to the Go build info
when the binary was not built with -ldflags.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// VersionInfo is the JSON form of the version command.
type VersionInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	Built     string   `json:"built"`
	GoVersion string   `json:"go_version"`
	Platform  string   `json:"platform"`
	PageSize  uint64   `json:"page_size"`
	Backends  []string `json:"backends"`
}

func versionInfo() VersionInfo {
	info := VersionInfo{
		Version:   version,
		Commit:    commit,
		Built:     date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		PageSize:  arch.PageSize,
		Backends:  []string{vmm.BackendRecursive.String(), vmm.BackendDirect.String()},
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "none" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Built == "unknown" {
				info.Built = s.Value
			}
		}
	}
	return info
}

func runVersion() error {
	info := versionInfo()
	if jsonOut {
		return printJSON(info)
	}

	printInfo("kmemctl %s\n", info.Version)
	printInfo("  commit:   %s\n", info.Commit)
	printInfo("  built:    %s\n", info.Built)
	printInfo("  go:       %s (%s)\n", info.GoVersion, info.Platform)
	printVerbose("  page:     %d bytes\n", info.PageSize)
	printInfo("  backends: %s, %s\n", info.Backends[0], info.Backends[1])
	return nil
}
