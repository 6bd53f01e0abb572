package main

import (
	"fmt"
	"runtime"

	"github.com/LynnColeArt/gudamm"
	"github.com/spf13/cobra"
)

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		version, sum := gudamm.Version()
		if version == "" {
			version = "unknown"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "gudamm %s %s\n", version, sum)
		fmt.Fprintf(cmd.OutOrStdout(), "go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
