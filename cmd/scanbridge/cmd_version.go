package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=..."
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "scanbridge %s\n", version)
	},
}
