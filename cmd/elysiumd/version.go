package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the elysiumd build version, overridable at link time with
// -ldflags "-X main.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the elysiumd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("elysiumd %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
