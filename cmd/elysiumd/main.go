package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "elysiumd",
	Short: "Elysium mesh node daemon",
	Long: `elysiumd runs a single decentralized mesh networking node: handshake and
encrypted framing with connected peers, multi-hop store-and-forward message
delivery, a content-addressed store, a local name registry, and the
in-process management API that front-ends (CLI, web gateway, browser
extension) talk to.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Note: commands are registered in their respective files
	// - run.go: runCmd
	// - identity.go: identityCmd
	// - version.go: versionCmd
}
