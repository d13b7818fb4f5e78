package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/elysium-mesh/elysium/identity"
)

var identityPath string

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Show this installation's node_id, generating a key pair if none exists",
	Long: `identity loads the persistent keypair at --path, generating and saving a
fresh one on first run, and prints the derived node_id. Per the
specification's identity invariant, a given installation emits exactly one
node_id; rotation requires pointing at a fresh path.`,
	RunE: runIdentity,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.Flags().StringVarP(&identityPath, "path", "p", ".elysium/identity.key", "Path to the persisted identity key file")
}

func runIdentity(cmd *cobra.Command, args []string) error {
	id, err := identity.LoadOrGenerate(identityPath)
	if err != nil {
		return fmt.Errorf("load or generate identity: %w", err)
	}
	fmt.Printf("node_id: %s\n", id.NodeID)
	fmt.Printf("short_id: %s\n", id.ShortID())
	return nil
}
