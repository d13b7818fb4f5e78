package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/elysium-mesh/elysium/internal/config"
	"github.com/elysium-mesh/elysium/internal/log"
	"github.com/elysium-mesh/elysium/node"
)

var (
	configDir  string
	envName    string
	dotEnvPath string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the mesh node and block until shutdown",
	Long: `run loads the node configuration (environment-specific YAML, falling back to
defaults, with ELYSIUM_* environment overrides applied last), opens or
generates the node's identity and durable stores, and then listens for
peer connections and serves the local management API until interrupted.`,
	RunE: runNode,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&configDir, "config-dir", "c", "config", "Directory containing environment YAML config files")
	runCmd.Flags().StringVarP(&envName, "env", "e", "", "Environment name (defaults to ELYSIUM_ENV or development)")
	runCmd.Flags().StringVar(&dotEnvPath, "dotenv", ".env", "Path to an optional .env file to load before config")
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoaderOptions{
		ConfigDir:   configDir,
		Environment: envName,
		DotEnvPath:  dotEnvPath,
	})
	if err != nil {
		return err
	}

	logger := log.Default()
	n, err := node.New(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("elysiumd: starting",
		log.String("node_id", n.ID().NodeID.String()),
		log.String("environment", cfg.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return n.Start(ctx)
}
