// Command pulsectl bundles operational tasks for the pulse API: seeding
// demo data, generating survey documents and checking the environment.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulseworks/pulse-api/pkg/config"
	"github.com/pulseworks/pulse-api/pkg/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pulsectl",
		Short:         "Operational tooling for the pulse API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(seedCmd())
	cmd.AddCommand(generateCmd())
	cmd.AddCommand(doctorCmd())
	return cmd
}

// loadEnv loads configuration and a logger for subcommands.
func loadEnv() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}
