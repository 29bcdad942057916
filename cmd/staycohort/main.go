package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/datanex/staycohort/internal/shared/config"
	"github.com/datanex/staycohort/internal/shared/logger"
)

const serviceName = "staycohort"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          serviceName,
		Short:        "Reconstruct ward stays and derive analysis cohorts",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(sensitivityCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger every command shares.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, log, nil
}
