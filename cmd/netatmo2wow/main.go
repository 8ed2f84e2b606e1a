package main

import (
	"context"
	"fmt"
	"os"

	"github.com/flappah/netatmo2wow/pkg/config"
	"github.com/flappah/netatmo2wow/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "netatmo2wow",
	Short: "netatmo2wow - Netatmo to WOW weather bridge",
	Long: `netatmo2wow pulls the measurements of Netatmo weather stations,
reconciles the per-module streams into one observation series per station
and publishes them to the Met Office Weather Observations Website.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadApp,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./netatmo2wow.yaml or ~/.netatmo2wow/netatmo2wow.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
}

func loadApp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}

	cmd.SetContext(withApp(cmd.Context(), &App{Config: cfg, Logger: logger}))
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
