// Package cli wires the dvh-engine commands: a long-running evaluation
// server and one-shot single-plan and directory analysis runs.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/oncostack/dvh-engine/internal/config"
	"github.com/oncostack/dvh-engine/internal/utils"
)

var rootCmd = &cobra.Command{
	Use:   "dvh-engine",
	Short: "Radiotherapy plan evaluation from DVH exports",
	Long: `dvh-engine evaluates radiotherapy treatment plans from cumulative
dose-volume histogram exports: tumor control probability for the target
volume, normal tissue complication probability per organ at risk, and
standard dosimetric metrics.`,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and constructs the logger shared by all
// commands.
func bootstrap() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	return cfg, logger, nil
}
