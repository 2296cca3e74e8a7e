package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oncostack/dvh-engine/internal/engine"
	"github.com/oncostack/dvh-engine/internal/export"
	"github.com/oncostack/dvh-engine/internal/radbio"
	"github.com/oncostack/dvh-engine/internal/services"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <export.txt>",
	Short: "Evaluate one DVH export",
	Long: `Evaluate a single cumulative DVH export and print the outcome
record as JSON.

Examples:
  dvh-engine evaluate patient1_vmat.txt
  dvh-engine evaluate patient1_vmat.txt --output outcome.json`,
	Args: cobra.ExactArgs(1),
	RunE: runEvaluate,
}

var evaluateOutput string

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVarP(&evaluateOutput, "output", "o", "", "output file (default: stdout)")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	params, err := radbio.Load(cfg.Parameters.Path)
	if err != nil {
		return fmt.Errorf("load model parameters: %w", err)
	}

	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	service := services.NewEvaluationService(logger, engine.NewPipeline(logger, nil, params))
	plan := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	record, err := service.EvaluatePlan(cmd.Context(), plan, f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if evaluateOutput != "" {
		file, err := os.Create(evaluateOutput)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	return export.WriteRecordJSON(out, record)
}
