package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/oncostack/dvh-engine/internal/batch"
	"github.com/oncostack/dvh-engine/internal/engine"
	"github.com/oncostack/dvh-engine/internal/export"
	"github.com/oncostack/dvh-engine/internal/radbio"
	"github.com/oncostack/dvh-engine/internal/services"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <dir>",
	Short: "Evaluate every DVH export in a directory",
	Long: `Evaluate all .txt exports under a directory, pair rival VMAT and
IMRT plans per patient into comparisons, and print the aggregate report.

Examples:
  dvh-engine analyze exports/
  dvh-engine analyze exports/ --format csv --output summary.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeFormat string
	analyzeOutput string
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "json", "output format: json, csv")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "output file (default: stdout)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	params, err := radbio.Load(cfg.Parameters.Path)
	if err != nil {
		return fmt.Errorf("load model parameters: %w", err)
	}

	service := services.NewEvaluationService(logger, engine.NewPipeline(logger, nil, params))
	runner := batch.NewRunner(logger, service, cfg.Batch.Workers)

	report, err := runner.Run(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if analyzeOutput != "" {
		file, err := os.Create(analyzeOutput)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	switch analyzeFormat {
	case "json":
		return export.WriteJSON(out, report)
	case "csv":
		return export.WriteCSV(out, report.Records)
	default:
		return fmt.Errorf("unknown format %q (want json or csv)", analyzeFormat)
	}
}
