package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/juror-match/internal/engine"
)

var classifyInput string

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify jurors against the persona library",
	Long:  "Reads a JSON array of {id, attributes} subjects and prints extracted signals and ranked persona matches for each.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("classify"); err != nil {
			return err
		}

		var subjects []engine.Subject
		if err := readJSON(classifyInput, cmd.InOrStdin(), &subjects); err != nil {
			return err
		}

		env, err := initEngine(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := env.Engine.ClassifyBatch(ctx, subjects)
		if err != nil {
			return eris.Wrap(err, "classify")
		}

		logBatchSummary(results)
		return printJSON(cmd.OutOrStdout(), results)
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyInput, "input", "-", "JSON input file (- for stdin)")
	rootCmd.AddCommand(classifyCmd)
}

func logBatchSummary(results []engine.BatchResult) {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			zap.L().Warn("subject failed", zap.String("subject", r.SubjectID), zap.Error(r.Err))
		}
	}
	zap.L().Info("classify complete",
		zap.Int("succeeded", len(results)-failed),
		zap.Int("failed", failed),
	)
}
