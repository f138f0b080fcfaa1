package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/juror-match/internal/model"
	"github.com/sells-group/juror-match/internal/resolve"
)

var (
	resolveInput string
	resolveSave  bool
)

// resolveRequest is the input document for the resolve command.
type resolveRequest struct {
	JurorID    string                  `json:"juror_id"`
	Target     model.Target            `json:"target"`
	Candidates []model.CandidateRecord `json:"candidates"`
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Score identity candidates for a juror",
	Long:  "Reads a JSON document with a target juror and candidate records and prints the candidates ranked by total score.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("resolve"); err != nil {
			return err
		}

		var req resolveRequest
		if err := readJSON(resolveInput, cmd.InOrStdin(), &req); err != nil {
			return err
		}

		ranked, err := resolve.NewScorer(cfg.Resolve).ScoreCandidates(req.Target, req.Candidates)
		if err != nil {
			return eris.Wrap(err, "resolve")
		}

		if resolveSave {
			if req.JurorID == "" {
				return eris.New("resolve: --save requires juror_id in the input")
			}
			if err := cfg.Validate("store"); err != nil {
				return err
			}
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			if err := st.SaveCandidates(ctx, req.JurorID, ranked); err != nil {
				return eris.Wrap(err, "resolve: save candidates")
			}
			zap.L().Info("candidates saved",
				zap.String("juror_id", req.JurorID),
				zap.Int("candidates", len(ranked)),
			)
		}

		return printJSON(cmd.OutOrStdout(), ranked)
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveInput, "input", "-", "JSON input file (- for stdin)")
	resolveCmd.Flags().BoolVar(&resolveSave, "save", false, "persist scored candidates to the store")
	rootCmd.AddCommand(resolveCmd)
}
