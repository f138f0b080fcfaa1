package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/juror-match/internal/signal"
	"github.com/sells-group/juror-match/internal/weights"
)

var (
	weightsOut  string
	weightsSave bool
	weightsID   string
	weightsAll  bool
)

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Build and inspect signal-persona weight tables",
}

var weightsBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a weight table from the catalog and persona library",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		catalog, err := signal.Load(cfg.Catalog.Path)
		if err != nil {
			return eris.Wrap(err, "load catalog")
		}
		table, err := buildWeights(catalog)
		if err != nil {
			return eris.Wrap(err, "build weights")
		}

		if weightsOut != "" {
			if err := weights.WriteFile(weightsOut, table); err != nil {
				return err
			}
			zap.L().Info("weights written", zap.String("path", weightsOut))
		}

		if weightsSave {
			if err := cfg.Validate("store"); err != nil {
				return err
			}
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			if err := st.SaveWeights(ctx, table); err != nil {
				return eris.Wrap(err, "save weights")
			}
			zap.L().Info("weights saved", zap.String("id", table.ID()))
		}

		if weightsOut == "" && !weightsSave {
			return weights.Encode(cmd.OutOrStdout(), table)
		}
		return printJSON(cmd.OutOrStdout(), table.Meta())
	},
}

var weightsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the weight table the engine would load",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if weightsAll || weightsID != "" {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			if weightsAll {
				metas, err := st.ListWeights(ctx, 0)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), metas)
			}
			table, err := st.GetWeights(ctx, weightsID)
			if err != nil {
				return err
			}
			return weights.Encode(cmd.OutOrStdout(), table)
		}

		env, err := initEngine(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()
		return weights.Encode(cmd.OutOrStdout(), env.Engine.Weights())
	},
}

func init() {
	weightsBuildCmd.Flags().StringVar(&weightsOut, "out", "", "write the table as a JSON snapshot to this path")
	weightsBuildCmd.Flags().BoolVar(&weightsSave, "save", false, "save the table to the store")
	weightsShowCmd.Flags().StringVar(&weightsID, "id", "", "show a stored table by id")
	weightsShowCmd.Flags().BoolVar(&weightsAll, "all", false, "list stored tables, newest first")
	weightsCmd.AddCommand(weightsBuildCmd, weightsShowCmd)
	rootCmd.AddCommand(weightsCmd)
}
