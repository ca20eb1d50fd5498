package commands

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cyderes/lakehouse-pipeline/internal/quality"
)

func newValidateCommand(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var suitePath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run data quality suites against Parquet data in the lake.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if suitePath == "" {
				suitePath = cfg.Quality.SuitePath
			}

			suites, err := quality.LoadSuites(suitePath)
			if err != nil {
				return err
			}

			runner, err := quality.Open(cmd.Context(), cfg.ObjectStore, logger)
			if err != nil {
				return err
			}
			defer runner.Close()

			results := runner.Run(cmd.Context(), suites)
			quality.WriteReport(stdout, results)
			if !quality.Passed(results) {
				return errors.New("data quality validation failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&suitePath, "suite", "s", "", "Suite file, overriding QUALITY_SUITE_PATH.")
	return cmd
}
