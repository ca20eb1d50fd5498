// Package commands implements the lakehouse command line.
package commands

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cyderes/lakehouse-pipeline/internal/config"
	"github.com/cyderes/lakehouse-pipeline/internal/logging"
)

type globalFlags struct {
	config    string
	logLevel  string
	logFormat string
}

// load reads the configuration and builds the logger. Flags override the
// configured log settings.
func (g *globalFlags) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(g.config)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// NewRootCommand returns the lakehouse root command.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}
	rc := &cobra.Command{
		Use:   "lakehouse",
		Short: "Raw and curated layer pipelines for an R2 data lake.",
		Long: `lakehouse loads API data into the raw layer of an S3-compatible data
lake as Parquet, registers curated tables in a table catalog and runs the
supporting batch jobs.`,
		SilenceUsage: true,
	}
	flags := rc.PersistentFlags()
	flags.StringVarP(&g.config, "config", "c", "", "Configuration file to read from.")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error).")
	flags.StringVar(&g.logFormat, "log-format", "", "Log format (json, console).")

	rc.AddCommand(newServeCommand(g, stdout, stderr))
	rc.AddCommand(newGitHubCommand(g, stdout, stderr))
	rc.AddCommand(newValidateCommand(g, stdout, stderr))
	rc.AddCommand(newCostCommand(stdout))

	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}
