package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cyderes/lakehouse-pipeline/internal/apperr"
	"github.com/cyderes/lakehouse-pipeline/internal/cost"
)

func newCostCommand(stdout io.Writer) *cobra.Command {
	var (
		scenario string
		all      bool
		custom   bool
		usage    = cost.DefaultUsage()
	)
	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Estimate the monthly platform cost.",
		Example: `  lakehouse cost --scenario small
  lakehouse cost --all
  lakehouse cost --custom --workers-requests 10000000 --r2-storage 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case all:
				for _, key := range cost.ScenarioKeys() {
					s := cost.Scenarios[key]
					if err := report(stdout, s.Name, s.Usage); err != nil {
						return err
					}
					fmt.Fprintln(stdout)
				}
				return nil
			case scenario != "":
				s, err := cost.Lookup(scenario)
				if err != nil {
					return err
				}
				return report(stdout, s.Name, s.Usage)
			case custom:
				if usage.WorkersRequests <= 0 || usage.R2StorageGB <= 0 {
					return apperr.Valuef("--workers-requests and --r2-storage are required with --custom")
				}
				return report(stdout, "Custom", usage)
			default:
				return cmd.Help()
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&scenario, "scenario", "", "Predefined scenario (small, medium, large).")
	flags.BoolVar(&all, "all", false, "Show every predefined scenario.")
	flags.BoolVar(&custom, "custom", false, "Use the usage given by flags.")
	flags.Int64Var(&usage.WorkersRequests, "workers-requests", 0, "Workers requests per month.")
	flags.Int64Var(&usage.R2StorageGB, "r2-storage", 0, "R2 storage in GB.")
	flags.Int64Var(&usage.D1StorageGB, "d1-storage", usage.D1StorageGB, "D1 storage in GB.")
	flags.Int64Var(&usage.D1ReadRows, "d1-read-rows", usage.D1ReadRows, "D1 rows read per month.")
	flags.Int64Var(&usage.D1WriteRows, "d1-write-rows", usage.D1WriteRows, "D1 rows written per month.")
	flags.Float64Var(&usage.KVStorageGB, "kv-storage", usage.KVStorageGB, "KV storage in GB.")
	flags.Int64Var(&usage.KVReads, "kv-reads", usage.KVReads, "KV reads per month.")
	flags.Int64Var(&usage.KVWrites, "kv-writes", usage.KVWrites, "KV writes per month.")
	flags.Int64Var(&usage.AnalyticsEngineWrites, "analytics-writes", usage.AnalyticsEngineWrites, "Analytics Engine rows written per month.")
	flags.StringVar(&usage.WorkersPlan, "workers-plan", usage.WorkersPlan, "Workers plan (free, bundled, unbound).")
	flags.Int64Var(&usage.GitHubActionsMinutes, "github-minutes", 0, "GitHub Actions Linux minutes per month.")
	return cmd
}

func report(w io.Writer, title string, u cost.Usage) error {
	e, err := cost.Calculate(u)
	if err != nil {
		return err
	}
	cost.WriteReport(w, title, e)
	return nil
}
