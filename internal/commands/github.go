package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cyderes/lakehouse-pipeline/internal/github"
	"github.com/cyderes/lakehouse-pipeline/internal/loader"
	"github.com/cyderes/lakehouse-pipeline/internal/storage"
)

func newGitHubCommand(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var (
		owner string
		repos []string
	)
	cmd := &cobra.Command{
		Use:   "github",
		Short: "Load repository activity from GitHub into the raw layer.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if owner != "" {
				cfg.GitHub.Owner = owner
			}
			if len(repos) > 0 {
				cfg.GitHub.Repos = repos
			}

			if missing := github.MissingSettings(cfg); len(missing) > 0 {
				fmt.Fprintln(stderr, "missing required environment variables:")
				for _, name := range missing {
					fmt.Fprintf(stderr, "  - %s\n", name)
				}
				return errors.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
			}

			store, err := storage.NewStorage(cfg.ObjectStore)
			if err != nil {
				return err
			}
			defer store.Close()

			p := loader.New(store, loader.Options{
				Name:    cfg.GitHub.PipelineName,
				Dataset: cfg.GitHub.DatasetName,
				Bucket:  cfg.ObjectStore.Bucket,
				Logger:  logger,
			})
			summary, err := github.NewRunner(github.NewClient(cfg.GitHub, logger), p, cfg.GitHub, logger).Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(stdout, "execution %s: %d repositories, %d failed, %d records\n",
				summary.ExecutionID, len(summary.Repos), summary.Failed(), summary.Records())
			fmt.Fprintf(stdout, "saved to %s\n", storage.URL(cfg.ObjectStore.Bucket, p.Dataset()+"/"))
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Repository owner, overriding GITHUB_OWNER.")
	cmd.Flags().StringSliceVar(&repos, "repos", nil, "Repository names, overriding GITHUB_REPOS.")
	return cmd
}
