package github

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cyderes/lakehouse-pipeline/internal/config"
	"github.com/cyderes/lakehouse-pipeline/internal/loader"
	"github.com/cyderes/lakehouse-pipeline/internal/metrics"
	"github.com/cyderes/lakehouse-pipeline/internal/models"
)

// Metadata columns added to every GitHub record.
const (
	ColumnExtractedAt    = "_extracted_at"
	ColumnExecutionID    = "_execution_id"
	ColumnRepositoryName = "_repository_full_name"
)

// RepoResult is the outcome of loading one repository
type RepoResult struct {
	Repository string         `json:"repository"`
	Records    map[string]int `json:"records"`
	Error      string         `json:"error,omitempty"`
}

// Summary is the outcome of a GitHub pipeline run
type Summary struct {
	ExecutionID string       `json:"execution_id"`
	Owner       string       `json:"owner"`
	Repos       []RepoResult `json:"repositories"`
}

// Failed returns the number of repositories that could not be loaded.
func (s *Summary) Failed() int {
	n := 0
	for _, r := range s.Repos {
		if r.Error != "" {
			n++
		}
	}
	return n
}

// Records returns the number of records loaded across repositories.
func (s *Summary) Records() int {
	n := 0
	for _, r := range s.Repos {
		for _, c := range r.Records {
			n += c
		}
	}
	return n
}

// Runner loads the configured repositories through a loader pipeline
type Runner struct {
	client   *Client
	pipeline *loader.Pipeline
	cfg      config.GitHubConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewRunner creates a runner
func NewRunner(client *Client, p *loader.Pipeline, cfg config.GitHubConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		client:   client,
		pipeline: p,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run resolves the owner and repositories and loads every repository with a
// bounded number of workers. A failing repository does not stop the others.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	owner := r.cfg.Owner
	if owner == "" {
		login, err := r.client.AuthenticatedUser(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "resolving authenticated user")
		}
		owner = login
		r.logger.Info("authenticated user", zap.String("login", owner))
	}

	repos := r.cfg.Repos
	if len(repos) == 0 {
		names, err := r.client.UserRepos(ctx, r.cfg.MaxPages)
		if err != nil {
			return nil, errors.Wrap(err, "listing repositories")
		}
		repos = names
	}

	summary := &Summary{
		ExecutionID: uuid.NewString(),
		Owner:       owner,
		Repos:       make([]RepoResult, len(repos)),
	}
	log := r.logger.With(zap.String("execution_id", summary.ExecutionID))
	log.Info("github pipeline started", zap.String("owner", owner), zap.Int("repositories", len(repos)))

	workers := r.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, name := range repos {
		i, fullName := i, owner+"/"+name
		g.Go(func() error {
			counts, err := r.loadRepo(gctx, fullName, summary.ExecutionID)
			res := RepoResult{Repository: fullName, Records: counts}
			if err != nil {
				res.Error = err.Error()
				log.Error("repository failed", zap.String("repository", fullName), zap.Error(err))
			}
			summary.Repos[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("github pipeline finished",
		zap.Int("repositories", len(repos)),
		zap.Int("failed", summary.Failed()),
		zap.Int("records", summary.Records()))
	return summary, nil
}

func (r *Runner) loadRepo(ctx context.Context, fullName, executionID string) (map[string]int, error) {
	counts := make(map[string]int)
	var resources []loader.Resource
	for _, res := range Resources(fullName) {
		records, err := r.client.Fetch(ctx, res, r.cfg.MaxPages)
		if errors.Is(err, ErrNotFound) {
			r.logger.Info("resource not found, skipping",
				zap.String("repository", fullName), zap.String("resource", res.Name))
			continue
		}
		if err != nil {
			return counts, errors.Wrapf(err, "fetching %s", res.Name)
		}
		if len(records) == 0 {
			continue
		}

		extractedAt := r.now().Format(time.RFC3339Nano)
		for _, rec := range records {
			rec[ColumnExtractedAt] = extractedAt
			rec[ColumnExecutionID] = executionID
			rec[ColumnRepositoryName] = fullName
		}
		resources = append(resources, loader.Resource{
			Name:        res.Name,
			Disposition: models.WriteAppend,
			Records:     records,
		})
	}

	if len(resources) == 0 {
		return counts, nil
	}
	info, err := r.pipeline.Run(ctx, resources...)
	if err != nil {
		return counts, err
	}
	for _, l := range info.Loads {
		counts[l.TableName] += l.Records
		metrics.CounterIngestedRecords.WithLabelValues(l.TableName).Add(float64(l.Records))
	}
	return counts, nil
}

// MissingSettings lists the environment variables the GitHub pipeline needs
// but that are not set.
func MissingSettings(cfg *config.Config) []string {
	var missing []string
	if cfg.GitHub.Token == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if cfg.ObjectStore.Type == "s3" {
		if cfg.ObjectStore.EndpointURL() == "" {
			missing = append(missing, "R2_ENDPOINT")
		}
		if cfg.ObjectStore.AccessKeyID == "" {
			missing = append(missing, "R2_ACCESS_KEY_ID")
		}
		if cfg.ObjectStore.SecretAccessKey == "" {
			missing = append(missing, "R2_SECRET_ACCESS_KEY")
		}
	}
	if cfg.ObjectStore.Bucket == "" {
		missing = append(missing, "R2_BUCKET_NAME")
	}
	return missing
}
