package quality

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cyderes/lakehouse-pipeline/internal/config"
)

// Result is the outcome of one expectation
type Result struct {
	Suite       string
	Expectation string
	Column      string
	Success     bool
	Observed    string
	Err         error
}

// Runner evaluates suites on an in-memory DuckDB connection
type Runner struct {
	db     *sql.DB
	bucket string
	logger *zap.Logger
}

// Open opens DuckDB and, when the object store has an endpoint and
// credentials, configures httpfs to read from it.
func Open(ctx context.Context, store config.ObjectStoreConfig, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(err, "opening duckdb")
	}
	r := &Runner{db: db, bucket: store.Bucket, logger: logger}

	if endpoint := store.EndpointURL(); endpoint != "" && store.AccessKeyID != "" {
		if err := r.configureS3(ctx, endpoint, store); err != nil {
			db.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *Runner) configureS3(ctx context.Context, endpoint string, store config.ObjectStoreConfig) error {
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	region := store.Region
	if region == "" {
		region = "auto"
	}
	stmts := []string{
		"INSTALL httpfs",
		"LOAD httpfs",
		"SET s3_endpoint=" + quoteString(endpoint),
		"SET s3_access_key_id=" + quoteString(store.AccessKeyID),
		"SET s3_secret_access_key=" + quoteString(store.SecretAccessKey),
		"SET s3_region=" + quoteString(region),
		"SET s3_url_style='path'",
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "configuring object store access")
		}
	}
	r.logger.Info("configured duckdb object store access", zap.String("endpoint", endpoint))
	return nil
}

// Close closes the DuckDB connection.
func (r *Runner) Close() error {
	return r.db.Close()
}

// Source returns the read_parquet location of a suite's asset.
func (r *Runner) Source(s Suite) string {
	if strings.Contains(s.Asset, "://") || strings.HasPrefix(s.Asset, "/") {
		return s.Asset
	}
	bucket := s.Bucket
	if bucket == "" {
		bucket = r.bucket
	}
	return fmt.Sprintf("s3://%s/%s", bucket, strings.TrimLeft(s.Asset, "/"))
}

// Run evaluates every expectation of every suite. Failed expectations and
// query errors are reported as results, not as an error.
func (r *Runner) Run(ctx context.Context, suites []Suite) []Result {
	var results []Result
	for _, s := range suites {
		from := fmt.Sprintf("read_parquet(%s, union_by_name=true)", quoteString(r.Source(s)))
		r.logger.Info("validating suite", zap.String("suite", s.Name), zap.String("asset", r.Source(s)))

		for _, e := range s.Expectations {
			res := Result{Suite: s.Name, Expectation: e.Type, Column: e.Column}
			res.Success, res.Observed, res.Err = r.evaluate(ctx, from, e)
			if res.Err != nil {
				r.logger.Warn("expectation errored",
					zap.String("suite", s.Name), zap.String("expectation", e.Type), zap.Error(res.Err))
			}
			results = append(results, res)
		}
	}
	return results
}

func (r *Runner) evaluate(ctx context.Context, from string, e Expectation) (bool, string, error) {
	col := quoteIdent(e.Column)

	switch e.Type {
	case ExpectRowCountBetween:
		n, err := r.count(ctx, "SELECT count(*) FROM "+from)
		if err != nil {
			return false, "", err
		}
		return within(float64(n), e.Min, e.Max), strconv.FormatInt(n, 10), nil

	case ExpectColumnExists:
		rows, err := r.db.QueryContext(ctx, "SELECT * FROM "+from+" LIMIT 0")
		if err != nil {
			return false, "", err
		}
		defer rows.Close()
		cols, err := rows.Columns()
		if err != nil {
			return false, "", err
		}
		for _, c := range cols {
			if c == e.Column {
				return true, "present", nil
			}
		}
		return false, "missing", nil

	case ExpectNotNull:
		n, err := r.count(ctx, fmt.Sprintf("SELECT count(*) FROM %s WHERE %s IS NULL", from, col))
		return n == 0, unexpected(n), err

	case ExpectUnique:
		n, err := r.count(ctx, fmt.Sprintf("SELECT count(%s) - count(DISTINCT %s) FROM %s", col, col, from))
		return n == 0, fmt.Sprintf("%d duplicate", n), err

	case ExpectBetween:
		var (
			conds []string
			args  []interface{}
		)
		if e.Min != nil {
			conds = append(conds, col+" < ?")
			args = append(args, *e.Min)
		}
		if e.Max != nil {
			conds = append(conds, col+" > ?")
			args = append(args, *e.Max)
		}
		n, err := r.count(ctx, fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", from, strings.Join(conds, " OR ")), args...)
		return n == 0, unexpected(n), err

	case ExpectInSet:
		marks := make([]string, len(e.Values))
		args := make([]interface{}, len(e.Values))
		for i, v := range e.Values {
			marks[i] = "?"
			args[i] = v
		}
		q := fmt.Sprintf("SELECT count(*) FROM %s WHERE %s IS NOT NULL AND CAST(%s AS VARCHAR) NOT IN (%s)",
			from, col, col, strings.Join(marks, ", "))
		n, err := r.count(ctx, q, args...)
		return n == 0, unexpected(n), err
	}
	return false, "", errors.Errorf("unknown expectation type: %s", e.Type)
}

func (r *Runner) count(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "running expectation query")
	}
	return n, nil
}

func within(v float64, min, max *float64) bool {
	if min != nil && v < *min {
		return false
	}
	if max != nil && v > *max {
		return false
	}
	return true
}

func unexpected(n int64) string {
	return fmt.Sprintf("%d unexpected", n)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Passed reports whether every result succeeded.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Success || r.Err != nil {
			return false
		}
	}
	return true
}
