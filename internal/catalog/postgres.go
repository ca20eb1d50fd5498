package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/cyderes/lakehouse-pipeline/internal/config"
)

const pqUniqueViolation = "23505"

// PostgresCatalog implements Catalog on a PostgreSQL database
type PostgresCatalog struct {
	name       string
	db         *sql.DB
	namespaces string
	tables     string
	now        func() time.Time
}

// NewPostgresCatalog connects to PostgreSQL and creates the catalog tables
// if needed. Table names are prefixed with cfg.TableName.
func NewPostgresCatalog(ctx context.Context, cfg config.CatalogConfig) (*PostgresCatalog, error) {
	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, errors.Wrap(err, "opening postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connecting to postgres")
	}

	c := &PostgresCatalog{
		name:       cfg.Name,
		db:         db,
		namespaces: pq.QuoteIdentifier(cfg.TableName + "_namespaces"),
		tables:     pq.QuoteIdentifier(cfg.TableName + "_tables"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	if err := c.ensureTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (p *PostgresCatalog) ensureTables(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL
		)`, p.namespaces),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			identifier TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			name TEXT NOT NULL,
			version BIGINT NOT NULL,
			metadata JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, p.tables),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "creating catalog tables")
		}
	}
	return nil
}

func (p *PostgresCatalog) Name() string { return p.name }

func (p *PostgresCatalog) URI() string { return "postgresql://" + p.tables }

func (p *PostgresCatalog) CreateNamespace(ctx context.Context, namespace []string) error {
	name := Identifier{Namespace: namespace}.NamespaceString()
	_, err := p.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (name, created_at) VALUES ($1, $2)", p.namespaces),
		name, p.now())
	if isUniqueViolation(err) {
		return errors.Wrap(ErrNamespaceExists, name)
	}
	return errors.Wrap(err, "inserting namespace")
}

func (p *PostgresCatalog) LoadTable(ctx context.Context, id Identifier) (*Table, error) {
	var meta string
	err := p.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT metadata FROM %s WHERE identifier = $1", p.tables),
		id.String()).Scan(&meta)
	if err == sql.ErrNoRows {
		return nil, errors.Wrap(ErrNoSuchTable, id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying table")
	}
	return decodeTable(meta)
}

func (p *PostgresCatalog) CreateTable(ctx context.Context, id Identifier, schema Schema, spec PartitionSpec, location string) (*Table, error) {
	t := newTable(id, schema, spec, location, p.now())
	meta, err := encodeTable(t)
	if err != nil {
		return nil, err
	}
	_, err = p.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (identifier, namespace, name, version, metadata, updated_at) VALUES ($1, $2, $3, $4, $5, $6)", p.tables),
		id.String(), id.NamespaceString(), id.Name, t.Version, meta, t.LastUpdated)
	if isUniqueViolation(err) {
		return nil, errors.Wrap(ErrTableExists, id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "inserting table")
	}
	return t, nil
}

// AppendFiles commits files as a new snapshot, guarded by the version read.
func (p *PostgresCatalog) AppendFiles(ctx context.Context, id Identifier, files []DataFile) (*Table, error) {
	t, err := p.LoadTable(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := t.Version
	t.appendSnapshot(files, p.now())

	meta, err := encodeTable(t)
	if err != nil {
		return nil, err
	}
	res, err := p.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET version = $1, metadata = $2, updated_at = $3 WHERE identifier = $4 AND version = $5", p.tables),
		t.Version, meta, t.LastUpdated, id.String(), prev)
	if err != nil {
		return nil, errors.Wrap(err, "updating table")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "updating table")
	}
	if n == 0 {
		return nil, errors.Wrap(ErrCommitConflict, id.String())
	}
	return t, nil
}

func (p *PostgresCatalog) Close() error {
	return p.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
