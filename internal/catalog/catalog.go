// Package catalog tracks curated-layer table metadata: schema, partition
// spec, location and committed data files.
package catalog

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/cyderes/lakehouse-pipeline/internal/config"
)

// RootNamespace is the first level of every curated table namespace.
const RootNamespace = "analytics"

var (
	ErrNamespaceExists   = errors.New("namespace already exists")
	ErrNoSuchTable       = errors.New("table does not exist")
	ErrTableExists       = errors.New("table already exists")
	ErrCommitConflict    = errors.New("table was modified concurrently")
	ErrAppendUnsupported = errors.New("catalog does not support appending data files")
)

// Identifier names a table within a namespace
type Identifier struct {
	Namespace []string `json:"namespace"`
	Name      string   `json:"name"`
}

// NewIdentifier returns the identifier analytics.{source}.{table}.
func NewIdentifier(source, table string) Identifier {
	return Identifier{Namespace: []string{RootNamespace, source}, Name: table}
}

func (id Identifier) String() string {
	return strings.Join(append(append([]string{}, id.Namespace...), id.Name), ".")
}

// NamespaceString renders the namespace levels joined by dots.
func (id Identifier) NamespaceString() string {
	return strings.Join(id.Namespace, ".")
}

// Location returns the deterministic storage location of a curated table.
func Location(curatedBucket string, id Identifier) string {
	return "s3://" + curatedBucket + "/" + strings.Join(id.Namespace, "/") + "/" + id.Name
}

// Catalog is a table metadata store
type Catalog interface {
	Name() string
	URI() string
	CreateNamespace(ctx context.Context, namespace []string) error
	LoadTable(ctx context.Context, id Identifier) (*Table, error)
	CreateTable(ctx context.Context, id Identifier, schema Schema, spec PartitionSpec, location string) (*Table, error)
	Close() error
}

// Appender is implemented by catalogs that can commit data files to a table
// as a new snapshot.
type Appender interface {
	AppendFiles(ctx context.Context, id Identifier, files []DataFile) (*Table, error)
}

// NewCatalog creates a catalog for the configured type. The object store
// settings supply the defaults of the REST catalog URI and warehouse.
func NewCatalog(ctx context.Context, cfg config.CatalogConfig, store config.ObjectStoreConfig) (Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "rest":
		return NewRESTCatalog(ctx, RESTOptions{
			Name:      cfg.Name,
			URI:       cfg.ResolvedURI(store.AccountID, store.CuratedBucket),
			Token:     cfg.Token,
			Warehouse: cfg.ResolvedWarehouse(store.CuratedBucket),
			Timeout:   cfg.Timeout,
		})
	case "dynamodb":
		return NewDynamoDBCatalog(ctx, cfg)
	case "mongodb":
		return NewMongoDBCatalog(ctx, cfg)
	case "postgresql":
		return NewPostgresCatalog(ctx, cfg)
	case "memory":
		return NewMemoryCatalog(cfg.Name), nil
	default:
		return nil, errors.Errorf("unsupported catalog type: %s", cfg.Type)
	}
}
