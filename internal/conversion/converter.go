// Package conversion registers raw-layer tables in the curated catalog and
// optionally appends their Parquet data to the curated table.
package conversion

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cyderes/lakehouse-pipeline/internal/catalog"
	"github.com/cyderes/lakehouse-pipeline/internal/metrics"
	"github.com/cyderes/lakehouse-pipeline/internal/models"
	"github.com/cyderes/lakehouse-pipeline/internal/storage"
)

// Operations reported for a converted table.
const (
	OperationLoadedExisting = "loaded_existing"
	OperationCreatedNew     = "created_new"
)

// Default request values.
const (
	DefaultSourceName = "api_jsonplaceholder"
	DefaultTableName  = "posts"
)

// Options configures a Converter
type Options struct {
	RawBucket     string
	CuratedBucket string
	Logger        *zap.Logger
	Now           func() time.Time
}

// Converter materializes curated tables in a catalog
type Converter struct {
	catalog       catalog.Catalog
	store         storage.ObjectStore
	rawBucket     string
	curatedBucket string
	logger        *zap.Logger
	now           func() time.Time
}

// New creates a converter. store is only used when data is appended and
// may be nil otherwise.
func New(cat catalog.Catalog, store storage.ObjectStore, opts Options) *Converter {
	c := &Converter{
		catalog:       cat,
		store:         store,
		rawBucket:     opts.RawBucket,
		curatedBucket: opts.CuratedBucket,
		logger:        opts.Logger,
		now:           opts.Now,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// Normalize fills in the default source, table and source path.
func Normalize(req models.ConversionRequest) models.ConversionRequest {
	if req.SourceName == "" {
		req.SourceName = DefaultSourceName
	}
	if req.TableName == "" {
		req.TableName = DefaultTableName
	}
	if req.SourcePath == "" {
		req.SourcePath = fmt.Sprintf("sources/%s/%s/", req.SourceName, req.TableName)
	}
	return req
}

// Convert ensures the namespace and table of the request exist, refreshes
// the table and, when requested, appends the raw Parquet data under the
// source path. Calling it repeatedly for the same table is safe.
func (c *Converter) Convert(ctx context.Context, req models.ConversionRequest) (result *models.ConversionResult, err error) {
	defer func() {
		if err != nil {
			metrics.CounterConversions.WithLabelValues("failed").Inc()
		}
	}()

	req = Normalize(req)
	id := catalog.NewIdentifier(req.SourceName, req.TableName)

	if err := c.catalog.CreateNamespace(ctx, id.Namespace); err != nil && !errors.Is(err, catalog.ErrNamespaceExists) {
		return nil, errors.Wrapf(err, "creating namespace %s", id.NamespaceString())
	}

	schema := catalog.SchemaForTable(req.TableName)
	spec, err := catalog.DayPartitionSpec(schema)
	if err != nil {
		return nil, err
	}
	location := catalog.Location(c.curatedBucket, id)

	operation, err := c.loadOrCreate(ctx, id, schema, spec, location)
	if err != nil {
		return nil, err
	}

	table, err := c.catalog.LoadTable(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "refreshing table %s", id)
	}

	result = &models.ConversionResult{
		Success:         true,
		Operation:       operation,
		TableIdentifier: id.String(),
		Location:        location,
		SchemaFields:    len(schema.Fields),
		PartitionSpec:   spec.String(),
		SourcePath:      req.SourcePath,
		CatalogURI:      c.catalog.URI(),
		Message:         fmt.Sprintf("Iceberg table %s successfully", operation),
		Timestamp:       c.now().Format(time.RFC3339Nano),
	}

	if req.Append {
		committed, files, records, err := c.appendData(ctx, table, req.SourcePath)
		if err != nil {
			return nil, errors.Wrapf(err, "appending %s", req.SourcePath)
		}
		table = committed
		result.AppendedFiles = files
		result.AppendedRecords = records
	}
	result.TableRecords = table.Records()

	metrics.CounterConversions.WithLabelValues(operation).Inc()
	c.logger.Info("converted table",
		zap.String("table", id.String()),
		zap.String("operation", operation),
		zap.Int("appended_records", result.AppendedRecords))
	return result, nil
}

// loadOrCreate loads the table or creates it when absent. A concurrent
// create is resolved by loading the winner's table.
func (c *Converter) loadOrCreate(ctx context.Context, id catalog.Identifier, schema catalog.Schema, spec catalog.PartitionSpec, location string) (string, error) {
	_, err := c.catalog.LoadTable(ctx, id)
	if err == nil {
		return OperationLoadedExisting, nil
	}
	if !errors.Is(err, catalog.ErrNoSuchTable) {
		return "", errors.Wrapf(err, "loading table %s", id)
	}

	_, err = c.catalog.CreateTable(ctx, id, schema, spec, location)
	if errors.Is(err, catalog.ErrTableExists) {
		c.logger.Info("table created concurrently", zap.String("table", id.String()))
		return OperationLoadedExisting, nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "creating table %s", id)
	}
	return OperationCreatedNew, nil
}
