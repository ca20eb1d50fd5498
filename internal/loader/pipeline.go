// Package loader writes record streams to the raw layer as Hive-partitioned
// Parquet files.
package loader

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cyderes/lakehouse-pipeline/internal/models"
	"github.com/cyderes/lakehouse-pipeline/internal/parquetio"
	"github.com/cyderes/lakehouse-pipeline/internal/storage"
)

// ParquetContentType is the media type of uploaded Parquet files.
const ParquetContentType = "application/vnd.apache.parquet"

// Resource is a named record stream to be loaded into one table
type Resource struct {
	Name        string
	Disposition models.WriteDisposition
	Records     []models.Record
}

// Options configures a Pipeline
type Options struct {
	Name    string
	Dataset string
	Bucket  string
	Layout  string
	Logger  *zap.Logger
	Now     func() time.Time
}

// Pipeline loads resources into an object store bucket under a dataset prefix
type Pipeline struct {
	name    string
	dataset string
	bucket  string
	layout  string
	store   storage.ObjectStore
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a pipeline writing through store
func New(store storage.ObjectStore, opts Options) *Pipeline {
	p := &Pipeline{
		name:    opts.Name,
		dataset: strings.Trim(opts.Dataset, "/"),
		bucket:  opts.Bucket,
		layout:  opts.Layout,
		store:   store,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if p.layout == "" {
		p.layout = DefaultLayout
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	return p
}

// Name returns the pipeline name
func (p *Pipeline) Name() string { return p.name }

// Dataset returns the dataset prefix files are written under
func (p *Pipeline) Dataset() string { return p.dataset }

// Destination describes where the pipeline writes
func (p *Pipeline) Destination() string { return "filesystem:" + storage.URL(p.bucket, "") }

// Run writes every resource as one Parquet file per table and returns the
// load information. Records are copied and tagged with the load id and a row
// id; callers keep no reference into the written data.
func (p *Pipeline) Run(ctx context.Context, resources ...Resource) (*models.LoadInfo, error) {
	return p.RunAt(ctx, p.now(), resources...)
}

// RunAt is Run with the load time given by the caller. The load time picks
// the day partition of every file written.
func (p *Pipeline) RunAt(ctx context.Context, now time.Time, resources ...Resource) (*models.LoadInfo, error) {
	now = now.UTC()
	loadID := strconv.FormatFloat(float64(now.UnixMicro())/1e6, 'f', 6, 64)

	info := &models.LoadInfo{
		PipelineName: p.name,
		DatasetName:  p.dataset,
		Destination:  p.Destination(),
	}

	for _, res := range resources {
		load, err := p.load(ctx, loadID, now, res)
		if err != nil {
			return nil, errors.Wrapf(err, "loading resource %s", res.Name)
		}
		info.Loads = append(info.Loads, *load)
	}
	return info, nil
}

// load writes res. With the replace disposition the files already under the
// table are removed only once the new file is stored.
func (p *Pipeline) load(ctx context.Context, loadID string, now time.Time, res Resource) (*models.Load, error) {
	load := &models.Load{LoadID: loadID, TableName: res.Name, LoadedAt: now}

	var previous []string
	if res.Disposition == models.WriteReplace {
		objects, err := p.store.List(ctx, p.bucket, p.dataset+"/"+res.Name+"/")
		if err != nil {
			return nil, errors.Wrap(err, "listing existing files")
		}
		for _, obj := range objects {
			previous = append(previous, obj.Key)
		}
	}

	if len(res.Records) == 0 {
		if err := p.replace(ctx, res.Name, previous); err != nil {
			return nil, err
		}
		load.State = models.LoadStateEmpty
		return load, nil
	}

	rows := make([]map[string]interface{}, len(res.Records))
	for i, rec := range res.Records {
		row := make(map[string]interface{}, len(rec)+2)
		for k, v := range rec {
			row[k] = v
		}
		row[models.ColumnLoadID] = loadID
		row[models.ColumnRowID] = newID()
		rows[i] = row
	}

	var buf bytes.Buffer
	if _, err := parquetio.Encode(&buf, rows); err != nil {
		return nil, errors.Wrap(err, "encoding parquet")
	}

	key := p.dataset + "/" + Render(p.layout, FileName{
		TableName: res.Name,
		LoadID:    loadID,
		FileID:    newID(),
		Ext:       "parquet",
		Time:      now,
	})
	metadata := map[string]string{
		"pipeline": p.name,
		"load_id":  loadID,
		"records":  strconv.Itoa(len(rows)),
	}
	if err := p.store.Put(ctx, p.bucket, key, &buf, ParquetContentType, metadata); err != nil {
		return nil, err
	}
	if err := p.replace(ctx, res.Name, previous); err != nil {
		return nil, err
	}

	p.logger.Info("loaded table",
		zap.String("pipeline", p.name),
		zap.String("table", res.Name),
		zap.String("key", key),
		zap.Int("records", len(rows)))

	load.State = models.LoadStateLoaded
	load.Files = []string{storage.URL(p.bucket, key)}
	load.Records = len(rows)
	return load, nil
}

func (p *Pipeline) replace(ctx context.Context, table string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	deleted, err := p.store.Delete(ctx, p.bucket, keys)
	if err != nil {
		return errors.Wrap(err, "replacing existing files")
	}
	p.logger.Info("replaced existing table files",
		zap.String("table", table), zap.Int("deleted", deleted))
	return nil
}

// newID returns a short random identifier.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}
