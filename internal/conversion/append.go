package conversion

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cyderes/lakehouse-pipeline/internal/catalog"
	"github.com/cyderes/lakehouse-pipeline/internal/loader"
	"github.com/cyderes/lakehouse-pipeline/internal/models"
	"github.com/cyderes/lakehouse-pipeline/internal/parquetio"
	"github.com/cyderes/lakehouse-pipeline/internal/storage"
)

// dataColumn holds the JSON row in tables with the generic schema.
const dataColumn = "data"

// appendData reads every Parquet file under sourcePath in the raw bucket,
// projects the rows onto the table schema, writes one file per day
// partition under the table location and commits the files as a snapshot.
// It returns the table as committed.
func (c *Converter) appendData(ctx context.Context, table *catalog.Table, sourcePath string) (*catalog.Table, int, int, error) {
	appender, ok := c.catalog.(catalog.Appender)
	if !ok {
		return nil, 0, 0, errors.Wrapf(catalog.ErrAppendUnsupported, "catalog %s", c.catalog.Name())
	}
	if c.store == nil {
		return nil, 0, 0, errors.New("object store is not configured")
	}

	bucket, prefix, err := splitLocation(table.Location)
	if err != nil {
		return nil, 0, 0, err
	}

	objects, err := c.store.List(ctx, c.rawBucket, sourcePath)
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, "listing raw files")
	}

	partitions := map[string][]map[string]interface{}{}
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, ".parquet") {
			continue
		}
		data, err := c.store.Get(ctx, c.rawBucket, obj.Key)
		if err != nil {
			return nil, 0, 0, err
		}
		rows, _, err := parquetio.Decode(ctx, data)
		if err != nil {
			return nil, 0, 0, errors.Wrapf(err, "decoding %s", obj.Key)
		}
		for i, row := range rows {
			out, err := project(table.Schema, row)
			if err != nil {
				return nil, 0, 0, errors.Wrapf(err, "row %d of %s", i, obj.Key)
			}
			part := partitionPath(out[models.ColumnIngestionTimestamp])
			partitions[part] = append(partitions[part], out)
		}
	}
	if len(partitions) == 0 {
		c.logger.Info("no raw data to append", zap.String("source_path", sourcePath))
		return table, 0, 0, nil
	}

	schema := ArrowSchema(table.Schema)
	keys := make([]string, 0, len(partitions))
	for k := range partitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		files   []catalog.DataFile
		records int
	)
	for _, part := range keys {
		rows := partitions[part]
		var buf bytes.Buffer
		if err := parquetio.Write(&buf, schema, rows); err != nil {
			return nil, 0, 0, errors.Wrapf(err, "encoding partition %s", part)
		}
		size := int64(buf.Len())
		key := prefix + "/data/" + part + "/" + uuid.NewString() + ".parquet"
		if err := c.store.Put(ctx, bucket, key, &buf, loader.ParquetContentType, nil); err != nil {
			return nil, 0, 0, err
		}
		files = append(files, catalog.DataFile{
			Path:        storage.URL(bucket, key),
			Partition:   part,
			RecordCount: int64(len(rows)),
			SizeBytes:   size,
		})
		records += len(rows)
	}

	committed, err := appender.AppendFiles(ctx, table.Identifier, files)
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, "committing data files")
	}
	return committed, len(files), records, nil
}

// project maps a raw row onto schema. Fields missing from the row are null;
// required fields must be present. The generic schema always gets the whole
// row as JSON in its data column, even when the row has a data field of its
// own, and falls back to the row id for its id.
func project(schema catalog.Schema, row map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(schema.Fields))
	for _, f := range schema.Fields {
		v, ok := row[f.Name]
		if f.Name == dataColumn && f.Type == catalog.TypeString {
			b, err := json.Marshal(row)
			if err != nil {
				return nil, errors.Wrap(err, "encoding row")
			}
			v = string(b)
		} else if !ok && f.Name == "id" && f.Type == catalog.TypeString {
			v = row[models.ColumnRowID]
		}
		if v == nil {
			if f.Required {
				return nil, errors.Errorf("required field %s is null", f.Name)
			}
			continue
		}
		out[f.Name] = v
	}
	return out, nil
}

func partitionPath(v interface{}) string {
	t, ok := v.(time.Time)
	if !ok {
		return catalog.PartitionName + "=null"
	}
	return catalog.PartitionName + "=" + t.UTC().Format("2006-01-02")
}

// ArrowSchema returns the Arrow schema of a catalog schema.
func ArrowSchema(s catalog.Schema) *arrow.Schema {
	fields := make([]arrow.Field, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = arrow.Field{Name: f.Name, Type: arrowType(f.Type), Nullable: !f.Required}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(t catalog.Type) arrow.DataType {
	switch t {
	case catalog.TypeInt:
		return arrow.PrimitiveTypes.Int32
	case catalog.TypeLong:
		return arrow.PrimitiveTypes.Int64
	case catalog.TypeDouble:
		return arrow.PrimitiveTypes.Float64
	case catalog.TypeBoolean:
		return arrow.FixedWidthTypes.Boolean
	case catalog.TypeTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}

// splitLocation splits s3://bucket/prefix.
func splitLocation(location string) (string, string, error) {
	rest := strings.TrimPrefix(location, "s3://")
	if rest == location {
		return "", "", errors.Errorf("unsupported table location %s", location)
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", errors.Errorf("table location %s has no bucket", location)
	}
	return bucket, strings.TrimRight(prefix, "/"), nil
}
