package parquetio

import (
	"bytes"
	"context"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"
	"github.com/pkg/errors"
)

const readBatchSize = 4096

// Decode reads a Parquet file into flattened rows. Integers are returned as
// int64, floats as float64 and timestamps as UTC time.Time.
func Decode(ctx context.Context, data []byte) ([]map[string]interface{}, *arrow.Schema, error) {
	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(ctx, bytes.NewReader(data), parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading parquet table")
	}
	defer tbl.Release()

	schema := tbl.Schema()
	rows := make([]map[string]interface{}, 0, tbl.NumRows())

	tr := array.NewTableReader(tbl, readBatchSize)
	defer tr.Release()
	for tr.Next() {
		rec := tr.Record()
		for r := 0; r < int(rec.NumRows()); r++ {
			row := make(map[string]interface{}, rec.NumCols())
			for c, field := range schema.Fields() {
				v, err := valueAt(rec.Column(c), r)
				if err != nil {
					return nil, nil, errors.Wrapf(err, "column %s", field.Name)
				}
				row[field.Name] = v
			}
			rows = append(rows, row)
		}
	}
	return rows, schema, nil
}

func valueAt(col arrow.Array, i int) (interface{}, error) {
	if col.IsNull(i) {
		return nil, nil
	}
	switch c := col.(type) {
	case *array.Int64:
		return c.Value(i), nil
	case *array.Int32:
		return int64(c.Value(i)), nil
	case *array.Int16:
		return int64(c.Value(i)), nil
	case *array.Int8:
		return int64(c.Value(i)), nil
	case *array.Float64:
		return c.Value(i), nil
	case *array.Float32:
		return float64(c.Value(i)), nil
	case *array.Boolean:
		return c.Value(i), nil
	case *array.String:
		return c.Value(i), nil
	case *array.Binary:
		return string(c.Value(i)), nil
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		return timestampToTime(int64(c.Value(i)), unit), nil
	default:
		return nil, errors.Errorf("unsupported parquet column type %s", col.DataType())
	}
}

func timestampToTime(v int64, unit arrow.TimeUnit) time.Time {
	switch unit {
	case arrow.Second:
		return time.Unix(v, 0).UTC()
	case arrow.Millisecond:
		return time.UnixMilli(v).UTC()
	case arrow.Microsecond:
		return time.UnixMicro(v).UTC()
	default:
		return time.Unix(0, v).UTC()
	}
}
