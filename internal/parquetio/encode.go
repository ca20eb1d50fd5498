package parquetio

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
	"github.com/apache/arrow/go/v10/arrow/array"
	"github.com/apache/arrow/go/v10/arrow/memory"
	"github.com/apache/arrow/go/v10/parquet"
	"github.com/apache/arrow/go/v10/parquet/compress"
	"github.com/apache/arrow/go/v10/parquet/pqarrow"
	"github.com/pkg/errors"
)

// Encode flattens rows and writes them to w as a Snappy-compressed Parquet
// file. It returns the schema that was written.
func Encode(w io.Writer, rows []map[string]interface{}) (*arrow.Schema, error) {
	flat := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		flat[i] = Flatten(row)
	}
	schema := InferSchema(flat)
	return schema, Write(w, schema, flat)
}

// Write writes already flattened rows with the given schema. Values that do
// not match a column type are converted (numbers widened, everything else
// rendered as a string); missing values are written as nulls.
func Write(w io.Writer, schema *arrow.Schema, rows []map[string]interface{}) error {
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for _, row := range rows {
		for i, field := range schema.Fields() {
			if err := appendValue(b.Field(i), row[field.Name]); err != nil {
				return errors.Wrapf(err, "column %s", field.Name)
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(schema, w, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return errors.Wrap(err, "creating parquet writer")
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return errors.Wrap(err, "writing parquet record")
	}
	return errors.Wrap(fw.Close(), "closing parquet writer")
}

func appendValue(b array.Builder, v interface{}) error {
	if v == nil {
		b.AppendNull()
		return nil
	}

	switch bb := b.(type) {
	case *array.Int64Builder:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		bb.Append(n)
	case *array.Int32Builder:
		n, err := toInt64(v)
		if err != nil {
			return err
		}
		if n < -1<<31 || n > 1<<31-1 {
			return errors.Errorf("value %d overflows int32", n)
		}
		bb.Append(int32(n))
	case *array.Float64Builder:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		bb.Append(f)
	case *array.BooleanBuilder:
		bv, ok := v.(bool)
		if !ok {
			return errors.Errorf("value %v is not a boolean", v)
		}
		bb.Append(bv)
	case *array.TimestampBuilder:
		t, err := toTime(v)
		if err != nil {
			return err
		}
		bb.Append(arrow.Timestamp(t.UnixMicro()))
	case *array.StringBuilder:
		bb.Append(ToString(v))
	default:
		return errors.Errorf("unsupported builder %T", b)
	}
	return nil
}

func toInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int8:
		return int64(t), nil
	case int16:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint8:
		return int64(t), nil
	case uint16:
		return int64(t), nil
	case uint32:
		return int64(t), nil
	case float64:
		if t != float64(int64(t)) {
			return 0, errors.Errorf("value %v is not an integer", t)
		}
		return int64(t), nil
	case json.Number:
		return t.Int64()
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, errors.Errorf("value %v (%T) is not an integer", v, v)
	}
}

func toFloat64(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		n, err := toInt64(v)
		return float64(n), err
	}
}

func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, errors.Errorf("value %q is not a timestamp", t)
	default:
		return time.Time{}, errors.Errorf("value %v (%T) is not a timestamp", v, v)
	}
}

// ToString renders any decoded JSON value as a string column value.
func ToString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
