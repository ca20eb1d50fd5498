// Package parquetio converts JSON-shaped records to and from Parquet files.
//
// Records are flattened before encoding: nested objects become columns joined
// with "__" (address.geo.lat -> address__geo__lat) and arrays are stored as
// JSON strings. Column types are inferred from the values seen across all
// rows.
package parquetio

import (
	"encoding/json"
	"math"
	"time"

	"github.com/apache/arrow/go/v10/arrow"
)

// Separator joins the keys of flattened nested objects.
const Separator = "__"

type kind int

const (
	kindNull kind = iota
	kindInt
	kindFloat
	kindBool
	kindString
	kindTime
)

// merge widens two kinds into one able to hold both.
func merge(a, b kind) kind {
	switch {
	case a == b:
		return a
	case a == kindNull:
		return b
	case b == kindNull:
		return a
	case (a == kindInt && b == kindFloat) || (a == kindFloat && b == kindInt):
		return kindFloat
	default:
		return kindString
	}
}

func kindOf(v interface{}) kind {
	switch t := v.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBool
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return kindInt
	case float32:
		return kindFloat
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return kindString
		}
		return kindFloat
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return kindInt
		}
		return kindFloat
	case time.Time:
		return kindTime
	default:
		return kindString
	}
}

func (k kind) arrowType() arrow.DataType {
	switch k {
	case kindInt:
		return arrow.PrimitiveTypes.Int64
	case kindFloat:
		return arrow.PrimitiveTypes.Float64
	case kindBool:
		return arrow.FixedWidthTypes.Boolean
	case kindTime:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.BinaryTypes.String
	}
}

// Flatten returns a copy of rec with nested objects expanded into
// Separator-joined columns and arrays encoded as JSON strings.
func Flatten(rec map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(rec))
	flattenInto(out, "", rec)
	return out
}

func flattenInto(out map[string]interface{}, prefix string, rec map[string]interface{}) {
	for k, v := range rec {
		name := k
		if prefix != "" {
			name = prefix + Separator + k
		}
		switch t := v.(type) {
		case map[string]interface{}:
			flattenInto(out, name, t)
		case []interface{}:
			b, err := json.Marshal(t)
			if err != nil {
				out[name] = nil
				continue
			}
			out[name] = string(b)
		default:
			out[name] = v
		}
	}
}

// columns returns the column names in first-seen order along with the
// merged kind of each column. Keys within a row are visited in sorted order
// so the layout is stable across runs.
func columns(rows []map[string]interface{}) ([]string, map[string]kind) {
	var order []string
	kinds := make(map[string]kind)
	for _, row := range rows {
		for _, k := range sortedKeys(row) {
			prev, seen := kinds[k]
			if !seen {
				order = append(order, k)
			}
			kinds[k] = merge(prev, kindOf(row[k]))
		}
	}
	return order, kinds
}

// InferSchema returns the Arrow schema the given flattened rows encode to.
func InferSchema(rows []map[string]interface{}) *arrow.Schema {
	order, kinds := columns(rows)
	fields := make([]arrow.Field, len(order))
	for i, name := range order {
		fields[i] = arrow.Field{Name: name, Type: kinds[name].arrowType(), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}
