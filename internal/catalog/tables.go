package catalog

import (
	"github.com/pkg/errors"

	"github.com/cyderes/lakehouse-pipeline/internal/models"
)

const (
	// PartitionFieldID is the field id of the first partition field.
	PartitionFieldID = 1000
	// PartitionName is the name of the day partition of curated tables.
	PartitionName = "ingestion_date"
)

// SchemaForTable returns the curated schema of a raw table. Tables other
// than posts and users get a generic schema that keeps each row as JSON in
// the data column.
func SchemaForTable(table string) Schema {
	switch table {
	case "posts":
		return NewSchema(
			Field{ID: 1, Name: "userId", Type: TypeInt, Required: true},
			Field{ID: 2, Name: "id", Type: TypeInt, Required: true},
			Field{ID: 3, Name: "title", Type: TypeString, Required: true},
			Field{ID: 4, Name: "body", Type: TypeString, Required: true},
			Field{ID: 5, Name: models.ColumnLoadID, Type: TypeString},
			Field{ID: 6, Name: models.ColumnRowID, Type: TypeString},
			Field{ID: 7, Name: models.ColumnIngestionTimestamp, Type: TypeTimestamp},
		)
	case "users":
		return NewSchema(
			Field{ID: 1, Name: "id", Type: TypeInt, Required: true},
			Field{ID: 2, Name: "name", Type: TypeString, Required: true},
			Field{ID: 3, Name: "username", Type: TypeString, Required: true},
			Field{ID: 4, Name: "email", Type: TypeString, Required: true},
			Field{ID: 5, Name: "phone", Type: TypeString},
			Field{ID: 6, Name: "website", Type: TypeString},
			Field{ID: 7, Name: models.ColumnLoadID, Type: TypeString},
			Field{ID: 8, Name: models.ColumnRowID, Type: TypeString},
			Field{ID: 9, Name: models.ColumnIngestionTimestamp, Type: TypeTimestamp},
		)
	default:
		return NewSchema(
			Field{ID: 1, Name: "id", Type: TypeString, Required: true},
			Field{ID: 2, Name: "data", Type: TypeString},
			Field{ID: 3, Name: models.ColumnLoadID, Type: TypeString},
			Field{ID: 4, Name: models.ColumnIngestionTimestamp, Type: TypeTimestamp},
		)
	}
}

// DayPartitionSpec partitions by the day of the ingestion timestamp column
// of schema.
func DayPartitionSpec(schema Schema) (PartitionSpec, error) {
	f, ok := schema.FieldByName(models.ColumnIngestionTimestamp)
	if !ok {
		return PartitionSpec{}, errors.Errorf("schema has no %s field", models.ColumnIngestionTimestamp)
	}
	return PartitionSpec{
		Fields: []PartitionField{{
			SourceID:  f.ID,
			FieldID:   PartitionFieldID,
			Name:      PartitionName,
			Transform: TransformDay,
		}},
	}, nil
}
