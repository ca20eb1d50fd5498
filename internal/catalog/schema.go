package catalog

import (
	"fmt"
	"strings"
)

// Type is a primitive column type tag
type Type string

const (
	TypeInt       Type = "int"
	TypeLong      Type = "long"
	TypeDouble    Type = "double"
	TypeBoolean   Type = "boolean"
	TypeString    Type = "string"
	TypeTimestamp Type = "timestamp"
)

// Field is a column of a table schema
type Field struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Type     Type   `json:"type"`
	Required bool   `json:"required"`
}

// Schema is the ordered column list of a table
type Schema struct {
	Type     string  `json:"type"`
	SchemaID int     `json:"schema-id"`
	Fields   []Field `json:"fields"`
}

// NewSchema returns a struct schema with the given fields.
func NewSchema(fields ...Field) Schema {
	return Schema{Type: "struct", Fields: fields}
}

// FieldByName returns the field with the given name.
func (s Schema) FieldByName(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Transform names of partition fields.
const TransformDay = "day"

// PartitionField maps a source column through a transform
type PartitionField struct {
	SourceID  int    `json:"source-id"`
	FieldID   int    `json:"field-id"`
	Name      string `json:"name"`
	Transform string `json:"transform"`
}

func (f PartitionField) String() string {
	return fmt.Sprintf("%d: %s: %s(%d)", f.FieldID, f.Name, f.Transform, f.SourceID)
}

// PartitionSpec lists the partition fields of a table
type PartitionSpec struct {
	SpecID int              `json:"spec-id"`
	Fields []PartitionField `json:"fields"`
}

// String renders the spec as "[\n  1000: ingestion_date: day(7)\n]".
func (p PartitionSpec) String() string {
	var b strings.Builder
	b.WriteString("[")
	if len(p.Fields) > 0 {
		parts := make([]string, len(p.Fields))
		for i, f := range p.Fields {
			parts[i] = f.String()
		}
		b.WriteString("\n  ")
		b.WriteString(strings.Join(parts, "\n  "))
		b.WriteString("\n")
	}
	b.WriteString("]")
	return b.String()
}
