package catalog

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Table is the metadata of a curated table
type Table struct {
	Identifier        Identifier        `json:"identifier"`
	UUID              string            `json:"table-uuid"`
	Location          string            `json:"location"`
	Schema            Schema            `json:"schema"`
	Spec              PartitionSpec     `json:"partition-spec"`
	Properties        map[string]string `json:"properties,omitempty"`
	CurrentSnapshotID int64             `json:"current-snapshot-id,omitempty"`
	Snapshots         []Snapshot        `json:"snapshots,omitempty"`
	Version           int64             `json:"version"`
	LastUpdated       time.Time         `json:"last-updated"`
}

// Snapshot is one committed set of data files
type Snapshot struct {
	SnapshotID int64      `json:"snapshot-id"`
	ParentID   int64      `json:"parent-snapshot-id,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Operation  string     `json:"operation"`
	Files      []DataFile `json:"data-files"`
}

// DataFile is a Parquet file belonging to a snapshot
type DataFile struct {
	Path        string `json:"file-path"`
	Partition   string `json:"partition"`
	RecordCount int64  `json:"record-count"`
	SizeBytes   int64  `json:"file-size-in-bytes"`
}

// Records returns the number of records committed across all snapshots.
func (t *Table) Records() int64 {
	var n int64
	for _, s := range t.Snapshots {
		for _, f := range s.Files {
			n += f.RecordCount
		}
	}
	return n
}

func newTable(id Identifier, schema Schema, spec PartitionSpec, location string, now time.Time) *Table {
	return &Table{
		Identifier:  id,
		UUID:        uuid.NewString(),
		Location:    location,
		Schema:      schema,
		Spec:        spec,
		Properties:  map[string]string{"write.format.default": "parquet"},
		Version:     1,
		LastUpdated: now,
	}
}

// appendSnapshot adds files as a new current snapshot and bumps the version.
func (t *Table) appendSnapshot(files []DataFile, now time.Time) {
	u := uuid.New()
	snap := Snapshot{
		SnapshotID: int64(binary.BigEndian.Uint64(u[:8]) >> 1),
		ParentID:   t.CurrentSnapshotID,
		Timestamp:  now,
		Operation:  "append",
		Files:      files,
	}
	t.Snapshots = append(t.Snapshots, snap)
	t.CurrentSnapshotID = snap.SnapshotID
	t.Version++
	t.LastUpdated = now
}

func encodeTable(t *Table) (string, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return "", errors.Wrapf(err, "encoding metadata of %s", t.Identifier)
	}
	return string(b), nil
}

func decodeTable(s string) (*Table, error) {
	var t Table
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return nil, errors.Wrap(err, "decoding table metadata")
	}
	return &t, nil
}

func namespaceKey(namespace []string) string {
	return "namespace#" + Identifier{Namespace: namespace}.NamespaceString()
}

func tableKey(id Identifier) string {
	return "table#" + id.String()
}
