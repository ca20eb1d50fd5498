package models

import "time"

// Metadata columns attached to every record before it is persisted.
const (
	ColumnIngestionTimestamp = "ingestion_timestamp"
	ColumnLoadID             = "_load_id"
	ColumnRowID              = "_row_id"
)

// Record is one API entity as decoded from JSON
type Record map[string]interface{}

// WriteDisposition controls what happens to existing files of a table on load
type WriteDisposition string

const (
	WriteReplace WriteDisposition = "replace"
	WriteAppend  WriteDisposition = "append"
)

// Load states reported per load package
const (
	LoadStateLoaded = "loaded"
	LoadStateEmpty  = "empty"
)

// Load describes one load package written by a pipeline run
type Load struct {
	LoadID    string    `json:"load_id"`
	TableName string    `json:"table_name"`
	State     string    `json:"state"`
	Files     []string  `json:"files"`
	Records   int       `json:"records"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// LoadInfo is the result of a pipeline run
type LoadInfo struct {
	PipelineName string `json:"pipeline_name"`
	DatasetName  string `json:"dataset_name"`
	Destination  string `json:"destination"`
	Loads        []Load `json:"loads"`
}

// Records returns the number of records written across all loads.
func (li *LoadInfo) Records() int {
	n := 0
	for _, l := range li.Loads {
		n += l.Records
	}
	return n
}

// PackageInfo mirrors the per-load state in API responses
type PackageInfo struct {
	State string `json:"state"`
}

// LoadSummary is a load as reported by the ingestion endpoint
type LoadSummary struct {
	LoadID      string      `json:"load_id"`
	PackageInfo PackageInfo `json:"package_info"`
}

// IngestionResult is the success body of the raw-layer ingestion endpoint
type IngestionResult struct {
	Success       bool          `json:"success"`
	PipelineName  string        `json:"pipeline_name"`
	DatasetName   string        `json:"dataset_name"`
	Destination   string        `json:"destination"`
	Bucket        string        `json:"bucket"`
	PathStructure string        `json:"path_structure"`
	Loads         []LoadSummary `json:"loads"`
	Records       int           `json:"records"`
	Message       string        `json:"message"`
	Timestamp     string        `json:"timestamp"`
}

// ConversionRequest is the body accepted by the curated-layer endpoint
type ConversionRequest struct {
	SourceName string `json:"source_name"`
	TableName  string `json:"table_name"`
	SourcePath string `json:"source_path"`
	Append     bool   `json:"append"`
}

// ConversionResult is the success body of the curated-layer endpoint
type ConversionResult struct {
	Success         bool   `json:"success"`
	Operation       string `json:"operation"`
	TableIdentifier string `json:"table_identifier"`
	Location        string `json:"location"`
	SchemaFields    int    `json:"schema_fields"`
	PartitionSpec   string `json:"partition_spec"`
	SourcePath      string `json:"source_path"`
	CatalogURI      string `json:"catalog_uri"`
	AppendedFiles   int    `json:"appended_files"`
	AppendedRecords int    `json:"appended_records"`
	TableRecords    int64  `json:"table_records"`
	Message         string `json:"message"`
	Timestamp       string `json:"timestamp"`
}

// RawLayer describes where the combined pipeline wrote Parquet files
type RawLayer struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	Format string `json:"format"`
}

// CuratedLayer describes the table the combined pipeline touched
type CuratedLayer struct {
	Bucket   string `json:"bucket"`
	Table    string `json:"table"`
	Format   string `json:"format"`
	Location string `json:"location"`
}

// PipelineResult is the success body of the combined pipeline endpoint
type PipelineResult struct {
	Success      bool         `json:"success"`
	PipelineName string       `json:"pipeline_name"`
	RawLayer     RawLayer     `json:"raw_layer"`
	CuratedLayer CuratedLayer `json:"curated_layer"`
	Message      string       `json:"message"`
	Timestamp    string       `json:"timestamp"`
}

// ErrorResponse is the failure body shared by every endpoint
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// TableResult is the outcome of converting one table during a sweep
type TableResult struct {
	SourceName string `json:"source_name"`
	TableName  string `json:"table_name"`
	Success    bool   `json:"success"`
	Operation  string `json:"operation,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Execution states of a sweep
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// Execution tracks one run of the scheduled conversion sweep
type Execution struct {
	ExecutionID string        `json:"execution_id"`
	Trigger     string        `json:"trigger"`
	StartedAt   time.Time     `json:"started_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty"`
	TablesCount int           `json:"tables_count"`
	Status      string        `json:"status"`
	Error       string        `json:"error,omitempty"`
	Results     []TableResult `json:"results"`
}

// Succeeded returns the number of successful table results.
func (e *Execution) Succeeded() int {
	n := 0
	for _, r := range e.Results {
		if r.Success {
			n++
		}
	}
	return n
}
