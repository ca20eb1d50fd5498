package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// RESTOptions configures a REST catalog client
type RESTOptions struct {
	Name       string
	URI        string
	Token      string
	Warehouse  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// RESTCatalog talks to a catalog implementing the Iceberg REST protocol,
// such as the R2 Data Catalog.
type RESTCatalog struct {
	name      string
	uri       string
	token     string
	warehouse string
	prefix    string
	client    *http.Client
}

// restError is the error body returned by the catalog
type restError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type restConfig struct {
	Defaults  map[string]string `json:"defaults"`
	Overrides map[string]string `json:"overrides"`
}

type restCreateTable struct {
	Name          string            `json:"name"`
	Location      string            `json:"location,omitempty"`
	Schema        Schema            `json:"schema"`
	PartitionSpec PartitionSpec     `json:"partition-spec"`
	StageCreate   bool              `json:"stage-create"`
	Properties    map[string]string `json:"properties,omitempty"`
}

type restTableMetadata struct {
	TableUUID         string            `json:"table-uuid"`
	Location          string            `json:"location"`
	CurrentSchemaID   int               `json:"current-schema-id"`
	Schemas           []Schema          `json:"schemas"`
	DefaultSpecID     int               `json:"default-spec-id"`
	PartitionSpecs    []PartitionSpec   `json:"partition-specs"`
	Properties        map[string]string `json:"properties"`
	CurrentSnapshotID *int64            `json:"current-snapshot-id"`
	LastUpdatedMs     int64             `json:"last-updated-ms"`
}

type restLoadTable struct {
	MetadataLocation string            `json:"metadata-location"`
	Metadata         restTableMetadata `json:"metadata"`
}

// NewRESTCatalog connects to the catalog and resolves its path prefix from
// GET /v1/config.
func NewRESTCatalog(ctx context.Context, opts RESTOptions) (*RESTCatalog, error) {
	if opts.URI == "" {
		return nil, errors.New("catalog uri is not configured")
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	c := &RESTCatalog{
		name:      opts.Name,
		uri:       strings.TrimRight(opts.URI, "/"),
		token:     opts.Token,
		warehouse: opts.Warehouse,
		client:    client,
	}

	q := url.Values{}
	if c.warehouse != "" {
		q.Set("warehouse", c.warehouse)
	}
	var cfg restConfig
	if err := c.do(ctx, http.MethodGet, c.uri+"/v1/config?"+q.Encode(), nil, &cfg); err != nil {
		return nil, errors.Wrap(err, "fetching catalog config")
	}
	c.prefix = cfg.Overrides["prefix"]
	if c.prefix == "" {
		c.prefix = cfg.Defaults["prefix"]
	}
	return c, nil
}

func (c *RESTCatalog) Name() string { return c.name }

func (c *RESTCatalog) URI() string { return c.uri }

func (c *RESTCatalog) CreateNamespace(ctx context.Context, namespace []string) error {
	body := map[string]interface{}{
		"namespace":  namespace,
		"properties": map[string]string{},
	}
	err := c.do(ctx, http.MethodPost, c.path("namespaces"), body, nil)
	if statusOf(err) == http.StatusConflict {
		return errors.Wrap(ErrNamespaceExists, strings.Join(namespace, "."))
	}
	return err
}

func (c *RESTCatalog) LoadTable(ctx context.Context, id Identifier) (*Table, error) {
	var out restLoadTable
	err := c.do(ctx, http.MethodGet, c.tablePath(id), nil, &out)
	if statusOf(err) == http.StatusNotFound {
		return nil, errors.Wrap(ErrNoSuchTable, id.String())
	}
	if err != nil {
		return nil, err
	}
	return out.table(id), nil
}

func (c *RESTCatalog) CreateTable(ctx context.Context, id Identifier, schema Schema, spec PartitionSpec, location string) (*Table, error) {
	body := restCreateTable{
		Name:          id.Name,
		Location:      location,
		Schema:        schema,
		PartitionSpec: spec,
		Properties:    map[string]string{"write.format.default": "parquet"},
	}
	var out restLoadTable
	err := c.do(ctx, http.MethodPost, c.path("namespaces", encodeNamespace(id.Namespace), "tables"), body, &out)
	if statusOf(err) == http.StatusConflict {
		return nil, errors.Wrap(ErrTableExists, id.String())
	}
	if err != nil {
		return nil, err
	}
	return out.table(id), nil
}

func (c *RESTCatalog) Close() error { return nil }

func (r restLoadTable) table(id Identifier) *Table {
	m := r.Metadata
	t := &Table{
		Identifier: id,
		UUID:       m.TableUUID,
		Location:   m.Location,
		Properties: m.Properties,
	}
	for _, s := range m.Schemas {
		if s.SchemaID == m.CurrentSchemaID {
			t.Schema = s
		}
	}
	for _, p := range m.PartitionSpecs {
		if p.SpecID == m.DefaultSpecID {
			t.Spec = p
		}
	}
	if m.CurrentSnapshotID != nil {
		t.CurrentSnapshotID = *m.CurrentSnapshotID
	}
	if m.LastUpdatedMs > 0 {
		t.LastUpdated = time.UnixMilli(m.LastUpdatedMs).UTC()
	}
	return t
}

func (c *RESTCatalog) tablePath(id Identifier) string {
	return c.path("namespaces", encodeNamespace(id.Namespace), "tables", url.PathEscape(id.Name))
}

func (c *RESTCatalog) path(parts ...string) string {
	segs := []string{c.uri, "v1"}
	if c.prefix != "" {
		segs = append(segs, c.prefix)
	}
	return strings.Join(append(segs, parts...), "/")
}

// encodeNamespace joins namespace levels with the unit separator.
func encodeNamespace(namespace []string) string {
	escaped := make([]string, len(namespace))
	for i, level := range namespace {
		escaped[i] = url.PathEscape(level)
	}
	return strings.Join(escaped, "%1F")
}

// httpStatusError is returned for non-2xx responses
type httpStatusError struct {
	Status  int
	Type    string
	Message string
}

func (e *httpStatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("catalog returned status %d: %s: %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("catalog returned status %d: %s", e.Status, e.Message)
}

func (e *httpStatusError) ErrorType() string {
	if e.Type != "" {
		return e.Type
	}
	return "CatalogError"
}

func statusOf(err error) int {
	var se *httpStatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

func (c *RESTCatalog) do(ctx context.Context, method, u string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, u)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &httpStatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var re restError
		if json.Unmarshal(data, &re) == nil && re.Error.Message != "" {
			se.Type = re.Error.Type
			se.Message = re.Error.Message
		}
		return errors.WithStack(se)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}
