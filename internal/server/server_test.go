package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/lakehouse-pipeline/internal/catalog"
	"github.com/cyderes/lakehouse-pipeline/internal/config"
	"github.com/cyderes/lakehouse-pipeline/internal/conversion"
	"github.com/cyderes/lakehouse-pipeline/internal/models"
	"github.com/cyderes/lakehouse-pipeline/internal/scheduler"
	"github.com/cyderes/lakehouse-pipeline/internal/storage"
)

type testEnv struct {
	cfg    *config.Config
	store  *storage.MemoryStorage
	cat    *catalog.MemoryCatalog
	server *Server
}

func newTestEnv(t *testing.T, apiURL string, opts ...Option) *testEnv {
	t.Helper()
	cfg := &config.Config{
		ObjectStore: config.ObjectStoreConfig{
			Type:          "memory",
			Bucket:        "data-lake-raw",
			RawBucket:     "data-lake-raw",
			CuratedBucket: "data-lake-curated",
		},
		Catalog: config.CatalogConfig{Type: "memory", Name: "test"},
		Ingestion: config.IngestionConfig{
			APIBaseURL:   apiURL,
			PipelineName: "workers_etl_pipeline",
			DatasetName:  "sources/api_jsonplaceholder",
			SourceName:   "api_jsonplaceholder",
			Timeout:      5 * time.Second,
		},
	}
	env := &testEnv{cfg: cfg, store: storage.NewMemoryStorage(), cat: catalog.NewMemoryCatalog("test")}

	newCatalog := func(ctx context.Context, _ config.CatalogConfig, _ config.ObjectStoreConfig) (catalog.Catalog, error) {
		return env.cat, nil
	}
	newStore := func(config.ObjectStoreConfig) (storage.ObjectStore, error) {
		return env.store, nil
	}
	converter := conversion.NewService(cfg.ObjectStore, cfg.Catalog, newCatalog, newStore, nil)
	env.server = NewServer(cfg, converter, nil, append([]Option{WithStoreFactory(newStore)}, opts...)...)
	return env
}

func (e *testEnv) do(method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/posts":
			fmt.Fprint(w, `[{"userId":1,"id":1,"title":"a","body":"b"},{"userId":1,"id":2,"title":"c","body":"d"}]`)
		case "/users":
			fmt.Fprint(w, `[{"id":1,"name":"Leanne","username":"Bret","email":"l@example.com"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func assertCORS(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestOptions_EmptyConfig(t *testing.T) {
	s := NewServer(&config.Config{}, conversion.NewService(config.ObjectStoreConfig{}, config.CatalogConfig{}, nil, nil, nil), nil)

	for _, path := range []string{"/ingest", "/convert", "/pipeline", "/trigger"} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Body.String(), path)
		assertCORS(t, rec)
	}
}

func TestIngest_UnknownSource(t *testing.T) {
	s := NewServer(&config.Config{}, conversion.NewService(config.ObjectStoreConfig{}, config.CatalogConfig{}, nil, nil, nil), nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingest?source=comments", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assertCORS(t, rec)
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "ValueError", resp.ErrorType)
	assert.Equal(t, "unknown source type: comments", resp.Error)
	assert.Equal(t, "Pipeline execution failed", resp.Message)
}

func TestIngest_MissingCredentials(t *testing.T) {
	cfg := &config.Config{ObjectStore: config.ObjectStoreConfig{Type: "s3"}}
	s := NewServer(cfg, conversion.NewService(cfg.ObjectStore, cfg.Catalog, nil, nil, nil), nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingest", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ConfigError", resp.ErrorType)
}

func TestIngest_UpstreamFailure(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(failing.Close)

	refused := httptest.NewServer(http.NotFoundHandler())
	refusedURL := refused.URL
	refused.Close()

	tests := []struct {
		name      string
		apiURL    string
		errorType string
		contains  string
	}{
		{"bad gateway", failing.URL, "HTTPError", "fetching posts: API returned status 502"},
		{"connection refused", refusedURL, "url.Error", "fetching posts: failed to make request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.apiURL)

			rec := env.do(http.MethodGet, "/ingest?source=posts", nil)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assertCORS(t, rec)

			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.errorType, resp.ErrorType)
			assert.Contains(t, resp.Error, tt.contains)
			assert.Equal(t, "Pipeline execution failed", resp.Message)

			objects, err := env.store.List(context.Background(), "data-lake-raw", "")
			require.NoError(t, err)
			assert.Empty(t, objects)
		})
	}
}

func TestIngest_Posts(t *testing.T) {
	env := newTestEnv(t, upstream(t).URL)

	rec := env.do(http.MethodGet, "/ingest?source=posts", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assertCORS(t, rec)

	var resp models.IngestionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "workers_etl_pipeline", resp.PipelineName)
	assert.Equal(t, 2, resp.Records)
	require.Len(t, resp.Loads, 1)
	assert.Equal(t, models.LoadStateLoaded, resp.Loads[0].PackageInfo.State)

	now := time.Now().UTC()
	want := fmt.Sprintf("s3://data-lake-raw/sources/api_jsonplaceholder/posts/year=%04d/month=%02d/day=%02d/",
		now.Year(), int(now.Month()), now.Day())
	assert.Equal(t, want, resp.PathStructure)

	objs, err := env.store.List(context.Background(), "data-lake-raw", "sources/api_jsonplaceholder/posts/")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.True(t, strings.HasSuffix(objs[0].Key, ".parquet"))
}

func TestConvert_Twice(t *testing.T) {
	env := newTestEnv(t, "")
	body := []byte(`{"source_name":"api_jsonplaceholder","table_name":"users"}`)

	rec := env.do(http.MethodPost, "/convert", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first models.ConversionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, conversion.OperationCreatedNew, first.Operation)
	assert.Equal(t, "analytics.api_jsonplaceholder.users", first.TableIdentifier)
	assert.Equal(t, "s3://data-lake-curated/analytics/api_jsonplaceholder/users", first.Location)
	assert.Equal(t, 9, first.SchemaFields)

	rec = env.do(http.MethodPost, "/convert", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second models.ConversionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.Equal(t, conversion.OperationLoadedExisting, second.Operation)
}

func TestConvert_Defaults(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodGet, "/convert", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp models.ConversionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "analytics.api_jsonplaceholder.posts", resp.TableIdentifier)
	assert.Equal(t, "sources/api_jsonplaceholder/posts/", resp.SourcePath)
}

func TestConvert_BadBody(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodPost, "/convert", []byte(`{"table_name":`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ValueError", resp.ErrorType)
	assert.Equal(t, "Iceberg conversion failed", resp.Message)
}

func TestPipeline(t *testing.T) {
	env := newTestEnv(t, upstream(t).URL)

	rec := env.do(http.MethodPost, "/pipeline?source=users", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.PipelineResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "dlt_iceberg_pipeline", resp.PipelineName)
	assert.Equal(t, "parquet", resp.RawLayer.Format)
	assert.True(t, strings.HasPrefix(resp.RawLayer.Path, "s3://data-lake-raw/sources/api_jsonplaceholder/users/year="))
	assert.Equal(t, "analytics.api_jsonplaceholder.users", resp.CuratedLayer.Table)
	assert.Equal(t, "iceberg", resp.CuratedLayer.Format)
	assert.Equal(t, "s3://data-lake-curated/analytics/api_jsonplaceholder/users", resp.CuratedLayer.Location)

	_, err := env.cat.LoadTable(context.Background(), catalog.NewIdentifier("api_jsonplaceholder", "users"))
	assert.NoError(t, err)

	rec = env.do(http.MethodGet, "/pipeline?source=custom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTriggerAndStatus(t *testing.T) {
	store, err := scheduler.OpenExecutionStore("", time.Hour)
	require.NoError(t, err)
	defer store.Close()

	tables := []config.TableRef{{SourceName: "api_jsonplaceholder", TableName: "posts"}}
	convert := func(ctx context.Context, req models.ConversionRequest) (*models.ConversionResult, error) {
		return &models.ConversionResult{Success: true, Operation: conversion.OperationCreatedNew}, nil
	}
	sweeper := scheduler.NewSweeper(tables, convert, store, nil, nil)
	env := newTestEnv(t, "", WithSweeper(sweeper))

	rec := env.do(http.MethodPost, "/trigger", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var exec models.Execution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exec))
	assert.Equal(t, models.ExecutionCompleted, exec.Status)
	assert.Equal(t, scheduler.TriggerManual, exec.Trigger)

	rec = env.do(http.MethodGet, "/status/"+exec.ExecutionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Execution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, exec.ExecutionID, got.ExecutionID)
	assert.Len(t, got.Results, 1)

	rec = env.do(http.MethodGet, "/status/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrigger_NotConfigured(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodPost, "/trigger", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	rec = env.do(http.MethodGet, "/status/abc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])

	rec = env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lakehouse_http_request_duration_seconds")

	rec = env.do(http.MethodDelete, "/ingest", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
