package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/lakehouse-pipeline/internal/apperr"
	"github.com/cyderes/lakehouse-pipeline/internal/config"
	"github.com/cyderes/lakehouse-pipeline/internal/loader"
	"github.com/cyderes/lakehouse-pipeline/internal/models"
	"github.com/cyderes/lakehouse-pipeline/internal/storage"
)

func TestResolve(t *testing.T) {
	cfg := config.IngestionConfig{APIBaseURL: "https://jsonplaceholder.typicode.com"}

	src, err := Resolve(cfg, "posts", "")
	require.NoError(t, err)
	assert.Equal(t, "https://jsonplaceholder.typicode.com/posts", src.URL)
	assert.Equal(t, "posts", src.Table)
	assert.Equal(t, models.WriteReplace, src.Disposition)

	src, err = Resolve(cfg, "users", "")
	require.NoError(t, err)
	assert.Equal(t, "https://jsonplaceholder.typicode.com/users", src.URL)

	_, err = Resolve(cfg, "comments", "")
	require.Error(t, err)
	assert.Equal(t, "unknown source type: comments", err.Error())
	assert.Equal(t, "ValueError", apperr.TypeName(err))

	// custom is unknown without an API key
	_, err = Resolve(cfg, "custom", "https://example.com/data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source type: custom")

	cfg.APIKey = "secret"
	_, err = Resolve(cfg, "custom", "")
	require.Error(t, err)
	assert.Equal(t, "ValueError", apperr.TypeName(err))

	src, err = Resolve(cfg, "custom", "https://example.com/data")
	require.NoError(t, err)
	assert.Equal(t, CustomTable, src.Table)
	assert.Equal(t, "secret", src.APIKey)
	assert.Equal(t, models.WriteAppend, src.Disposition)
}

func TestService_fetchOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"userId":1,"id":1,"title":"Test Post 1"},{"userId":1,"id":2,"title":"Test Post 2"}]`))
	}))
	defer server.Close()

	service := NewService(config.IngestionConfig{Timeout: 30 * time.Second}, nil)

	records, err := service.fetchOnce(context.Background(), Source{Type: "posts", URL: server.URL})

	assert.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, json.Number("2"), records[1]["id"])
	assert.Equal(t, "Test Post 1", records[0]["title"])
}

func TestService_fetchOnce_SingleObjectWithBearer(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"id":7,"nested":{"a":true}}`))
	}))
	defer server.Close()

	service := NewService(config.IngestionConfig{Timeout: 30 * time.Second}, nil)

	records, err := service.fetchOnce(context.Background(), Source{Type: SourceCustom, URL: server.URL, APIKey: "k"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Bearer k", auth)
	assert.Equal(t, json.Number("7"), records[0]["id"])
}

func TestService_fetchOnce_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	service := NewService(config.IngestionConfig{Timeout: 30 * time.Second}, nil)

	records, err := service.fetchOnce(context.Background(), Source{URL: server.URL})

	assert.Error(t, err)
	assert.Nil(t, records)
	assert.Contains(t, err.Error(), "API returned status 500")
}

func TestService_fetchOnce_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	service := NewService(config.IngestionConfig{Timeout: 30 * time.Second}, nil)

	records, err := service.fetchOnce(context.Background(), Source{URL: server.URL})

	assert.Error(t, err)
	assert.Nil(t, records)
	assert.Contains(t, err.Error(), "failed to unmarshal response")
}

func TestService_fetchOnce_ScalarBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1,2]`))
	}))
	defer server.Close()

	service := NewService(config.IngestionConfig{Timeout: 30 * time.Second}, nil)

	_, err := service.fetchOnce(context.Background(), Source{URL: server.URL})
	assert.Error(t, err)
}

func TestService_transformRecords(t *testing.T) {
	service := NewService(config.IngestionConfig{}, nil)
	now := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	records := service.transformRecords([]models.Record{{"id": json.Number("1")}, {"id": json.Number("2")}}, now)

	assert.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, now, rec[models.ColumnIngestionTimestamp])
	}
}

func TestService_Ingest(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users", r.URL.Path)
		w.Write([]byte(`[{"id":1,"name":"Leanne Graham","address":{"city":"Gwenborough"}}]`))
	}))
	defer api.Close()

	cfg := config.IngestionConfig{APIBaseURL: api.URL, Timeout: 30 * time.Second}
	service := NewService(cfg, nil)
	now := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	store := storage.NewMemoryStorage()
	p := loader.New(store, loader.Options{
		Name:    "workers_etl_pipeline",
		Dataset: "sources/api_jsonplaceholder",
		Bucket:  "data-lake-raw",
		Now:     service.now,
	})

	src, err := Resolve(cfg, "users", "")
	require.NoError(t, err)

	result, err := service.Ingest(context.Background(), p, "data-lake-raw", src)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "workers_etl_pipeline", result.PipelineName)
	assert.Equal(t, "sources/api_jsonplaceholder", result.DatasetName)
	assert.Equal(t, "s3://data-lake-raw/sources/api_jsonplaceholder/users/year=2024/month=03/day=05/", result.PathStructure)
	assert.Equal(t, 1, result.Records)
	require.Len(t, result.Loads, 1)
	assert.Equal(t, models.LoadStateLoaded, result.Loads[0].PackageInfo.State)

	objects, err := store.List(context.Background(), "data-lake-raw", "sources/api_jsonplaceholder/users/year=2024/month=03/day=05/")
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

func TestService_Ingest_PathMatchesWrittenPartition(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"userId":1,"id":1,"title":"a","body":"b"}]`))
	}))
	defer api.Close()

	cfg := config.IngestionConfig{APIBaseURL: api.URL, Timeout: 30 * time.Second}
	service := NewService(cfg, nil)
	service.now = func() time.Time { return time.Date(2024, 3, 5, 23, 59, 59, 999000000, time.UTC) }

	store := storage.NewMemoryStorage()
	p := loader.New(store, loader.Options{
		Dataset: "sources/api_jsonplaceholder",
		Bucket:  "data-lake-raw",
		Now:     func() time.Time { return time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC) },
	})

	src, err := Resolve(cfg, "posts", "")
	require.NoError(t, err)
	result, err := service.Ingest(context.Background(), p, "data-lake-raw", src)
	require.NoError(t, err)

	assert.Equal(t, "s3://data-lake-raw/sources/api_jsonplaceholder/posts/year=2024/month=03/day=05/", result.PathStructure)
	objects, err := store.List(context.Background(), "data-lake-raw", "sources/api_jsonplaceholder/posts/year=2024/month=03/day=05/")
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

func TestService_Ingest_FetchError(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer api.Close()

	service := NewService(config.IngestionConfig{Timeout: time.Second}, nil)
	store := storage.NewMemoryStorage()
	p := loader.New(store, loader.Options{Dataset: "sources/x", Bucket: "raw"})

	_, err := service.Ingest(context.Background(), p, "raw", Source{Type: "posts", Table: "posts", URL: api.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("API returned status %d", http.StatusBadGateway))
	assert.Equal(t, "HTTPError", apperr.TypeName(err))

	objects, err := store.List(context.Background(), "raw", "")
	require.NoError(t, err)
	assert.Empty(t, objects)
}
