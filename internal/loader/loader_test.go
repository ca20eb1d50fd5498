package loader

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/lakehouse-pipeline/internal/models"
	"github.com/cyderes/lakehouse-pipeline/internal/parquetio"
	"github.com/cyderes/lakehouse-pipeline/internal/storage"
)

var fixedNow = time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)

func TestRender(t *testing.T) {
	got := Render(DefaultLayout, FileName{
		TableName: "posts",
		LoadID:    "1709634600.000000",
		FileID:    "abc",
		Ext:       "parquet",
		Time:      fixedNow,
	})
	assert.Equal(t, "posts/year=2024/month=03/day=05/1709634600.000000.abc.parquet", got)
}

func TestPartitionPath(t *testing.T) {
	assert.Equal(t, "sources/api_jsonplaceholder/users/year=2024/month=03/day=05/",
		PartitionPath("sources/api_jsonplaceholder", "users", fixedNow))
}

func newTestPipeline(store storage.ObjectStore) *Pipeline {
	return New(store, Options{
		Name:    "workers_etl_pipeline",
		Dataset: "sources/api_jsonplaceholder/",
		Bucket:  "data-lake-raw",
		Now:     func() time.Time { return fixedNow },
	})
}

func TestPipeline_Run(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	p := newTestPipeline(store)

	records := []models.Record{
		{"id": json.Number("1"), "title": "a"},
		{"id": json.Number("2"), "title": "b"},
	}

	info, err := p.Run(ctx, Resource{Name: "posts", Disposition: models.WriteAppend, Records: records})
	require.NoError(t, err)

	assert.Equal(t, "workers_etl_pipeline", info.PipelineName)
	assert.Equal(t, "sources/api_jsonplaceholder", info.DatasetName)
	assert.Equal(t, "filesystem:s3://data-lake-raw/", info.Destination)
	require.Len(t, info.Loads, 1)
	assert.Equal(t, models.LoadStateLoaded, info.Loads[0].State)
	assert.Equal(t, 2, info.Records())

	objects, err := store.List(ctx, "data-lake-raw", "sources/api_jsonplaceholder/posts/year=2024/month=03/day=05/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.True(t, strings.HasSuffix(objects[0].Key, ".parquet"))
	assert.Contains(t, objects[0].Key, info.Loads[0].LoadID+".")

	data, err := store.Get(ctx, "data-lake-raw", objects[0].Key)
	require.NoError(t, err)
	rows, _, err := parquetio.Decode(ctx, data)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, info.Loads[0].LoadID, rows[0][models.ColumnLoadID])
	assert.NotEmpty(t, rows[0][models.ColumnRowID])
	assert.NotEqual(t, rows[0][models.ColumnRowID], rows[1][models.ColumnRowID])

	// the caller's records are not modified
	assert.NotContains(t, records[0], models.ColumnLoadID)
}

func TestPipeline_ReplaceDeletesPreviousFiles(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	p := newTestPipeline(store)

	res := Resource{Name: "users", Disposition: models.WriteReplace, Records: []models.Record{{"id": json.Number("1")}}}
	_, err := p.Run(ctx, res)
	require.NoError(t, err)
	_, err = p.Run(ctx, res)
	require.NoError(t, err)

	objects, err := store.List(ctx, "data-lake-raw", "sources/api_jsonplaceholder/users/")
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

func TestPipeline_AppendKeepsPreviousFiles(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	p := newTestPipeline(store)

	res := Resource{Name: "posts", Disposition: models.WriteAppend, Records: []models.Record{{"id": json.Number("1")}}}
	_, err := p.Run(ctx, res)
	require.NoError(t, err)
	_, err = p.Run(ctx, res)
	require.NoError(t, err)

	objects, err := store.List(ctx, "data-lake-raw", "sources/api_jsonplaceholder/posts/")
	require.NoError(t, err)
	assert.Len(t, objects, 2)
}

func TestPipeline_EmptyResource(t *testing.T) {
	store := storage.NewMemoryStorage()
	info, err := newTestPipeline(store).Run(context.Background(), Resource{Name: "posts"})
	require.NoError(t, err)
	require.Len(t, info.Loads, 1)
	assert.Equal(t, models.LoadStateEmpty, info.Loads[0].State)
	assert.Empty(t, info.Loads[0].Files)
}

// failingPutStore rejects every upload.
type failingPutStore struct {
	*storage.MemoryStorage
}

func (s failingPutStore) Put(ctx context.Context, bucket, key string, body io.Reader, contentType string, metadata map[string]string) error {
	return errors.New("upload failed")
}

func TestPipeline_ReplaceKeepsPreviousFilesOnFailedUpload(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()

	res := Resource{Name: "users", Disposition: models.WriteReplace, Records: []models.Record{{"id": json.Number("1")}}}
	_, err := newTestPipeline(store).Run(ctx, res)
	require.NoError(t, err)

	_, err = newTestPipeline(failingPutStore{store}).Run(ctx, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload failed")

	objects, err := store.List(ctx, "data-lake-raw", "sources/api_jsonplaceholder/users/")
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}

func TestPipeline_ReplaceWithEmptyResourceClearsTable(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	p := newTestPipeline(store)

	_, err := p.Run(ctx, Resource{Name: "users", Disposition: models.WriteReplace, Records: []models.Record{{"id": json.Number("1")}}})
	require.NoError(t, err)
	_, err = p.Run(ctx, Resource{Name: "users", Disposition: models.WriteReplace})
	require.NoError(t, err)

	objects, err := store.List(ctx, "data-lake-raw", "sources/api_jsonplaceholder/users/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestPipeline_RunAt(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	at := time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)

	info, err := newTestPipeline(store).RunAt(ctx, at, Resource{Name: "posts", Records: []models.Record{{"id": json.Number("1")}}})
	require.NoError(t, err)
	require.Len(t, info.Loads, 1)
	assert.Equal(t, at, info.Loads[0].LoadedAt)

	objects, err := store.List(ctx, "data-lake-raw", PartitionPath("sources/api_jsonplaceholder", "posts", at))
	require.NoError(t, err)
	assert.Len(t, objects, 1)
}
