package quality

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/lakehouse-pipeline/internal/config"
	"github.com/cyderes/lakehouse-pipeline/internal/parquetio"
)

const testSuites = `
suites:
  - name: posts
    asset: '%s'
    expectations:
      - expectation_type: expect_table_row_count_to_be_between
        min_value: 1
        max_value: 10
      - expectation_type: expect_column_to_exist
        column: title
      - expectation_type: expect_column_to_exist
        column: author
      - expectation_type: expect_column_values_to_not_be_null
        column: title
      - expectation_type: expect_column_values_to_be_unique
        column: id
      - expectation_type: expect_column_values_to_be_unique
        column: userId
      - expectation_type: expect_column_values_to_be_between
        column: userId
        min_value: 1
        max_value: 10
      - expectation_type: expect_column_values_to_be_in_set
        column: status
        value_set: [draft, published]
`

func writePosts(t *testing.T) string {
	t.Helper()
	rows := []map[string]interface{}{
		{"id": json.Number("1"), "userId": json.Number("1"), "title": "a", "status": "draft"},
		{"id": json.Number("2"), "userId": json.Number("1"), "title": "b", "status": "published"},
		{"id": json.Number("3"), "userId": json.Number("2"), "title": "c", "status": "archived"},
	}
	var buf bytes.Buffer
	_, err := parquetio.Encode(&buf, rows)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "posts.parquet")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestParseSuites(t *testing.T) {
	suites, err := ParseSuites([]byte(testSuites))
	require.NoError(t, err)
	require.Len(t, suites, 1)
	assert.Equal(t, "posts", suites[0].Name)
	require.Len(t, suites[0].Expectations, 8)
	assert.Equal(t, 10.0, *suites[0].Expectations[0].Max)
	assert.Equal(t, []string{"draft", "published"}, suites[0].Expectations[7].Values)
}

func TestParseSuites_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":        `suites: []`,
		"no asset":     "suites:\n  - name: x\n",
		"unknown type": "suites:\n  - name: x\n    asset: a\n    expectations:\n      - expectation_type: expect_magic\n",
		"no column":    "suites:\n  - name: x\n    asset: a\n    expectations:\n      - expectation_type: expect_column_to_exist\n",
		"no bounds":    "suites:\n  - name: x\n    asset: a\n    expectations:\n      - expectation_type: expect_table_row_count_to_be_between\n",
		"no set":       "suites:\n  - name: x\n    asset: a\n    expectations:\n      - expectation_type: expect_column_values_to_be_in_set\n        column: c\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSuites([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestRunner_Source(t *testing.T) {
	r := &Runner{bucket: "data-lake-raw"}
	assert.Equal(t, "s3://data-lake-raw/sources/posts/**/*.parquet", r.Source(Suite{Asset: "sources/posts/**/*.parquet"}))
	assert.Equal(t, "s3://other/x.parquet", r.Source(Suite{Bucket: "other", Asset: "x.parquet"}))
	assert.Equal(t, "/tmp/x.parquet", r.Source(Suite{Asset: "/tmp/x.parquet"}))
	assert.Equal(t, "s3://b/y.parquet", r.Source(Suite{Asset: "s3://b/y.parquet"}))
}

func TestRunner_Run(t *testing.T) {
	suites, err := ParseSuites([]byte(fmt.Sprintf(testSuites, writePosts(t))))
	require.NoError(t, err)

	r, err := Open(context.Background(), config.ObjectStoreConfig{}, nil)
	require.NoError(t, err)
	defer r.Close()

	results := r.Run(context.Background(), suites)
	require.Len(t, results, 8)
	for _, res := range results {
		assert.NoError(t, res.Err, res.Expectation)
	}

	success := make([]bool, len(results))
	for i, res := range results {
		success[i] = res.Success
	}
	assert.Equal(t, []bool{true, true, false, true, true, false, true, false}, success)
	assert.Equal(t, "3", results[0].Observed)
	assert.Equal(t, "1 unexpected", results[7].Observed)
	assert.False(t, Passed(results))

	var buf bytes.Buffer
	WriteReport(&buf, results)
	assert.Contains(t, buf.String(), "expect_column_values_to_be_in_set")
	assert.Contains(t, buf.String(), "5 of 8 expectations passed")
}

func TestRunner_MissingColumnErrors(t *testing.T) {
	path := writePosts(t)
	r, err := Open(context.Background(), config.ObjectStoreConfig{}, nil)
	require.NoError(t, err)
	defer r.Close()

	results := r.Run(context.Background(), []Suite{{
		Name:         "posts",
		Asset:        path,
		Expectations: []Expectation{{Type: ExpectNotNull, Column: "nope"}},
	}})
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.False(t, Passed(results))
}
