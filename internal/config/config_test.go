package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/lakehouse-pipeline/internal/apperr"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.ObjectStore.Type)
	assert.Equal(t, "auto", cfg.ObjectStore.Region)
	assert.Equal(t, "data-lake-curated", cfg.ObjectStore.CuratedBucket)
	assert.Equal(t, "rest", cfg.Catalog.Type)
	assert.Equal(t, "https://jsonplaceholder.typicode.com", cfg.Ingestion.APIBaseURL)
	assert.Equal(t, "workers_etl_pipeline", cfg.Ingestion.PipelineName)
	assert.Equal(t, "sources/api_jsonplaceholder", cfg.Ingestion.DatasetName)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*24*time.Hour, cfg.Scheduler.ExecutionTTL)
	assert.Equal(t, []TableRef{
		{SourceName: "api_jsonplaceholder", TableName: "posts"},
		{SourceName: "api_jsonplaceholder", TableName: "users"},
	}, cfg.Scheduler.Tables)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("R2_ACCOUNT_ID", "acct")
	t.Setenv("R2_ACCESS_KEY_ID", "key")
	t.Setenv("R2_SECRET_ACCESS_KEY", "secret")
	t.Setenv("CLOUDFLARE_API_TOKEN", "token")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("API_TIMEOUT", "5s")
	t.Setenv("GITHUB_REPOS", "alpha, beta,,gamma")
	t.Setenv("SWEEP_TABLES", "github/issues")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://acct.r2.cloudflarestorage.com", cfg.ObjectStore.EndpointURL())
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Ingestion.Timeout)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, cfg.GitHub.Repos)
	assert.Equal(t, []TableRef{{SourceName: "github", TableName: "issues"}}, cfg.Scheduler.Tables)
	assert.NoError(t, cfg.ObjectStore.Validate())
	assert.NoError(t, cfg.Catalog.Validate())
	assert.Equal(t,
		"https://api.cloudflare.com/client/v4/accounts/acct/r2/buckets/data-lake-curated/catalog",
		cfg.Catalog.ResolvedURI(cfg.ObjectStore.AccountID, cfg.ObjectStore.CuratedBucket))
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lakehouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("catalog_type: memory\nserver_port: 7070\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Catalog.Type)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoad_InvalidTables(t *testing.T) {
	t.Setenv("SWEEP_TABLES", "posts")

	_, err := Load("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table reference")
}

func TestObjectStoreConfig_Validate(t *testing.T) {
	cfg := ObjectStoreConfig{Type: "s3"}
	err := cfg.Validate()
	var cfgErr *apperr.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "R2_ACCESS_KEY_ID", cfgErr.Key)

	cfg.AccessKeyID = "key"
	cfg.SecretAccessKey = "secret"
	require.ErrorAs(t, cfg.Validate(), &cfgErr)
	assert.Equal(t, "R2_ACCOUNT_ID", cfgErr.Key)

	cfg.Endpoint = "http://localhost:9000"
	assert.NoError(t, cfg.Validate())

	assert.NoError(t, ObjectStoreConfig{Type: "memory"}.Validate())
}

func TestCatalogConfig_Validate(t *testing.T) {
	assert.Error(t, CatalogConfig{Type: "rest"}.Validate())
	assert.Error(t, CatalogConfig{Type: "mongodb"}.Validate())
	assert.Error(t, CatalogConfig{Type: "postgresql"}.Validate())
	assert.NoError(t, CatalogConfig{Type: "dynamodb", TableName: "catalog"}.Validate())
	assert.NoError(t, CatalogConfig{Type: "memory"}.Validate())
}

func TestCatalogConfig_ResolvedURI(t *testing.T) {
	assert.Equal(t, "http://catalog", CatalogConfig{URI: "http://catalog/"}.ResolvedURI("acct", "curated"))
	assert.Empty(t, CatalogConfig{}.ResolvedURI("", "curated"))
	assert.Equal(t, "s3://curated", CatalogConfig{}.ResolvedWarehouse("curated"))
}
