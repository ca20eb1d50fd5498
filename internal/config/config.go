package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/cyderes/lakehouse-pipeline/internal/apperr"
)

// Config holds all configuration for the application
type Config struct {
	ObjectStore ObjectStoreConfig
	Catalog     CatalogConfig
	Ingestion   IngestionConfig
	Server      ServerConfig
	Scheduler   SchedulerConfig
	Notify      NotifyConfig
	GitHub      GitHubConfig
	Quality     QualityConfig
	Log         LogConfig
}

// ObjectStoreConfig holds the S3-compatible object store settings (Cloudflare R2 by default)
type ObjectStoreConfig struct {
	Type            string // "s3", "memory"
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // overrides the endpoint derived from AccountID
	Region          string
	Bucket          string // raw bucket used by the ingestion endpoint
	RawBucket       string // raw bucket used by the combined pipeline
	CuratedBucket   string
}

// CatalogConfig holds table catalog settings
type CatalogConfig struct {
	Type          string // "rest", "dynamodb", "mongodb", "postgresql", "memory"
	Name          string
	URI           string
	Token         string
	Warehouse     string
	Region        string
	TableName     string
	Endpoint      string // custom DynamoDB endpoint for local testing
	MongoDBURI    string
	MongoDatabase string
	PostgresURI   string
	Timeout       time.Duration
}

// IngestionConfig holds raw-layer ingestion configuration
type IngestionConfig struct {
	APIBaseURL   string
	APIKey       string
	PipelineName string
	DatasetName  string
	SourceName   string
	Timeout      time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// TableRef names one curated table by source and table name.
type TableRef struct {
	SourceName string `json:"source_name"`
	TableName  string `json:"table_name"`
}

// SchedulerConfig holds configuration of the scheduled conversion sweep
type SchedulerConfig struct {
	Enabled      bool
	Cron         string
	Tables       []TableRef
	DBPath       string // empty keeps execution metadata in memory
	ExecutionTTL time.Duration
}

// NotifyConfig holds chat notification settings
type NotifyConfig struct {
	SlackWebhookURL string
	Timeout         time.Duration
}

// GitHubConfig holds the GitHub pipeline settings
type GitHubConfig struct {
	Token        string
	Owner        string
	Repos        []string
	APIURL       string
	Workers      int
	MaxPages     int
	RetryMax     int
	PipelineName string
	DatasetName  string
}

// QualityConfig holds data quality validation settings
type QualityConfig struct {
	SuitePath string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables with defaults. When
// path is not empty the file is read first and the environment overrides it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", path)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage_type", "s3")
	v.SetDefault("r2_region", "auto")
	v.SetDefault("r2_bucket_name", "data-lake-raw")
	v.SetDefault("r2_bucket_raw", "data-lake-raw")
	v.SetDefault("r2_bucket_curated", "data-lake-curated")

	v.SetDefault("catalog_type", "rest")
	v.SetDefault("catalog_name", "r2_catalog")
	v.SetDefault("catalog_region", "us-west-2")
	v.SetDefault("catalog_table_name", "lakehouse_catalog")
	v.SetDefault("catalog_mongodb_database", "lakehouse")
	v.SetDefault("catalog_timeout", 30*time.Second)

	v.SetDefault("api_base_url", "https://jsonplaceholder.typicode.com")
	v.SetDefault("pipeline_name", "workers_etl_pipeline")
	v.SetDefault("dataset_name", "sources/api_jsonplaceholder")
	v.SetDefault("source_name", "api_jsonplaceholder")
	v.SetDefault("api_timeout", 30*time.Second)

	v.SetDefault("server_port", 8080)
	v.SetDefault("server_read_timeout", 15*time.Second)
	v.SetDefault("server_write_timeout", 120*time.Second)

	v.SetDefault("sweep_enabled", false)
	v.SetDefault("sweep_cron", "0 * * * *")
	v.SetDefault("sweep_tables", "api_jsonplaceholder/posts,api_jsonplaceholder/users")
	v.SetDefault("sweep_execution_ttl", 30*24*time.Hour)

	v.SetDefault("notify_timeout", 10*time.Second)

	v.SetDefault("github_api_url", "https://api.github.com")
	v.SetDefault("github_workers", 4)
	v.SetDefault("github_max_pages", 100)
	v.SetDefault("github_retry_max", 3)
	v.SetDefault("github_pipeline_name", "github_data_pipeline")
	v.SetDefault("github_dataset_name", "sources/github")

	v.SetDefault("quality_suite_path", "quality/suites.yaml")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

func fromViper(v *viper.Viper) (*Config, error) {
	tables, err := ParseTableRefs(v.GetString("sweep_tables"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ObjectStore: ObjectStoreConfig{
			Type:            v.GetString("storage_type"),
			AccountID:       v.GetString("r2_account_id"),
			AccessKeyID:     v.GetString("r2_access_key_id"),
			SecretAccessKey: v.GetString("r2_secret_access_key"),
			Endpoint:        v.GetString("r2_endpoint"),
			Region:          v.GetString("r2_region"),
			Bucket:          v.GetString("r2_bucket_name"),
			RawBucket:       v.GetString("r2_bucket_raw"),
			CuratedBucket:   v.GetString("r2_bucket_curated"),
		},
		Catalog: CatalogConfig{
			Type:          v.GetString("catalog_type"),
			Name:          v.GetString("catalog_name"),
			URI:           v.GetString("catalog_uri"),
			Token:         v.GetString("cloudflare_api_token"),
			Warehouse:     v.GetString("catalog_warehouse"),
			Region:        v.GetString("catalog_region"),
			TableName:     v.GetString("catalog_table_name"),
			Endpoint:      v.GetString("dynamodb_endpoint"),
			MongoDBURI:    v.GetString("mongodb_uri"),
			MongoDatabase: v.GetString("catalog_mongodb_database"),
			PostgresURI:   v.GetString("postgres_uri"),
			Timeout:       v.GetDuration("catalog_timeout"),
		},
		Ingestion: IngestionConfig{
			APIBaseURL:   strings.TrimRight(v.GetString("api_base_url"), "/"),
			APIKey:       v.GetString("api_key"),
			PipelineName: v.GetString("pipeline_name"),
			DatasetName:  v.GetString("dataset_name"),
			SourceName:   v.GetString("source_name"),
			Timeout:      v.GetDuration("api_timeout"),
		},
		Server: ServerConfig{
			Port:         v.GetInt("server_port"),
			ReadTimeout:  v.GetDuration("server_read_timeout"),
			WriteTimeout: v.GetDuration("server_write_timeout"),
		},
		Scheduler: SchedulerConfig{
			Enabled:      v.GetBool("sweep_enabled"),
			Cron:         v.GetString("sweep_cron"),
			Tables:       tables,
			DBPath:       v.GetString("sweep_db_path"),
			ExecutionTTL: v.GetDuration("sweep_execution_ttl"),
		},
		Notify: NotifyConfig{
			SlackWebhookURL: v.GetString("slack_webhook_url"),
			Timeout:         v.GetDuration("notify_timeout"),
		},
		GitHub: GitHubConfig{
			Token:        v.GetString("github_token"),
			Owner:        v.GetString("github_owner"),
			Repos:        splitList(v.GetString("github_repos")),
			APIURL:       strings.TrimRight(v.GetString("github_api_url"), "/"),
			Workers:      v.GetInt("github_workers"),
			MaxPages:     v.GetInt("github_max_pages"),
			RetryMax:     v.GetInt("github_retry_max"),
			PipelineName: v.GetString("github_pipeline_name"),
			DatasetName:  v.GetString("github_dataset_name"),
		},
		Quality: QualityConfig{
			SuitePath: v.GetString("quality_suite_path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}

	return cfg, nil
}

// ParseTableRefs parses a comma separated list of source/table pairs.
func ParseTableRefs(s string) ([]TableRef, error) {
	var refs []TableRef
	for _, item := range splitList(s) {
		parts := strings.Split(item, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, errors.Errorf("invalid table reference %q, want source/table", item)
		}
		refs = append(refs, TableRef{SourceName: parts[0], TableName: parts[1]})
	}
	return refs, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// EndpointURL returns the S3 endpoint, derived from the account id for R2.
func (c ObjectStoreConfig) EndpointURL() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	if c.AccountID != "" {
		return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
	}
	return ""
}

// Validate checks the settings needed to talk to the object store.
func (c ObjectStoreConfig) Validate() error {
	if c.Type != "s3" {
		return nil
	}
	if c.AccessKeyID == "" {
		return apperr.MissingConfig("R2_ACCESS_KEY_ID")
	}
	if c.SecretAccessKey == "" {
		return apperr.MissingConfig("R2_SECRET_ACCESS_KEY")
	}
	if c.EndpointURL() == "" {
		return apperr.MissingConfig("R2_ACCOUNT_ID")
	}
	return nil
}

// ResolvedURI returns the catalog URI, defaulting to the R2 Data Catalog
// endpoint of the curated bucket.
func (c CatalogConfig) ResolvedURI(accountID, curatedBucket string) string {
	if c.URI != "" {
		return strings.TrimRight(c.URI, "/")
	}
	if accountID == "" || curatedBucket == "" {
		return ""
	}
	return fmt.Sprintf("https://api.cloudflare.com/client/v4/accounts/%s/r2/buckets/%s/catalog", accountID, curatedBucket)
}

// ResolvedWarehouse returns the warehouse location of the catalog.
func (c CatalogConfig) ResolvedWarehouse(curatedBucket string) string {
	if c.Warehouse != "" {
		return c.Warehouse
	}
	return "s3://" + curatedBucket
}

// Validate checks the settings needed by the configured catalog type.
func (c CatalogConfig) Validate() error {
	switch c.Type {
	case "rest":
		if c.Token == "" {
			return apperr.MissingConfig("CLOUDFLARE_API_TOKEN")
		}
	case "dynamodb":
		if c.TableName == "" {
			return apperr.MissingConfig("CATALOG_TABLE_NAME")
		}
	case "mongodb":
		if c.MongoDBURI == "" {
			return apperr.MissingConfig("MONGODB_URI")
		}
	case "postgresql":
		if c.PostgresURI == "" {
			return apperr.MissingConfig("POSTGRES_URI")
		}
	}
	return nil
}
