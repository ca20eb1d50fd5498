package ingestion

import (
	"github.com/cyderes/lakehouse-pipeline/internal/apperr"
	"github.com/cyderes/lakehouse-pipeline/internal/config"
	"github.com/cyderes/lakehouse-pipeline/internal/models"
)

// Source types accepted by the ingestion endpoint.
const (
	SourcePosts  = "posts"
	SourceUsers  = "users"
	SourceCustom = "custom"
)

// CustomTable is the table name records of a custom endpoint are loaded into.
const CustomTable = "custom_api_data"

// Source is a resolved upstream resource
type Source struct {
	Type        string
	Table       string
	URL         string
	APIKey      string // sent as a bearer token when set
	Disposition models.WriteDisposition
}

// Resolve maps a source type and optional endpoint to the resource to fetch.
// The custom source is only available when an API key is configured.
func Resolve(cfg config.IngestionConfig, sourceType, endpoint string) (Source, error) {
	switch {
	case sourceType == SourcePosts || sourceType == SourceUsers:
		return Source{
			Type:        sourceType,
			Table:       sourceType,
			URL:         cfg.APIBaseURL + "/" + sourceType,
			Disposition: models.WriteReplace,
		}, nil
	case sourceType == SourceCustom && cfg.APIKey != "":
		if endpoint == "" {
			return Source{}, apperr.Valuef("endpoint parameter is required for custom source")
		}
		return Source{
			Type:        SourceCustom,
			Table:       CustomTable,
			URL:         endpoint,
			APIKey:      cfg.APIKey,
			Disposition: models.WriteAppend,
		}, nil
	default:
		return Source{}, apperr.Valuef("unknown source type: %s", sourceType)
	}
}
