package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cyderes/lakehouse-pipeline/internal/apperr"
	"github.com/cyderes/lakehouse-pipeline/internal/catalog"
	"github.com/cyderes/lakehouse-pipeline/internal/ingestion"
	"github.com/cyderes/lakehouse-pipeline/internal/loader"
	"github.com/cyderes/lakehouse-pipeline/internal/models"
	"github.com/cyderes/lakehouse-pipeline/internal/scheduler"
)

// Failure messages of the error envelope.
const (
	msgPipelineFailed   = "Pipeline execution failed"
	msgConversionFailed = "Iceberg conversion failed"
	msgSweepFailed      = "Conversion sweep failed"
)

const combinedPipelineName = "dlt_iceberg_pipeline"

type handlerFunc func(r *http.Request) (interface{}, error)

// endpoint runs fn and writes its result as JSON. Errors and panics become
// the 500 error envelope.
func (s *Server) endpoint(failure string, fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			body interface{}
			err  error
		)
		func() {
			defer func() {
				if v := recover(); v != nil {
					err = &apperr.PanicError{Value: v}
				}
			}()
			body, err = fn(r)
		}()

		if err != nil {
			s.logger.Error(failure, zap.String("path", r.URL.Path), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{
				Success:   false,
				Error:     err.Error(),
				ErrorType: apperr.TypeName(err),
				Message:   failure,
			})
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(body)
}

func sourceParam(r *http.Request) string {
	if source := r.URL.Query().Get("source"); source != "" {
		return source
	}
	return ingestion.SourcePosts
}

// handleIngest loads one source into the raw bucket.
func (s *Server) handleIngest(r *http.Request) (interface{}, error) {
	src, err := ingestion.Resolve(s.config.Ingestion, sourceParam(r), r.URL.Query().Get("endpoint"))
	if err != nil {
		return nil, err
	}

	store, err := s.newStore(s.config.ObjectStore)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	bucket := s.config.ObjectStore.Bucket
	p := loader.New(store, loader.Options{
		Name:    s.config.Ingestion.PipelineName,
		Dataset: s.config.Ingestion.DatasetName,
		Bucket:  bucket,
		Logger:  s.logger,
	})
	return s.ingestor.Ingest(r.Context(), p, bucket, src)
}

// handlePipeline loads posts or users into the raw bucket and makes sure the
// curated table exists.
func (s *Server) handlePipeline(r *http.Request) (interface{}, error) {
	source := sourceParam(r)
	if source != ingestion.SourcePosts && source != ingestion.SourceUsers {
		return nil, apperr.Valuef("unknown source type: %s", source)
	}
	src, err := ingestion.Resolve(s.config.Ingestion, source, "")
	if err != nil {
		return nil, err
	}

	store, err := s.newStore(s.config.ObjectStore)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	bucket := s.config.ObjectStore.RawBucket
	p := loader.New(store, loader.Options{
		Name:    combinedPipelineName,
		Dataset: s.config.Ingestion.DatasetName,
		Bucket:  bucket,
		Logger:  s.logger,
	})
	ingested, err := s.ingestor.Ingest(r.Context(), p, bucket, src)
	if err != nil {
		return nil, err
	}

	converted, err := s.converter.Convert(r.Context(), models.ConversionRequest{
		SourceName: s.config.Ingestion.SourceName,
		TableName:  src.Table,
	})
	if err != nil {
		return nil, err
	}

	id := catalog.NewIdentifier(s.config.Ingestion.SourceName, src.Table)
	return &models.PipelineResult{
		Success:      true,
		PipelineName: p.Name(),
		RawLayer: models.RawLayer{
			Bucket: bucket,
			Path:   ingested.PathStructure,
			Format: "parquet",
		},
		CuratedLayer: models.CuratedLayer{
			Bucket:   s.config.ObjectStore.CuratedBucket,
			Table:    id.String(),
			Format:   "iceberg",
			Location: converted.Location,
		},
		Message:   "Data loaded to Bronze (Parquet) and Gold (Iceberg) layers",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// handleConvert creates or loads the curated table named in the body.
func (s *Server) handleConvert(r *http.Request) (interface{}, error) {
	var req models.ConversionRequest
	if r.Method == http.MethodPost && r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			return nil, apperr.Valuef("invalid request body: %v", err)
		}
	}
	return s.converter.Convert(r.Context(), req)
}

// handleTrigger runs a sweep and returns its execution.
func (s *Server) handleTrigger(r *http.Request) (interface{}, error) {
	if s.sweeper == nil {
		return nil, errors.New("conversion sweep is not configured")
	}
	return s.sweeper.Run(r.Context(), scheduler.TriggerManual)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["execution_id"]
	var (
		exec *models.Execution
		err  = scheduler.ErrExecutionNotFound
	)
	if s.sweeper != nil {
		exec, err = s.sweeper.Execution(id)
	}
	switch {
	case errors.Is(err, scheduler.ErrExecutionNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{
			Error:     fmt.Sprintf("execution %s not found", id),
			ErrorType: "NotFound",
			Message:   "Unknown execution",
		})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{
			Error:     err.Error(),
			ErrorType: apperr.TypeName(err),
			Message:   "Execution lookup failed",
		})
	default:
		writeJSON(w, http.StatusOK, exec)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "lakehouse-pipeline",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}
