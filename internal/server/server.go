// Package server exposes the pipeline endpoints over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cyderes/lakehouse-pipeline/internal/config"
	"github.com/cyderes/lakehouse-pipeline/internal/conversion"
	"github.com/cyderes/lakehouse-pipeline/internal/ingestion"
	"github.com/cyderes/lakehouse-pipeline/internal/scheduler"
	"github.com/cyderes/lakehouse-pipeline/internal/storage"
)

// Server handles HTTP requests
type Server struct {
	config    *config.Config
	ingestor  *ingestion.Service
	converter *conversion.Service
	sweeper   *scheduler.Sweeper
	newStore  conversion.StoreFactory
	logger    *zap.Logger
	handler   http.Handler
	server    *http.Server
}

// Option configures a Server
type Option func(*Server)

// WithStoreFactory replaces the object store factory used by the ingestion
// endpoints.
func WithStoreFactory(f conversion.StoreFactory) Option {
	return func(s *Server) { s.newStore = f }
}

// WithSweeper enables the trigger and status endpoints.
func WithSweeper(sw *scheduler.Sweeper) Option {
	return func(s *Server) { s.sweeper = sw }
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, converter *conversion.Service, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		config:    cfg,
		ingestor:  ingestion.NewService(cfg.Ingestion, logger),
		converter: converter,
		newStore:  storage.NewStorage,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := s.newRouter()
	s.handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger}),
	)(corsHandler(s.accessLog(router)))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) newRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.collectStats)

	pipelineMethods := []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	router.HandleFunc("/ingest", s.endpoint(msgPipelineFailed, s.handleIngest)).Methods(pipelineMethods...).Name("Ingest")
	router.HandleFunc("/pipeline", s.endpoint(msgPipelineFailed, s.handlePipeline)).Methods(pipelineMethods...).Name("Pipeline")
	router.HandleFunc("/convert", s.endpoint(msgConversionFailed, s.handleConvert)).Methods(pipelineMethods...).Name("Convert")
	router.HandleFunc("/trigger", s.endpoint(msgSweepFailed, s.handleTrigger)).Methods(http.MethodPost, http.MethodOptions).Name("Trigger")
	router.HandleFunc("/status/{execution_id}", s.handleStatus).Methods(http.MethodGet).Name("Status")
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet).Name("Health")
	router.Handle("/metrics", promhttp.Handler())
	return router
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
