package conversion

import (
	"context"

	"go.uber.org/zap"

	"github.com/cyderes/lakehouse-pipeline/internal/catalog"
	"github.com/cyderes/lakehouse-pipeline/internal/config"
	"github.com/cyderes/lakehouse-pipeline/internal/models"
	"github.com/cyderes/lakehouse-pipeline/internal/storage"
)

// CatalogFactory opens a catalog from configuration
type CatalogFactory func(ctx context.Context, cfg config.CatalogConfig, store config.ObjectStoreConfig) (catalog.Catalog, error)

// StoreFactory opens an object store from configuration
type StoreFactory func(cfg config.ObjectStoreConfig) (storage.ObjectStore, error)

// Service opens the catalog, and the object store when data is appended,
// for every conversion and closes them afterwards.
type Service struct {
	store      config.ObjectStoreConfig
	catalog    config.CatalogConfig
	newCatalog CatalogFactory
	newStore   StoreFactory
	logger     *zap.Logger
}

// NewService creates a conversion service. Nil factories default to
// catalog.NewCatalog and storage.NewStorage.
func NewService(store config.ObjectStoreConfig, cat config.CatalogConfig, newCatalog CatalogFactory, newStore StoreFactory, logger *zap.Logger) *Service {
	if newCatalog == nil {
		newCatalog = catalog.NewCatalog
	}
	if newStore == nil {
		newStore = storage.NewStorage
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, catalog: cat, newCatalog: newCatalog, newStore: newStore, logger: logger}
}

// Convert converts the table named by req.
func (s *Service) Convert(ctx context.Context, req models.ConversionRequest) (*models.ConversionResult, error) {
	cat, err := s.newCatalog(ctx, s.catalog, s.store)
	if err != nil {
		return nil, err
	}
	defer cat.Close()

	var store storage.ObjectStore
	if req.Append {
		store, err = s.newStore(s.store)
		if err != nil {
			return nil, err
		}
		defer store.Close()
	}

	return New(cat, store, Options{
		RawBucket:     s.store.Bucket,
		CuratedBucket: s.store.CuratedBucket,
		Logger:        s.logger,
	}).Convert(ctx, req)
}
