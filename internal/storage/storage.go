package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/cyderes/lakehouse-pipeline/internal/config"
)

// ErrNotFound is returned when an object does not exist
var ErrNotFound = errors.New("object not found")

// Object describes a stored object
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore interface defines the contract for object storage
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, contentType string, metadata map[string]string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	List(ctx context.Context, bucket, prefix string) ([]Object, error)
	Delete(ctx context.Context, bucket string, keys []string) (int, error)
	DeletePrefix(ctx context.Context, bucket, prefix string) (int, error)
	Close() error
}

// NewStorage creates a new object store instance based on configuration
func NewStorage(cfg config.ObjectStoreConfig) (ObjectStore, error) {
	switch cfg.Type {
	case "s3":
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return NewS3Storage(cfg)
	case "memory":
		return NewMemoryStorage(), nil
	default:
		return nil, errors.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// URL renders the s3:// location of key in bucket.
func URL(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
