package scheduler

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/cyderes/lakehouse-pipeline/internal/models"
)

// ErrExecutionNotFound is returned for unknown or expired executions.
var ErrExecutionNotFound = errors.New("execution not found")

const executionPrefix = "execution/"

// ExecutionStore keeps sweep execution metadata in BadgerDB. Entries expire
// after the configured TTL.
type ExecutionStore struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenExecutionStore opens the store at path. An empty path keeps the data
// in memory.
func OpenExecutionStore(path string, ttl time.Duration) (*ExecutionStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger db")
	}
	return &ExecutionStore{db: db, ttl: ttl}, nil
}

// Save writes exec, replacing a previous version with the same id.
func (s *ExecutionStore) Save(exec *models.Execution) error {
	val, err := json.Marshal(exec)
	if err != nil {
		return errors.Wrap(err, "encoding execution")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(executionPrefix+exec.ExecutionID), val)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Get returns the execution with the given id.
func (s *ExecutionStore) Get(id string) (*models.Execution, error) {
	var exec models.Execution
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(executionPrefix + id))
		if err == badger.ErrKeyNotFound {
			return errors.Wrap(ErrExecutionNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &exec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

// Close closes the BadgerDB database.
func (s *ExecutionStore) Close() error {
	return s.db.Close()
}
