package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MemoryCatalog keeps table metadata in process memory
type MemoryCatalog struct {
	name string

	mu         sync.Mutex
	namespaces map[string]bool
	tables     map[string]*Table
	now        func() time.Time
}

// NewMemoryCatalog creates an empty catalog
func NewMemoryCatalog(name string) *MemoryCatalog {
	return &MemoryCatalog{
		name:       name,
		namespaces: make(map[string]bool),
		tables:     make(map[string]*Table),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryCatalog) Name() string { return m.name }

func (m *MemoryCatalog) URI() string { return "memory://" + m.name }

func (m *MemoryCatalog) CreateNamespace(ctx context.Context, namespace []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := namespaceKey(namespace)
	if m.namespaces[key] {
		return errors.WithStack(ErrNamespaceExists)
	}
	m.namespaces[key] = true
	return nil
}

func (m *MemoryCatalog) LoadTable(ctx context.Context, id Identifier) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[tableKey(id)]
	if !ok {
		return nil, errors.Wrap(ErrNoSuchTable, id.String())
	}
	return copyTable(t), nil
}

func (m *MemoryCatalog) CreateTable(ctx context.Context, id Identifier, schema Schema, spec PartitionSpec, location string) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tableKey(id)
	if _, ok := m.tables[key]; ok {
		return nil, errors.Wrap(ErrTableExists, id.String())
	}
	t := newTable(id, schema, spec, location, m.now())
	m.tables[key] = t
	return copyTable(t), nil
}

func (m *MemoryCatalog) AppendFiles(ctx context.Context, id Identifier, files []DataFile) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[tableKey(id)]
	if !ok {
		return nil, errors.Wrap(ErrNoSuchTable, id.String())
	}
	t.appendSnapshot(files, m.now())
	return copyTable(t), nil
}

func (m *MemoryCatalog) Close() error { return nil }

// copyTable returns a deep copy so callers cannot mutate stored metadata.
func copyTable(t *Table) *Table {
	s, err := encodeTable(t)
	if err != nil {
		panic(err)
	}
	c, err := decodeTable(s)
	if err != nil {
		panic(err)
	}
	return c
}
