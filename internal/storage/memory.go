package storage

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// MemoryStorage implements ObjectStore in process memory, for tests and local runs
type MemoryStorage struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memoryObject
}

// NewMemoryStorage creates an empty in-memory object store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{buckets: make(map[string]map[string]memoryObject)}
}

func (m *MemoryStorage) Put(ctx context.Context, bucket, key string, body io.Reader, contentType string, metadata map[string]string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return errors.Wrapf(err, "failed to read body for %s", URL(bucket, key))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		b = make(map[string]memoryObject)
		m.buckets[bucket] = b
	}
	b[key] = memoryObject{data: data, contentType: contentType, metadata: metadata, modified: time.Now().UTC()}
	return nil
}

func (m *MemoryStorage) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.buckets[bucket][key]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, URL(bucket, key))
	}
	out := make([]byte, len(obj.data))
	copy(out, obj.data)
	return out, nil
}

func (m *MemoryStorage) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var objects []Object
	for key, obj := range m.buckets[bucket] {
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, Object{Key: key, Size: int64(len(obj.data)), LastModified: obj.modified})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (m *MemoryStorage) Delete(ctx context.Context, bucket string, keys []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for _, key := range keys {
		if _, ok := m.buckets[bucket][key]; ok {
			delete(m.buckets[bucket], key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryStorage) DeletePrefix(ctx context.Context, bucket, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for key := range m.buckets[bucket] {
		if strings.HasPrefix(key, prefix) {
			delete(m.buckets[bucket], key)
			deleted++
		}
	}
	return deleted, nil
}

// objectMetadata returns the user metadata stored with an object.
func (m *MemoryStorage) objectMetadata(bucket, key string) (map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.buckets[bucket][key]
	return obj.metadata, ok
}

func (m *MemoryStorage) Close() error {
	return nil
}
