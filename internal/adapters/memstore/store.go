// Package memstore implements an in-memory object store.
package memstore

import (
	"bytes"
	"context"
	"io"
	"sync"

	"go.trai.ch/dockyard/internal/core/domain"
	"go.trai.ch/zerr"
)

// Store implements ports.ObjectStore in memory. It records the order of successful writes.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
	writes  []string
}

// New creates an empty Store.
func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

func objectID(bucket, key string) string {
	return bucket + "/" + key
}

// Exists reports whether bucket/key holds an object.
func (s *Store) Exists(_ context.Context, bucket, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[objectID(bucket, key)]
	return ok, nil
}

// Get returns a reader over a copy of the object at bucket/key.
func (s *Store) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[objectID(bucket, key)]
	if !ok {
		err := zerr.With(zerr.Wrap(domain.ErrObjectNotFound, "no such object"), "key", key)
		return nil, domain.NewStoreError("get", bucket, key, err)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// Put reads r fully and stores it at bucket/key.
func (s *Store) Put(_ context.Context, bucket, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return domain.NewStoreError("put", bucket, key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := objectID(bucket, key)
	s.objects[id] = data
	s.writes = append(s.writes, id)
	return nil
}

// Writes returns the bucket/key of every successful Put in order.
func (s *Store) Writes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.writes...)
}

// Delete removes the object at bucket/key.
func (s *Store) Delete(bucket, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectID(bucket, key))
}

// Object returns the raw content at bucket/key.
func (s *Store) Object(bucket, key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[objectID(bucket, key)]
	return bytes.Clone(data), ok
}

// Set stores data at bucket/key without recording a write.
func (s *Store) Set(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectID(bucket, key)] = bytes.Clone(data)
}
