package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/citegate/citegate/pkg/domain"
)

// MemoryStore is an in-memory object store implementing MetadataResolver and
// AuditSink. It backs tests and local runs without cloud credentials.
type MemoryStore struct {
	mu       sync.RWMutex
	metadata map[string]domain.ObjectMetadata
	objects  map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		metadata: make(map[string]domain.ObjectMetadata),
		objects:  make(map[string][]byte),
	}
}

func (s *MemoryStore) key(loc ObjectLocation) string {
	return fmt.Sprintf("%s/%s", loc.Bucket, loc.Object)
}

// SetObjectMetadata seeds metadata for a location.
func (s *MemoryStore) SetObjectMetadata(loc ObjectLocation, md domain.ObjectMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[s.key(loc)] = md
}

// GetObjectMetadata implements MetadataResolver.
func (s *MemoryStore) GetObjectMetadata(_ context.Context, loc ObjectLocation) (domain.ObjectMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	md, ok := s.metadata[s.key(loc)]
	if !ok {
		return domain.ObjectMetadata{}, fmt.Errorf("%w: %s", ErrObjectNotFound, loc)
	}
	return md, nil
}

// Put implements AuditSink.
func (s *MemoryStore) Put(_ context.Context, loc ObjectLocation, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[s.key(loc)] = buf
	return nil
}

// Object returns a stored object's bytes, for test assertions.
func (s *MemoryStore) Object(loc ObjectLocation) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[s.key(loc)]
	return data, ok
}

// Keys lists the locations of all stored objects, for test assertions.
func (s *MemoryStore) Keys() []ObjectLocation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	locs := make([]ObjectLocation, 0, len(s.objects))
	for k := range s.objects {
		parts := strings.SplitN(k, "/", 2)
		locs = append(locs, ObjectLocation{Bucket: parts[0], Object: parts[1]})
	}
	return locs
}

// Len reports the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
