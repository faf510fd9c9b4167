package blobstore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
)

type storedObject struct {
	data []byte
	etag string
}

// MemoryStore is a thread-safe, in-memory Store for tests and local
// development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*storedObject
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]*storedObject)}
}

func (s *MemoryStore) put(key string, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	h := sha256.Sum256(buf)

	s.mu.Lock()
	s.objects[key] = &storedObject{data: buf, etag: fmt.Sprintf("%x", h)}
	s.mu.Unlock()
}

func (s *MemoryStore) CreateTextFile(_ context.Context, key string, data []byte) error {
	s.put(key, data)
	return nil
}

func (s *MemoryStore) UpdateItem(_ context.Context, key string, data []byte) error {
	s.put(key, data)
	return nil
}

func (s *MemoryStore) GetItem(_ context.Context, key string) (*Object, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return nil, noSuchKey(key)
	}

	body := make([]byte, len(obj.data))
	copy(body, obj.data)
	return &Object{
		Key:           key,
		Body:          body,
		ContentType:   TextPlain,
		ContentLength: int64(len(body)),
		ETag:          obj.etag,
	}, nil
}

// GetObjects lists keys in lexical order, as S3 does.
func (s *MemoryStore) GetObjects(context.Context) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ObjectInfo, 0, len(s.objects))
	for k, obj := range s.objects {
		out = append(out, ObjectInfo{Key: k, Size: int64(len(obj.data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// DeleteItem is idempotent, matching S3 DeleteObject.
func (s *MemoryStore) DeleteItem(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}
