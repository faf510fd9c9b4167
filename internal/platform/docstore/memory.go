package docstore

import (
	"context"
	"net/http"
	"sync"
)

// MemoryBackend is a thread-safe, in-memory Backend for tests and local
// development.
type MemoryBackend struct {
	mu          sync.Mutex
	collections map[string]*MemoryStore
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]*MemoryStore)}
}

func (b *MemoryBackend) Collection(name string) Store {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.collections[name]
	if !ok {
		s = NewMemoryStore(name)
		b.collections[name] = s
	}
	return s
}

func (b *MemoryBackend) Ping(context.Context) error { return nil }

func (b *MemoryBackend) Close(context.Context) error { return nil }

// MemoryStore is one in-memory collection. Deleted ids are remembered so a
// second Get reports "deleted" rather than "missing".
type MemoryStore struct {
	name    string
	mu      sync.RWMutex
	docs    map[string]Document
	deleted map[string]bool
	order   []string
}

func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{
		name:    name,
		docs:    make(map[string]Document),
		deleted: make(map[string]bool),
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		if s.deleted[id] {
			return nil, notFound(ReasonDeleted)
		}
		return nil, notFound(ReasonMissing)
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Insert(_ context.Context, doc Document) (*WriteResult, error) {
	stored := prepareInsert(doc)
	id := stored.ID()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[id]; exists {
		return nil, conflict()
	}
	s.docs[id] = stored
	delete(s.deleted, id)
	s.order = append(s.order, id)

	return &WriteResult{Status: http.StatusCreated, OK: true, ID: id, Rev: stored.Rev()}, nil
}

func (s *MemoryStore) Query(_ context.Context, selector Selector, fields []string, limit int) (*QueryResult, error) {
	limit = normalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := []Document{}
	for _, id := range s.order {
		doc, ok := s.docs[id]
		if !ok || !Matches(doc, selector) {
			continue
		}
		docs = append(docs, Project(doc, fields))
		if len(docs) == limit {
			break
		}
	}
	return &QueryResult{Docs: docs}, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, doc Document) (*WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs[id]
	if !ok {
		if s.deleted[id] {
			return nil, notFound(ReasonDeleted)
		}
		return nil, notFound(ReasonMissing)
	}
	if doc.Rev() != current.Rev() {
		return nil, conflict()
	}

	stored := doc.Clone()
	stored[IDField] = id
	stored[RevField] = NextRev(current.Rev())
	s.docs[id] = stored

	return &WriteResult{Status: http.StatusCreated, OK: true, ID: id, Rev: stored.Rev()}, nil
}

func (s *MemoryStore) Delete(_ context.Context, id, rev string) (*WriteResult, error) {
	if rev == "" {
		return nil, badRequest(ReasonBadRev)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs[id]
	if !ok {
		if s.deleted[id] {
			return nil, notFound(ReasonDeleted)
		}
		return nil, notFound(ReasonMissing)
	}
	if current.Rev() != rev {
		return nil, conflict()
	}

	delete(s.docs, id)
	s.deleted[id] = true
	s.order = removeID(s.order, id)

	return &WriteResult{Status: http.StatusOK, OK: true, ID: id, Rev: NextRev(rev)}, nil
}

func (s *MemoryStore) Info(context.Context) (*Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Info{DBName: s.name, DocCount: int64(len(s.docs)), Backend: "memory"}, nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
