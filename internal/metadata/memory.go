package metadata

import (
	"context"
	"fmt"
	"sync"

	"github.com/media-luna/resonance/internal/model"
)

// InMemory is the non-durable metadata backing: a map keyed by name with
// a linear scan for QueryByField, matching metadata_db.py's in-memory
// path.
type InMemory struct {
	mu   sync.RWMutex
	docs map[string]model.Metadata
}

// NewInMemory returns an empty in-memory metadata store.
func NewInMemory() *InMemory {
	return &InMemory{docs: make(map[string]model.Metadata)}
}

func (s *InMemory) Upsert(ctx context.Context, m model.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[m.Name] = m
	return nil
}

func (s *InMemory) Get(ctx context.Context, name string) (model.Metadata, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.docs[name]
	return m, ok, nil
}

func (s *InMemory) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, name)
	return nil
}

func (s *InMemory) ListAll(ctx context.Context) ([]model.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Metadata, 0, len(s.docs))
	for _, m := range s.docs {
		out = append(out, m)
	}
	return out, nil
}

func (s *InMemory) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]model.Metadata)
	return nil
}

func (s *InMemory) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}

func (s *InMemory) QueryByField(ctx context.Context, path string, value any) ([]model.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Metadata
	target := fmt.Sprintf("%v", value)
	for _, m := range s.docs {
		v, ok := fieldLookup(m.Doc, path)
		if !ok {
			continue
		}
		if fmt.Sprintf("%v", v) == target {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *InMemory) Close() error { return nil }
