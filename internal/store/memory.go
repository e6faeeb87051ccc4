package store

import (
	"context"
	"sync"

	"github.com/media-luna/resonance/internal/apperr"
	"github.com/media-luna/resonance/internal/fingerprint"
	"github.com/media-luna/resonance/internal/model"
)

// InMemory is the non-durable backing, grounded on the original's
// memory_db.py: a dict of references plus a list of posting tuples, here
// additionally indexed by the 32-bit hash projection for fast lookups.
type InMemory struct {
	mu         sync.RWMutex
	references map[uint32]*model.Reference
	byName     map[string]uint32
	nextID     uint32
	postings   map[uint32][]model.Posting // keyed by Project32(hash)
}

// NewInMemory returns an empty in-memory fingerprint store.
func NewInMemory() *InMemory {
	return &InMemory{
		references: make(map[uint32]*model.Reference),
		byName:     make(map[string]uint32),
		postings:   make(map[uint32][]model.Posting),
	}
}

func (s *InMemory) Empty(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.references = make(map[uint32]*model.Reference)
	s.byName = make(map[string]uint32)
	s.postings = make(map[uint32][]model.Posting)
	s.nextID = 0
	return nil
}

func (s *InMemory) InsertReference(ctx context.Context, name, contentDigest string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[name]; exists {
		return 0, apperr.ErrDuplicateReference
	}

	s.nextID++
	id := s.nextID
	s.references[id] = &model.Reference{
		ID:            id,
		Name:          name,
		ContentDigest: contentDigest,
		Fingerprinted: false,
	}
	s.byName[name] = id
	return id, nil
}

func (s *InMemory) SetFingerprinted(ctx context.Context, referenceID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.references[referenceID]
	if !ok {
		return apperr.ErrInvalidInput
	}
	ref.Fingerprinted = true
	return nil
}

func (s *InMemory) InsertPosting(ctx context.Context, hash string, referenceID uint32, offset uint32) error {
	return s.insertPosting(hash, referenceID, offset)
}

func (s *InMemory) insertPosting(hash string, referenceID uint32, offset uint32) error {
	key, err := fingerprint.Project32(hash)
	if err != nil {
		return apperr.Wrap(err, "projecting hash")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.references[referenceID]; !ok {
		return apperr.ErrInvalidInput
	}

	for _, p := range s.postings[key] {
		if p.ReferenceID == referenceID && p.TimeOffset == offset && p.Hash == hash {
			return nil // idempotent: identical posting already present
		}
	}
	s.postings[key] = append(s.postings[key], model.Posting{
		Hash:        hash,
		ReferenceID: referenceID,
		TimeOffset:  offset,
	})
	return nil
}

func (s *InMemory) InsertPostingsBatch(ctx context.Context, referenceID uint32, pairs []fingerprint.Pair) error {
	for _, p := range pairs {
		if err := s.insertPosting(p.Hash, referenceID, p.Offset); err != nil {
			return err
		}
	}
	return nil
}

func (s *InMemory) DeleteReference(ctx context.Context, referenceID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.references[referenceID]
	if !ok {
		return nil
	}
	delete(s.byName, ref.Name)
	delete(s.references, referenceID)

	for key, postings := range s.postings {
		filtered := postings[:0]
		for _, p := range postings {
			if p.ReferenceID != referenceID {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			delete(s.postings, key)
		} else {
			s.postings[key] = filtered
		}
	}
	return nil
}

func (s *InMemory) ListReferences(ctx context.Context) ([]model.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Reference
	for _, ref := range s.references {
		if ref.Fingerprinted {
			out = append(out, *ref)
		}
	}
	return out, nil
}

func (s *InMemory) GetReferenceByName(ctx context.Context, name string) (model.Reference, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[name]
	if !ok {
		return model.Reference{}, false, nil
	}
	return *s.references[id], true, nil
}

func (s *InMemory) CountReferences(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.references), nil
}

func (s *InMemory) CountPostings(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, ps := range s.postings {
		total += len(ps)
	}
	return total, nil
}

func (s *InMemory) ReturnMatches(ctx context.Context, queries []QueryHash) ([]model.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []model.Match
	for _, q := range queries {
		key, err := fingerprint.Project32(q.Hash)
		if err != nil {
			continue
		}
		for _, p := range s.postings[key] {
			if p.Hash != q.Hash {
				continue // projection collision guard
			}
			matches = append(matches, model.Match{
				ReferenceID:      p.ReferenceID,
				OffsetDifference: int64(p.TimeOffset) - int64(q.QueryOffset),
			})
		}
	}
	return matches, nil
}

func (s *InMemory) CleanupUnfingerprinted(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orphans []uint32
	for id, ref := range s.references {
		if !ref.Fingerprinted {
			orphans = append(orphans, id)
		}
	}
	for _, id := range orphans {
		ref := s.references[id]
		delete(s.byName, ref.Name)
		delete(s.references, id)
		for key, postings := range s.postings {
			filtered := postings[:0]
			for _, p := range postings {
				if p.ReferenceID != id {
					filtered = append(filtered, p)
				}
			}
			if len(filtered) == 0 {
				delete(s.postings, key)
			} else {
				s.postings[key] = filtered
			}
		}
	}
	return len(orphans), nil
}

func (s *InMemory) Close() error { return nil }
