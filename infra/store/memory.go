package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/petriage/petriage/core/model"
	core "github.com/petriage/petriage/core/store"
)

// MemoryRequestStore keeps requests in memory. Used in tests and as the
// default when no database is configured.
type MemoryRequestStore struct {
	mu   sync.RWMutex
	data map[string]model.DispatchRequest
}

func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{data: map[string]model.DispatchRequest{}}
}

func (s *MemoryRequestStore) Create(_ context.Context, r *model.DispatchRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[r.ID]; ok {
		return fmt.Errorf("request %s already exists", r.ID)
	}
	s.data[r.ID] = *r
	return nil
}

func (s *MemoryRequestStore) Get(_ context.Context, id string) (model.DispatchRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data[id]
	if !ok {
		return model.DispatchRequest{}, core.ErrNotFound
	}
	return r, nil
}

func (s *MemoryRequestStore) Update(_ context.Context, r model.DispatchRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[r.ID]; !ok {
		return core.ErrNotFound
	}
	s.data[r.ID] = r
	return nil
}

func (s *MemoryRequestStore) ActiveForPet(_ context.Context, userID, petID string) (model.DispatchRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.data {
		if r.UserID == userID && r.PetID == petID && !r.Status.Terminal() {
			return r, nil
		}
	}
	return model.DispatchRequest{}, core.ErrNotFound
}

func (s *MemoryRequestStore) Close() error { return nil }

// MemoryVetStore keeps the vet roster in memory.
type MemoryVetStore struct {
	mu   sync.RWMutex
	data map[string]model.Vet
}

func NewMemoryVetStore(vets ...model.Vet) *MemoryVetStore {
	s := &MemoryVetStore{data: map[string]model.Vet{}}
	for _, v := range vets {
		s.data[v.ID] = v
	}
	return s
}

func (s *MemoryVetStore) Get(_ context.Context, id string) (model.Vet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[id]
	if !ok {
		return model.Vet{}, core.ErrNotFound
	}
	return v, nil
}

func (s *MemoryVetStore) List(_ context.Context) ([]model.Vet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Vet, 0, len(s.data))
	for _, v := range s.data {
		res = append(res, v)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (s *MemoryVetStore) Put(_ context.Context, v model.Vet) error {
	if err := v.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.data[v.ID] = v
	s.mu.Unlock()
	return nil
}

func (s *MemoryVetStore) SetStatus(_ context.Context, id string, status model.VetStatus, activeRequestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[id]
	if !ok {
		return core.ErrNotFound
	}
	v.Status = status
	v.Available = status == model.VetAvailable
	v.ActiveRequestID = activeRequestID
	s.data[id] = v
	return nil
}

// MemoryChatStore hands out one channel per request.
type MemoryChatStore struct {
	mu       sync.Mutex
	channels map[string]string
}

func NewMemoryChatStore() *MemoryChatStore {
	return &MemoryChatStore{channels: map[string]string{}}
}

func (s *MemoryChatStore) Ensure(_ context.Context, requestID, userID, vetID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.channels[requestID]; ok {
		return id, nil
	}
	id := uuid.NewString()
	s.channels[requestID] = id
	return id, nil
}
