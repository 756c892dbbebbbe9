package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"example.com/classification/internal/domain"
)

// InMemoryStore keeps models in memory for local development and unit tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{models: make(map[string]Model)}
}

// Insert implements Store.
func (s *InMemoryStore) Insert(ctx context.Context, model Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.models[model.ID]; exists {
		return fmt.Errorf("model %s already registered", model.ID)
	}
	s.models[model.ID] = model
	return nil
}

// Get implements Store.
func (s *InMemoryStore) Get(ctx context.Context, tenantID, modelID string) (*Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	model, ok := s.models[modelID]
	if !ok || model.TenantID != tenantID {
		return nil, nil
	}
	return &model, nil
}

// List implements Store, newest first.
func (s *InMemoryStore) List(ctx context.Context, tenantID string) ([]Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Model, 0, len(s.models))
	for _, model := range s.models {
		if model.TenantID == tenantID {
			out = append(out, model)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrainedAt.After(out[j].TrainedAt) })
	return out, nil
}

// Active implements Store.
func (s *InMemoryStore) Active(ctx context.Context, tenantID string) (*Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, model := range s.models {
		if model.TenantID == tenantID && model.Status == StatusActive {
			copied := model
			return &copied, nil
		}
	}
	return nil, nil
}

// Activate implements the compare-and-swap transition under the store lock.
func (s *InMemoryStore) Activate(ctx context.Context, tenantID, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.models[modelID]
	if !ok || target.TenantID != tenantID {
		return fmt.Errorf("%w: model %s not found", domain.ErrActivationConflict, modelID)
	}
	if target.Status.Terminal() {
		return fmt.Errorf("%w: model %s is %s", domain.ErrActivationConflict, modelID, target.Status)
	}

	for id, model := range s.models {
		if model.TenantID == tenantID && model.Status == StatusActive && id != modelID {
			model.Status = StatusArchived
			s.models[id] = model
		}
	}

	target.Status = StatusActive
	s.models[modelID] = target
	return nil
}

// UpdateStatus implements Store.
func (s *InMemoryStore) UpdateStatus(ctx context.Context, tenantID, modelID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	model, ok := s.models[modelID]
	if !ok || model.TenantID != tenantID {
		return domain.ErrModelNotFound
	}
	model.Status = status
	s.models[modelID] = model
	return nil
}
