// Package registry manages versioned classification models and their
// activation lifecycle.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/classification/internal/cluster"
	"example.com/classification/internal/domain"
	"example.com/classification/internal/observability"
)

// Status is the lifecycle state of a registered model.
type Status string

const (
	StatusTraining   Status = "training"
	StatusActive     Status = "active"
	StatusArchived   Status = "archived"
	StatusDeprecated Status = "deprecated"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusArchived, StatusDeprecated, StatusFailed:
		return true
	}
	return false
}

// Metrics captures training-time performance numbers stored with the model.
type Metrics struct {
	TrainingSize int     `json:"training_size"`
	Inertia      float64 `json:"inertia"`
}

// Model wraps a trained cluster artifact with registry metadata. Models are
// never deleted; superseded models are archived.
type Model struct {
	ID            string
	TenantID      string
	Version       string
	Status        Status
	ParentModelID *string
	Payload       *cluster.Model
	TrainedFrom   time.Time
	TrainedTo     time.Time
	Metrics       Metrics
	TrainedAt     time.Time
}

// Store captures model persistence operations. Activate must be an atomic
// compare-and-swap: archive the current active model and promote the target
// in one transaction, with exactly one winner under concurrency.
type Store interface {
	Insert(ctx context.Context, model Model) error
	Get(ctx context.Context, tenantID, modelID string) (*Model, error)
	List(ctx context.Context, tenantID string) ([]Model, error)
	Active(ctx context.Context, tenantID string) (*Model, error)
	Activate(ctx context.Context, tenantID, modelID string) error
	UpdateStatus(ctx context.Context, tenantID, modelID string, status Status) error
}

// ActivationListener is notified after a successful activation. Used to
// invalidate derived caches keyed by the active model.
type ActivationListener interface {
	ModelActivated(ctx context.Context, tenantID, modelID string)
}

// Metadata accompanies a registration.
type Metadata struct {
	ParentModelID *string
	TrainedFrom   time.Time
	TrainedTo     time.Time
}

// Service coordinates registrations and activations against a Store.
type Service struct {
	store     Store
	listeners []ActivationListener
}

// NewService constructs a Service.
func NewService(store Store, listeners ...ActivationListener) *Service {
	return &Service{store: store, listeners: listeners}
}

// Register stores a freshly trained model in status training and returns its
// assigned id and version.
func (s *Service) Register(ctx context.Context, tenantID string, payload *cluster.Model, meta Metadata) (*Model, error) {
	existing, err := s.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	model := Model{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Version:       fmt.Sprintf("v%d", len(existing)+1),
		Status:        StatusTraining,
		ParentModelID: meta.ParentModelID,
		Payload:       payload,
		TrainedFrom:   meta.TrainedFrom,
		TrainedTo:     meta.TrainedTo,
		Metrics: Metrics{
			TrainingSize: payload.TrainingSize,
			Inertia:      payload.Inertia,
		},
		TrainedAt: time.Now().UTC(),
	}

	if err := s.store.Insert(ctx, model); err != nil {
		return nil, err
	}
	return &model, nil
}

// Activate promotes a model to active, archiving the previous active model in
// the same transaction. Targets that are missing or terminal fail with
// domain.ErrActivationConflict and leave the current active model untouched.
func (s *Service) Activate(ctx context.Context, tenantID, modelID string) error {
	target, err := s.store.Get(ctx, tenantID, modelID)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("%w: model %s not found", domain.ErrActivationConflict, modelID)
	}
	if target.Status.Terminal() {
		return fmt.Errorf("%w: model %s is %s", domain.ErrActivationConflict, modelID, target.Status)
	}

	if err := s.store.Activate(ctx, tenantID, modelID); err != nil {
		return err
	}

	observability.RecordModelActivated()
	for _, l := range s.listeners {
		l.ModelActivated(ctx, tenantID, modelID)
	}
	return nil
}

// MarkFailed records a training failure. Failed models can never be activated.
func (s *Service) MarkFailed(ctx context.Context, tenantID, modelID string) error {
	return s.store.UpdateStatus(ctx, tenantID, modelID, StatusFailed)
}

// Deprecate manually retires the model.
func (s *Service) Deprecate(ctx context.Context, tenantID, modelID string) error {
	return s.store.UpdateStatus(ctx, tenantID, modelID, StatusDeprecated)
}

// Active returns the currently active model, or nil when none is active.
func (s *Service) Active(ctx context.Context, tenantID string) (*Model, error) {
	return s.store.Active(ctx, tenantID)
}

// Get fetches a model by id.
func (s *Service) Get(ctx context.Context, tenantID, modelID string) (*Model, error) {
	model, err := s.store.Get(ctx, tenantID, modelID)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, domain.ErrModelNotFound
	}
	return model, nil
}

// List returns all models for comparison and reporting, newest first.
func (s *Service) List(ctx context.Context, tenantID string) ([]Model, error) {
	return s.store.List(ctx, tenantID)
}
