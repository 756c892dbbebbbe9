package brief

import (
	"context"
	"time"

	"example.com/classification/internal/registry"
)

// ModelSource resolves the active model so cache keys carry model lineage.
type ModelSource interface {
	Active(ctx context.Context, tenantID string) (*registry.Model, error)
}

// Service fronts the Builder with the Redis cache. A nil cache disables
// caching entirely.
type Service struct {
	builder *Builder
	cache   *Cache
	models  ModelSource
}

// NewService constructs a Service.
func NewService(builder *Builder, cache *Cache, models ModelSource) *Service {
	return &Service{builder: builder, cache: cache, models: models}
}

// Get returns the brief for the window, served from cache when the tenant
// generation and active model still match.
func (s *Service) Get(ctx context.Context, tenantID string, from, to time.Time) (*Brief, error) {
	modelID := ""
	if s.models != nil {
		active, err := s.models.Active(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if active != nil {
			modelID = active.ID
		}
	}

	if s.cache != nil {
		if cached := s.cache.Get(ctx, tenantID, modelID, from, to); cached != nil {
			return cached, nil
		}
	}

	brief, err := s.builder.Build(ctx, tenantID, modelID, from, to)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, brief)
	}
	return brief, nil
}
