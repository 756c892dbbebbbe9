// Package engine orchestrates classification runs: validation, strategy
// selection, decision building, and atomic persistence of the audit batch.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"example.com/classification/internal/domain"
	"example.com/classification/internal/fallback"
	"example.com/classification/internal/features"
	"example.com/classification/internal/observability"
	"example.com/classification/internal/registry"
)

// RecordRepository supplies immutable activity records.
type RecordRepository interface {
	GetRecords(ctx context.Context, tenantID string, ids []string) ([]domain.ActivityRecord, error)
	ListRecordsByWindow(ctx context.Context, tenantID string, from, to time.Time) ([]domain.ActivityRecord, error)
}

// DecisionRepository persists audit entries and the materialized current
// state. SaveDecisions must write the full batch atomically: every audit row
// lands before or together with its current-state update, never after.
type DecisionRepository interface {
	CurrentLabels(ctx context.Context, tenantID string, recordIDs []string) (map[string]domain.CurrentClassification, error)
	SaveDecisions(ctx context.Context, batch domain.DecisionBatch) error
	History(ctx context.Context, tenantID, recordID string, cursor *domain.Cursor, limit int) ([]domain.Decision, *domain.Cursor, error)
	SaveFeedback(ctx context.Context, fb domain.Feedback, decision domain.Decision) error
}

// ModelProvider resolves the currently active model. The engine loads it once
// per batch so an activation mid-run never mixes models within a batch.
type ModelProvider interface {
	Active(ctx context.Context, tenantID string) (*registry.Model, error)
}

// CacheInvalidator drops derived analysis caches after new decisions land.
type CacheInvalidator interface {
	InvalidateTenant(ctx context.Context, tenantID string)
}

// Service runs classification batches.
type Service struct {
	records     RecordRepository
	decisions   DecisionRepository
	models      ModelProvider
	eraCutoff   time.Time
	invalidator CacheInvalidator
}

// NewService constructs a Service. The invalidator may be nil.
func NewService(records RecordRepository, decisions DecisionRepository, models ModelProvider, eraCutoff time.Time, invalidator CacheInvalidator) *Service {
	return &Service{
		records:     records,
		decisions:   decisions,
		models:      models,
		eraCutoff:   eraCutoff,
		invalidator: invalidator,
	}
}

// ClassifyInput selects records either by explicit ids or by a time window.
type ClassifyInput struct {
	TenantID  string
	RecordIDs []string
	From      time.Time
	To        time.Time
}

// ClassifiedRecord is one labeled record in the response.
type ClassifiedRecord struct {
	RecordID      string
	Label         domain.Label
	Confidence    float64
	Source        domain.Source
	PreviousLabel domain.Label
}

// ClassifyResult reports the batch outcome, including per-record validation
// failures. Partial success is allowed: invalid records are skipped, the rest
// of the batch proceeds.
type ClassifyResult struct {
	ModelID string
	Source  domain.Source
	Items   []ClassifiedRecord
	Invalid []domain.InvalidRecordError
}

// Classify labels the selected records through the first applicable strategy
// tier and persists the audit batch atomically. Structural errors (an
// unmapped cluster id, storage failures) abort the whole batch.
func (s *Service) Classify(ctx context.Context, input ClassifyInput) (*ClassifyResult, error) {
	start := time.Now()

	records, err := s.loadRecords(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &ClassifyResult{}, nil
	}

	// Pin the active model for the whole batch.
	active, err := s.models.Active(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}

	ml := &fallback.MLStrategy{}
	modelID := ""
	if active != nil {
		ml.Model = active.Payload
		modelID = active.ID
	}

	resolver := fallback.NewResolver(
		ml,
		&fallback.EraStrategy{Cutoff: s.eraCutoff, Before: domain.LabelWalk, After: domain.LabelRun},
		fallback.NewRuleStrategy(),
	)
	strategy, err := resolver.Active()
	if err != nil {
		return nil, err
	}
	if strategy.Source() != domain.SourceMLPrediction {
		// Degraded tiers carry no model lineage.
		modelID = ""
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	currents, err := s.decisions.CurrentLabels(ctx, input.TenantID, ids)
	if err != nil {
		return nil, err
	}

	result := &ClassifyResult{ModelID: modelID, Source: strategy.Source()}
	now := time.Now().UTC()
	batch := domain.DecisionBatch{TenantID: input.TenantID, ModelID: modelID}

	for _, rec := range records {
		if invalid := features.Validate(rec); invalid != nil {
			observability.RecordInvalidRecord()
			result.Invalid = append(result.Invalid, *invalid)
			continue
		}

		outcome, err := strategy.Resolve(rec)
		if err != nil {
			return nil, err
		}

		previous := currents[rec.ID].Label
		batch.Decisions = append(batch.Decisions, domain.Decision{
			ID:            uuid.NewString(),
			TenantID:      input.TenantID,
			RecordID:      rec.ID,
			ModelID:       modelID,
			PreviousLabel: previous,
			NewLabel:      outcome.Label,
			Source:        outcome.Source,
			Confidence:    outcome.Confidence,
			Reason:        outcome.Reason,
			DecidedAt:     now,
		})
		result.Items = append(result.Items, ClassifiedRecord{
			RecordID:      rec.ID,
			Label:         outcome.Label,
			Confidence:    outcome.Confidence,
			Source:        outcome.Source,
			PreviousLabel: previous,
		})
	}

	if len(batch.Decisions) > 0 {
		if err := s.decisions.SaveDecisions(ctx, batch); err != nil {
			return nil, err
		}
		for _, d := range batch.Decisions {
			observability.RecordDecision(string(d.Source), string(d.NewLabel))
		}
		observability.RecordDecisionPersisted(now)
		if s.invalidator != nil {
			s.invalidator.InvalidateTenant(ctx, input.TenantID)
		}
	}

	observability.ObserveBatch(time.Since(start))
	return result, nil
}

func (s *Service) loadRecords(ctx context.Context, input ClassifyInput) ([]domain.ActivityRecord, error) {
	if len(input.RecordIDs) > 0 {
		return s.records.GetRecords(ctx, input.TenantID, input.RecordIDs)
	}
	return s.records.ListRecordsByWindow(ctx, input.TenantID, input.From, input.To)
}

// FeedbackInput is a user correction on a classified record.
type FeedbackInput struct {
	TenantID  string
	RecordID  string
	UserLabel domain.Label
	Certainty float64
	Comments  string
}

// SubmitFeedback stores the correction and records a user-override decision
// in the same transaction, so the audit trail and current state move
// together.
func (s *Service) SubmitFeedback(ctx context.Context, input FeedbackInput) (*domain.Feedback, error) {
	currents, err := s.decisions.CurrentLabels(ctx, input.TenantID, []string{input.RecordID})
	if err != nil {
		return nil, err
	}
	current := currents[input.RecordID]

	now := time.Now().UTC()
	fb := domain.Feedback{
		ID:           uuid.NewString(),
		TenantID:     input.TenantID,
		RecordID:     input.RecordID,
		AILabel:      current.Label,
		AIConfidence: current.Confidence,
		UserLabel:    input.UserLabel,
		Certainty:    input.Certainty,
		Comments:     input.Comments,
		CreatedAt:    now,
	}
	decision := domain.Decision{
		ID:            uuid.NewString(),
		TenantID:      input.TenantID,
		RecordID:      input.RecordID,
		ModelID:       current.ModelID,
		PreviousLabel: current.Label,
		NewLabel:      input.UserLabel,
		Source:        domain.SourceUserOverride,
		Confidence:    input.Certainty,
		Reason:        "user feedback",
		DecidedAt:     now,
	}

	if err := s.decisions.SaveFeedback(ctx, fb, decision); err != nil {
		return nil, err
	}

	observability.RecordDecision(string(domain.SourceUserOverride), string(input.UserLabel))
	if s.invalidator != nil {
		s.invalidator.InvalidateTenant(ctx, input.TenantID)
	}
	return &fb, nil
}

// History returns the ordered audit trail for a record.
func (s *Service) History(ctx context.Context, tenantID, recordID string, cursor *domain.Cursor, limit int) ([]domain.Decision, *domain.Cursor, error) {
	return s.decisions.History(ctx, tenantID, recordID, cursor, limit)
}
