package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/classification/internal/domain"
	"example.com/classification/internal/events"
)

// RecordStore persists imported activity records.
type RecordStore interface {
	SaveRecord(ctx context.Context, rec domain.ActivityRecord) error
}

// IngestHandler consumes upstream activity events and materializes immutable
// activity records for later classification.
type IngestHandler struct {
	store RecordStore
}

// NewIngestHandler constructs a handler backed by the provided store.
func NewIngestHandler(store RecordStore) *IngestHandler {
	return &IngestHandler{store: store}
}

// Handle stores imported activities. Event types this service does not ingest
// are committed without action.
func (h *IngestHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != "activity.imported" {
		return nil
	}

	var evt events.ActivityImported
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return fmt.Errorf("decode activity.imported: %w", err)
	}
	if evt.ActivityID == "" || evt.TenantID == "" {
		return fmt.Errorf("activity.imported missing identifiers")
	}
	if evt.DistanceKm <= 0 || evt.DurationMin <= 0 {
		return fmt.Errorf("activity %s has non-positive distance or duration", evt.ActivityID)
	}

	return h.store.SaveRecord(ctx, domain.ActivityRecord{
		ID:          evt.ActivityID,
		TenantID:    evt.TenantID,
		UserID:      evt.UserID,
		StartedAt:   evt.StartedAt,
		DistanceKm:  evt.DistanceKm,
		DurationMin: evt.DurationMin,
		PaceMinKm:   evt.DurationMin / evt.DistanceKm,
		Steps:       evt.Steps,
		Calories:    evt.Calories,
		CreatedAt:   time.Now().UTC(),
	})
}
