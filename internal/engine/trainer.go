package engine

import (
	"context"
	"time"

	"example.com/classification/internal/cluster"
	"example.com/classification/internal/domain"
	"example.com/classification/internal/features"
	"example.com/classification/internal/observability"
	"example.com/classification/internal/registry"
)

// Trainer builds new models from a training window and registers them.
type Trainer struct {
	records  RecordRepository
	registry *registry.Service
	seed     int64
}

// NewTrainer constructs a Trainer. The seed fixes centroid initialization so
// retraining over the same window reproduces the same model.
func NewTrainer(records RecordRepository, reg *registry.Service, seed int64) *Trainer {
	return &Trainer{records: records, registry: reg, seed: seed}
}

// Train clusters the records inside [from, to) and registers the resulting
// model in status training. Records that fail validation are reported and
// excluded from the fit, so a single corrupt row cannot skew the scaler.
// Windows whose valid records fall below the clustering minimum fail with
// domain.ErrInsufficientTrainingData and register nothing.
func (t *Trainer) Train(ctx context.Context, tenantID string, from, to time.Time, parentModelID *string) (*registry.Model, []domain.InvalidRecordError, error) {
	records, err := t.records.ListRecordsByWindow(ctx, tenantID, from, to)
	if err != nil {
		return nil, nil, err
	}

	valid := make([]domain.ActivityRecord, 0, len(records))
	var invalid []domain.InvalidRecordError
	for _, rec := range records {
		if flagged := features.Validate(rec); flagged != nil {
			observability.RecordInvalidRecord()
			invalid = append(invalid, *flagged)
			continue
		}
		valid = append(valid, rec)
	}

	payload, err := cluster.Train(valid, t.seed)
	if err != nil {
		return nil, invalid, err
	}

	model, err := t.registry.Register(ctx, tenantID, payload, registry.Metadata{
		ParentModelID: parentModelID,
		TrainedFrom:   from,
		TrainedTo:     to,
	})
	if err != nil {
		return nil, invalid, err
	}
	return model, invalid, nil
}
