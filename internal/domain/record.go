// Package domain defines the business logic for the classification service.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Label is the semantic activity label assigned to a record.
type Label string

const (
	LabelRun     Label = "run"
	LabelWalk    Label = "walk"
	LabelMixed   Label = "mixed"
	LabelOutlier Label = "outlier"
)

// Valid reports whether the label is one of the known values.
func (l Label) Valid() bool {
	switch l {
	case LabelRun, LabelWalk, LabelMixed, LabelOutlier:
		return true
	}
	return false
}

// Source identifies which tier produced a classification decision.
type Source string

const (
	SourceImport       Source = "import"
	SourceMLPrediction Source = "ml-prediction"
	SourceEraFallback  Source = "era-fallback"
	SourceRuleFallback Source = "rule-fallback"
	SourceUserOverride Source = "user-override"
)

// ActivityRecord is one logged exercise session. Records are created at import
// time and never mutated by classification.
type ActivityRecord struct {
	ID          string
	TenantID    string
	UserID      string
	StartedAt   time.Time
	DistanceKm  float64
	DurationMin float64
	PaceMinKm   float64
	Steps       int
	Calories    int
	CreatedAt   time.Time
}

// InvalidRecordError flags a record that failed validation. The record is
// reported and skipped; the rest of the batch continues.
type InvalidRecordError struct {
	RecordID string
	Field    string
	Reason   string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid record %s: %s %s", e.RecordID, e.Field, e.Reason)
}

var (
	// ErrInsufficientTrainingData means the training window holds fewer records
	// than the clustering minimum. Callers fall back to a lower tier.
	ErrInsufficientTrainingData = errors.New("insufficient training data for clustering")
	// ErrUnmappedCluster means a cluster id produced at predict time has no
	// label mapping. This is a hard failure, never a silent default.
	ErrUnmappedCluster = errors.New("cluster id has no label mapping")
	// ErrActivationConflict means a model activation lost the compare-and-swap
	// or targeted a missing/terminal model. The active model is unchanged.
	ErrActivationConflict = errors.New("model activation conflict")
	// ErrRecordNotFound is returned when a record cannot be located.
	ErrRecordNotFound = errors.New("activity record not found")
	// ErrModelNotFound is returned when a model cannot be located.
	ErrModelNotFound = errors.New("classification model not found")
)

// Decision is one append-only audit entry. Multiple rows accumulate per record
// across classification runs.
type Decision struct {
	ID            string
	TenantID      string
	RecordID      string
	ModelID       string
	PreviousLabel Label
	NewLabel      Label
	Source        Source
	Confidence    float64
	Reason        string
	DecidedAt     time.Time
}

// CurrentClassification is the materialized current label for a record,
// overwritten on each new decision.
type CurrentClassification struct {
	RecordID    string
	TenantID    string
	Label       Label
	Confidence  float64
	Source      Source
	ModelID     string
	IsOverride  bool
	ChangeCount int
	UpdatedAt   time.Time
}

// DecisionBatch groups the decisions of one classification run. The whole
// batch persists atomically: audit rows and current-state updates commit or
// roll back together.
type DecisionBatch struct {
	TenantID  string
	ModelID   string
	Decisions []Decision
}

// Cursor models the pagination token for decision history.
type Cursor struct {
	DecidedAt time.Time
	ID        string
}

// Feedback is a user correction on an AI-assigned label, queued for future
// retraining.
type Feedback struct {
	ID           string
	TenantID     string
	RecordID     string
	AILabel      Label
	AIConfidence float64
	UserLabel    Label
	Certainty    float64
	Comments     string
	Processed    bool
	CreatedAt    time.Time
}
