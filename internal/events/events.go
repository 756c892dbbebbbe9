// Package events defines the payloads published to and consumed from Kafka.
package events

import "time"

// ClassificationDecided is emitted for every audit decision persisted by a
// classification run.
type ClassificationDecided struct {
	DecisionID    string    `json:"decision_id"`
	TenantID      string    `json:"tenant_id"`
	RecordID      string    `json:"record_id"`
	ModelID       string    `json:"model_id,omitempty"`
	PreviousLabel string    `json:"previous_label,omitempty"`
	NewLabel      string    `json:"new_label"`
	Source        string    `json:"source"`
	Confidence    float64   `json:"confidence"`
	DecidedAt     time.Time `json:"decided_at"`
}

// ModelActivated is emitted when a model wins activation.
type ModelActivated struct {
	ModelID     string    `json:"model_id"`
	TenantID    string    `json:"tenant_id"`
	Version     string    `json:"version"`
	ActivatedAt time.Time `json:"activated_at"`
}

// FeedbackReceived is emitted when a user corrects an AI-assigned label.
type FeedbackReceived struct {
	FeedbackID string    `json:"feedback_id"`
	TenantID   string    `json:"tenant_id"`
	RecordID   string    `json:"record_id"`
	AILabel    string    `json:"ai_label"`
	UserLabel  string    `json:"user_label"`
	Certainty  float64   `json:"certainty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActivityImported is the upstream ingest event this service consumes to
// populate activity records.
type ActivityImported struct {
	ActivityID  string    `json:"activity_id"`
	TenantID    string    `json:"tenant_id"`
	UserID      string    `json:"user_id"`
	StartedAt   time.Time `json:"started_at"`
	DistanceKm  float64   `json:"distance_km"`
	DurationMin float64   `json:"duration_min"`
	Steps       int       `json:"steps,omitempty"`
	Calories    int       `json:"calories,omitempty"`
}
