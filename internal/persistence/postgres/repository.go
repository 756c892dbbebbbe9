// Package postgres provides pgx-backed persistence for records, decisions,
// models, feedback, and outbox events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/classification/internal/analysis"
	"example.com/classification/internal/cluster"
	"example.com/classification/internal/domain"
	"example.com/classification/internal/events"
	"example.com/classification/internal/registry"
)

// Repository provides Postgres-backed persistence for the classification
// service. Every operation scopes its transaction to the tenant via
// app.tenant_id so row-level security applies.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func setTenant(ctx context.Context, tx pgx.Tx, tenantID string) error {
	_, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID)
	return err
}

// SaveRecord persists an imported activity record. Replays of the same ingest
// event are ignored.
func (r *Repository) SaveRecord(ctx context.Context, rec domain.ActivityRecord) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = setTenant(ctx, tx, rec.TenantID); err != nil {
		return err
	}

	const stmt = `INSERT INTO activity_record (record_id, tenant_id, user_id, started_at, distance_km, duration_min, pace_min_km, steps, calories, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (record_id) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		rec.ID,
		rec.TenantID,
		rec.UserID,
		rec.StartedAt,
		rec.DistanceKm,
		rec.DurationMin,
		rec.PaceMinKm,
		rec.Steps,
		rec.Calories,
		rec.CreatedAt,
	)
	if err != nil {
		return err
	}
	err = tx.Commit(ctx)
	return err
}

const recordColumns = `record_id, tenant_id, user_id, started_at, distance_km, duration_min, pace_min_km, steps, calories, created_at`

func scanRecord(row pgx.Row) (domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	err := row.Scan(&rec.ID, &rec.TenantID, &rec.UserID, &rec.StartedAt, &rec.DistanceKm, &rec.DurationMin, &rec.PaceMinKm, &rec.Steps, &rec.Calories, &rec.CreatedAt)
	return rec, err
}

// GetRecords fetches records by id, skipping ids that do not exist.
func (r *Repository) GetRecords(ctx context.Context, tenantID string, ids []string) ([]domain.ActivityRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM activity_record WHERE tenant_id=$1 AND record_id = ANY($2) ORDER BY started_at, record_id`
	return r.queryRecords(ctx, tenantID, query, tenantID, ids)
}

// ListRecordsByWindow returns records whose start time falls in [from, to).
func (r *Repository) ListRecordsByWindow(ctx context.Context, tenantID string, from, to time.Time) ([]domain.ActivityRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM activity_record WHERE tenant_id=$1 AND started_at >= $2 AND started_at < $3 ORDER BY started_at, record_id`
	return r.queryRecords(ctx, tenantID, query, tenantID, from, to)
}

func (r *Repository) queryRecords(ctx context.Context, tenantID, query string, args ...interface{}) ([]domain.ActivityRecord, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActivityRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// CurrentLabels returns the materialized classification for each record id
// that has one.
func (r *Repository) CurrentLabels(ctx context.Context, tenantID string, recordIDs []string) (map[string]domain.CurrentClassification, error) {
	const query = `SELECT record_id, tenant_id, label, confidence, source, COALESCE(model_id, ''), is_override, change_count, updated_at
        FROM current_classification WHERE tenant_id=$1 AND record_id = ANY($2)`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, tenantID, recordIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.CurrentClassification)
	for rows.Next() {
		var c domain.CurrentClassification
		if err := rows.Scan(&c.RecordID, &c.TenantID, &c.Label, &c.Confidence, &c.Source, &c.ModelID, &c.IsOverride, &c.ChangeCount, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out[c.RecordID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveDecisions writes the audit rows, refreshes the materialized current
// state, and records outbox events inside a single transaction.
func (r *Repository) SaveDecisions(ctx context.Context, batch domain.DecisionBatch) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = setTenant(ctx, tx, batch.TenantID); err != nil {
		return err
	}

	for _, d := range batch.Decisions {
		if err = insertDecision(ctx, tx, d, false); err != nil {
			return err
		}
		// Decisions repeat per record across runs, so the dedupe key is the
		// decision id, not the record id.
		if err = r.insertOutbox(ctx, tx, batch.TenantID, "classification", d.RecordID, d.ID, "classification.decided", decidedEvent(d)); err != nil {
			return err
		}
	}

	err = tx.Commit(ctx)
	return err
}

func insertDecision(ctx context.Context, tx pgx.Tx, d domain.Decision, override bool) error {
	const insertStmt = `INSERT INTO classification_decision (decision_id, tenant_id, record_id, model_id, previous_label, new_label, source, confidence, reason, decided_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	if _, err := tx.Exec(ctx, insertStmt,
		d.ID,
		d.TenantID,
		d.RecordID,
		nullIfEmpty(d.ModelID),
		nullIfEmpty(string(d.PreviousLabel)),
		d.NewLabel,
		d.Source,
		d.Confidence,
		d.Reason,
		d.DecidedAt,
	); err != nil {
		return err
	}

	const upsertStmt = `INSERT INTO current_classification (record_id, tenant_id, label, confidence, source, model_id, is_override, change_count, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,1,$8)
        ON CONFLICT (record_id) DO UPDATE SET
            label = EXCLUDED.label,
            confidence = EXCLUDED.confidence,
            source = EXCLUDED.source,
            model_id = EXCLUDED.model_id,
            is_override = EXCLUDED.is_override,
            change_count = current_classification.change_count + 1,
            updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, upsertStmt,
		d.RecordID,
		d.TenantID,
		d.NewLabel,
		d.Confidence,
		d.Source,
		nullIfEmpty(d.ModelID),
		override,
		d.DecidedAt,
	)
	return err
}

// History returns the audit trail for a record, newest first, keyset-paginated
// on (decided_at, decision_id).
func (r *Repository) History(ctx context.Context, tenantID, recordID string, cursor *domain.Cursor, limit int) ([]domain.Decision, *domain.Cursor, error) {
	args := []interface{}{tenantID, recordID, limit}
	query := `SELECT decision_id, tenant_id, record_id, COALESCE(model_id, ''), COALESCE(previous_label, ''), new_label, source, confidence, reason, decided_at
        FROM classification_decision WHERE tenant_id=$1 AND record_id=$2`

	if cursor != nil {
		query += ` AND (decided_at, decision_id) < ($4, $5)`
		args = append(args, cursor.DecidedAt, cursor.ID)
	}
	query += ` ORDER BY decided_at DESC, decision_id DESC LIMIT $3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, tenantID); err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Decision, 0, limit)
	for rows.Next() {
		var d domain.Decision
		if err := rows.Scan(&d.ID, &d.TenantID, &d.RecordID, &d.ModelID, &d.PreviousLabel, &d.NewLabel, &d.Source, &d.Confidence, &d.Reason, &d.DecidedAt); err != nil {
			return nil, nil, err
		}
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{DecidedAt: last.DecidedAt, ID: last.ID}
	}
	return results, next, nil
}

// SaveFeedback stores the correction, the user-override decision, and the
// outbox event in one transaction.
func (r *Repository) SaveFeedback(ctx context.Context, fb domain.Feedback, decision domain.Decision) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = setTenant(ctx, tx, fb.TenantID); err != nil {
		return err
	}

	const stmt = `INSERT INTO user_feedback (feedback_id, tenant_id, record_id, ai_label, ai_confidence, user_label, certainty, comments, processed, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	if _, err = tx.Exec(ctx, stmt,
		fb.ID,
		fb.TenantID,
		fb.RecordID,
		nullIfEmpty(string(fb.AILabel)),
		fb.AIConfidence,
		fb.UserLabel,
		fb.Certainty,
		fb.Comments,
		fb.Processed,
		fb.CreatedAt,
	); err != nil {
		return err
	}

	if err = insertDecision(ctx, tx, decision, true); err != nil {
		return err
	}

	if err = r.insertOutbox(ctx, tx, fb.TenantID, "feedback", fb.RecordID, fb.ID, "feedback.received", events.FeedbackReceived{
		FeedbackID: fb.ID,
		TenantID:   fb.TenantID,
		RecordID:   fb.RecordID,
		AILabel:    string(fb.AILabel),
		UserLabel:  string(fb.UserLabel),
		Certainty:  fb.Certainty,
		CreatedAt:  fb.CreatedAt,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

const modelColumns = `model_id, tenant_id, version, status, parent_model_id, payload, trained_from, trained_to, training_size, inertia, trained_at`

func scanModel(row pgx.Row) (*registry.Model, error) {
	var (
		m       registry.Model
		payload []byte
	)
	if err := row.Scan(&m.ID, &m.TenantID, &m.Version, &m.Status, &m.ParentModelID, &payload, &m.TrainedFrom, &m.TrainedTo, &m.Metrics.TrainingSize, &m.Metrics.Inertia, &m.TrainedAt); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		var cm cluster.Model
		if err := json.Unmarshal(payload, &cm); err != nil {
			return nil, fmt.Errorf("decode model %s payload: %w", m.ID, err)
		}
		m.Payload = &cm
	}
	return &m, nil
}

// Insert stores a registered model.
func (r *Repository) Insert(ctx context.Context, model registry.Model) error {
	payload, err := json.Marshal(model.Payload)
	if err != nil {
		return fmt.Errorf("encode model payload: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = setTenant(ctx, tx, model.TenantID); err != nil {
		return err
	}

	const stmt = `INSERT INTO classification_model (model_id, tenant_id, version, status, parent_model_id, payload, trained_from, trained_to, training_size, inertia, trained_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`

	_, err = tx.Exec(ctx, stmt,
		model.ID,
		model.TenantID,
		model.Version,
		model.Status,
		model.ParentModelID,
		payload,
		model.TrainedFrom,
		model.TrainedTo,
		model.Metrics.TrainingSize,
		model.Metrics.Inertia,
		model.TrainedAt,
	)
	if err != nil {
		return err
	}
	err = tx.Commit(ctx)
	return err
}

// Get fetches a model by id, or nil when absent.
func (r *Repository) Get(ctx context.Context, tenantID, modelID string) (*registry.Model, error) {
	return r.queryModel(ctx, tenantID,
		`SELECT `+modelColumns+` FROM classification_model WHERE tenant_id=$1 AND model_id=$2`,
		tenantID, modelID)
}

// Active returns the single active model, or nil when none is active.
func (r *Repository) Active(ctx context.Context, tenantID string) (*registry.Model, error) {
	return r.queryModel(ctx, tenantID,
		`SELECT `+modelColumns+` FROM classification_model WHERE tenant_id=$1 AND status='active'`,
		tenantID)
}

func (r *Repository) queryModel(ctx context.Context, tenantID, query string, args ...interface{}) (*registry.Model, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, tenantID); err != nil {
		return nil, err
	}

	model, err := scanModel(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return model, nil
}

// List returns all models for the tenant, newest first.
func (r *Repository) List(ctx context.Context, tenantID string) ([]registry.Model, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `SELECT `+modelColumns+` FROM classification_model WHERE tenant_id=$1 ORDER BY trained_at DESC, model_id DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []registry.Model
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// Activate archives the current active model and promotes the target in one
// transaction. The guarded UPDATE makes concurrent activations serialize on
// the row locks, so exactly one wins.
func (r *Repository) Activate(ctx context.Context, tenantID, modelID string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = setTenant(ctx, tx, tenantID); err != nil {
		return err
	}

	var version string
	err = tx.QueryRow(ctx,
		`SELECT version FROM classification_model WHERE tenant_id=$1 AND model_id=$2 AND status IN ('training','active') FOR UPDATE`,
		tenantID, modelID).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = fmt.Errorf("%w: model %s not activatable", domain.ErrActivationConflict, modelID)
		}
		return err
	}

	if _, err = tx.Exec(ctx,
		`UPDATE classification_model SET status='archived', updated_at=NOW() WHERE tenant_id=$1 AND status='active' AND model_id<>$2`,
		tenantID, modelID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE classification_model SET status='active', updated_at=NOW() WHERE tenant_id=$1 AND model_id=$2`,
		tenantID, modelID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		err = fmt.Errorf("%w: model %s not activatable", domain.ErrActivationConflict, modelID)
		return err
	}

	if err = r.insertOutbox(ctx, tx, tenantID, "model", modelID, modelID, "model.activated", events.ModelActivated{
		ModelID:     modelID,
		TenantID:    tenantID,
		Version:     version,
		ActivatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

// UpdateStatus sets the lifecycle status of a model.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID, modelID string, status registry.Status) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = setTenant(ctx, tx, tenantID); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE classification_model SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND model_id=$2`,
		tenantID, modelID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		err = domain.ErrModelNotFound
		return err
	}
	err = tx.Commit(ctx)
	return err
}

// Sessions returns classified sessions inside [from, to) for brief analysis.
func (r *Repository) Sessions(ctx context.Context, tenantID string, from, to time.Time) ([]analysis.Session, error) {
	const query = `SELECT r.started_at, r.pace_min_km, c.label
        FROM activity_record r
        JOIN current_classification c ON c.record_id = r.record_id
        WHERE r.tenant_id=$1 AND r.started_at >= $2 AND r.started_at < $3
        ORDER BY r.started_at, r.record_id`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analysis.Session
	for rows.Next() {
		var s analysis.Session
		if err := rows.Scan(&s.StartedAt, &s.PaceMinKm, &s.Label); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// SourceBreakdown counts current labels by decision source inside [from, to).
func (r *Repository) SourceBreakdown(ctx context.Context, tenantID string, from, to time.Time) (map[domain.Source]int, error) {
	const query = `SELECT c.source, COUNT(*)
        FROM activity_record r
        JOIN current_classification c ON c.record_id = r.record_id
        WHERE r.tenant_id=$1 AND r.started_at >= $2 AND r.started_at < $3
        GROUP BY c.source`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := setTenant(ctx, tx, tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.Source]int)
	for rows.Next() {
		var (
			source domain.Source
			count  int
		)
		if err := rows.Scan(&source, &count); err != nil {
			return nil, err
		}
		out[source] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func decidedEvent(d domain.Decision) events.ClassificationDecided {
	return events.ClassificationDecided{
		DecisionID:    d.ID,
		TenantID:      d.TenantID,
		RecordID:      d.RecordID,
		ModelID:       d.ModelID,
		PreviousLabel: string(d.PreviousLabel),
		NewLabel:      string(d.NewLabel),
		Source:        string(d.Source),
		Confidence:    d.Confidence,
		DecidedAt:     d.DecidedAt,
	}
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, tenantID, aggregateType, aggregateID, dedupeID, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}
	dedupeKey := fmt.Sprintf("%s:%s", dedupeID, eventType)

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		tenantID,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKey(tenantID, aggregateID),
		body,
		dedupeKey,
	)
	return err
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
	PartitionKey  func(tenantID, aggregateID string) string
}

func tenantScopedKey(tenantID, aggregateID string) string {
	return fmt.Sprintf("%s:%s", tenantID, aggregateID)
}

var eventCatalog = map[string]EventMetadata{
	"classification.decided": {
		Topic:         "classification_decisions",
		SchemaSubject: "classification_decisions-value",
		PartitionKey:  tenantScopedKey,
	},
	"model.activated": {
		Topic:         "classification_models",
		SchemaSubject: "classification_models-value",
		PartitionKey:  func(tenantID, _ string) string { return tenantID },
	},
	"feedback.received": {
		Topic:         "classification_feedback",
		SchemaSubject: "classification_feedback-value",
		PartitionKey:  tenantScopedKey,
	},
}
