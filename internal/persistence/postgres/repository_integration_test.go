//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/classification/internal/domain"
	"example.com/classification/internal/registry"
)

func setupRepository(t *testing.T, ctx context.Context) *Repository {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("classification"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))
	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return NewRepository(pool)
}

func storedRecord(t *testing.T, ctx context.Context, repo *Repository, tenantID string, startedAt time.Time) domain.ActivityRecord {
	t.Helper()
	rec := domain.ActivityRecord{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		UserID:      uuid.NewString(),
		StartedAt:   startedAt,
		DistanceKm:  3,
		DurationMin: 30,
		PaceMinKm:   10,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, repo.SaveRecord(ctx, rec))
	return rec
}

func TestRepositoryRespectsTenantIsolation(t *testing.T) {
	ctx := context.Background()
	repo := setupRepository(t, ctx)

	tenantID := uuid.NewString()
	rec := storedRecord(t, ctx, repo, tenantID, time.Now().UTC())

	stored, err := repo.GetRecords(ctx, tenantID, []string{rec.ID})
	require.NoError(t, err)
	require.Len(t, stored, 1)

	other, err := repo.GetRecords(ctx, uuid.NewString(), []string{rec.ID})
	require.NoError(t, err)
	require.Empty(t, other, "RLS should prevent cross-tenant access")
}

func TestRepositoryDecisionBatchUpdatesCurrentState(t *testing.T) {
	ctx := context.Background()
	repo := setupRepository(t, ctx)

	tenantID := uuid.NewString()
	rec := storedRecord(t, ctx, repo, tenantID, time.Now().UTC())

	decide := func(label domain.Label) domain.Decision {
		return domain.Decision{
			ID:         uuid.NewString(),
			TenantID:   tenantID,
			RecordID:   rec.ID,
			NewLabel:   label,
			Source:     domain.SourceRuleFallback,
			Confidence: 0.4,
			Reason:     "integration",
			DecidedAt:  time.Now().UTC(),
		}
	}

	for _, label := range []domain.Label{domain.LabelRun, domain.LabelWalk, domain.LabelMixed} {
		err := repo.SaveDecisions(ctx, domain.DecisionBatch{
			TenantID:  tenantID,
			Decisions: []domain.Decision{decide(label)},
		})
		require.NoError(t, err)
	}

	currents, err := repo.CurrentLabels(ctx, tenantID, []string{rec.ID})
	require.NoError(t, err)
	current := currents[rec.ID]
	require.Equal(t, domain.LabelMixed, current.Label)
	require.Equal(t, 3, current.ChangeCount)

	history, next, err := repo.History(ctx, tenantID, rec.ID, nil, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.NotNil(t, next)
	require.Equal(t, domain.LabelMixed, history[0].NewLabel)

	rest, _, err := repo.History(ctx, tenantID, rec.ID, next, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, domain.LabelRun, rest[0].NewLabel)
}

func TestRepositoryActivationKeepsSingleActiveModel(t *testing.T) {
	ctx := context.Background()
	repo := setupRepository(t, ctx)

	tenantID := uuid.NewString()
	insert := func() registry.Model {
		m := registry.Model{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			Version:   "v" + uuid.NewString()[:4],
			Status:    registry.StatusTraining,
			TrainedAt: time.Now().UTC(),
		}
		require.NoError(t, repo.Insert(ctx, m))
		return m
	}

	first := insert()
	second := insert()

	require.NoError(t, repo.Activate(ctx, tenantID, first.ID))
	require.NoError(t, repo.Activate(ctx, tenantID, second.ID))

	active, err := repo.Active(ctx, tenantID)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, second.ID, active.ID)

	archived, err := repo.Get(ctx, tenantID, first.ID)
	require.NoError(t, err)
	require.Equal(t, registry.StatusArchived, archived.Status)

	// Archived is terminal: re-activation must fail.
	err = repo.Activate(ctx, tenantID, first.ID)
	require.ErrorIs(t, err, domain.ErrActivationConflict)
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_init.up.sql",
		"../../../db/postgres/migrations/0002_outbox_dlq_retry.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
