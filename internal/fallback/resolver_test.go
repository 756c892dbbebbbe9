package fallback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/classification/internal/cluster"
	"example.com/classification/internal/domain"
	"example.com/classification/internal/features"
)

func record(pace float64, startedAt time.Time) domain.ActivityRecord {
	return domain.ActivityRecord{
		ID:          "rec-1",
		TenantID:    "tenant-1",
		UserID:      "user-1",
		StartedAt:   startedAt,
		PaceMinKm:   pace,
		DistanceKm:  3,
		DurationMin: pace * 3,
	}
}

func TestResolverSkipsMLWithoutModel(t *testing.T) {
	cutoff := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	resolver := NewResolver(
		&MLStrategy{Model: nil},
		&EraStrategy{Cutoff: cutoff, Before: domain.LabelWalk, After: domain.LabelRun},
		NewRuleStrategy(),
	)

	out, err := resolver.Resolve(record(10, cutoff.AddDate(0, 1, 0)))
	require.NoError(t, err)
	require.Equal(t, domain.SourceEraFallback, out.Source)
	require.Equal(t, domain.LabelRun, out.Label)
	require.Equal(t, EraConfidence, out.Confidence)
}

func TestResolverSkipsMLWhenModelUndertrained(t *testing.T) {
	model := &cluster.Model{TrainingSize: features.MinTrainingRecords - 1}
	resolver := NewResolver(
		&MLStrategy{Model: model},
		NewRuleStrategy(),
	)

	out, err := resolver.Resolve(record(6, time.Now()))
	require.NoError(t, err)
	require.Equal(t, domain.SourceRuleFallback, out.Source)
	require.Equal(t, domain.LabelRun, out.Label)
}

func TestEraStrategySplitsOnCutoff(t *testing.T) {
	cutoff := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	era := &EraStrategy{Cutoff: cutoff, Before: domain.LabelWalk, After: domain.LabelRun}

	before, err := era.Resolve(record(10, cutoff.AddDate(-1, 0, 0)))
	require.NoError(t, err)
	require.Equal(t, domain.LabelWalk, before.Label)

	after, err := era.Resolve(record(10, cutoff.AddDate(1, 0, 0)))
	require.NoError(t, err)
	require.Equal(t, domain.LabelRun, after.Label)
}

func TestRuleStrategyThresholds(t *testing.T) {
	rule := NewRuleStrategy()

	cases := []struct {
		pace float64
		want domain.Label
	}{
		{5.5, domain.LabelRun},
		{7.0, domain.LabelRun},
		{10.0, domain.LabelMixed},
		{13.0, domain.LabelWalk},
		{25.0, domain.LabelWalk},
		{40.0, domain.LabelOutlier},
	}
	for _, tc := range cases {
		out, err := rule.Resolve(record(tc.pace, time.Now()))
		require.NoError(t, err)
		require.Equal(t, tc.want, out.Label, "pace %.1f", tc.pace)
		require.Equal(t, RuleConfidence, out.Confidence)
		require.Equal(t, domain.SourceRuleFallback, out.Source)
	}
}

func TestResolverErrorsWhenNoTierApplies(t *testing.T) {
	resolver := NewResolver(&MLStrategy{}, &EraStrategy{})
	_, err := resolver.Resolve(record(10, time.Now()))
	require.ErrorIs(t, err, ErrNoApplicableStrategy)
}
