package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/classification/internal/domain"
)

func rec(pace, distance, duration float64) domain.ActivityRecord {
	return domain.ActivityRecord{
		ID:          "rec",
		TenantID:    "tenant-1",
		UserID:      "user-1",
		StartedAt:   time.Date(2025, time.March, 1, 7, 0, 0, 0, time.UTC),
		PaceMinKm:   pace,
		DistanceKm:  distance,
		DurationMin: duration,
	}
}

func TestValidateRejectsImpossibleValues(t *testing.T) {
	cases := []struct {
		name  string
		rec   domain.ActivityRecord
		field string
	}{
		{"zero duration", rec(10, 3, 0), "duration_min"},
		{"negative duration", rec(10, 3, -5), "duration_min"},
		{"negative distance", rec(10, -1, 30), "distance_km"},
		{"zero pace", rec(0, 3, 30), "pace_min_km"},
		{"absurd pace", rec(500, 3, 30), "pace_min_km"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.rec)
			require.NotNil(t, err)
			require.Equal(t, tc.field, err.Field)
		})
	}

	require.Nil(t, Validate(rec(10, 3, 30)))
}

func TestScalerStandardizesToZeroMeanUnitVariance(t *testing.T) {
	records := []domain.ActivityRecord{
		rec(8, 5, 40),
		rec(10, 4, 40),
		rec(12, 3, 36),
		rec(22, 2, 44),
		rec(24, 2.5, 60),
	}

	scaler, err := FitScaler(records)
	require.NoError(t, err)

	matrix := Extract(records, scaler)
	for dim := 0; dim < Dim; dim++ {
		var sum, sumSq float64
		for _, row := range matrix {
			sum += row[dim]
			sumSq += row[dim] * row[dim]
		}
		mean := sum / float64(len(matrix))
		variance := (sumSq - float64(len(matrix))*mean*mean) / float64(len(matrix)-1)

		require.InDelta(t, 0, mean, 1e-9, "dim %d mean", dim)
		require.InDelta(t, 1, variance, 1e-9, "dim %d variance", dim)
	}
}

func TestScalerRoundTrip(t *testing.T) {
	records := []domain.ActivityRecord{
		rec(9, 5, 45), rec(11, 4, 44), rec(21, 3, 63), rec(23, 2, 46), rec(10, 6, 60),
	}
	scaler, err := FitScaler(records)
	require.NoError(t, err)

	original := rec(10.5, 3.3, 34.65)
	back := scaler.Inverse(scaler.Transform(original))
	require.InDelta(t, original.PaceMinKm, back[0], 1e-9)
	require.InDelta(t, original.DistanceKm, back[1], 1e-9)
	require.InDelta(t, original.DurationMin, back[2], 1e-9)
}

func TestFitScalerConstantDimension(t *testing.T) {
	records := []domain.ActivityRecord{
		rec(10, 3, 30), rec(12, 3, 36), rec(14, 3, 42), rec(16, 3, 48), rec(18, 3, 54),
	}
	scaler, err := FitScaler(records)
	require.NoError(t, err)

	// Distance is constant; std falls back to 1 so Transform stays finite.
	for _, row := range Extract(records, scaler) {
		require.False(t, math.IsNaN(row[1]))
		require.InDelta(t, 0, row[1], 1e-9)
	}
}

func TestFitScalerEmpty(t *testing.T) {
	_, err := FitScaler(nil)
	require.ErrorIs(t, err, ErrEmptyTrainingSet)
}
