package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/classification/internal/domain"
)

func TestConsistencyDailyRunnerScoresHigh(t *testing.T) {
	from := time.Date(2025, time.May, 5, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 14)

	var sessions []Session
	for d := 0; d < 14; d++ {
		sessions = append(sessions, Session{
			StartedAt: from.AddDate(0, 0, d).Add(7 * time.Hour),
			PaceMinKm: 9.5,
			Label:     domain.LabelRun,
		})
	}

	report, err := Consistency(sessions, from, to)
	require.NoError(t, err)

	require.InDelta(t, 100, report.Frequency, 1e-9)
	require.InDelta(t, 100, report.Timing, 1e-9)
	require.InDelta(t, 100, report.Performance, 1e-9)
	require.InDelta(t, 100, report.Streak, 1e-9)
	require.InDelta(t, 100, report.Score, 1e-9)
	require.Equal(t, 14, report.LongestStreakDays)
	require.Equal(t, 14, report.LabelCounts[domain.LabelRun])
}

func TestConsistencySparseScheduleScoresLow(t *testing.T) {
	from := time.Date(2025, time.May, 5, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 28)

	sessions := []Session{
		{StartedAt: from.Add(6 * time.Hour), PaceMinKm: 8, Label: domain.LabelRun},
		{StartedAt: from.AddDate(0, 0, 13).Add(20 * time.Hour), PaceMinKm: 24, Label: domain.LabelWalk},
		{StartedAt: from.AddDate(0, 0, 27).Add(12 * time.Hour), PaceMinKm: 14, Label: domain.LabelMixed},
	}

	report, err := Consistency(sessions, from, to)
	require.NoError(t, err)

	require.Less(t, report.Score, 50.0)
	require.InDelta(t, 100*3.0/28.0, report.Frequency, 1e-9)
	require.Equal(t, 1, report.LongestStreakDays)
}

func TestConsistencyCompositeUsesFixedWeights(t *testing.T) {
	from := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	sessions := []Session{
		{StartedAt: from.Add(7 * time.Hour), PaceMinKm: 10, Label: domain.LabelRun},
		{StartedAt: from.AddDate(0, 0, 1).Add(7 * time.Hour), PaceMinKm: 10, Label: domain.LabelRun},
		{StartedAt: from.AddDate(0, 0, 2).Add(7 * time.Hour), PaceMinKm: 10, Label: domain.LabelRun},
	}

	report, err := Consistency(sessions, from, to)
	require.NoError(t, err)

	expected := weightFrequency*report.Frequency +
		weightTiming*report.Timing +
		weightPerformance*report.Performance +
		weightStreak*report.Streak
	require.InDelta(t, expected, report.Score, 1e-9)
}

func TestConsistencyPreferredDay(t *testing.T) {
	// Three Saturdays, one Wednesday.
	saturday := time.Date(2025, time.July, 5, 8, 0, 0, 0, time.UTC)
	sessions := []Session{
		{StartedAt: saturday, PaceMinKm: 10, Label: domain.LabelRun},
		{StartedAt: saturday.AddDate(0, 0, 7), PaceMinKm: 10, Label: domain.LabelRun},
		{StartedAt: saturday.AddDate(0, 0, 14), PaceMinKm: 10, Label: domain.LabelRun},
		{StartedAt: saturday.AddDate(0, 0, 4), PaceMinKm: 22, Label: domain.LabelWalk},
	}

	from := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	report, err := Consistency(sessions, from, from.AddDate(0, 0, 21))
	require.NoError(t, err)

	require.Equal(t, time.Saturday, report.PreferredDay)
	require.Equal(t, 3, report.DayOfWeekCounts[time.Saturday])
	require.Equal(t, 1, report.DayOfWeekCounts[time.Wednesday])
}

func TestConsistencyPhasesSplitByLevel(t *testing.T) {
	from := time.Date(2025, time.August, 4, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 21)

	var sessions []Session
	// Week 1: daily training. Weeks 2-3: nothing.
	for d := 0; d < 7; d++ {
		sessions = append(sessions, Session{
			StartedAt: from.AddDate(0, 0, d).Add(7 * time.Hour),
			PaceMinKm: 9.5,
			Label:     domain.LabelRun,
		})
	}

	report, err := Consistency(sessions, from, to)
	require.NoError(t, err)

	require.Len(t, report.Phases, 2)
	require.Equal(t, PhaseHigh, report.Phases[0].Level)
	require.Equal(t, PhaseLow, report.Phases[1].Level)
	require.Equal(t, from.AddDate(0, 0, 7), report.Phases[0].To)
	require.Equal(t, to, report.Phases[1].To)
}

func TestConsistencyEmptyWindow(t *testing.T) {
	from := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	_, err := Consistency(nil, from, from.AddDate(0, 0, 7))
	require.ErrorIs(t, err, ErrInsufficientData)
}
