package analysis

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"example.com/classification/internal/domain"
)

// Composite weights: frequency 40%, timing 20%, performance 20%, streak 20%.
const (
	weightFrequency   = 0.4
	weightTiming      = 0.2
	weightPerformance = 0.2
	weightStreak      = 0.2
)

// Component scoring scales.
const (
	timingStdFloorHours = 6.0 // hour-of-day spread mapping to score zero
	performanceCVFloor  = 0.5 // pace coefficient of variation mapping to zero
	streakTargetDays    = 7   // streak length earning a full score
)

// Phase level thresholds on the weekly frequency score.
const (
	phaseHighThreshold   = 70.0
	phaseMediumThreshold = 40.0
)

// PhaseLevel classifies a contiguous stretch of weeks.
type PhaseLevel string

const (
	PhaseHigh   PhaseLevel = "high"
	PhaseMedium PhaseLevel = "medium"
	PhaseLow    PhaseLevel = "low"
)

// Session is one labeled activity used for consistency scoring.
type Session struct {
	StartedAt time.Time
	PaceMinKm float64
	Label     domain.Label
}

// Phase is a contiguous window of weeks at one consistency level.
type Phase struct {
	From  time.Time
	To    time.Time
	Level PhaseLevel
}

// ConsistencyReport is the 0-100 composite plus its components and the
// preference/phase summaries.
type ConsistencyReport struct {
	Score       float64
	Frequency   float64
	Timing      float64
	Performance float64
	Streak      float64

	LongestStreakDays int
	DayOfWeekCounts   map[time.Weekday]int
	PreferredDay      time.Weekday
	LabelCounts       map[domain.Label]int
	Phases            []Phase
}

// Consistency scores the sessions inside [from, to).
func Consistency(sessions []Session, from, to time.Time) (ConsistencyReport, error) {
	if len(sessions) == 0 || !to.After(from) {
		return ConsistencyReport{}, ErrInsufficientData
	}

	inWindow := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if !s.StartedAt.Before(from) && s.StartedAt.Before(to) {
			inWindow = append(inWindow, s)
		}
	}
	if len(inWindow) == 0 {
		return ConsistencyReport{}, ErrInsufficientData
	}
	sort.Slice(inWindow, func(i, j int) bool { return inWindow[i].StartedAt.Before(inWindow[j].StartedAt) })

	report := ConsistencyReport{
		DayOfWeekCounts: make(map[time.Weekday]int),
		LabelCounts:     make(map[domain.Label]int),
	}

	activeDays := map[string]bool{}
	hours := make([]float64, 0, len(inWindow))
	paces := make([]float64, 0, len(inWindow))
	for _, s := range inWindow {
		day := s.StartedAt.UTC().Format(time.DateOnly)
		activeDays[day] = true
		report.DayOfWeekCounts[s.StartedAt.UTC().Weekday()]++
		if s.Label != "" {
			report.LabelCounts[s.Label]++
		}
		hours = append(hours, hourOfDay(s.StartedAt))
		if s.PaceMinKm > 0 {
			paces = append(paces, s.PaceMinKm)
		}
	}

	totalDays := int(to.Sub(from).Hours()/24 + 0.5)
	if totalDays < 1 {
		totalDays = 1
	}

	report.Frequency = clampScore(100 * float64(len(activeDays)) / float64(totalDays))
	report.Timing = timingScore(hours)
	report.Performance = performanceScore(paces)
	report.LongestStreakDays = longestStreak(activeDays)
	report.Streak = clampScore(100 * float64(report.LongestStreakDays) / streakTargetDays)

	report.Score = clampScore(weightFrequency*report.Frequency +
		weightTiming*report.Timing +
		weightPerformance*report.Performance +
		weightStreak*report.Streak)

	report.PreferredDay = preferredDay(report.DayOfWeekCounts)
	report.Phases = weeklyPhases(activeDays, from, to)
	return report, nil
}

func hourOfDay(t time.Time) float64 {
	utc := t.UTC()
	return float64(utc.Hour()) + float64(utc.Minute())/60
}

// timingScore maps the spread of start hours onto [0, 100]: training at the
// same hour every day scores 100, a six-hour spread scores zero.
func timingScore(hours []float64) float64 {
	if len(hours) < 2 {
		return 100
	}
	_, std := stat.MeanStdDev(hours, nil)
	if math.IsNaN(std) {
		return 100
	}
	return clampScore(100 * (1 - std/timingStdFloorHours))
}

// performanceScore maps pace variability onto [0, 100] via the coefficient of
// variation.
func performanceScore(paces []float64) float64 {
	if len(paces) < 2 {
		return 100
	}
	mean, std := stat.MeanStdDev(paces, nil)
	if mean == 0 || math.IsNaN(std) {
		return 0
	}
	cv := std / mean
	return clampScore(100 * (1 - cv/performanceCVFloor))
}

func longestStreak(activeDays map[string]bool) int {
	days := make([]time.Time, 0, len(activeDays))
	for day := range activeDays {
		parsed, err := time.Parse(time.DateOnly, day)
		if err != nil {
			continue
		}
		days = append(days, parsed)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	best, current := 0, 0
	var prev time.Time
	for i, day := range days {
		if i > 0 && day.Sub(prev) == 24*time.Hour {
			current++
		} else {
			current = 1
		}
		if current > best {
			best = current
		}
		prev = day
	}
	return best
}

func preferredDay(counts map[time.Weekday]int) time.Weekday {
	best := time.Sunday
	bestCount := -1
	for day := time.Sunday; day <= time.Saturday; day++ {
		if counts[day] > bestCount {
			best = day
			bestCount = counts[day]
		}
	}
	return best
}

// weeklyPhases slides a one-week window over the report range, scores each
// week by active-day frequency, and merges contiguous weeks at the same level.
func weeklyPhases(activeDays map[string]bool, from, to time.Time) []Phase {
	var phases []Phase
	for start := from; start.Before(to); start = start.AddDate(0, 0, 7) {
		end := start.AddDate(0, 0, 7)
		if end.After(to) {
			end = to
		}

		days := 0
		active := 0
		for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
			days++
			if activeDays[d.UTC().Format(time.DateOnly)] {
				active++
			}
		}
		if days == 0 {
			continue
		}

		score := 100 * float64(active) / float64(days)
		level := PhaseLow
		switch {
		case score >= phaseHighThreshold:
			level = PhaseHigh
		case score >= phaseMediumThreshold:
			level = PhaseMedium
		}

		if n := len(phases); n > 0 && phases[n-1].Level == level && phases[n-1].To.Equal(start) {
			phases[n-1].To = end
			continue
		}
		phases = append(phases, Phase{From: start, To: end, Level: level})
	}
	return phases
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
