// Package brief composes the analysis layer into a cached activity brief:
// one focus area, supporting statistics, alerts, and a provenance trail that
// names the algorithm behind every number.
package brief

import (
	"context"
	"fmt"
	"time"

	"example.com/classification/internal/analysis"
	"example.com/classification/internal/domain"
)

// Focus areas a brief can recommend.
const (
	FocusConsistency = "consistency"
	FocusPace        = "pace"
	FocusMaintain    = "maintain"
)

// Trend confidence a brief treats as actionable.
const actionableTrendConfidence = 70.0

// Consistency score below which the brief steers toward schedule regularity.
const lowConsistencyScore = 40.0

// DataSource supplies the classified sessions a brief is computed from.
type DataSource interface {
	Sessions(ctx context.Context, tenantID string, from, to time.Time) ([]analysis.Session, error)
	SourceBreakdown(ctx context.Context, tenantID string, from, to time.Time) (map[domain.Source]int, error)
}

// ProvenanceEntry names the algorithm and parameters behind one brief section.
type ProvenanceEntry struct {
	Section    string  `json:"section"`
	Algorithm  string  `json:"algorithm"`
	Parameters string  `json:"parameters"`
	Confidence float64 `json:"confidence"`
}

// Alert is one noteworthy finding surfaced to the user.
type Alert struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Brief is the derived analysis document for one tenant and window.
type Brief struct {
	TenantID    string    `json:"tenant_id"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	ModelID     string    `json:"model_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`

	FocusArea       string                     `json:"focus_area"`
	Sessions        int                        `json:"sessions"`
	Consistency     analysis.ConsistencyReport `json:"consistency"`
	PaceTrend       *analysis.TrendResult      `json:"pace_trend,omitempty"`
	PaceForecast    *analysis.ForecastResult   `json:"pace_forecast,omitempty"`
	PaceOutliers    []analysis.Outlier         `json:"pace_outliers,omitempty"`
	SourceBreakdown map[domain.Source]int      `json:"source_breakdown,omitempty"`

	Alerts          []Alert           `json:"alerts,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
	Provenance      []ProvenanceEntry `json:"provenance"`
}

// Builder assembles briefs from classified sessions.
type Builder struct {
	source          DataSource
	forecastHorizon int
}

// NewBuilder constructs a Builder projecting forecastHorizon future sessions.
func NewBuilder(source DataSource, forecastHorizon int) *Builder {
	if forecastHorizon <= 0 {
		forecastHorizon = 3
	}
	return &Builder{source: source, forecastHorizon: forecastHorizon}
}

// Build computes the brief for one tenant and window. Sections degrade
// individually: a series too short for trend analysis drops that section and
// its provenance entry rather than failing the whole brief.
func (b *Builder) Build(ctx context.Context, tenantID, modelID string, from, to time.Time) (*Brief, error) {
	sessions, err := b.source.Sessions(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	brief := &Brief{
		TenantID:    tenantID,
		From:        from,
		To:          to,
		ModelID:     modelID,
		GeneratedAt: time.Now().UTC(),
		Sessions:    len(sessions),
		FocusArea:   FocusMaintain,
	}

	if len(sessions) == 0 {
		brief.FocusArea = FocusConsistency
		brief.Alerts = append(brief.Alerts, Alert{
			Kind:    "no-activity",
			Message: "no classified sessions in the requested window",
		})
		brief.Recommendations = append(brief.Recommendations, "log at least one session to start receiving analysis")
		return brief, nil
	}

	breakdown, err := b.source.SourceBreakdown(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load source breakdown: %w", err)
	}
	brief.SourceBreakdown = breakdown

	consistency, err := analysis.Consistency(sessions, from, to)
	if err == nil {
		brief.Consistency = consistency
		brief.Provenance = append(brief.Provenance, ProvenanceEntry{
			Section:    "consistency",
			Algorithm:  "weighted composite (frequency, timing, performance, streak)",
			Parameters: "weights 0.4/0.2/0.2/0.2",
			Confidence: consistency.Score,
		})
	}

	paces := paceSeries(sessions)
	if trend, err := analysis.Trend(paces); err == nil {
		brief.PaceTrend = &trend
		brief.Provenance = append(brief.Provenance, ProvenanceEntry{
			Section:    "pace_trend",
			Algorithm:  "least-squares linear regression, two-sided t-test on slope",
			Parameters: fmt.Sprintf("n=%d", trend.Points),
			Confidence: trend.Confidence,
		})
	}
	if forecast, err := analysis.Forecast(paces, b.forecastHorizon); err == nil {
		brief.PaceForecast = &forecast
		brief.Provenance = append(brief.Provenance, ProvenanceEntry{
			Section:    "pace_forecast",
			Algorithm:  forecast.Method + " projection with 1.96-sigma residual band",
			Parameters: fmt.Sprintf("horizon=%d", b.forecastHorizon),
			Confidence: confidenceForTrend(brief.PaceTrend),
		})
	}
	if outliers := analysis.DetectOutliers(paces); len(outliers) > 0 {
		brief.PaceOutliers = outliers
		brief.Provenance = append(brief.Provenance, ProvenanceEntry{
			Section:    "pace_outliers",
			Algorithm:  "iqr + z-score + modified z-score consensus",
			Parameters: "fences 1.5 IQR, z>2.5, modified-z>3.5",
			Confidence: 100 * maxConsensus(outliers) / 3,
		})
	}

	b.annotate(brief)
	return brief, nil
}

// annotate derives focus area, alerts, and recommendations from the computed
// sections.
func (b *Builder) annotate(brief *Brief) {
	for _, o := range brief.PaceOutliers {
		if o.Consensus >= 2 {
			brief.Alerts = append(brief.Alerts, Alert{
				Kind:    "pace-anomaly",
				Message: fmt.Sprintf("session pace %.1f min/km flagged by %d detectors", o.Value, o.Consensus),
			})
		}
	}

	if degraded, total := degradedShare(brief.SourceBreakdown); total > 0 && degraded*2 > total {
		brief.Alerts = append(brief.Alerts, Alert{
			Kind:    "degraded-classification",
			Message: "most labels in this window come from fallback rules, not the trained model",
		})
	}

	switch {
	case brief.Consistency.Score > 0 && brief.Consistency.Score < lowConsistencyScore:
		brief.FocusArea = FocusConsistency
		brief.Recommendations = append(brief.Recommendations,
			fmt.Sprintf("train on a regular schedule; longest recent streak was %d days", brief.Consistency.LongestStreakDays))
	case brief.PaceTrend != nil &&
		brief.PaceTrend.Direction == analysis.DirectionAscending &&
		brief.PaceTrend.Confidence >= actionableTrendConfidence:
		// Pace in min/km: an ascending series means slowing down.
		brief.FocusArea = FocusPace
		brief.Recommendations = append(brief.Recommendations,
			fmt.Sprintf("pace is slowing by %.2f min/km per session; add a tempo session", brief.PaceTrend.Slope))
	default:
		brief.FocusArea = FocusMaintain
		brief.Recommendations = append(brief.Recommendations, "current routine is working; keep the schedule")
	}
}

func paceSeries(sessions []analysis.Session) []float64 {
	out := make([]float64, 0, len(sessions))
	for _, s := range sessions {
		if s.PaceMinKm > 0 {
			out = append(out, s.PaceMinKm)
		}
	}
	return out
}

func degradedShare(breakdown map[domain.Source]int) (degraded, total int) {
	for source, n := range breakdown {
		total += n
		if source == domain.SourceEraFallback || source == domain.SourceRuleFallback {
			degraded += n
		}
	}
	return degraded, total
}

func confidenceForTrend(trend *analysis.TrendResult) float64 {
	if trend == nil {
		return 0
	}
	return trend.Confidence
}

func maxConsensus(outliers []analysis.Outlier) float64 {
	best := 0
	for _, o := range outliers {
		if o.Consensus > best {
			best = o.Consensus
		}
	}
	return float64(best)
}
