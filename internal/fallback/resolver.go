// Package fallback orders classification strategies into an explicit tier
// list: ML first, era defaults second, pace-threshold rules last.
package fallback

import (
	"errors"
	"fmt"
	"time"

	"example.com/classification/internal/cluster"
	"example.com/classification/internal/domain"
	"example.com/classification/internal/features"
)

// Fixed confidences for the degraded tiers. Downstream consumers distinguish
// these from ML results by the source tag, never by confidence alone.
const (
	EraConfidence  = 0.5
	RuleConfidence = 0.4
)

// Default pace thresholds for the rule tier, in min/km.
const (
	DefaultRunPaceMax  = 7.0
	DefaultWalkPaceMin = 13.0
)

// ErrNoApplicableStrategy means every tier declined the record. With the rule
// tier registered this cannot happen.
var ErrNoApplicableStrategy = errors.New("no applicable classification strategy")

// Outcome is the uniform result every tier produces.
type Outcome struct {
	Label      domain.Label
	Confidence float64
	Source     domain.Source
	Reason     string
}

// Strategy is one classification tier with an applicability check.
type Strategy interface {
	Source() domain.Source
	Applicable() bool
	Resolve(rec domain.ActivityRecord) (Outcome, error)
}

// Resolver tries strategies in registration order and uses the first
// applicable one for the whole batch.
type Resolver struct {
	strategies []Strategy
}

// NewResolver builds a resolver over the given tier order.
func NewResolver(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Active returns the first applicable strategy, or an error when none apply.
func (r *Resolver) Active() (Strategy, error) {
	for _, s := range r.strategies {
		if s.Applicable() {
			return s, nil
		}
	}
	return nil, ErrNoApplicableStrategy
}

// Resolve classifies a single record through the first applicable tier.
func (r *Resolver) Resolve(rec domain.ActivityRecord) (Outcome, error) {
	strategy, err := r.Active()
	if err != nil {
		return Outcome{}, err
	}
	return strategy.Resolve(rec)
}

// MLStrategy wraps the active clustering model.
type MLStrategy struct {
	Model *cluster.Model
}

// Source identifies the ML tier.
func (s *MLStrategy) Source() domain.Source { return domain.SourceMLPrediction }

// Applicable requires an active model trained on at least the clustering
// minimum.
func (s *MLStrategy) Applicable() bool {
	return s.Model != nil && s.Model.TrainingSize >= features.MinTrainingRecords
}

// Resolve classifies via the model. An unmapped cluster id propagates as a
// hard error.
func (s *MLStrategy) Resolve(rec domain.ActivityRecord) (Outcome, error) {
	p, err := s.Model.Predict(rec)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Label:      p.Label,
		Confidence: p.Confidence,
		Source:     domain.SourceMLPrediction,
		Reason:     fmt.Sprintf("cluster=%d", p.ClusterID),
	}, nil
}

// EraStrategy splits history at a cutoff date into two default labels.
type EraStrategy struct {
	Cutoff time.Time
	Before domain.Label
	After  domain.Label
}

// Source identifies the era tier.
func (s *EraStrategy) Source() domain.Source { return domain.SourceEraFallback }

// Applicable requires a configured cutoff.
func (s *EraStrategy) Applicable() bool { return !s.Cutoff.IsZero() }

// Resolve labels by which side of the cutoff the record falls on.
func (s *EraStrategy) Resolve(rec domain.ActivityRecord) (Outcome, error) {
	label := s.After
	side := "after"
	if rec.StartedAt.Before(s.Cutoff) {
		label = s.Before
		side = "before"
	}
	return Outcome{
		Label:      label,
		Confidence: EraConfidence,
		Source:     domain.SourceEraFallback,
		Reason:     fmt.Sprintf("era=%s cutoff=%s", side, s.Cutoff.Format(time.DateOnly)),
	}, nil
}

// RuleStrategy applies pace thresholds as the tier of last resort.
type RuleStrategy struct {
	RunPaceMax  float64
	WalkPaceMin float64
}

// NewRuleStrategy builds a rule tier with default thresholds.
func NewRuleStrategy() *RuleStrategy {
	return &RuleStrategy{RunPaceMax: DefaultRunPaceMax, WalkPaceMin: DefaultWalkPaceMin}
}

// Source identifies the rule tier.
func (s *RuleStrategy) Source() domain.Source { return domain.SourceRuleFallback }

// Applicable always holds; the rule tier terminates the chain.
func (s *RuleStrategy) Applicable() bool { return true }

// Resolve labels fast records run, slow records walk, everything else mixed.
// Outlier ceilings still apply.
func (s *RuleStrategy) Resolve(rec domain.ActivityRecord) (Outcome, error) {
	label := domain.LabelMixed
	switch {
	case rec.PaceMinKm > cluster.PaceOutlierCeiling || rec.DistanceKm > cluster.DistanceOutlierCeiling:
		label = domain.LabelOutlier
	case rec.PaceMinKm <= s.RunPaceMax:
		label = domain.LabelRun
	case rec.PaceMinKm >= s.WalkPaceMin:
		label = domain.LabelWalk
	}
	return Outcome{
		Label:      label,
		Confidence: RuleConfidence,
		Source:     domain.SourceRuleFallback,
		Reason:     fmt.Sprintf("pace=%.2f run<=%.1f walk>=%.1f", rec.PaceMinKm, s.RunPaceMax, s.WalkPaceMin),
	}, nil
}
