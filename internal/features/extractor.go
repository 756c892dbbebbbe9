// Package features converts raw activity records into standardized feature
// vectors for clustering.
package features

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"

	"example.com/classification/internal/domain"
)

// Dimensions of the feature space: pace, distance, duration.
const Dim = 3

// MinTrainingRecords is the smallest training set the clustering engine
// accepts. Below this the rule fallback tier applies.
const MinTrainingRecords = 5

// MaxPlausiblePace bounds pace validation in minutes per km. Values outside
// (0, MaxPlausiblePace] flag the record as invalid.
const MaxPlausiblePace = 120.0

// ErrEmptyTrainingSet is returned when a scaler is fitted on zero records.
var ErrEmptyTrainingSet = errors.New("cannot fit scaler on empty training set")

// Validate checks a record for structurally impossible values. Invalid records
// are reported and skipped; classification continues for the rest of the batch.
func Validate(rec domain.ActivityRecord) *domain.InvalidRecordError {
	if rec.DurationMin <= 0 {
		return &domain.InvalidRecordError{RecordID: rec.ID, Field: "duration_min", Reason: "must be > 0"}
	}
	if rec.DistanceKm < 0 {
		return &domain.InvalidRecordError{RecordID: rec.ID, Field: "distance_km", Reason: "must be >= 0"}
	}
	if rec.PaceMinKm <= 0 || rec.PaceMinKm > MaxPlausiblePace {
		return &domain.InvalidRecordError{RecordID: rec.ID, Field: "pace_min_km", Reason: "outside plausible bounds"}
	}
	return nil
}

// Scaler holds the per-dimension standardization statistics computed once at
// training time. The same scaler is persisted with the model and reused,
// never refit, at prediction time.
type Scaler struct {
	Mean [Dim]float64 `json:"mean"`
	Std  [Dim]float64 `json:"std"`
}

// FitScaler computes mean and standard deviation per dimension over the
// training records.
func FitScaler(records []domain.ActivityRecord) (Scaler, error) {
	if len(records) == 0 {
		return Scaler{}, ErrEmptyTrainingSet
	}

	cols := make([][]float64, Dim)
	for i := range cols {
		cols[i] = make([]float64, 0, len(records))
	}
	for _, rec := range records {
		raw := rawVector(rec)
		for i, v := range raw {
			cols[i] = append(cols[i], v)
		}
	}

	var s Scaler
	for i, col := range cols {
		mean, std := stat.MeanStdDev(col, nil)
		if math.IsNaN(std) || std == 0 {
			// Constant dimension: leave values centered but unscaled.
			std = 1
		}
		s.Mean[i] = mean
		s.Std[i] = std
	}
	return s, nil
}

// Transform standardizes one record using the fitted statistics.
func (s Scaler) Transform(rec domain.ActivityRecord) [Dim]float64 {
	raw := rawVector(rec)
	var out [Dim]float64
	for i, v := range raw {
		out[i] = (v - s.Mean[i]) / s.Std[i]
	}
	return out
}

// Inverse maps a standardized vector back to original units. Used when ranking
// centroids by pace after training.
func (s Scaler) Inverse(vec [Dim]float64) [Dim]float64 {
	var out [Dim]float64
	for i, v := range vec {
		out[i] = v*s.Std[i] + s.Mean[i]
	}
	return out
}

// Extract builds the standardized feature matrix for a set of records. The
// caller is responsible for validating records first.
func Extract(records []domain.ActivityRecord, s Scaler) [][Dim]float64 {
	out := make([][Dim]float64, len(records))
	for i, rec := range records {
		out[i] = s.Transform(rec)
	}
	return out
}

func rawVector(rec domain.ActivityRecord) [Dim]float64 {
	return [Dim]float64{rec.PaceMinKm, rec.DistanceKm, rec.DurationMin}
}
