// Package analysis provides trend detection, forecasting, outlier detection,
// and consistency scoring over activity time series.
package analysis

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInsufficientData is returned when a series is too short for the
// requested analysis.
var ErrInsufficientData = errors.New("insufficient data points for analysis")

// MinTrendPoints is the shortest series trend detection accepts.
const MinTrendPoints = 3

// Slopes below this magnitude are reported as stable.
const stableSlopeEpsilon = 1e-6

// Direction of a detected trend.
type Direction string

const (
	DirectionAscending  Direction = "ascending"
	DirectionDescending Direction = "descending"
	DirectionStable     Direction = "stable"
)

// TrendResult describes a fitted linear trend.
type TrendResult struct {
	Direction  Direction
	Slope      float64
	Intercept  float64
	Confidence float64 // (1 - p) * 100, clamped to [0, 100]
	PValue     float64
	Points     int
}

// Trend fits a least-squares line over equally spaced observations and grades
// the slope by a two-sided t-test.
func Trend(series []float64) (TrendResult, error) {
	n := len(series)
	if n < MinTrendPoints {
		return TrendResult{}, ErrInsufficientData
	}

	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}

	intercept, slope := stat.LinearRegression(xs, series, nil, false)
	p := slopePValue(xs, series, intercept, slope)

	direction := DirectionStable
	switch {
	case slope > stableSlopeEpsilon:
		direction = DirectionAscending
	case slope < -stableSlopeEpsilon:
		direction = DirectionDescending
	}

	confidence := (1 - p) * 100
	confidence = math.Max(0, math.Min(100, confidence))

	return TrendResult{
		Direction:  direction,
		Slope:      slope,
		Intercept:  intercept,
		Confidence: confidence,
		PValue:     p,
		Points:     n,
	}, nil
}

// slopePValue computes the two-sided p-value for the null hypothesis that the
// regression slope is zero.
func slopePValue(xs, ys []float64, intercept, slope float64) float64 {
	n := len(xs)
	meanX := stat.Mean(xs, nil)

	var sse, sxx float64
	for i := range xs {
		resid := ys[i] - (intercept + slope*xs[i])
		sse += resid * resid
		dx := xs[i] - meanX
		sxx += dx * dx
	}

	if sxx == 0 {
		return 1
	}
	if sse == 0 {
		// Perfect fit: the slope is exact.
		if slope == 0 {
			return 1
		}
		return 0
	}

	se := math.Sqrt(sse/float64(n-2)) / math.Sqrt(sxx)
	t := math.Abs(slope / se)
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	return 2 * (1 - dist.CDF(t))
}

// ForecastResult is a projection with an uncertainty band.
type ForecastResult struct {
	Method string // "linear" or "moving-average"
	Values []float64
	Lower  []float64
	Upper  []float64
}

// Band half-width multiplier: 1.96 residual standard deviations.
const forecastBandZ = 1.96

// movingAverageWindow is the lookback used when the series shows no usable
// linear trend.
const movingAverageWindow = 3

// Forecast projects the series forward. A fitted linear trend is extrapolated
// when the slope is meaningful; otherwise the projection flattens to a moving
// average of the most recent observations.
func Forecast(series []float64, horizon int) (ForecastResult, error) {
	n := len(series)
	if n < MinTrendPoints {
		return ForecastResult{}, ErrInsufficientData
	}
	if horizon <= 0 {
		return ForecastResult{Method: "linear"}, nil
	}

	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	intercept, slope := stat.LinearRegression(xs, series, nil, false)

	var sse float64
	for i := range xs {
		resid := series[i] - (intercept + slope*xs[i])
		sse += resid * resid
	}
	residStd := math.Sqrt(sse / float64(n-2))
	band := forecastBandZ * residStd

	result := ForecastResult{
		Method: "linear",
		Values: make([]float64, horizon),
		Lower:  make([]float64, horizon),
		Upper:  make([]float64, horizon),
	}

	if math.Abs(slope) <= stableSlopeEpsilon {
		result.Method = "moving-average"
		window := movingAverageWindow
		if window > n {
			window = n
		}
		level := stat.Mean(series[n-window:], nil)
		for h := 0; h < horizon; h++ {
			result.Values[h] = level
			result.Lower[h] = level - band
			result.Upper[h] = level + band
		}
		return result, nil
	}

	for h := 0; h < horizon; h++ {
		x := float64(n + h)
		v := intercept + slope*x
		result.Values[h] = v
		result.Lower[h] = v - band
		result.Upper[h] = v + band
	}
	return result, nil
}
