package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrendAscending(t *testing.T) {
	result, err := Trend([]float64{10, 12, 14, 16})
	require.NoError(t, err)

	require.Equal(t, DirectionAscending, result.Direction)
	require.InDelta(t, 2.0, result.Slope, 1e-9)
	require.Greater(t, result.Confidence, 80.0)
	require.Equal(t, 4, result.Points)
}

func TestTrendDescending(t *testing.T) {
	result, err := Trend([]float64{20, 17.5, 15.2, 13.1, 10.9})
	require.NoError(t, err)

	require.Equal(t, DirectionDescending, result.Direction)
	require.Less(t, result.Slope, 0.0)
	require.Greater(t, result.Confidence, 80.0)
}

func TestTrendStable(t *testing.T) {
	result, err := Trend([]float64{5, 5, 5, 5, 5})
	require.NoError(t, err)

	require.Equal(t, DirectionStable, result.Direction)
	require.InDelta(t, 0, result.Slope, 1e-9)
	require.InDelta(t, 0, result.Confidence, 1e-9)
}

func TestTrendNoisySeriesLowConfidence(t *testing.T) {
	result, err := Trend([]float64{10, 3, 12, 2, 11, 4})
	require.NoError(t, err)
	require.Less(t, result.Confidence, 80.0)
}

func TestTrendRequiresThreePoints(t *testing.T) {
	_, err := Trend([]float64{1, 2})
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestTrendConfidenceBounds(t *testing.T) {
	series := [][]float64{
		{10, 12, 14, 16},
		{1, 9, 2, 8, 3},
		{5, 5, 5},
		{3, 1, 4, 1, 5, 9, 2, 6},
	}
	for _, s := range series {
		result, err := Trend(s)
		require.NoError(t, err)
		require.GreaterOrEqual(t, result.Confidence, 0.0)
		require.LessOrEqual(t, result.Confidence, 100.0)
	}
}

func TestForecastLinear(t *testing.T) {
	result, err := Forecast([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)

	require.Equal(t, "linear", result.Method)
	require.Len(t, result.Values, 3)
	require.InDelta(t, 6, result.Values[0], 1e-9)
	require.InDelta(t, 7, result.Values[1], 1e-9)
	require.InDelta(t, 8, result.Values[2], 1e-9)
	// Perfect fit leaves no residual spread.
	require.InDelta(t, result.Values[0], result.Lower[0], 1e-9)
	require.InDelta(t, result.Values[0], result.Upper[0], 1e-9)
}

func TestForecastBandWidensWithNoise(t *testing.T) {
	result, err := Forecast([]float64{1, 4, 2, 6, 3, 8}, 2)
	require.NoError(t, err)
	for i := range result.Values {
		require.Less(t, result.Lower[i], result.Values[i])
		require.Greater(t, result.Upper[i], result.Values[i])
	}
}

func TestForecastFlatSeriesUsesMovingAverage(t *testing.T) {
	result, err := Forecast([]float64{5, 5, 5, 5}, 2)
	require.NoError(t, err)

	require.Equal(t, "moving-average", result.Method)
	require.InDelta(t, 5, result.Values[0], 1e-9)
	require.InDelta(t, 5, result.Values[1], 1e-9)
}

func TestForecastRequiresThreePoints(t *testing.T) {
	_, err := Forecast([]float64{1, 2}, 5)
	require.ErrorIs(t, err, ErrInsufficientData)
}
