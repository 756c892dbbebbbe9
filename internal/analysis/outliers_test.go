package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectOutliersFlagsSpikeByIQRAndZScore(t *testing.T) {
	outliers := DetectOutliers([]float64{10, 10, 11, 9, 10, 95})

	require.Len(t, outliers, 1)
	spike := outliers[0]
	require.Equal(t, 5, spike.Index)
	require.Equal(t, 95.0, spike.Value)
	require.Contains(t, spike.Methods, MethodIQR)
	require.Contains(t, spike.Methods, MethodZScore)
	require.GreaterOrEqual(t, spike.Consensus, 2)
}

func TestDetectOutliersCleanSeries(t *testing.T) {
	require.Empty(t, DetectOutliers([]float64{10, 11, 9, 10, 12, 10, 11}))
}

func TestDetectOutliersLowSpike(t *testing.T) {
	outliers := DetectOutliers([]float64{50, 52, 48, 51, 49, 50, 2})

	require.Len(t, outliers, 1)
	require.Equal(t, 6, outliers[0].Index)
	require.Contains(t, outliers[0].Methods, MethodIQR)
}

func TestDetectOutliersShortSeries(t *testing.T) {
	require.Nil(t, DetectOutliers([]float64{1, 100, 1}))
}

func TestDetectOutliersConstantSeries(t *testing.T) {
	require.Empty(t, DetectOutliers([]float64{5, 5, 5, 5, 5}))
}
