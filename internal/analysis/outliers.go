package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Detection method names reported per outlier.
const (
	MethodIQR       = "iqr"
	MethodZScore    = "zscore"
	MethodModifiedZ = "modified-zscore"
)

// Detection thresholds.
const (
	iqrFenceMultiplier = 1.5
	zScoreThreshold    = 2.5
	madScaling         = 0.6745
	modifiedZThreshold = 3.5
)

// Outlier is one flagged point with the methods that agreed on it. The
// consensus count acts as a confidence proxy.
type Outlier struct {
	Index     int
	Value     float64
	Methods   []string
	Consensus int
}

// DetectOutliers runs three detectors over the series and reports the union
// of their findings with per-method membership.
func DetectOutliers(series []float64) []Outlier {
	if len(series) < 4 {
		return nil
	}

	flagged := map[int][]string{}
	mark := func(indices []int, method string) {
		for _, i := range indices {
			flagged[i] = append(flagged[i], method)
		}
	}

	mark(iqrOutliers(series), MethodIQR)
	mark(zScoreOutliers(series), MethodZScore)
	mark(modifiedZOutliers(series), MethodModifiedZ)

	out := make([]Outlier, 0, len(flagged))
	for idx, methods := range flagged {
		out = append(out, Outlier{
			Index:     idx,
			Value:     series[idx],
			Methods:   methods,
			Consensus: len(methods),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// iqrOutliers flags points beyond 1.5 IQR fences.
func iqrOutliers(series []float64) []int {
	sorted := append([]float64(nil), series...)
	sort.Float64s(sorted)

	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	iqr := q3 - q1
	lower := q1 - iqrFenceMultiplier*iqr
	upper := q3 + iqrFenceMultiplier*iqr

	var out []int
	for i, v := range series {
		if v < lower || v > upper {
			out = append(out, i)
		}
	}
	return out
}

// zScoreOutliers flags points more than 2.5 standard deviations from the mean
// of the remaining points. Leaving the candidate out keeps a single extreme
// value from masking itself in short series.
func zScoreOutliers(series []float64) []int {
	var out []int
	rest := make([]float64, 0, len(series)-1)
	for i, v := range series {
		rest = rest[:0]
		for j, other := range series {
			if j != i {
				rest = append(rest, other)
			}
		}
		mean, std := stat.MeanStdDev(rest, nil)
		if std == 0 || math.IsNaN(std) {
			continue
		}
		if math.Abs(v-mean)/std > zScoreThreshold {
			out = append(out, i)
		}
	}
	return out
}

// modifiedZOutliers flags points by the median absolute deviation test.
func modifiedZOutliers(series []float64) []int {
	sorted := append([]float64(nil), series...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.LinInterp, sorted, nil)

	deviations := make([]float64, len(series))
	for i, v := range series {
		deviations[i] = math.Abs(v - median)
	}
	sort.Float64s(deviations)
	mad := stat.Quantile(0.5, stat.LinInterp, deviations, nil)
	if mad == 0 {
		return nil
	}

	var out []int
	for i, v := range series {
		if madScaling*math.Abs(v-median)/mad > modifiedZThreshold {
			out = append(out, i)
		}
	}
	return out
}
