// Package cluster implements the seeded k-means classification engine and the
// trained model artifact it produces.
package cluster

import (
	"math"
	"math/rand"

	"example.com/classification/internal/features"
)

// K is the fixed number of clusters partitioning the feature space.
const K = 3

const maxIterations = 100

// kMeans runs Lloyd's algorithm with k-means++ style seeding. The same seed
// and input always produce the same centroids and assignments.
func kMeans(points [][features.Dim]float64, k int, seed int64) ([][features.Dim]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	centroids := seedCentroids(points, k, rng)
	assignments := make([]int, len(points))

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, p := range points {
			best := nearestCentroid(p, centroids)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}
		recomputeCentroids(points, assignments, centroids)
	}

	return centroids, assignments
}

// seedCentroids picks k initial centroids, each chosen with probability
// proportional to squared distance from the nearest already-chosen centroid.
func seedCentroids(points [][features.Dim]float64, k int, rng *rand.Rand) [][features.Dim]float64 {
	centroids := make([][features.Dim]float64, 0, k)
	centroids = append(centroids, points[rng.Intn(len(points))])

	for len(centroids) < k {
		weights := make([]float64, len(points))
		var total float64
		for i, p := range points {
			d := distance(p, centroids[nearestCentroid(p, centroids)])
			weights[i] = d * d
			total += weights[i]
		}

		if total == 0 {
			// All remaining points coincide with a centroid; pick uniformly.
			centroids = append(centroids, points[rng.Intn(len(points))])
			continue
		}

		target := rng.Float64() * total
		var acc float64
		chosen := len(points) - 1
		for i, w := range weights {
			acc += w
			if acc >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, points[chosen])
	}

	return centroids
}

func recomputeCentroids(points [][features.Dim]float64, assignments []int, centroids [][features.Dim]float64) {
	counts := make([]int, len(centroids))
	sums := make([][features.Dim]float64, len(centroids))

	for i, p := range points {
		c := assignments[i]
		counts[c]++
		for d := range p {
			sums[c][d] += p[d]
		}
	}

	for c := range centroids {
		if counts[c] == 0 {
			// Re-seed an empty cluster with the point farthest from its
			// current assignment so every cluster id stays populated.
			centroids[c] = points[farthestPoint(points, assignments, centroids)]
			continue
		}
		for d := range centroids[c] {
			centroids[c][d] = sums[c][d] / float64(counts[c])
		}
	}
}

func farthestPoint(points [][features.Dim]float64, assignments []int, centroids [][features.Dim]float64) int {
	best := 0
	bestDist := -1.0
	for i, p := range points {
		d := distance(p, centroids[assignments[i]])
		if d > bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func nearestCentroid(p [features.Dim]float64, centroids [][features.Dim]float64) int {
	best := 0
	bestDist := math.MaxFloat64
	for c, centroid := range centroids {
		if d := distance(p, centroid); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func distance(a, b [features.Dim]float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
