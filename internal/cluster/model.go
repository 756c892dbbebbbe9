package cluster

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"example.com/classification/internal/domain"
	"example.com/classification/internal/features"
)

// Hard ceilings forcing a record to "outlier" regardless of cluster
// assignment.
const (
	PaceOutlierCeiling     = 35.0  // min/km
	DistanceOutlierCeiling = 100.0 // km
)

// Model is the trained clustering artifact. Centroids and the max training
// distance live in standardized units; the scaler fitted at training time is
// carried along and reused unchanged at prediction time.
type Model struct {
	K                   int
	Seed                int64
	Scaler              features.Scaler
	Centroids           [][features.Dim]float64
	ClusterLabels       map[int]domain.Label
	MaxTrainingDistance float64
	TrainingSize        int
	Inertia             float64
}

// Prediction is the outcome of classifying one record against the model.
type Prediction struct {
	Label      domain.Label
	Confidence float64
	ClusterID  int
}

// Train fits a seeded k-means model on the supplied records. The records must
// already be validated. Fewer than features.MinTrainingRecords records fails
// with domain.ErrInsufficientTrainingData.
func Train(records []domain.ActivityRecord, seed int64) (*Model, error) {
	if len(records) < features.MinTrainingRecords {
		return nil, domain.ErrInsufficientTrainingData
	}

	scaler, err := features.FitScaler(records)
	if err != nil {
		return nil, err
	}

	points := features.Extract(records, scaler)
	centroids, assignments := kMeans(points, K, seed)

	var inertia, dmax float64
	for i, p := range points {
		own := distance(p, centroids[assignments[i]])
		inertia += own * own
		for _, c := range centroids {
			if d := distance(p, c); d > dmax {
				dmax = d
			}
		}
	}
	if dmax == 0 {
		dmax = 1
	}

	return &Model{
		K:                   K,
		Seed:                seed,
		Scaler:              scaler,
		Centroids:           centroids,
		ClusterLabels:       labelByPace(centroids, scaler),
		MaxTrainingDistance: dmax,
		TrainingSize:        len(records),
		Inertia:             inertia,
	}, nil
}

// labelByPace maps cluster ids to semantic labels by ranking centroids on
// average pace in original units: fastest is "run", slowest is "walk", the
// middle is "mixed". Cluster index order is not stable across runs, so this
// mapping is recomputed on every retrain.
func labelByPace(centroids [][features.Dim]float64, scaler features.Scaler) map[int]domain.Label {
	type ranked struct {
		cluster int
		pace    float64
	}
	order := make([]ranked, len(centroids))
	for c, centroid := range centroids {
		original := scaler.Inverse(centroid)
		order[c] = ranked{cluster: c, pace: original[0]}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].pace < order[j].pace })

	labels := []domain.Label{domain.LabelRun, domain.LabelMixed, domain.LabelWalk}
	out := make(map[int]domain.Label, len(centroids))
	for rank, entry := range order {
		out[entry.cluster] = labels[rank]
	}
	return out
}

// Predict classifies one validated record. A cluster id without a label
// mapping is a hard error, never a silent "unknown".
func (m *Model) Predict(rec domain.ActivityRecord) (Prediction, error) {
	if rec.PaceMinKm > PaceOutlierCeiling || rec.DistanceKm > DistanceOutlierCeiling {
		return Prediction{Label: domain.LabelOutlier, Confidence: 1, ClusterID: -1}, nil
	}

	point := m.Scaler.Transform(rec)
	clusterID := nearestCentroid(point, m.Centroids)

	label, ok := m.ClusterLabels[clusterID]
	if !ok {
		return Prediction{}, fmt.Errorf("%w: cluster %d", domain.ErrUnmappedCluster, clusterID)
	}

	d := distance(point, m.Centroids[clusterID])
	confidence := 1 - d/m.MaxTrainingDistance
	confidence = math.Max(0, math.Min(1, confidence))

	return Prediction{Label: label, Confidence: confidence, ClusterID: clusterID}, nil
}

// clusterLabelEntry serializes one cluster-to-label pair. The map is encoded
// as an array so cluster ids stay integers across the wire; JSON object keys
// would silently become strings and break lookups at predict time.
type clusterLabelEntry struct {
	ClusterID int          `json:"cluster_id"`
	Label     domain.Label `json:"label"`
}

type modelJSON struct {
	K                   int                       `json:"k"`
	Seed                int64                     `json:"seed"`
	Scaler              features.Scaler           `json:"scaler"`
	Centroids           [][features.Dim]float64   `json:"centroids"`
	ClusterLabels       []clusterLabelEntry       `json:"cluster_labels"`
	MaxTrainingDistance float64                   `json:"max_training_distance"`
	TrainingSize        int                       `json:"training_size"`
	Inertia             float64                   `json:"inertia"`
}

// MarshalJSON encodes the model payload for persistence.
func (m *Model) MarshalJSON() ([]byte, error) {
	entries := make([]clusterLabelEntry, 0, len(m.ClusterLabels))
	for id, label := range m.ClusterLabels {
		entries = append(entries, clusterLabelEntry{ClusterID: id, Label: label})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ClusterID < entries[j].ClusterID })

	return json.Marshal(modelJSON{
		K:                   m.K,
		Seed:                m.Seed,
		Scaler:              m.Scaler,
		Centroids:           m.Centroids,
		ClusterLabels:       entries,
		MaxTrainingDistance: m.MaxTrainingDistance,
		TrainingSize:        m.TrainingSize,
		Inertia:             m.Inertia,
	})
}

// UnmarshalJSON decodes a persisted model and validates the cluster map at
// load time: every cluster id 0..k-1 must be mapped to a known label.
func (m *Model) UnmarshalJSON(data []byte) error {
	var payload modelJSON
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}

	labels := make(map[int]domain.Label, len(payload.ClusterLabels))
	for _, entry := range payload.ClusterLabels {
		if !entry.Label.Valid() {
			return fmt.Errorf("cluster %d mapped to unknown label %q", entry.ClusterID, entry.Label)
		}
		labels[entry.ClusterID] = entry.Label
	}
	for id := 0; id < payload.K; id++ {
		if _, ok := labels[id]; !ok {
			return fmt.Errorf("%w: cluster %d missing from persisted mapping", domain.ErrUnmappedCluster, id)
		}
	}

	m.K = payload.K
	m.Seed = payload.Seed
	m.Scaler = payload.Scaler
	m.Centroids = payload.Centroids
	m.ClusterLabels = labels
	m.MaxTrainingDistance = payload.MaxTrainingDistance
	m.TrainingSize = payload.TrainingSize
	m.Inertia = payload.Inertia
	return nil
}
