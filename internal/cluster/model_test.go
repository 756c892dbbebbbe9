package cluster

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/classification/internal/domain"
	"example.com/classification/internal/features"
)

// scenarioModel mirrors the documented reference model: centroids at pace
// 9.5 (run), 11.5 (mixed), and 23.0 (walk). The identity scaler keeps the
// centroids in original units.
func scenarioModel() *Model {
	return &Model{
		K:    K,
		Seed: 42,
		Scaler: features.Scaler{
			Mean: [features.Dim]float64{0, 0, 0},
			Std:  [features.Dim]float64{1, 1, 1},
		},
		Centroids: [][features.Dim]float64{
			{9.5, 3.2, 32},
			{11.5, 3.0, 34},
			{23.0, 2.0, 46},
		},
		ClusterLabels: map[int]domain.Label{
			0: domain.LabelRun,
			1: domain.LabelMixed,
			2: domain.LabelWalk,
		},
		MaxTrainingDistance: 25,
		TrainingSize:        30,
	}
}

func TestPredictFastRecordIsRun(t *testing.T) {
	model := scenarioModel()

	p, err := model.Predict(domain.ActivityRecord{
		ID:          "rec-1",
		PaceMinKm:   10.0,
		DistanceKm:  3.0,
		DurationMin: 30,
	})
	require.NoError(t, err)
	require.Equal(t, domain.LabelRun, p.Label)
	require.Greater(t, p.Confidence, 0.7)
}

func TestPredictEnforcesOutlierCeilings(t *testing.T) {
	model := scenarioModel()

	byPace, err := model.Predict(domain.ActivityRecord{ID: "slowest", PaceMinKm: 40, DistanceKm: 1, DurationMin: 40})
	require.NoError(t, err)
	require.Equal(t, domain.LabelOutlier, byPace.Label)

	byDistance, err := model.Predict(domain.ActivityRecord{ID: "ultra", PaceMinKm: 10, DistanceKm: 150, DurationMin: 1500})
	require.NoError(t, err)
	require.Equal(t, domain.LabelOutlier, byDistance.Label)
}

func TestPredictUnmappedClusterIsHardError(t *testing.T) {
	model := scenarioModel()
	delete(model.ClusterLabels, 2)

	_, err := model.Predict(domain.ActivityRecord{ID: "walker", PaceMinKm: 22, DistanceKm: 2, DurationMin: 44})
	require.ErrorIs(t, err, domain.ErrUnmappedCluster)
}

// TestModelRoundTrip guards against the historical key-type defect: a model
// serialized and reloaded must classify identically, with integer cluster ids
// surviving the trip.
func TestModelRoundTrip(t *testing.T) {
	original, err := Train(threeGroups(), 42)
	require.NoError(t, err)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var restored Model
	require.NoError(t, json.Unmarshal(data, &restored))
	require.Equal(t, original.ClusterLabels, restored.ClusterLabels)

	probe := trainingRecord("probe", 10.0, 4.8, 48.0)
	before, err := original.Predict(probe)
	require.NoError(t, err)
	after, err := restored.Predict(probe)
	require.NoError(t, err)

	require.Equal(t, before.Label, after.Label)
	require.Equal(t, before.Confidence, after.Confidence)
	require.Equal(t, before.ClusterID, after.ClusterID)
}

func TestUnmarshalRejectsMissingClusterMapping(t *testing.T) {
	model, err := Train(threeGroups(), 42)
	require.NoError(t, err)

	data, err := json.Marshal(model)
	require.NoError(t, err)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &payload))
	payload["cluster_labels"] = json.RawMessage(`[{"cluster_id":0,"label":"run"},{"cluster_id":1,"label":"mixed"}]`)
	truncated, err := json.Marshal(payload)
	require.NoError(t, err)

	var restored Model
	err = json.Unmarshal(truncated, &restored)
	require.ErrorIs(t, err, domain.ErrUnmappedCluster)
}

func TestUnmarshalRejectsUnknownLabel(t *testing.T) {
	data := []byte(`{"k":1,"seed":1,"scaler":{"mean":[0,0,0],"std":[1,1,1]},"centroids":[[0,0,0]],"cluster_labels":[{"cluster_id":0,"label":"sprint"}],"max_training_distance":1,"training_size":5}`)

	var restored Model
	err := json.Unmarshal(data, &restored)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown label")
}
