package dataset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cadsketch/graphtrain/config"
	"github.com/cadsketch/graphtrain/distributed"
)

// InitResult is everything dataset initialization hands to the run driver.
type InitResult struct {
	Train           Source
	Eval            Source // nil when no evaluation dataset is configured
	BatchesPerEpoch int
	NodeMapping     FeatureMapping // nil when the dataset carries no node features
	EdgeMapping     FeatureMapping // nil when the dataset carries no edge features
}

// Initializer produces the data sources and feature mappings for a run.
type Initializer func(cfg config.RunConfig, dist *distributed.Context) (InitResult, error)

// Error reports a dataset that could not be initialized. The cause is
// propagated verbatim; the coordinator does not interpret it.
type Error struct {
	Path  string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dataset error: %s: %v", e.Path, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// manifest is the on-disk description of a dataset shard: its feature-group
// dimension tables and sample count.
type manifest struct {
	NodeFeatures map[string]int `json:"node_features"`
	EdgeFeatures map[string]int `json:"edge_features"`
	NumSamples   int            `json:"num_samples"`
}

func loadManifest(path string) (manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return manifest{}, &Error{Path: path, Cause: err}
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return manifest{}, &Error{Path: path, Cause: err}
	}
	if m.NumSamples <= 0 {
		return manifest{}, &Error{Path: path, Cause: fmt.Errorf("manifest declares %d samples", m.NumSamples)}
	}
	return m, nil
}

// Initialize is the reference Initializer. It reads the training (and
// optional evaluation) manifests and wires synthetic sources over the
// declared feature space. Each participant seeds its source with its global
// rank, so different world sizes see different effective batch compositions.
func Initialize(cfg config.RunConfig, dist *distributed.Context) (InitResult, error) {
	train, err := loadManifest(cfg.DatasetTrain)
	if err != nil {
		return InitResult{}, err
	}

	var nodeMapping, edgeMapping FeatureMapping
	if len(train.NodeFeatures) > 0 {
		nodeMapping = NewStaticMapping(train.NodeFeatures)
	}
	if len(train.EdgeFeatures) > 0 {
		// Edge groups carry the "edge_" name prefix so the merged dimension
		// table keeps node and edge features distinguishable.
		prefixed := make(map[string]int, len(train.EdgeFeatures))
		for name, dim := range train.EdgeFeatures {
			prefixed["edge_"+name] = dim
		}
		edgeMapping = NewStaticMapping(prefixed)
	}

	width := featureWidth(MergeDimensions(nodeMapping, edgeMapping))

	rank := 0
	if dist != nil {
		rank = dist.GlobalRank
	}

	batchesPerEpoch := train.NumSamples / cfg.BatchSize
	if batchesPerEpoch < 1 {
		batchesPerEpoch = 1
	}

	var trainSource Source = NewSyntheticSource(width, cfg.Seed+int64(rank))
	if cfg.NumWorkers > 0 {
		trainSource, err = NewPrefetchSource(trainSource, PrefetchConfig{Depth: cfg.NumWorkers})
		if err != nil {
			return InitResult{}, err
		}
	}

	result := InitResult{
		Train:           trainSource,
		BatchesPerEpoch: batchesPerEpoch,
		NodeMapping:     nodeMapping,
		EdgeMapping:     edgeMapping,
	}

	if cfg.DatasetTest != "" {
		if _, err := loadManifest(cfg.DatasetTest); err != nil {
			return InitResult{}, err
		}
		result.Eval = NewSyntheticSource(width, cfg.Seed+int64(rank)+1)
	}

	return result, nil
}

// featureWidth is the dense input width implied by a merged dimension table.
// An empty table still yields a one-column input so the model is well formed.
func featureWidth(dims map[string]int) int {
	width := 0
	for _, dim := range dims {
		width += dim
	}
	if width < 1 {
		width = 1
	}
	return width
}
