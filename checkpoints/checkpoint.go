// Package checkpoints persists and restores training run snapshots: model
// parameters, epoch and global-step counters, optional optimizer state, and
// the auxiliary metadata needed to rebuild an identical model shape without
// the original run configuration.
//
// Checkpoints are written by the leader participant only and read at most
// once, at startup. Parameter data is always materialized host-side first;
// device placement follows separately.
package checkpoints

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/cadsketch/graphtrain/graph"
)

// WeightTensor is one serialized parameter. Its name is the key in the
// checkpoint's model table.
type WeightTensor struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// OptimizerTensor is one serialized optimizer state buffer (momentum,
// variance, and so on), named like "momentum_0" after the parameter index it
// belongs to.
type OptimizerTensor struct {
	Name      string    `json:"name"`
	Shape     []int     `json:"shape"`
	Data      []float32 `json:"data"`
	StateType string    `json:"state_type"`
}

// OptimizerState captures optimizer-specific state for resumption.
type OptimizerState struct {
	Kind       string             `json:"kind"`
	Parameters map[string]float64 `json:"parameters"`
	StateData  []OptimizerTensor  `json:"state_data"`
}

// ModelConfiguration records the architecture hyperparameters the model was
// built with.
type ModelConfiguration struct {
	EmbeddingDim int    `json:"embedding_dim"`
	Depth        int    `json:"depth"`
	Name         string `json:"name"`
}

// Metadata is the auxiliary record embedded alongside the parameters: the
// feature-mapping snapshots and architecture configuration sufficient to
// reconstruct the model shape.
type Metadata struct {
	NodeFeatureMapping json.RawMessage    `json:"node_feature_mapping,omitempty"`
	EdgeFeatureMapping json.RawMessage    `json:"edge_feature_mapping,omitempty"`
	ModelConfiguration ModelConfiguration `json:"model_configuration"`
	CreatedAt          time.Time          `json:"created_at"`
}

// Checkpoint is the persisted snapshot of a training run.
type Checkpoint struct {
	Model          map[string]WeightTensor `json:"model"`
	Epoch          int                     `json:"epoch"`
	GlobalStep     int                     `json:"global_step"`
	OptimizerState *OptimizerState         `json:"optimizer_state,omitempty"`
	Metadata       Metadata                `json:"auxiliary_metadata"`
}

// New snapshots a model and its counters into a checkpoint.
func New(m *graph.Model, epoch, globalStep int, optState *OptimizerState, meta Metadata) *Checkpoint {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}

	model := map[string]WeightTensor{}
	for _, w := range m.Weights() {
		model[w.Name] = WeightTensor{Shape: w.Shape, Data: w.Data}
	}

	return &Checkpoint{
		Model:          model,
		Epoch:          epoch,
		GlobalStep:     globalStep,
		OptimizerState: optState,
		Metadata:       meta,
	}
}

// Save writes the checkpoint as a single JSON record.
func (cp *Checkpoint) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create checkpoint %s", path)
	}
	defer file.Close()

	if err := json.NewEncoder(file).Encode(cp); err != nil {
		return errors.Wrapf(err, "unable to encode checkpoint %s", path)
	}
	return nil
}

// Load reads a checkpoint record from disk.
func Load(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, &LoadError{Path: path, Cause: err}
	}
	return &cp, nil
}
