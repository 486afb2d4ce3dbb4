package checkpoints

import (
	"fmt"

	"github.com/cadsketch/graphtrain/graph"
)

// LoadError reports a checkpoint that is incompatible with the freshly built
// model: unreadable, missing parameters, or mismatched shapes. It signals an
// architecture or configuration change and aborts the run at startup.
type LoadError struct {
	Path  string
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("checkpoint load error: %s: %v", e.Path, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// Resume restores a model's parameters from the checkpoint at path and
// returns the persisted epoch and global-step counters. Parameter keys are
// normalized first, so checkpoints written by a distributed run load into an
// unwrapped model.
func Resume(m *graph.Model, path string) (epoch, globalStep int, err error) {
	epoch, globalStep, _, err = ResumeWithOptimizer(m, path)
	return epoch, globalStep, err
}

// ResumeWithOptimizer is Resume plus the persisted optimizer state, nil when
// the checkpoint carries none.
func ResumeWithOptimizer(m *graph.Model, path string) (epoch, globalStep int, optState *OptimizerState, err error) {
	cp, err := Load(path)
	if err != nil {
		return 0, 0, nil, err
	}
	cp.NormalizeModelKeys()

	weights := make([]graph.Weight, 0, len(cp.Model))
	for name, w := range cp.Model {
		weights = append(weights, graph.Weight{Name: name, Shape: w.Shape, Data: w.Data})
	}

	if err := m.LoadWeights(weights); err != nil {
		return 0, 0, nil, &LoadError{Path: path, Cause: err}
	}
	return cp.Epoch, cp.GlobalStep, cp.OptimizerState, nil
}
