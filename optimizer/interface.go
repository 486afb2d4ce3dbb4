// Package optimizer implements the closed set of optimizers a training run
// can select by name: sgd, adam, adamax, rms. All of them carry serializable
// state so a run can be checkpointed and resumed.
package optimizer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cadsketch/graphtrain/checkpoints"
	"github.com/cadsketch/graphtrain/config"
	"github.com/cadsketch/graphtrain/tensor"
)

// Optimizer is the common interface over the optimizer kinds.
type Optimizer interface {
	// Step applies one update from the accumulated gradients.
	Step() error

	// ZeroGrad resets gradients for all managed parameters.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float64

	// SetLR sets the learning rate. Called once per epoch boundary by the
	// scheduler.
	SetLR(lr float64)

	// StepCount returns the number of optimization steps taken.
	StepCount() uint64

	// GetState extracts optimizer state for checkpointing.
	GetState() (*checkpoints.OptimizerState, error)

	// LoadState restores optimizer state from a checkpoint.
	LoadState(state *checkpoints.OptimizerState) error
}

// Kind identifies one member of the closed optimizer set.
type Kind int

const (
	SGD Kind = iota
	Adam
	Adamax
	RMSProp
)

func (k Kind) String() string {
	switch k {
	case SGD:
		return "sgd"
	case Adam:
		return "adam"
	case Adamax:
		return "adamax"
	case RMSProp:
		return "rms"
	default:
		return "unknown"
	}
}

// ParseKind resolves an optimizer name from the configuration. Unknown names
// are a configuration error.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "sgd":
		return SGD, nil
	case "adam":
		return Adam, nil
	case "adamax":
		return Adamax, nil
	case "rms":
		return RMSProp, nil
	default:
		return 0, &config.ConfigurationError{
			Field:  "optimizer",
			Reason: fmt.Sprintf("unknown optimizer %q (one of: sgd, adam, adamax, rms)", name),
		}
	}
}

// New constructs an optimizer of the given kind over the parameter set, with
// each kind's default hyperparameters and the given learning rate.
func New(kind Kind, params []*tensor.Tensor, lr float64) (Optimizer, error) {
	switch kind {
	case SGD:
		cfg := DefaultSGDConfig()
		cfg.LearningRate = lr
		return NewSGD(params, cfg), nil
	case Adam:
		cfg := DefaultAdamConfig()
		cfg.LearningRate = lr
		return NewAdam(params, cfg), nil
	case Adamax:
		cfg := DefaultAdamaxConfig()
		cfg.LearningRate = lr
		return NewAdamax(params, cfg), nil
	case RMSProp:
		cfg := DefaultRMSPropConfig()
		cfg.LearningRate = lr
		return NewRMSProp(params, cfg), nil
	default:
		return nil, &config.ConfigurationError{
			Field:  "optimizer",
			Reason: fmt.Sprintf("unknown optimizer kind %d", kind),
		}
	}
}

// extractBufferIndex parses the parameter index from state tensor names like
// "momentum_0" or "variance_12".
func extractBufferIndex(name string) int {
	idx := strings.LastIndexByte(name, '_')
	if idx < 0 {
		return -1
	}
	n, err := strconv.Atoi(name[idx+1:])
	if err != nil {
		return -1
	}
	return n
}

// validateStateType ensures the checkpointed state belongs to this optimizer
// kind.
func validateStateType(kind Kind, state *checkpoints.OptimizerState) error {
	if state.Kind != kind.String() {
		return fmt.Errorf("state kind mismatch: expected %s, got %s", kind, state.Kind)
	}
	return nil
}

// stateTensors serializes one per-parameter buffer family under the given
// name prefix.
func stateTensors(stateType string, params []*tensor.Tensor, buffers [][]float32) []checkpoints.OptimizerTensor {
	out := make([]checkpoints.OptimizerTensor, 0, len(buffers))
	for i, buf := range buffers {
		if buf == nil {
			continue
		}
		out = append(out, checkpoints.OptimizerTensor{
			Name:      fmt.Sprintf("%s_%d", stateType, i),
			Shape:     append([]int(nil), params[i].Shape...),
			Data:      append([]float32(nil), buf...),
			StateType: stateType,
		})
	}
	return out
}

// restoreStateTensors loads a buffer family back from checkpointed state.
func restoreStateTensors(stateType string, params []*tensor.Tensor, buffers [][]float32, state *checkpoints.OptimizerState) error {
	for _, st := range state.StateData {
		if st.StateType != stateType {
			continue
		}
		i := extractBufferIndex(st.Name)
		if i < 0 || i >= len(buffers) {
			return fmt.Errorf("state tensor %s references unknown parameter index", st.Name)
		}
		if len(st.Data) != params[i].NumElems {
			return fmt.Errorf("state tensor %s has %d elements, parameter has %d", st.Name, len(st.Data), params[i].NumElems)
		}
		buffers[i] = append([]float32(nil), st.Data...)
	}
	return nil
}
