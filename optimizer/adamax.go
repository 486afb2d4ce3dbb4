package optimizer

import (
	"math"
	"sync"

	"github.com/cadsketch/graphtrain/checkpoints"
	"github.com/cadsketch/graphtrain/tensor"
)

// AdamaxConfig holds configuration for the Adamax optimizer.
type AdamaxConfig struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	WeightDecay  float64
}

// DefaultAdamaxConfig returns default Adamax configuration.
func DefaultAdamaxConfig() AdamaxConfig {
	return AdamaxConfig{
		LearningRate: 0.002,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// AdamaxOptimizer implements Adamax, the infinity-norm variant of Adam. The
// second moment is replaced by an exponentially weighted maximum, which needs
// no bias correction.
type AdamaxOptimizer struct {
	parameters []*tensor.Tensor
	config     AdamaxConfig
	m          [][]float32 // first moment estimates
	u          [][]float32 // infinity-norm estimates
	stepCount  uint64
	mutex      sync.RWMutex
}

// NewAdamax creates an Adamax optimizer over the parameter set.
func NewAdamax(parameters []*tensor.Tensor, config AdamaxConfig) *AdamaxOptimizer {
	return &AdamaxOptimizer{
		parameters: parameters,
		config:     config,
		m:          make([][]float32, len(parameters)),
		u:          make([][]float32, len(parameters)),
	}
}

// Step performs a single optimization step.
func (o *AdamaxOptimizer) Step() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.stepCount++
	bias1 := 1.0 - math.Pow(o.config.Beta1, float64(o.stepCount))

	lr := o.config.LearningRate
	beta1 := float32(o.config.Beta1)
	beta2 := float32(o.config.Beta2)
	eps := float32(o.config.Epsilon)
	weightDecay := float32(o.config.WeightDecay)

	for i, param := range o.parameters {
		if !param.RequiresGrad() {
			continue
		}
		grad := param.Grad()

		if o.m[i] == nil {
			o.m[i] = make([]float32, param.NumElems)
			o.u[i] = make([]float32, param.NumElems)
		}
		m, u := o.m[i], o.u[i]

		for j := range param.Data {
			g := grad[j]
			if weightDecay > 0 {
				g += weightDecay * param.Data[j]
			}

			m[j] = beta1*m[j] + (1-beta1)*g

			abs := g
			if abs < 0 {
				abs = -abs
			}
			decayed := beta2 * u[j]
			if abs > decayed {
				u[j] = abs
			} else {
				u[j] = decayed
			}

			param.Data[j] -= float32(lr/bias1) * m[j] / (u[j] + eps)
		}
	}
	return nil
}

// ZeroGrad resets gradients for all parameters.
func (o *AdamaxOptimizer) ZeroGrad() {
	tensor.ZeroGrads(o.parameters)
}

// GetLR returns the current learning rate.
func (o *AdamaxOptimizer) GetLR() float64 {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.config.LearningRate
}

// SetLR sets the learning rate.
func (o *AdamaxOptimizer) SetLR(lr float64) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.config.LearningRate = lr
}

// StepCount returns the number of steps taken.
func (o *AdamaxOptimizer) StepCount() uint64 {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.stepCount
}

// GetState extracts optimizer state for checkpointing.
func (o *AdamaxOptimizer) GetState() (*checkpoints.OptimizerState, error) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	state := &checkpoints.OptimizerState{
		Kind: Adamax.String(),
		Parameters: map[string]float64{
			"learning_rate": o.config.LearningRate,
			"beta1":         o.config.Beta1,
			"beta2":         o.config.Beta2,
			"epsilon":       o.config.Epsilon,
			"weight_decay":  o.config.WeightDecay,
			"step_count":    float64(o.stepCount),
		},
	}
	state.StateData = append(state.StateData, stateTensors("momentum", o.parameters, o.m)...)
	state.StateData = append(state.StateData, stateTensors("inf_norm", o.parameters, o.u)...)
	return state, nil
}

// LoadState restores optimizer state from a checkpoint.
func (o *AdamaxOptimizer) LoadState(state *checkpoints.OptimizerState) error {
	if err := validateStateType(Adamax, state); err != nil {
		return err
	}

	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.stepCount = uint64(state.Parameters["step_count"])
	if err := restoreStateTensors("momentum", o.parameters, o.m, state); err != nil {
		return err
	}
	return restoreStateTensors("inf_norm", o.parameters, o.u, state)
}
