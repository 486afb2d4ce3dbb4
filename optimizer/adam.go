package optimizer

import (
	"math"
	"sync"

	"github.com/cadsketch/graphtrain/checkpoints"
	"github.com/cadsketch/graphtrain/tensor"
)

// AdamConfig holds configuration for the Adam optimizer.
type AdamConfig struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	WeightDecay  float64
}

// DefaultAdamConfig returns default Adam configuration.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// AdamOptimizer implements the Adam optimizer.
type AdamOptimizer struct {
	parameters []*tensor.Tensor
	config     AdamConfig
	m          [][]float32 // first moment estimates
	v          [][]float32 // second moment estimates
	stepCount  uint64
	mutex      sync.RWMutex
}

// NewAdam creates an Adam optimizer over the parameter set.
func NewAdam(parameters []*tensor.Tensor, config AdamConfig) *AdamOptimizer {
	return &AdamOptimizer{
		parameters: parameters,
		config:     config,
		m:          make([][]float32, len(parameters)),
		v:          make([][]float32, len(parameters)),
	}
}

// Step performs a single optimization step.
func (o *AdamOptimizer) Step() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.stepCount++

	// Bias correction factors
	bias1 := 1.0 - math.Pow(o.config.Beta1, float64(o.stepCount))
	bias2 := 1.0 - math.Pow(o.config.Beta2, float64(o.stepCount))

	lr := o.config.LearningRate
	beta1 := float32(o.config.Beta1)
	beta2 := float32(o.config.Beta2)
	weightDecay := float32(o.config.WeightDecay)

	for i, param := range o.parameters {
		if !param.RequiresGrad() {
			continue
		}
		grad := param.Grad()

		if o.m[i] == nil {
			o.m[i] = make([]float32, param.NumElems)
			o.v[i] = make([]float32, param.NumElems)
		}
		m, v := o.m[i], o.v[i]

		for j := range param.Data {
			g := grad[j]
			if weightDecay > 0 {
				g += weightDecay * param.Data[j]
			}

			m[j] = beta1*m[j] + (1-beta1)*g
			v[j] = beta2*v[j] + (1-beta2)*g*g

			mHat := float64(m[j]) / bias1
			vHat := float64(v[j]) / bias2
			param.Data[j] -= float32(lr * mHat / (math.Sqrt(vHat) + o.config.Epsilon))
		}
	}
	return nil
}

// ZeroGrad resets gradients for all parameters.
func (o *AdamOptimizer) ZeroGrad() {
	tensor.ZeroGrads(o.parameters)
}

// GetLR returns the current learning rate.
func (o *AdamOptimizer) GetLR() float64 {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.config.LearningRate
}

// SetLR sets the learning rate.
func (o *AdamOptimizer) SetLR(lr float64) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.config.LearningRate = lr
}

// StepCount returns the number of steps taken.
func (o *AdamOptimizer) StepCount() uint64 {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.stepCount
}

// GetState extracts optimizer state for checkpointing.
func (o *AdamOptimizer) GetState() (*checkpoints.OptimizerState, error) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	state := &checkpoints.OptimizerState{
		Kind: Adam.String(),
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
	state.StateData = append(state.StateData, stateTensors("variance", o.parameters, o.v)...)
	return state, nil
}

// LoadState restores optimizer state from a checkpoint.
func (o *AdamOptimizer) LoadState(state *checkpoints.OptimizerState) error {
	if err := validateStateType(Adam, state); err != nil {
		return err
	}

	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.stepCount = uint64(state.Parameters["step_count"])
	if err := restoreStateTensors("momentum", o.parameters, o.m, state); err != nil {
		return err
	}
	return restoreStateTensors("variance", o.parameters, o.v, state)
}
