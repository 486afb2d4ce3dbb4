package optimizer

import (
	"sync"

	"github.com/cadsketch/graphtrain/checkpoints"
	"github.com/cadsketch/graphtrain/tensor"
)

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
	Nesterov     bool
}

// DefaultSGDConfig returns default SGD configuration.
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.0,
		WeightDecay:  0.0,
		Nesterov:     false,
	}
}

// SGDOptimizer implements stochastic gradient descent with optional momentum.
type SGDOptimizer struct {
	parameters []*tensor.Tensor
	config     SGDConfig
	velocities [][]float32
	stepCount  uint64
	mutex      sync.RWMutex
}

// NewSGD creates an SGD optimizer over the parameter set.
func NewSGD(parameters []*tensor.Tensor, config SGDConfig) *SGDOptimizer {
	return &SGDOptimizer{
		parameters: parameters,
		config:     config,
		velocities: make([][]float32, len(parameters)),
	}
}

// Step performs a single optimization step.
func (o *SGDOptimizer) Step() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.stepCount++
	lr := float32(o.config.LearningRate)
	momentum := float32(o.config.Momentum)
	weightDecay := float32(o.config.WeightDecay)

	for i, param := range o.parameters {
		if !param.RequiresGrad() {
			continue
		}
		grad := param.Grad()

		for j := range param.Data {
			g := grad[j]
			if weightDecay > 0 {
				g += weightDecay * param.Data[j]
			}

			if momentum > 0 {
				if o.velocities[i] == nil {
					o.velocities[i] = make([]float32, param.NumElems)
				}
				v := momentum*o.velocities[i][j] + g
				o.velocities[i][j] = v
				if o.config.Nesterov {
					g = g + momentum*v
				} else {
					g = v
				}
			}

			param.Data[j] -= lr * g
		}
	}
	return nil
}

// ZeroGrad resets gradients for all parameters.
func (o *SGDOptimizer) ZeroGrad() {
	tensor.ZeroGrads(o.parameters)
}

// GetLR returns the current learning rate.
func (o *SGDOptimizer) GetLR() float64 {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.config.LearningRate
}

// SetLR sets the learning rate.
func (o *SGDOptimizer) SetLR(lr float64) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.config.LearningRate = lr
}

// StepCount returns the number of steps taken.
func (o *SGDOptimizer) StepCount() uint64 {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.stepCount
}

// GetState extracts optimizer state for checkpointing.
func (o *SGDOptimizer) GetState() (*checkpoints.OptimizerState, error) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return &checkpoints.OptimizerState{
		Kind: SGD.String(),
		Parameters: map[string]float64{
			"learning_rate": o.config.LearningRate,
			"momentum":      o.config.Momentum,
			"weight_decay":  o.config.WeightDecay,
			"step_count":    float64(o.stepCount),
		},
		StateData: stateTensors("momentum", o.parameters, o.velocities),
	}, nil
}

// LoadState restores optimizer state from a checkpoint.
func (o *SGDOptimizer) LoadState(state *checkpoints.OptimizerState) error {
	if err := validateStateType(SGD, state); err != nil {
		return err
	}

	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.stepCount = uint64(state.Parameters["step_count"])
	return restoreStateTensors("momentum", o.parameters, o.velocities, state)
}
