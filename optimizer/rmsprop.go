package optimizer

import (
	"math"
	"sync"

	"github.com/cadsketch/graphtrain/checkpoints"
	"github.com/cadsketch/graphtrain/tensor"
)

// RMSPropConfig holds configuration for the RMSProp optimizer.
type RMSPropConfig struct {
	LearningRate float64
	Alpha        float64 // smoothing constant for the squared-gradient average
	Epsilon      float64
	WeightDecay  float64
}

// DefaultRMSPropConfig returns default RMSProp configuration.
func DefaultRMSPropConfig() RMSPropConfig {
	return RMSPropConfig{
		LearningRate: 0.01,
		Alpha:        0.99,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// RMSPropOptimizer implements RMSProp.
type RMSPropOptimizer struct {
	parameters []*tensor.Tensor
	config     RMSPropConfig
	squareAvg  [][]float32
	stepCount  uint64
	mutex      sync.RWMutex
}

// NewRMSProp creates an RMSProp optimizer over the parameter set.
func NewRMSProp(parameters []*tensor.Tensor, config RMSPropConfig) *RMSPropOptimizer {
	return &RMSPropOptimizer{
		parameters: parameters,
		config:     config,
		squareAvg:  make([][]float32, len(parameters)),
	}
}

// Step performs a single optimization step.
func (o *RMSPropOptimizer) Step() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.stepCount++
	lr := o.config.LearningRate
	alpha := float32(o.config.Alpha)
	weightDecay := float32(o.config.WeightDecay)

	for i, param := range o.parameters {
		if !param.RequiresGrad() {
			continue
		}
		grad := param.Grad()

		if o.squareAvg[i] == nil {
			o.squareAvg[i] = make([]float32, param.NumElems)
		}
		sq := o.squareAvg[i]

		for j := range param.Data {
			g := grad[j]
			if weightDecay > 0 {
				g += weightDecay * param.Data[j]
			}

			sq[j] = alpha*sq[j] + (1-alpha)*g*g
			param.Data[j] -= float32(lr * float64(g) / (math.Sqrt(float64(sq[j])) + o.config.Epsilon))
		}
	}
	return nil
}

// ZeroGrad resets gradients for all parameters.
func (o *RMSPropOptimizer) ZeroGrad() {
	tensor.ZeroGrads(o.parameters)
}

// GetLR returns the current learning rate.
func (o *RMSPropOptimizer) GetLR() float64 {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.config.LearningRate
}

// SetLR sets the learning rate.
func (o *RMSPropOptimizer) SetLR(lr float64) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.config.LearningRate = lr
}

// StepCount returns the number of steps taken.
func (o *RMSPropOptimizer) StepCount() uint64 {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.stepCount
}

// GetState extracts optimizer state for checkpointing.
func (o *RMSPropOptimizer) GetState() (*checkpoints.OptimizerState, error) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	return &checkpoints.OptimizerState{
		Kind: RMSProp.String(),
		Parameters: map[string]float64{
			"learning_rate": o.config.LearningRate,
			"alpha":         o.config.Alpha,
			"epsilon":       o.config.Epsilon,
			"weight_decay":  o.config.WeightDecay,
			"step_count":    float64(o.stepCount),
		},
		StateData: stateTensors("squared_grad_avg", o.parameters, o.squareAvg),
	}, nil
}

// LoadState restores optimizer state from a checkpoint.
func (o *RMSPropOptimizer) LoadState(state *checkpoints.OptimizerState) error {
	if err := validateStateType(RMSProp, state); err != nil {
		return err
	}

	o.mutex.Lock()
	defer o.mutex.Unlock()

	o.stepCount = uint64(state.Parameters["step_count"])
	return restoreStateTensors("squared_grad_avg", o.parameters, o.squareAvg, state)
}
