package training

import (
	"github.com/cadsketch/graphtrain/optimizer"
	"github.com/cadsketch/graphtrain/tensor"
)

// lrScale is the multiplier applied to the configured base learning rate
// before the optimizer sees it. The configured default of 2e-5 is stated per
// sample of a 16-way batch split; the effective rate is the product.
const lrScale = 16

// Warmup and decay milestones of the fixed run schedule, in epochs.
var (
	defaultWarmupEpochs = 5
	defaultDecayEpochs  = []int{20, 40}
)

// Bind constructs the optimizer named by kindName over params, paired with
// the run's warmup-then-step schedule. The optimizer starts at the scaled
// base rate; the coordinator applies the schedule factor at each epoch
// boundary.
func Bind(kindName string, params []*tensor.Tensor, baseLR float64) (optimizer.Optimizer, *WarmupStepLRScheduler, error) {
	kind, err := optimizer.ParseKind(kindName)
	if err != nil {
		return nil, nil, err
	}

	opt, err := optimizer.New(kind, params, baseLR*lrScale)
	if err != nil {
		return nil, nil, err
	}

	sched, err := NewWarmupStepLRScheduler(defaultWarmupEpochs, defaultDecayEpochs)
	if err != nil {
		return nil, nil, err
	}
	return opt, sched, nil
}
