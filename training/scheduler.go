package training

import (
	"fmt"
	"math"

	"github.com/cadsketch/graphtrain/config"
)

// LRScheduler defines the interface for learning rate scheduling strategies.
// Schedulers are pure functions of the epoch index: re-evaluated once at each
// epoch boundary, never inside an epoch.
type LRScheduler interface {
	// GetLR returns the learning rate for the current epoch/step.
	GetLR(epoch int, step int, baseLR float64) float64

	// GetName returns the scheduler name for logging.
	GetName() string
}

// WarmupStepFactor is the schedule underlying WarmupStepLRScheduler: a linear
// ramp from 1/warmupEpochs to 1 over the first warmupEpochs epochs, then a
// 10x decay for every threshold crossed. Thresholds are right-inclusive: an
// epoch exactly equal to a threshold counts as past it.
func WarmupStepFactor(epoch, warmupEpochs int, decayEpochs []int) float64 {
	warmup := math.Min(float64(epoch+1)/float64(warmupEpochs), 1)

	crossed := 0
	for _, threshold := range decayEpochs {
		if threshold <= epoch {
			crossed++
		}
	}

	return warmup * math.Pow(0.1, float64(crossed))
}

// WarmupStepLRScheduler scales the base learning rate by WarmupStepFactor.
type WarmupStepLRScheduler struct {
	WarmupEpochs int
	DecayEpochs  []int
}

// NewWarmupStepLRScheduler creates a warmup+step-decay scheduler. The warmup
// length must be positive and the decay thresholds strictly increasing.
func NewWarmupStepLRScheduler(warmupEpochs int, decayEpochs []int) (*WarmupStepLRScheduler, error) {
	if warmupEpochs <= 0 {
		return nil, &config.ConfigurationError{
			Field:  "warmup_epochs",
			Reason: fmt.Sprintf("must be positive, got %d", warmupEpochs),
		}
	}
	for i := 1; i < len(decayEpochs); i++ {
		if decayEpochs[i] <= decayEpochs[i-1] {
			return nil, &config.ConfigurationError{
				Field:  "decay_epochs",
				Reason: fmt.Sprintf("must be strictly increasing, got %v", decayEpochs),
			}
		}
	}
	return &WarmupStepLRScheduler{
		WarmupEpochs: warmupEpochs,
		DecayEpochs:  append([]int(nil), decayEpochs...),
	}, nil
}

// Factor returns the multiplicative learning-rate factor for an epoch.
func (s *WarmupStepLRScheduler) Factor(epoch int) float64 {
	return WarmupStepFactor(epoch, s.WarmupEpochs, s.DecayEpochs)
}

func (s *WarmupStepLRScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	return baseLR * s.Factor(epoch)
}

func (s *WarmupStepLRScheduler) GetName() string {
	return "WarmupStepLR"
}

// NoOpScheduler maintains a constant learning rate.
type NoOpScheduler struct{}

func (s *NoOpScheduler) GetLR(epoch int, step int, baseLR float64) float64 {
	return baseLR
}

func (s *NoOpScheduler) GetName() string {
	return "ConstantLR"
}
