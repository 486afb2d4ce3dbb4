package dataset

import (
	"math/rand"

	"github.com/cadsketch/graphtrain/tensor"
)

// Batch holds one batch of encoded graph samples: a dense feature block of
// shape [batchSize, featureWidth] and one regression target per sample.
type Batch struct {
	Features *tensor.Tensor
	Targets  []float32
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int {
	if b.Features == nil || len(b.Features.Shape) == 0 {
		return 0
	}
	return b.Features.Shape[0]
}

// Source produces batches for one participant. Implementations are expected
// to be deterministic for a fixed seed so every epoch is reproducible.
type Source interface {
	// Next returns the next batch of the given size, cycling through the
	// underlying samples as needed.
	Next(batchSize int) (*Batch, error)

	// FeatureWidth returns the width of the dense feature block.
	FeatureWidth() int
}

// SyntheticSource is an in-memory Source that synthesizes deterministic
// batches from a seed. It stands in for the on-disk sketch shards during
// development and in tests.
type SyntheticSource struct {
	featureWidth int
	rng          *rand.Rand
}

// NewSyntheticSource creates a source emitting batches of the given feature
// width. Batches are a fixed pseudo-random stream: the same seed yields the
// same sequence of batches.
func NewSyntheticSource(featureWidth int, seed int64) *SyntheticSource {
	if featureWidth < 1 {
		featureWidth = 1
	}
	return &SyntheticSource{
		featureWidth: featureWidth,
		rng:          rand.New(rand.NewSource(seed)),
	}
}

func (s *SyntheticSource) FeatureWidth() int {
	return s.featureWidth
}

func (s *SyntheticSource) Next(batchSize int) (*Batch, error) {
	data := make([]float32, batchSize*s.featureWidth)
	for i := range data {
		data[i] = float32(s.rng.NormFloat64())
	}
	features, err := tensor.NewTensor([]int{batchSize, s.featureWidth}, tensor.CPUDevice, data)
	if err != nil {
		return nil, err
	}

	targets := make([]float32, batchSize)
	for i := range targets {
		targets[i] = float32(s.rng.NormFloat64())
	}

	return &Batch{Features: features, Targets: targets}, nil
}
