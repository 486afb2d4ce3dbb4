package training

import (
	"time"

	"github.com/pkg/errors"

	"github.com/cadsketch/graphtrain/dataset"
	"github.com/cadsketch/graphtrain/distributed"
	"github.com/cadsketch/graphtrain/graph"
	"github.com/cadsketch/graphtrain/optimizer"
	"github.com/cadsketch/graphtrain/tensor"
)

// Harness drives the per-epoch work. The coordinator owns the epoch loop and
// the schedule; the harness owns what one epoch of training or evaluation
// means.
type Harness interface {
	// RunTrainingEpoch consumes one epoch of training batches, stepping the
	// optimizer after each, and returns the advanced state.
	RunTrainingEpoch(state TrainingState) (TrainingState, error)

	// RunEvalEpoch consumes one epoch of evaluation batches without updating
	// parameters.
	RunEvalEpoch(state TrainingState) error
}

// EpochHarness is the in-process batch-at-a-time implementation backing a
// single participant of the run.
type EpochHarness struct {
	model *graph.Model
	opt   optimizer.Optimizer

	train dataset.Source
	eval  dataset.Source

	syncer   distributed.Syncer
	reporter Reporter

	batchSize       int
	batchesPerEpoch int
	profile         bool
}

// NewEpochHarness builds a harness over this participant's partition of the
// batch. batchSize is the per-participant share; batchesPerEpoch bounds the
// epoch over synthetic or streaming sources.
func NewEpochHarness(
	model *graph.Model,
	opt optimizer.Optimizer,
	train, eval dataset.Source,
	syncer distributed.Syncer,
	reporter Reporter,
	batchSize, batchesPerEpoch int,
	profile bool,
) *EpochHarness {
	return &EpochHarness{
		model:           model,
		opt:             opt,
		train:           train,
		eval:            eval,
		syncer:          syncer,
		reporter:        reporter,
		batchSize:       batchSize,
		batchesPerEpoch: batchesPerEpoch,
		profile:         profile,
	}
}

func (h *EpochHarness) RunTrainingEpoch(state TrainingState) (TrainingState, error) {
	start := time.Now()
	totalLoss := 0.0
	steps := 0

	for b := 0; b < h.batchesPerEpoch; b++ {
		batch, err := h.train.Next(h.batchSize)
		if err != nil {
			return state, errors.Wrapf(err, "training batch %d of epoch %d", b, state.Epoch)
		}

		h.opt.ZeroGrad()
		loss, err := h.model.TrainStep(rows(batch.Features), batch.Targets)
		if err != nil {
			return state, errors.Wrapf(err, "training step %d of epoch %d", b, state.Epoch)
		}

		// Gradients must agree across participants before the update.
		if err := h.syncer.Sync(); err != nil {
			return state, errors.Wrapf(err, "gradient sync at step %d of epoch %d", b, state.Epoch)
		}
		if err := h.opt.Step(); err != nil {
			return state, errors.Wrapf(err, "optimizer step %d of epoch %d", b, state.Epoch)
		}

		totalLoss += loss
		steps++
		state.GlobalStep++

		if h.profile {
			h.reporter.Logf("step %d: loss=%.6f lr=%.8f elapsed=%s",
				state.GlobalStep, loss, h.opt.GetLR(), time.Since(start))
		}
	}

	h.reporter.Epoch(EpochMetric{
		Epoch:    state.Epoch,
		Phase:    "train",
		Loss:     totalLoss / float64(max(steps, 1)),
		LRFactor: h.opt.GetLR(),
		Steps:    steps,
		Duration: time.Since(start),
	})

	state.Epoch++
	return state, nil
}

func (h *EpochHarness) RunEvalEpoch(state TrainingState) error {
	if h.eval == nil {
		return nil
	}

	start := time.Now()
	totalLoss := 0.0
	steps := 0

	for b := 0; b < h.batchesPerEpoch; b++ {
		batch, err := h.eval.Next(h.batchSize)
		if err != nil {
			return errors.Wrapf(err, "eval batch %d after epoch %d", b, state.Epoch)
		}
		loss, err := h.model.EvalStep(rows(batch.Features), batch.Targets)
		if err != nil {
			return errors.Wrapf(err, "eval step %d after epoch %d", b, state.Epoch)
		}
		totalLoss += loss
		steps++
	}

	h.reporter.Epoch(EpochMetric{
		Epoch:    state.Epoch,
		Phase:    "eval",
		Loss:     totalLoss / float64(max(steps, 1)),
		LRFactor: h.opt.GetLR(),
		Steps:    steps,
		Duration: time.Since(start),
	})
	return nil
}

// rows views a dense [batch, width] tensor as per-sample slices without
// copying.
func rows(t *tensor.Tensor) [][]float32 {
	if t == nil || len(t.Shape) != 2 {
		return nil
	}
	n, width := t.Shape[0], t.Shape[1]
	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		out[i] = t.Data[i*width : (i+1)*width]
	}
	return out
}
