package training

import (
	"github.com/pkg/errors"

	"github.com/cadsketch/graphtrain/checkpoints"
	"github.com/cadsketch/graphtrain/config"
	"github.com/cadsketch/graphtrain/dataset"
	"github.com/cadsketch/graphtrain/distributed"
	"github.com/cadsketch/graphtrain/graph"
	"github.com/cadsketch/graphtrain/optimizer"
	"github.com/cadsketch/graphtrain/tensor"
)

// Phase is the coordinator's lifecycle position.
type Phase int

const (
	Initializing Phase = iota
	Running
	Terminated
)

func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Coordinator owns the lifecycle of one training run: building and optionally
// resuming the model, binding the optimizer and schedule, then driving the
// epoch loop until the configured epoch count is reached.
type Coordinator struct {
	cfg      config.RunConfig
	dist     *distributed.Context
	reporter Reporter

	model   *graph.Model
	opt     optimizer.Optimizer
	sched   *WarmupStepLRScheduler
	harness Harness

	state TrainingState
	phase Phase

	meta checkpoints.Metadata
}

// NewCoordinator assembles a run from its already-initialized parts. The
// configuration must have passed validation; resuming from cfg.ModelState and
// device placement happen here, before the first epoch.
func NewCoordinator(
	cfg config.RunConfig,
	dist *distributed.Context,
	data dataset.InitResult,
	syncer distributed.Syncer,
	reporter Reporter,
) (*Coordinator, error) {
	dims := dataset.MergeDimensions(data.NodeMapping, data.EdgeMapping)
	model, err := graph.Build(dims, cfg)
	if err != nil {
		return nil, err
	}
	reporter.Logf("model built: %d parameters across %d tensors",
		model.NumParameters(), len(model.Parameters()))

	state := TrainingState{}
	var resumedOpt *checkpoints.OptimizerState
	if cfg.ModelState != "" {
		epoch, globalStep, optState, err := checkpoints.ResumeWithOptimizer(model, cfg.ModelState)
		if err != nil {
			return nil, err
		}
		state = TrainingState{Epoch: epoch, GlobalStep: globalStep}
		resumedOpt = optState
		reporter.Logf("resumed from %s at epoch %d, global step %d",
			cfg.ModelState, epoch, globalStep)
	}

	// Each participant drives its own accelerator; a single-participant run
	// takes the first one.
	if dist != nil && dist.WorldSize > 1 {
		model.To(tensor.AcceleratorDevice(dist.LocalRank))
	} else {
		model.To(tensor.AcceleratorDevice(0))
	}

	perParticipant, _ := distributed.Partition(cfg.BatchSize, dist)

	opt, sched, err := Bind(cfg.Optimizer, model.Parameters(), cfg.LearningRate)
	if err != nil {
		return nil, err
	}
	if resumedOpt != nil {
		if err := opt.LoadState(resumedOpt); err != nil {
			return nil, errors.Wrapf(err, "restoring optimizer state from %s", cfg.ModelState)
		}
	}

	if syncer == nil {
		syncer = distributed.NopSyncer{}
	}
	harness := NewEpochHarness(
		model, opt,
		data.Train, data.Eval,
		syncer, reporter,
		perParticipant, data.BatchesPerEpoch,
		cfg.Profile,
	)

	meta, err := buildMetadata(cfg, data)
	if err != nil {
		return nil, err
	}

	return &Coordinator{
		cfg:      cfg,
		dist:     dist,
		reporter: reporter,
		model:    model,
		opt:      opt,
		sched:    sched,
		harness:  harness,
		state:    state,
		phase:    Initializing,
		meta:     meta,
	}, nil
}

// Phase reports the coordinator's current lifecycle position.
func (c *Coordinator) Phase() Phase {
	return c.phase
}

// State reports the current epoch and global-step counters.
func (c *Coordinator) State() TrainingState {
	return c.state
}

// Run drives the epoch loop until NumEpochs epochs have completed, applying
// the schedule factor at each epoch boundary and checkpointing through the
// reporter after each training epoch. It returns the trained model.
func (c *Coordinator) Run() (*graph.Model, error) {
	c.phase = Running
	baseLR := c.cfg.LearningRate * lrScale

	for c.state.Epoch < c.cfg.NumEpochs {
		c.opt.SetLR(c.sched.GetLR(c.state.Epoch, c.state.GlobalStep, baseLR))

		next, err := c.harness.RunTrainingEpoch(c.state)
		if err != nil {
			c.phase = Terminated
			return nil, errors.Wrapf(err, "epoch %d failed", c.state.Epoch)
		}
		c.state = next

		if err := c.harness.RunEvalEpoch(c.state); err != nil {
			c.phase = Terminated
			return nil, errors.Wrapf(err, "evaluation after epoch %d failed", c.state.Epoch-1)
		}

		if err := c.checkpoint(); err != nil {
			c.phase = Terminated
			return nil, errors.Wrapf(err, "checkpoint after epoch %d failed", c.state.Epoch-1)
		}
	}

	c.phase = Terminated
	return c.model, nil
}

// checkpoint snapshots the model and optimizer through the reporter. Only a
// writing reporter invokes the thunk, so non-leaders skip the copy entirely.
func (c *Coordinator) checkpoint() error {
	return c.reporter.Checkpoint(func() *checkpoints.Checkpoint {
		optState, err := c.opt.GetState()
		if err != nil {
			c.reporter.Logf("optimizer state unavailable, checkpointing without it: %v", err)
			optState = nil
		}
		return checkpoints.New(c.model, c.state.Epoch, c.state.GlobalStep, optState, c.meta)
	})
}

func buildMetadata(cfg config.RunConfig, data dataset.InitResult) (checkpoints.Metadata, error) {
	meta := checkpoints.Metadata{
		ModelConfiguration: checkpoints.ModelConfiguration{
			EmbeddingDim: cfg.HiddenSize,
			Depth:        cfg.NumPropRounds,
			Name:         "graph_model",
		},
	}

	var err error
	if data.NodeMapping != nil {
		meta.NodeFeatureMapping, err = data.NodeMapping.State()
		if err != nil {
			return meta, errors.Wrap(err, "snapshotting node feature mapping")
		}
	}
	if data.EdgeMapping != nil {
		meta.EdgeFeatureMapping, err = data.EdgeMapping.State()
		if err != nil {
			return meta, errors.Wrap(err, "snapshotting edge feature mapping")
		}
	}
	return meta, nil
}
