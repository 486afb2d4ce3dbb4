package training

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/cadsketch/graphtrain/checkpoints"
	"github.com/cadsketch/graphtrain/config"
	"github.com/cadsketch/graphtrain/dataset"
	"github.com/cadsketch/graphtrain/distributed"
)

// fakeHarness counts epoch invocations and optionally fails on a chosen one.
type fakeHarness struct {
	trainCalls int
	evalCalls  int
	failAt     int // 1-based training call to fail on, 0 for never
}

func (f *fakeHarness) RunTrainingEpoch(state TrainingState) (TrainingState, error) {
	f.trainCalls++
	if f.failAt > 0 && f.trainCalls == f.failAt {
		return state, fmt.Errorf("injected failure")
	}
	state.Epoch++
	state.GlobalStep += 10
	return state, nil
}

func (f *fakeHarness) RunEvalEpoch(state TrainingState) error {
	f.evalCalls++
	return nil
}

func testConfig() config.RunConfig {
	cfg := config.Default()
	cfg.HiddenSize = 4
	cfg.NumPropRounds = 1
	cfg.BatchSize = 8
	cfg.NumEpochs = 3
	cfg.LearningRate = 1e-3
	cfg.Optimizer = "sgd"
	return cfg
}

func testCoordinator(cfg config.RunConfig, harness Harness) *Coordinator {
	sched, err := NewWarmupStepLRScheduler(defaultWarmupEpochs, defaultDecayEpochs)
	if err != nil {
		panic(err)
	}
	opt, _, err := Bind(cfg.Optimizer, nil, cfg.LearningRate)
	if err != nil {
		panic(err)
	}
	return &Coordinator{
		cfg:      cfg,
		reporter: NopReporter{},
		opt:      opt,
		sched:    sched,
		harness:  harness,
		phase:    Initializing,
	}
}

func TestCoordinatorRunsConfiguredEpochs(t *testing.T) {
	harness := &fakeHarness{}
	coord := testCoordinator(testConfig(), harness)

	if coord.Phase() != Initializing {
		t.Fatalf("fresh coordinator in phase %v, want %v", coord.Phase(), Initializing)
	}
	if _, err := coord.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if harness.trainCalls != 3 {
		t.Errorf("expected exactly 3 training epochs, got %d", harness.trainCalls)
	}
	if harness.evalCalls != 3 {
		t.Errorf("expected 3 eval epochs, got %d", harness.evalCalls)
	}
	if coord.Phase() != Terminated {
		t.Errorf("finished coordinator in phase %v, want %v", coord.Phase(), Terminated)
	}
	if got := coord.State(); got.Epoch != 3 || got.GlobalStep != 30 {
		t.Errorf("final state %+v, want epoch 3 and global step 30", got)
	}
}

func TestCoordinatorResumePastEnd(t *testing.T) {
	// A checkpoint at or beyond the configured epoch count means no further
	// training.
	harness := &fakeHarness{}
	coord := testCoordinator(testConfig(), harness)
	coord.state = TrainingState{Epoch: 3, GlobalStep: 30}

	if _, err := coord.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if harness.trainCalls != 0 {
		t.Errorf("expected no training epochs, got %d", harness.trainCalls)
	}
	if coord.Phase() != Terminated {
		t.Errorf("coordinator in phase %v, want %v", coord.Phase(), Terminated)
	}
}

func TestCoordinatorPropagatesHarnessError(t *testing.T) {
	harness := &fakeHarness{failAt: 2}
	coord := testCoordinator(testConfig(), harness)

	if _, err := coord.Run(); err == nil {
		t.Fatal("expected the harness error to propagate")
	}
	if harness.trainCalls != 2 {
		t.Errorf("expected the run to stop at the failing epoch, got %d calls", harness.trainCalls)
	}
	if coord.Phase() != Terminated {
		t.Errorf("failed coordinator in phase %v, want %v", coord.Phase(), Terminated)
	}
}

func TestCoordinatorEndToEndSynthetic(t *testing.T) {
	cfg := testConfig()
	cfg.NumEpochs = 2

	nodeDims := map[string]int{"length": 3, "angle": 2}
	data := dataset.InitResult{
		Train:           dataset.NewSyntheticSource(5, cfg.Seed),
		Eval:            dataset.NewSyntheticSource(5, cfg.Seed+1),
		BatchesPerEpoch: 3,
		NodeMapping:     dataset.NewStaticMapping(nodeDims),
	}

	coord, err := NewCoordinator(cfg, nil, data, distributed.NopSyncer{}, NopReporter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	model, err := coord.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if coord.Phase() != Terminated {
		t.Errorf("coordinator in phase %v, want %v", coord.Phase(), Terminated)
	}
	if got := coord.State(); got.Epoch != 2 || got.GlobalStep != 6 {
		t.Errorf("final state %+v, want epoch 2 and global step 6", got)
	}
	for _, p := range model.NamedParameters() {
		for _, v := range p.Tensor.Data {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("parameter %s diverged", p.Name)
			}
		}
	}
}

func TestNewCoordinatorResumesFromCheckpoint(t *testing.T) {
	cfg := testConfig()
	cfg.NumEpochs = 5

	nodeDims := map[string]int{"length": 3}
	data := dataset.InitResult{
		Train:           dataset.NewSyntheticSource(3, cfg.Seed),
		BatchesPerEpoch: 2,
		NodeMapping:     dataset.NewStaticMapping(nodeDims),
	}

	// Train briefly and snapshot.
	first, err := NewCoordinator(cfg, nil, data, nil, NopReporter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg2 := cfg
	cfg2.NumEpochs = 2
	first.cfg = cfg2
	if _, err := first.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	optState, err := first.opt.GetState()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	cp := checkpoints.New(first.model, first.state.Epoch, first.state.GlobalStep, optState, first.meta)
	if err := cp.Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A fresh coordinator picks up where the snapshot left off.
	cfg.ModelState = path
	resumed, err := NewCoordinator(cfg, nil, data, nil, NopReporter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resumed.State(); got.Epoch != 2 || got.GlobalStep != 4 {
		t.Errorf("resumed state %+v, want epoch 2 and global step 4", got)
	}

	want := first.model.Parameter("input.weight").Data
	got := resumed.model.Parameter("input.weight").Data
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("resumed weights diverge at element %d: %v vs %v", i, got[i], want[i])
		}
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{Initializing, "initializing"},
		{Running, "running"},
		{Terminated, "terminated"},
		{Phase(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}
