package training

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cadsketch/graphtrain/config"
	"github.com/cadsketch/graphtrain/dataset"
	"github.com/cadsketch/graphtrain/distributed"
)

func syntheticInitializer(batchesPerEpoch int) dataset.Initializer {
	return func(cfg config.RunConfig, dist *distributed.Context) (dataset.InitResult, error) {
		return dataset.InitResult{
			Train:           dataset.NewSyntheticSource(3, cfg.Seed),
			BatchesPerEpoch: batchesPerEpoch,
			NodeMapping:     dataset.NewStaticMapping(map[string]int{"length": 3}),
		}, nil
	}
}

func TestRunWritesLeaderArtifacts(t *testing.T) {
	cfg := testConfig()
	cfg.NumEpochs = 1
	cfg.DatasetTrain = filepath.Join(t.TempDir(), "train")
	cfg.OutputDir = t.TempDir()

	model, err := Run(cfg, nil, syntheticInitializer(2), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model == nil {
		t.Fatal("expected a trained model")
	}

	// One {MMDD}/time_{HHMMSS} run directory with the configuration dump,
	// metrics stream, and final checkpoint.
	days, err := os.ReadDir(cfg.OutputDir)
	if err != nil || len(days) != 1 {
		t.Fatalf("expected one day directory, got %v (err %v)", days, err)
	}
	runs, err := os.ReadDir(filepath.Join(cfg.OutputDir, days[0].Name()))
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one run directory, got %v (err %v)", runs, err)
	}
	runDir := filepath.Join(cfg.OutputDir, days[0].Name(), runs[0].Name())

	for _, name := range []string{"args.json", "metrics.jsonl", "checkpoint.json"} {
		info, err := os.Stat(filepath.Join(runDir, name))
		if err != nil {
			t.Errorf("missing run artifact %s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("run artifact %s is empty", name)
		}
	}

	saved, err := config.Load(filepath.Join(runDir, "args.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.BatchSize != cfg.BatchSize || saved.Optimizer != cfg.Optimizer {
		t.Errorf("saved configuration %+v does not match the run", saved)
	}
	if !filepath.IsAbs(saved.OutputDir) {
		t.Errorf("saved output dir %q is not absolute", saved.OutputDir)
	}
}

func TestRunIsSeedDeterministic(t *testing.T) {
	build := func() map[string][]float32 {
		cfg := testConfig()
		cfg.NumEpochs = 0
		cfg.DatasetTrain = filepath.Join(t.TempDir(), "train")
		cfg.OutputDir = t.TempDir()

		model, err := Run(cfg, nil, syntheticInitializer(2), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		params := map[string][]float32{}
		for _, p := range model.NamedParameters() {
			params[p.Name] = append([]float32(nil), p.Tensor.Data...)
		}
		return params
	}

	first := build()
	second := build()
	if len(first) != len(second) {
		t.Fatalf("runs produced %d and %d parameters", len(first), len(second))
	}
	for name, data := range first {
		other, ok := second[name]
		if !ok {
			t.Errorf("parameter %s missing from second run", name)
			continue
		}
		for i := range data {
			if data[i] != other[i] {
				t.Fatalf("parameter %s diverges at element %d: %v vs %v", name, i, data[i], other[i])
			}
		}
	}
}

func TestRunRejectsInvalidConfiguration(t *testing.T) {
	cfg := testConfig()
	cfg.DatasetTrain = ""

	if _, err := Run(cfg, nil, syntheticInitializer(1), nil); err == nil {
		t.Error("expected a validation error for a missing training dataset")
	}
}

func TestRunNonLeaderStaysSilent(t *testing.T) {
	cfg := testConfig()
	cfg.NumEpochs = 1
	cfg.WorldSize = 2
	cfg.DatasetTrain = filepath.Join(t.TempDir(), "train")
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")

	dist := &distributed.Context{WorldSize: 2, LocalRank: 1, GlobalRank: 1}
	if _, err := Run(cfg, dist, syntheticInitializer(1), distributed.NopSyncer{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Non-leaders never create the output tree.
	if _, err := os.Stat(cfg.OutputDir); !os.IsNotExist(err) {
		t.Errorf("non-leader created output directory (stat err %v)", err)
	}
}
