package training

import (
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cadsketch/graphtrain/config"
	"github.com/cadsketch/graphtrain/dataset"
	"github.com/cadsketch/graphtrain/distributed"
	"github.com/cadsketch/graphtrain/graph"
)

// Run executes one full training run: seed, validate, initialize the data
// sources, open the leader's output directory, and drive the coordinator to
// completion. The returned model holds the final parameters.
func Run(
	cfg config.RunConfig,
	dist *distributed.Context,
	initialize dataset.Initializer,
	syncer distributed.Syncer,
) (*graph.Model, error) {
	start := time.Now()
	graph.SetRandomSeed(cfg.Seed)

	cfg, err := cfg.WithAbsolutePaths()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	data, err := initialize(cfg, dist)
	if err != nil {
		return nil, err
	}

	reporter, err := openReporter(cfg, dist)
	if err != nil {
		return nil, err
	}
	defer reporter.Close()

	coord, err := NewCoordinator(cfg, dist, data, syncer, reporter)
	if err != nil {
		return nil, err
	}

	reporter.Logf("starting run: %s, %d epochs, batch size %d, %s parameters",
		cfg.Optimizer, cfg.NumEpochs, cfg.BatchSize,
		humanize.Comma(coord.model.NumParameters()))

	model, err := coord.Run()
	if err != nil {
		return nil, err
	}

	reporter.Logf("run complete in %s", time.Since(start).Round(time.Second))
	return model, nil
}

// openReporter gives the leader a writing reporter rooted at a fresh
// timestamped output directory and every other participant the no-op. The
// directory layout is {output_root}/{MMDD}/time_{HHMMSS}, with the effective
// configuration saved alongside the run artifacts.
func openReporter(cfg config.RunConfig, dist *distributed.Context) (Reporter, error) {
	if !distributed.IsLeader(dist) {
		return NopReporter{}, nil
	}

	now := time.Now()
	outputDir := filepath.Join(cfg.OutputDir, now.Format("0102"), "time_"+now.Format("150405"))
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "unable to create output directory %s", outputDir)
	}
	if err := cfg.Save(filepath.Join(outputDir, "args.json")); err != nil {
		return nil, err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, errors.Wrap(err, "unable to initialize logger")
	}
	return NewLeaderReporter(outputDir, logger)
}
