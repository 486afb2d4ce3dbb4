package training

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/cadsketch/graphtrain/checkpoints"
)

// EpochMetric is one epoch-granularity observation emitted at an epoch
// boundary.
type EpochMetric struct {
	Epoch    int           `json:"epoch"`
	Phase    string        `json:"phase"` // "train" or "eval"
	Loss     float64       `json:"loss"`
	LRFactor float64       `json:"lr_factor"`
	Steps    int           `json:"steps"`
	Duration time.Duration `json:"duration_ns"`
}

// Reporter is the capability object for singleton side effects. The leader
// participant gets a writing implementation; every other rank gets the no-op,
// so leadership checks never leak into the run logic.
type Reporter interface {
	// Logf records a progress message.
	Logf(template string, args ...interface{})

	// Epoch records an epoch-granularity metric.
	Epoch(metric EpochMetric)

	// Checkpoint persists a snapshot. The thunk is only invoked by
	// implementations that actually write, so non-leaders never pay for the
	// parameter copy.
	Checkpoint(build func() *checkpoints.Checkpoint) error

	// Close flushes and releases any sinks.
	Close() error
}

// NopReporter is the non-leader implementation. It suppresses every side
// effect to avoid write conflicts on shared storage.
type NopReporter struct{}

func (NopReporter) Logf(template string, args ...interface{})             {}
func (NopReporter) Epoch(metric EpochMetric)                              {}
func (NopReporter) Checkpoint(build func() *checkpoints.Checkpoint) error { return nil }
func (NopReporter) Close() error                                          { return nil }

// LeaderReporter writes logs, an epoch metrics stream, and checkpoints under
// the run's output directory.
type LeaderReporter struct {
	log        *zap.SugaredLogger
	outputDir  string
	metrics    *os.File
	metricsEnc *json.Encoder
}

// NewLeaderReporter opens the leader's sinks under outputDir: a metrics.jsonl
// stream and a checkpoint.json slot overwritten at each epoch boundary.
func NewLeaderReporter(outputDir string, logger *zap.Logger) (*LeaderReporter, error) {
	metrics, err := os.Create(filepath.Join(outputDir, "metrics.jsonl"))
	if err != nil {
		return nil, errors.Wrap(err, "unable to open metrics stream")
	}

	return &LeaderReporter{
		log:        logger.Sugar(),
		outputDir:  outputDir,
		metrics:    metrics,
		metricsEnc: json.NewEncoder(metrics),
	}, nil
}

func (r *LeaderReporter) Logf(template string, args ...interface{}) {
	r.log.Infof(template, args...)
}

func (r *LeaderReporter) Epoch(metric EpochMetric) {
	if err := r.metricsEnc.Encode(metric); err != nil {
		r.log.Warnw("failed to write epoch metric", "epoch", metric.Epoch, "error", err)
		return
	}
	r.log.Infow("epoch complete",
		"epoch", metric.Epoch,
		"phase", metric.Phase,
		"loss", metric.Loss,
		"lr_factor", metric.LRFactor,
		"steps", metric.Steps,
		"duration", metric.Duration,
	)
}

func (r *LeaderReporter) Checkpoint(build func() *checkpoints.Checkpoint) error {
	cp := build()
	path := filepath.Join(r.outputDir, "checkpoint.json")
	if err := cp.Save(path); err != nil {
		return err
	}
	r.log.Infow("checkpoint written", "path", path, "epoch", cp.Epoch, "global_step", cp.GlobalStep)
	return nil
}

func (r *LeaderReporter) Close() error {
	r.log.Sync()
	return r.metrics.Close()
}
