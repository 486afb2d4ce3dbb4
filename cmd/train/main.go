package main

import (
	"log"
	"os"
	"strconv"

	arg "github.com/alexflint/go-arg"
	"github.com/pkg/errors"

	"github.com/cadsketch/graphtrain/config"
	"github.com/cadsketch/graphtrain/dataset"
	"github.com/cadsketch/graphtrain/distributed"
	"github.com/cadsketch/graphtrain/training"
)

type args struct {
	DatasetTrain     string `arg:"--dataset_train,required" help:"path to the training dataset shard"`
	DatasetAuxiliary string `arg:"--dataset_auxiliary" help:"path to the auxiliary dataset"`
	DatasetTest      string `arg:"--dataset_test" help:"path to the evaluation dataset shard"`
	ModelState       string `arg:"--model_state" help:"checkpoint to resume from"`
	OutputDir        string `arg:"--output_dir" default:"../output" help:"root directory for run artifacts"`

	NumQuantizeLength int `arg:"--num_quantize_length" default:"383" help:"quantization buckets for length features"`
	NumQuantizeAngle  int `arg:"--num_quantize_angle" default:"127" help:"quantization buckets for angle features"`

	BatchSize     int     `arg:"--batch_size" default:"2048" help:"total batch size across all participants"`
	LearningRate  float64 `arg:"--learning_rate" default:"2e-5" help:"base learning rate"`
	Optimizer     string  `arg:"--optimizer" default:"adam" help:"one of sgd, adam, adamax, rms"`
	HiddenSize    int     `arg:"--hidden_size" default:"384" help:"model embedding width"`
	NumPropRounds int     `arg:"--num_prop_rounds" default:"3" help:"message-passing rounds"`
	NumEpochs     int     `arg:"--num_epochs" default:"60" help:"epochs to train"`
	NumWorkers    int     `arg:"--num_workers" default:"0" help:"data loading workers"`
	Seed          int64   `arg:"--seed" default:"7" help:"random seed"`
	WorldSize     int     `arg:"--world_size" default:"1" help:"number of distributed participants"`
	Profile       bool    `arg:"--profile" help:"log per-step timings"`

	DisableEntityFeatures          bool `arg:"--disable_entity_features"`
	DisableEdgeFeatures            bool `arg:"--disable_edge_features"`
	DisableReadinEntity            bool `arg:"--disable_readin_entity"`
	DisableReadinEdge              bool `arg:"--disable_readin_edge"`
	ForceEntityCategoricalFeatures bool `arg:"--force_entity_categorical_features"`
}

func (args) Description() string {
	return "trains the graph model over a quantized sketch dataset"
}

func main() {
	var a args
	arg.MustParse(&a)

	cfg := config.Default()
	cfg.DatasetTrain = a.DatasetTrain
	cfg.DatasetAuxiliary = a.DatasetAuxiliary
	cfg.DatasetTest = a.DatasetTest
	cfg.ModelState = a.ModelState
	cfg.OutputDir = a.OutputDir
	cfg.NumQuantizeLength = a.NumQuantizeLength
	cfg.NumQuantizeAngle = a.NumQuantizeAngle
	cfg.BatchSize = a.BatchSize
	cfg.LearningRate = a.LearningRate
	cfg.Optimizer = a.Optimizer
	cfg.HiddenSize = a.HiddenSize
	cfg.NumPropRounds = a.NumPropRounds
	cfg.NumEpochs = a.NumEpochs
	cfg.NumWorkers = a.NumWorkers
	cfg.Seed = a.Seed
	cfg.WorldSize = a.WorldSize
	cfg.Profile = a.Profile
	cfg.DisableEntityFeatures = a.DisableEntityFeatures
	cfg.DisableEdgeFeatures = a.DisableEdgeFeatures
	cfg.DisableReadinEntity = a.DisableReadinEntity
	cfg.DisableReadinEdge = a.DisableReadinEdge
	cfg.ForceEntityCategoricalFeatures = a.ForceEntityCategoricalFeatures

	dist, err := distributedContext(cfg.WorldSize)
	if err != nil {
		log.Fatalf("distributed bootstrap failed: %v", err)
	}

	if _, err := training.Run(cfg, dist, dataset.Initialize, distributed.NopSyncer{}); err != nil {
		log.Fatalf("training run failed: %v", err)
	}
}

// distributedContext reads the participant's position from the launcher
// environment. A world size of one trains in single-process mode with no
// environment required.
func distributedContext(worldSize int) (*distributed.Context, error) {
	if worldSize <= 1 {
		return nil, nil
	}

	localRank, err := rankFromEnv("LOCAL_RANK")
	if err != nil {
		return nil, err
	}
	globalRank, err := rankFromEnv("RANK")
	if err != nil {
		return nil, err
	}
	if globalRank >= worldSize {
		return nil, errors.Errorf("RANK %d out of range for world size %d", globalRank, worldSize)
	}

	return &distributed.Context{
		WorldSize:  worldSize,
		LocalRank:  localRank,
		GlobalRank: globalRank,
	}, nil
}

func rankFromEnv(name string) (int, error) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return 0, errors.Errorf("%s must be set when world size is greater than one", name)
	}
	rank, err := strconv.Atoi(raw)
	if err != nil || rank < 0 {
		return 0, errors.Errorf("%s must be a non-negative integer, got %q", name, raw)
	}
	return rank, nil
}
