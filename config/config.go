// Package config defines the immutable run configuration shared by every
// component of a training run. A RunConfig is constructed once from user
// input, validated at startup, and persisted verbatim to the output directory
// so a run can be audited and reproduced.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// RunConfig carries every recognized configuration option for a training run.
// It is passed by value and never mutated after the run starts; derivation
// helpers return modified copies.
type RunConfig struct {
	Description string `json:"description,omitempty"`
	OutputDir   string `json:"output_dir"`

	DatasetTrain     string `json:"dataset_train"`
	DatasetAuxiliary string `json:"dataset_auxiliary,omitempty"`
	DatasetTest      string `json:"dataset_test,omitempty"`
	ModelState       string `json:"model_state,omitempty"`

	NumQuantizeLength int `json:"num_quantize_length"`
	NumQuantizeAngle  int `json:"num_quantize_angle"`

	BatchSize     int     `json:"batch_size"`
	LearningRate  float64 `json:"learning_rate"`
	Optimizer     string  `json:"optimizer"`
	HiddenSize    int     `json:"hidden_size"`
	NumPropRounds int     `json:"num_prop_rounds"`
	NumEpochs     int     `json:"num_epochs"`
	NumWorkers    int     `json:"num_workers"`
	Seed          int64   `json:"seed"`
	WorldSize     int     `json:"world_size"`
	Profile       bool    `json:"profile"`

	DisableEntityFeatures          bool `json:"disable_entity_features"`
	DisableEdgeFeatures            bool `json:"disable_edge_features"`
	DisableReadinEntity            bool `json:"disable_readin_entity"`
	DisableReadinEdge              bool `json:"disable_readin_edge"`
	ForceEntityCategoricalFeatures bool `json:"force_entity_categorical_features"`
}

// Default returns the configuration defaults matching the CLI surface.
func Default() RunConfig {
	return RunConfig{
		OutputDir:         "../output",
		NumQuantizeLength: 383,
		NumQuantizeAngle:  127,
		BatchSize:         2048,
		LearningRate:      2e-5,
		Optimizer:         "adam",
		HiddenSize:        384,
		NumPropRounds:     3,
		NumEpochs:         60,
		Seed:              7,
		WorldSize:         1,
	}
}

// Validate checks the configuration for errors that must abort a run before
// any training work begins.
func (c RunConfig) Validate() error {
	if c.DatasetTrain == "" {
		return &ConfigurationError{Field: "dataset_train", Reason: "required"}
	}
	if c.BatchSize <= 0 {
		return &ConfigurationError{Field: "batch_size", Reason: fmt.Sprintf("must be positive, got %d", c.BatchSize)}
	}
	if c.NumEpochs < 0 {
		return &ConfigurationError{Field: "num_epochs", Reason: fmt.Sprintf("must be non-negative, got %d", c.NumEpochs)}
	}
	if c.HiddenSize <= 0 {
		return &ConfigurationError{Field: "hidden_size", Reason: fmt.Sprintf("must be positive, got %d", c.HiddenSize)}
	}
	if c.NumPropRounds < 0 {
		return &ConfigurationError{Field: "num_prop_rounds", Reason: fmt.Sprintf("must be non-negative, got %d", c.NumPropRounds)}
	}
	if c.WorldSize <= 0 {
		return &ConfigurationError{Field: "world_size", Reason: fmt.Sprintf("must be positive, got %d", c.WorldSize)}
	}
	// Uneven splits silently drop the remainder at partition time; reject them
	// up front so every participant trains on the requested total.
	if c.BatchSize%c.WorldSize != 0 {
		return &ConfigurationError{
			Field:  "batch_size",
			Reason: fmt.Sprintf("%d is not divisible by world size %d", c.BatchSize, c.WorldSize),
		}
	}
	return nil
}

// WithAbsolutePaths returns a copy of the configuration with every path-valued
// field resolved to an absolute path. Only this fixed whitelist of fields is
// touched: output_dir, dataset_train, dataset_auxiliary, dataset_test,
// model_state. Resolving early makes the persisted record unambiguous no
// matter how the working directory changes later.
func (c RunConfig) WithAbsolutePaths() (RunConfig, error) {
	out := c
	for _, field := range []*string{
		&out.OutputDir,
		&out.DatasetTrain,
		&out.DatasetAuxiliary,
		&out.DatasetTest,
		&out.ModelState,
	} {
		if *field == "" {
			continue
		}
		abs, err := filepath.Abs(*field)
		if err != nil {
			return RunConfig{}, errors.Wrapf(err, "unable to resolve path %q", *field)
		}
		*field = abs
	}
	return out, nil
}

// Save writes the configuration as an indented JSON record. The record is
// written once at run start and never modified.
func (c RunConfig) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create config record %s", path)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(c); err != nil {
		return errors.Wrapf(err, "unable to encode config record %s", path)
	}
	return nil
}

// Load reads a previously persisted configuration record.
func Load(path string) (RunConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return RunConfig{}, errors.Wrapf(err, "unable to open config record %s", path)
	}
	defer file.Close()

	var c RunConfig
	if err := json.NewDecoder(file).Decode(&c); err != nil {
		return RunConfig{}, errors.Wrapf(err, "unable to decode config record %s", path)
	}
	return c, nil
}
