package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() RunConfig {
	c := Default()
	c.DatasetTrain = "train.json"
	return c
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateMissingTrainDataset(t *testing.T) {
	c := Default()
	err := c.Validate()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "dataset_train", cfgErr.Field)
}

func TestValidateNonDivisibleBatchSize(t *testing.T) {
	c := validConfig()
	c.BatchSize = 2048
	c.WorldSize = 3

	err := c.Validate()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "batch_size", cfgErr.Field)
}

func TestValidateUnknownFieldValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{"zero batch size", func(c *RunConfig) { c.BatchSize = 0 }},
		{"negative epochs", func(c *RunConfig) { c.NumEpochs = -1 }},
		{"zero hidden size", func(c *RunConfig) { c.HiddenSize = 0 }},
		{"zero world size", func(c *RunConfig) { c.WorldSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestWithAbsolutePaths(t *testing.T) {
	c := validConfig()
	c.DatasetTest = "eval.json"

	resolved, err := c.WithAbsolutePaths()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(resolved.DatasetTrain))
	assert.True(t, filepath.IsAbs(resolved.DatasetTest))
	assert.True(t, filepath.IsAbs(resolved.OutputDir))
	assert.Empty(t, resolved.ModelState, "empty paths stay empty")

	// The receiver is a value; the original must be untouched.
	assert.Equal(t, "train.json", c.DatasetTrain)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := validConfig()
	c.Description = "round trip"
	c.Seed = 1234

	path := filepath.Join(t.TempDir(), "args.json")
	require.NoError(t, c.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)

	// The record must be plain JSON, auditable without the binary.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"seed": 1234`)
}
