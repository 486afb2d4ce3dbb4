package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batchFor(m *Model, size int) ([][]float32, []float32) {
	features := make([][]float32, size)
	targets := make([]float32, size)
	for i := range features {
		row := make([]float32, m.InputWidth)
		for j := range row {
			row[j] = float32(i+j%3) * 0.1
		}
		features[i] = row
		targets[i] = float32(i) * 0.5
	}
	return features, targets
}

func TestTrainStepPopulatesMainPathGradients(t *testing.T) {
	SetRandomSeed(3)
	m, err := Build(testDims(), testConfig())
	require.NoError(t, err)

	features, targets := batchFor(m, 4)
	loss, err := m.TrainStep(features, targets)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(loss) || math.IsInf(loss, 0))
	assert.Greater(t, loss, 0.0)

	nonZero := func(g []float32) bool {
		for _, v := range g {
			if v != 0 {
				return true
			}
		}
		return false
	}

	assert.True(t, nonZero(m.Parameter("input.weight").Grad()))
	assert.True(t, nonZero(m.Parameter("prop.0.weight").Grad()))
	assert.True(t, nonZero(m.Parameter("readout.value.weight").Grad()))

	// Off-path parameters see no gradient this step.
	assert.False(t, nonZero(m.Parameter("embed.length.weight").Grad()))
	assert.False(t, nonZero(m.Parameter("readout.edge.weight").Grad()))
}

func TestTrainStepGradientDirection(t *testing.T) {
	// Stepping against the gradient must not increase the objective.
	SetRandomSeed(3)
	m, err := Build(testDims(), testConfig())
	require.NoError(t, err)

	features, targets := batchFor(m, 8)
	before, err := m.TrainStep(features, targets)
	require.NoError(t, err)

	const lr = 1e-3
	for _, p := range m.Parameters() {
		grad := p.Grad()
		for i := range p.Data {
			p.Data[i] -= lr * grad[i]
		}
	}

	after, err := m.EvalStep(features, targets)
	require.NoError(t, err)
	assert.LessOrEqual(t, after, before)
}

func TestEvalStepLeavesGradientsUntouched(t *testing.T) {
	SetRandomSeed(3)
	m, err := Build(testDims(), testConfig())
	require.NoError(t, err)

	features, targets := batchFor(m, 4)
	_, err = m.EvalStep(features, targets)
	require.NoError(t, err)

	for _, p := range m.NamedParameters() {
		for _, v := range p.Tensor.Grad() {
			assert.Zero(t, v, "EvalStep wrote a gradient into %s", p.Name)
		}
	}
}

func TestForwardRejectsWidthMismatch(t *testing.T) {
	SetRandomSeed(3)
	m, err := Build(testDims(), testConfig())
	require.NoError(t, err)

	_, err = m.Forward([][]float32{{1, 2}})
	require.Error(t, err)

	_, err = m.Forward(nil)
	require.Error(t, err)
}
