// Package graph builds the sketch-graph model the training run operates on.
//
// A model is constructed deterministically from a feature-dimension table and
// the architecture hyperparameters of the run configuration: the same seed and
// inputs always produce bitwise-identical parameters. Edge feature groups are
// distinguished from entity (node) groups by the "edge_" name prefix the
// feature mappings use.
package graph

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	"github.com/cadsketch/graphtrain/config"
	"github.com/cadsketch/graphtrain/tensor"
)

// Global random source for deterministic weight initialization.
var globalRng *rand.Rand = rand.New(rand.NewSource(1))

// SetRandomSeed sets the global random seed for deterministic weight
// initialization.
func SetRandomSeed(seed int64) {
	globalRng = rand.New(rand.NewSource(seed))
}

// NamedParameter is a trainable tensor with its checkpoint key.
type NamedParameter struct {
	Name   string
	Tensor *tensor.Tensor
}

// Weight is the host-side snapshot of one parameter, as stored in checkpoints.
type Weight struct {
	Name  string
	Shape []int
	Data  []float32
}

// Model holds the full parameter set of the graph model plus the shape
// metadata needed to rebuild it.
type Model struct {
	HiddenSize    int
	NumPropRounds int
	InputWidth    int

	// Feature toggles, resolved from the run configuration.
	ReadoutEntityFeatures bool
	ReadoutEdgeFeatures   bool
	ReadinEntityFeatures  bool
	ReadinEdgeFeatures    bool

	FeatureDimensions map[string]int

	params []NamedParameter
	index  map[string]*tensor.Tensor
	device tensor.Device
}

// Build constructs the model from the merged feature-dimension table and the
// architecture hyperparameters of the configuration. Toggle composition:
// entity readout is on unless disabled, or forced on by the categorical
// override; edge readout is on unless disabled; readin defaults to the
// dataset default (on) unless explicitly disabled.
func Build(featureDimensions map[string]int, cfg config.RunConfig) (*Model, error) {
	if cfg.HiddenSize <= 0 {
		return nil, &config.ConfigurationError{Field: "hidden_size", Reason: fmt.Sprintf("must be positive, got %d", cfg.HiddenSize)}
	}

	m := &Model{
		HiddenSize:            cfg.HiddenSize,
		NumPropRounds:         cfg.NumPropRounds,
		InputWidth:            inputWidth(featureDimensions),
		ReadoutEntityFeatures: !cfg.DisableEntityFeatures || cfg.ForceEntityCategoricalFeatures,
		ReadoutEdgeFeatures:   !cfg.DisableEdgeFeatures,
		ReadinEntityFeatures:  !cfg.DisableReadinEntity,
		ReadinEdgeFeatures:    !cfg.DisableReadinEdge,
		FeatureDimensions:     featureDimensions,
		index:                 map[string]*tensor.Tensor{},
		device:                tensor.CPUDevice,
	}

	if err := m.buildParameters(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) buildParameters() error {
	h := m.HiddenSize

	// Embedding tables for the feature groups read into the graph, in sorted
	// group order so construction is deterministic.
	for _, group := range sortedGroups(m.FeatureDimensions) {
		if isEdgeGroup(group) && !m.ReadinEdgeFeatures {
			continue
		}
		if !isEdgeGroup(group) && !m.ReadinEntityFeatures {
			continue
		}
		dim := m.FeatureDimensions[group]
		if err := m.addXavier("embed."+group+".weight", []int{dim, h}); err != nil {
			return err
		}
	}

	// Input projection over the dense feature block.
	if err := m.addXavier("input.weight", []int{m.InputWidth, h}); err != nil {
		return err
	}
	if err := m.addZeros("input.bias", []int{h}); err != nil {
		return err
	}

	// Message-passing rounds.
	for r := 0; r < m.NumPropRounds; r++ {
		if err := m.addXavier(fmt.Sprintf("prop.%d.weight", r), []int{h, h}); err != nil {
			return err
		}
		if err := m.addZeros(fmt.Sprintf("prop.%d.bias", r), []int{h}); err != nil {
			return err
		}
	}

	// Main value head.
	if err := m.addXavier("readout.value.weight", []int{h}); err != nil {
		return err
	}
	if err := m.addZeros("readout.value.bias", []int{1}); err != nil {
		return err
	}

	// Feature readout heads. Depending on the targets present in a batch, not
	// every head receives gradients on every step.
	if entityDim := sideWidth(m.FeatureDimensions, false); m.ReadoutEntityFeatures && entityDim > 0 {
		if err := m.addXavier("readout.entity.weight", []int{h, entityDim}); err != nil {
			return err
		}
	}
	if edgeDim := sideWidth(m.FeatureDimensions, true); m.ReadoutEdgeFeatures && edgeDim > 0 {
		if err := m.addXavier("readout.edge.weight", []int{h, edgeDim}); err != nil {
			return err
		}
	}

	return nil
}

// addXavier adds a parameter initialized with Xavier/Glorot uniform
// initialization: W ~ U(-sqrt(6/(fanIn+fanOut)), sqrt(6/(fanIn+fanOut))).
func (m *Model) addXavier(name string, shape []int) error {
	fanIn := shape[0]
	fanOut := shape[len(shape)-1]
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	numElems := 1
	for _, d := range shape {
		numElems *= d
	}
	data := make([]float32, numElems)
	for i := range data {
		data[i] = float32((globalRng.Float64()*2.0 - 1.0) * bound)
	}

	return m.addParameter(name, shape, data)
}

func (m *Model) addZeros(name string, shape []int) error {
	numElems := 1
	for _, d := range shape {
		numElems *= d
	}
	return m.addParameter(name, shape, make([]float32, numElems))
}

func (m *Model) addParameter(name string, shape []int, data []float32) error {
	t, err := tensor.NewTensor(shape, m.device, data)
	if err != nil {
		return fmt.Errorf("failed to create parameter %s: %v", name, err)
	}
	t.SetRequiresGrad(true)
	m.params = append(m.params, NamedParameter{Name: name, Tensor: t})
	m.index[name] = t
	return nil
}

// Parameters returns the trainable parameter tensors in construction order.
func (m *Model) Parameters() []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(m.params))
	for i, p := range m.params {
		out[i] = p.Tensor
	}
	return out
}

// NamedParameters returns the parameters with their checkpoint keys, in
// construction order.
func (m *Model) NamedParameters() []NamedParameter {
	return m.params
}

// Parameter returns the parameter with the given key, or nil.
func (m *Model) Parameter(name string) *tensor.Tensor {
	return m.index[name]
}

// NumParameters returns the total trainable parameter count.
func (m *Model) NumParameters() int64 {
	var n int64
	for _, p := range m.params {
		n += int64(p.Tensor.NumElems)
	}
	return n
}

// Device returns the model's current placement.
func (m *Model) Device() tensor.Device {
	return m.device
}

// To places every model parameter on the given device.
func (m *Model) To(device tensor.Device) *Model {
	m.device = device
	for _, p := range m.params {
		p.Tensor.To(device)
	}
	return m
}

// Weights snapshots every parameter for checkpointing. Data is copied so the
// snapshot stays stable while training continues.
func (m *Model) Weights() []Weight {
	out := make([]Weight, len(m.params))
	for i, p := range m.params {
		out[i] = Weight{
			Name:  p.Name,
			Shape: append([]int(nil), p.Tensor.Shape...),
			Data:  append([]float32(nil), p.Tensor.Data...),
		}
	}
	return out
}

// LoadWeights installs a checkpointed parameter set into the model. Every
// model parameter must be present with a matching shape; any mismatch signals
// an incompatible architecture or configuration change.
func (m *Model) LoadWeights(weights []Weight) error {
	byName := make(map[string]Weight, len(weights))
	for _, w := range weights {
		byName[w.Name] = w
	}

	for _, p := range m.params {
		w, ok := byName[p.Name]
		if !ok {
			return fmt.Errorf("missing parameter %s", p.Name)
		}
		if !shapesEqual(w.Shape, p.Tensor.Shape) {
			return fmt.Errorf("shape mismatch for parameter %s: checkpoint %v, model %v", p.Name, w.Shape, p.Tensor.Shape)
		}
		if err := p.Tensor.SetData(w.Data); err != nil {
			return fmt.Errorf("failed to load parameter %s: %v", p.Name, err)
		}
	}
	return nil
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortedGroups(dims map[string]int) []string {
	groups := make([]string, 0, len(dims))
	for name := range dims {
		groups = append(groups, name)
	}
	sort.Strings(groups)
	return groups
}

func isEdgeGroup(name string) bool {
	return strings.HasPrefix(name, "edge_")
}

// sideWidth sums the dimensions of one side of the feature table.
func sideWidth(dims map[string]int, edge bool) int {
	width := 0
	for name, dim := range dims {
		if isEdgeGroup(name) == edge {
			width += dim
		}
	}
	return width
}

// inputWidth is the dense input width implied by the merged dimension table.
// An empty table still yields a one-column input so the model is well formed.
func inputWidth(dims map[string]int) int {
	width := 0
	for _, dim := range dims {
		width += dim
	}
	if width < 1 {
		width = 1
	}
	return width
}
