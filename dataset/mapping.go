// Package dataset defines the contracts the training coordinator requires
// from its data collaborators: batch sources, feature mappings, and the
// initializer that produces them from a run configuration. The dataset
// encoding format itself lives behind these interfaces.
package dataset

import (
	"encoding/json"
)

// FeatureMapping exposes the dimensionality of a group of quantized features
// and a serializable snapshot of its state. The snapshot is embedded in
// checkpoints so an identical model shape can be rebuilt without the original
// run configuration.
type FeatureMapping interface {
	// FeatureDimensions maps feature-group name to cardinality.
	FeatureDimensions() map[string]int

	// State returns a serializable snapshot for checkpoint embedding.
	State() (json.RawMessage, error)
}

// StaticMapping is a FeatureMapping backed by a fixed dimension table.
type StaticMapping struct {
	Dimensions map[string]int `json:"dimensions"`
}

// NewStaticMapping creates a mapping over the given dimension table.
func NewStaticMapping(dims map[string]int) *StaticMapping {
	return &StaticMapping{Dimensions: dims}
}

func (m *StaticMapping) FeatureDimensions() map[string]int {
	return m.Dimensions
}

func (m *StaticMapping) State() (json.RawMessage, error) {
	return json.Marshal(m)
}

// MergeDimensions combines the dimension tables of the given mappings into a
// single map. Nil mappings contribute nothing.
func MergeDimensions(mappings ...FeatureMapping) map[string]int {
	merged := map[string]int{}
	for _, m := range mappings {
		if m == nil {
			continue
		}
		for name, dim := range m.FeatureDimensions() {
			merged[name] = dim
		}
	}
	return merged
}
