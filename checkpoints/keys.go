package checkpoints

import "strings"

// WrapperPrefix is the key prefix the distributed-parallel wrapper adds to
// every parameter name. A checkpoint saved by a wrapped model carries it; an
// unwrapped model does not. The prefix is exactly 7 bytes, including the dot.
const WrapperPrefix = "module."

// NormalizeKey strips the distributed-wrapper prefix from a parameter key, if
// present. Keys without the prefix pass through unchanged.
func NormalizeKey(key string) string {
	return strings.TrimPrefix(key, WrapperPrefix)
}

// NormalizeModelKeys rewrites the checkpoint's model table with normalized
// keys, reconciling a checkpoint saved by a distributed run with an unwrapped
// model. The reverse direction (unprefixed checkpoint into a wrapped model) is
// not supported.
func (cp *Checkpoint) NormalizeModelKeys() {
	normalized := make(map[string]WeightTensor, len(cp.Model))
	for key, w := range cp.Model {
		normalized[NormalizeKey(key)] = w
	}
	cp.Model = normalized
}
