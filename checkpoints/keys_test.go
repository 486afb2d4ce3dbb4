package checkpoints

import (
	"testing"
)

func TestWrapperPrefixLength(t *testing.T) {
	// The on-disk format depends on this exact prefix; a checkpoint written
	// by a wrapped model prepends these 7 bytes to every parameter key.
	if len(WrapperPrefix) != 7 {
		t.Fatalf("wrapper prefix %q has length %d, must be 7", WrapperPrefix, len(WrapperPrefix))
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"module.input.weight", "input.weight"},
		{"input.weight", "input.weight"},
		{"module.prop.0.bias", "prop.0.bias"},
		{"module.module.weight", "module.weight"}, // only one prefix layer is stripped
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeKey(tt.key); got != tt.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestNormalizeModelKeys(t *testing.T) {
	cp := &Checkpoint{Model: map[string]WeightTensor{
		"module.a": {Shape: []int{1}, Data: []float32{1}},
		"b":        {Shape: []int{1}, Data: []float32{2}},
	}}
	cp.NormalizeModelKeys()

	if _, ok := cp.Model["a"]; !ok {
		t.Error("prefixed key was not normalized")
	}
	if _, ok := cp.Model["b"]; !ok {
		t.Error("unprefixed key did not pass through")
	}
	if len(cp.Model) != 2 {
		t.Errorf("expected 2 keys, got %d", len(cp.Model))
	}
}
