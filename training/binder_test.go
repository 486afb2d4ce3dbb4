package training

import (
	"math"
	"testing"

	"github.com/cadsketch/graphtrain/tensor"
)

func TestBindScalesBaseLearningRate(t *testing.T) {
	param, err := tensor.Zeros([]int{2}, tensor.CPUDevice)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	param.SetRequiresGrad(true)

	opt, sched, err := Bind("adam", []*tensor.Tensor{param}, 2e-5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := 2e-5 * 16
	if got := opt.GetLR(); math.Abs(got-want) > 1e-15 {
		t.Errorf("bound learning rate %v, want %v", got, want)
	}
	if sched.WarmupEpochs != 5 {
		t.Errorf("warmup length %d, want 5", sched.WarmupEpochs)
	}
	if len(sched.DecayEpochs) != 2 || sched.DecayEpochs[0] != 20 || sched.DecayEpochs[1] != 40 {
		t.Errorf("decay thresholds %v, want [20 40]", sched.DecayEpochs)
	}
}

func TestBindAllKinds(t *testing.T) {
	for _, name := range []string{"sgd", "adam", "adamax", "rms"} {
		t.Run(name, func(t *testing.T) {
			opt, sched, err := Bind(name, nil, 1e-3)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if opt == nil || sched == nil {
				t.Fatal("expected a bound optimizer and scheduler")
			}
		})
	}
}

func TestBindRejectsUnknownOptimizer(t *testing.T) {
	if _, _, err := Bind("adagrad", nil, 1e-3); err == nil {
		t.Error("expected an error for an unsupported optimizer name")
	}
}
