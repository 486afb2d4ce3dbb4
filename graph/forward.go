package graph

import (
	"fmt"
)

// activations holds the intermediate state of one forward pass, kept for the
// backward pass.
type activations struct {
	batchSize int
	// pre[l] and post[l] are the pre- and post-activation values of layer l,
	// flattened [batchSize * hiddenSize]. Layer 0 is the input projection,
	// layers 1..NumPropRounds the message-passing rounds.
	pre   [][]float32
	post  [][]float32
	preds []float32
}

// Forward runs the model over a dense feature block of shape
// [batchSize, InputWidth] and returns one prediction per sample.
func (m *Model) Forward(features [][]float32) ([]float32, error) {
	acts, err := m.forward(features)
	if err != nil {
		return nil, err
	}
	return acts.preds, nil
}

// TrainStep computes the mean-squared-error training objective over one batch
// and accumulates gradients into the parameters on the main path. Parameters
// off the main path (embedding tables, feature readout heads) receive
// gradients only when their targets appear in the batch, so a step may leave
// some gradients untouched.
func (m *Model) TrainStep(features [][]float32, targets []float32) (float64, error) {
	acts, err := m.forward(features)
	if err != nil {
		return 0, err
	}
	if len(targets) != acts.batchSize {
		return 0, fmt.Errorf("target count %d does not match batch size %d", len(targets), acts.batchSize)
	}

	loss := 0.0
	for i, pred := range acts.preds {
		diff := float64(pred - targets[i])
		loss += diff * diff
	}
	loss /= float64(acts.batchSize)

	m.backward(features, targets, acts)
	return loss, nil
}

// EvalStep computes the objective over one batch without touching gradients.
func (m *Model) EvalStep(features [][]float32, targets []float32) (float64, error) {
	acts, err := m.forward(features)
	if err != nil {
		return 0, err
	}
	if len(targets) != acts.batchSize {
		return 0, fmt.Errorf("target count %d does not match batch size %d", len(targets), acts.batchSize)
	}

	loss := 0.0
	for i, pred := range acts.preds {
		diff := float64(pred - targets[i])
		loss += diff * diff
	}
	return loss / float64(acts.batchSize), nil
}

func (m *Model) forward(features [][]float32) (*activations, error) {
	batchSize := len(features)
	if batchSize == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	for i, row := range features {
		if len(row) != m.InputWidth {
			return nil, fmt.Errorf("sample %d has %d features, model expects %d", i, len(row), m.InputWidth)
		}
	}

	h := m.HiddenSize
	wIn := m.index["input.weight"].Data
	bIn := m.index["input.bias"].Data

	numLayers := 1 + m.NumPropRounds
	acts := &activations{
		batchSize: batchSize,
		pre:       make([][]float32, numLayers),
		post:      make([][]float32, numLayers),
		preds:     make([]float32, batchSize),
	}

	// Input projection: pre = x*W + b, post = relu(pre).
	pre := make([]float32, batchSize*h)
	for i := 0; i < batchSize; i++ {
		row := features[i]
		for j := 0; j < h; j++ {
			sum := bIn[j]
			for k, x := range row {
				sum += x * wIn[k*h+j]
			}
			pre[i*h+j] = sum
		}
	}
	acts.pre[0] = pre
	acts.post[0] = relu(pre)

	// Message-passing rounds.
	for r := 0; r < m.NumPropRounds; r++ {
		w := m.index[fmt.Sprintf("prop.%d.weight", r)].Data
		b := m.index[fmt.Sprintf("prop.%d.bias", r)].Data
		prev := acts.post[r]

		next := make([]float32, batchSize*h)
		for i := 0; i < batchSize; i++ {
			for j := 0; j < h; j++ {
				sum := b[j]
				for k := 0; k < h; k++ {
					sum += prev[i*h+k] * w[k*h+j]
				}
				next[i*h+j] = sum
			}
		}
		acts.pre[r+1] = next
		acts.post[r+1] = relu(next)
	}

	// Value readout.
	wOut := m.index["readout.value.weight"].Data
	bOut := m.index["readout.value.bias"].Data
	last := acts.post[numLayers-1]
	for i := 0; i < batchSize; i++ {
		sum := bOut[0]
		for j := 0; j < h; j++ {
			sum += last[i*h+j] * wOut[j]
		}
		acts.preds[i] = sum
	}

	return acts, nil
}

// backward accumulates MSE gradients for the main-path parameters.
func (m *Model) backward(features [][]float32, targets []float32, acts *activations) {
	batchSize := acts.batchSize
	h := m.HiddenSize
	numLayers := 1 + m.NumPropRounds

	// d(loss)/d(pred_i) = 2*(pred_i - target_i)/batchSize
	dPreds := make([]float32, batchSize)
	for i := range dPreds {
		dPreds[i] = 2 * (acts.preds[i] - targets[i]) / float32(batchSize)
	}

	// Value head.
	wOut := m.index["readout.value.weight"]
	bOut := m.index["readout.value.bias"]
	last := acts.post[numLayers-1]

	gw := wOut.Grad()
	gb := bOut.Grad()
	dLast := make([]float32, batchSize*h)
	for i := 0; i < batchSize; i++ {
		gb[0] += dPreds[i]
		for j := 0; j < h; j++ {
			gw[j] += dPreds[i] * last[i*h+j]
			dLast[i*h+j] = dPreds[i] * wOut.Data[j]
		}
	}

	// Message-passing rounds, in reverse.
	dPost := dLast
	for r := m.NumPropRounds - 1; r >= 0; r-- {
		w := m.index[fmt.Sprintf("prop.%d.weight", r)]
		b := m.index[fmt.Sprintf("prop.%d.bias", r)]
		prev := acts.post[r]
		pre := acts.pre[r+1]

		dPre := reluBackward(dPost, pre)
		gw := w.Grad()
		gb := b.Grad()
		dPrev := make([]float32, batchSize*h)
		for i := 0; i < batchSize; i++ {
			for j := 0; j < h; j++ {
				d := dPre[i*h+j]
				if d == 0 {
					continue
				}
				gb[j] += d
				for k := 0; k < h; k++ {
					gw[k*h+j] += prev[i*h+k] * d
					dPrev[i*h+k] += d * w.Data[k*h+j]
				}
			}
		}
		dPost = dPrev
	}

	// Input projection.
	wIn := m.index["input.weight"]
	bIn := m.index["input.bias"]
	dPre := reluBackward(dPost, acts.pre[0])
	gwIn := wIn.Grad()
	gbIn := bIn.Grad()
	for i := 0; i < batchSize; i++ {
		row := features[i]
		for j := 0; j < h; j++ {
			d := dPre[i*h+j]
			if d == 0 {
				continue
			}
			gbIn[j] += d
			for k, x := range row {
				gwIn[k*h+j] += x * d
			}
		}
	}
}

func relu(pre []float32) []float32 {
	out := make([]float32, len(pre))
	for i, v := range pre {
		if v > 0 {
			out[i] = v
		}
	}
	return out
}

// reluBackward gates the downstream gradient by the sign of the
// pre-activation.
func reluBackward(dPost, pre []float32) []float32 {
	out := make([]float32, len(dPost))
	for i, d := range dPost {
		if pre[i] > 0 {
			out[i] = d
		}
	}
	return out
}
