package tensor

import (
	"fmt"
)

// DeviceKind identifies the class of compute device a tensor lives on.
type DeviceKind int

const (
	CPU DeviceKind = iota
	Accelerator
)

func (k DeviceKind) String() string {
	switch k {
	case CPU:
		return "CPU"
	case Accelerator:
		return "Accelerator"
	default:
		return "Unknown"
	}
}

// Device describes a concrete placement target. In a distributed run every
// participant places its replica on the accelerator matching its local rank.
type Device struct {
	Kind  DeviceKind
	Index int
}

// CPUDevice is the default placement for freshly created tensors. Checkpoints
// are always materialized here first, then moved.
var CPUDevice = Device{Kind: CPU}

// AcceleratorDevice returns the accelerator device with the given index.
func AcceleratorDevice(index int) Device {
	return Device{Kind: Accelerator, Index: index}
}

func (d Device) String() string {
	if d.Kind == Accelerator {
		return fmt.Sprintf("Accelerator(%d)", d.Index)
	}
	return d.Kind.String()
}

// Tensor is a dense float32 tensor with an optional gradient slot.
type Tensor struct {
	Shape    []int
	Strides  []int
	Device   Device
	Data     []float32
	NumElems int

	requiresGrad bool
	grad         []float32
}

// NewTensor creates a tensor from the given shape and backing data. The data
// length must match the shape's element count exactly.
func NewTensor(shape []int, device Device, data []float32) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	if len(data) != numElems {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)", len(data), shape, numElems)
	}

	return &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  calculateStrides(shape),
		Device:   device,
		Data:     data,
		NumElems: numElems,
	}, nil
}

// Zeros creates a zero-filled tensor with the given shape.
func Zeros(shape []int, device Device) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	numElems := calculateNumElements(shape)
	return NewTensor(shape, device, make([]float32, numElems))
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, device=%s, elements=%d)", t.Shape, t.Device, t.NumElems)
}

// RequiresGrad reports whether this tensor accumulates gradients.
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

// SetRequiresGrad marks the tensor as a trainable parameter. The gradient
// buffer is allocated lazily on first use.
func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
	if requires && t.grad == nil {
		t.grad = make([]float32, t.NumElems)
	}
}

// Grad returns the gradient buffer, or nil if the tensor does not require
// gradients.
func (t *Tensor) Grad() []float32 {
	return t.grad
}

// ZeroGrad resets the gradient buffer to zero.
func (t *Tensor) ZeroGrad() {
	for i := range t.grad {
		t.grad[i] = 0
	}
}

// SetData overwrites the tensor's data in place. The replacement must have the
// same element count.
func (t *Tensor) SetData(data []float32) error {
	if len(data) != t.NumElems {
		return fmt.Errorf("data length %d does not match tensor with %d elements", len(data), t.NumElems)
	}
	copy(t.Data, data)
	return nil
}

// To moves the tensor to the given device. Data stays host-resident; placement
// is tracked so the harness can dispatch compute for the right participant.
func (t *Tensor) To(device Device) *Tensor {
	t.Device = device
	return t
}

// Clone returns a deep copy of the tensor, including its gradient buffer.
func (t *Tensor) Clone() *Tensor {
	out := &Tensor{
		Shape:        append([]int(nil), t.Shape...),
		Strides:      append([]int(nil), t.Strides...),
		Device:       t.Device,
		Data:         append([]float32(nil), t.Data...),
		NumElems:     t.NumElems,
		requiresGrad: t.requiresGrad,
	}
	if t.grad != nil {
		out.grad = append([]float32(nil), t.grad...)
	}
	return out
}

// ZeroGrads resets gradients for every parameter in the slice.
func ZeroGrads(params []*Tensor) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}

	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("invalid shape: empty")
	}
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}
