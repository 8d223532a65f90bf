package layer

import (
	"fmt"
	"math/rand/v2"

	"github.com/FlavioCFOliveira/plainnn/internal/activations"
	"github.com/FlavioCFOliveira/plainnn/internal/tensor"
)

// Input is the first layer of every model. It carries no trainable state
// and passes its input through unchanged.
type Input struct {
	output *tensor.Tensor
	frozen bool
}

// NewInput creates an input layer for samples of the given shape.
func NewInput(shape ...int) (*Input, error) {
	out, err := tensor.New(shape)
	if err != nil {
		return nil, err
	}
	return &Input{output: out}, nil
}

func (l *Input) Kind() Kind             { return KindInput }
func (l *Input) Name() string           { return KindInput.String() }
func (l *Input) Initialized() bool      { return true }
func (l *Input) Frozen() bool           { return l.frozen }
func (l *Input) SetFrozen(f bool)       { l.frozen = f }
func (l *Input) Output() *tensor.Tensor { return l.output }

// Params returns nil; there is nothing to back-propagate through.
func (l *Input) Params() *tensor.Tensor { return nil }

// Forward copies input into the layer output.
func (l *Input) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	l.output.CopyFrom(input)
	return l.output, nil
}

func (l *Input) Initialize([]int, rand.Source) error {
	return fmt.Errorf("%w: input layer has no parameters to initialize", ErrUnsupported)
}

func (l *Input) Backward(_, _, _ *tensor.Tensor) (*tensor.Tensor, error) {
	return nil, fmt.Errorf("%w: input layer has no gradients", ErrUnsupported)
}

func (l *Input) Delta(_, _ *tensor.Tensor) (*tensor.Tensor, error) {
	return nil, fmt.Errorf("%w: input layer has no gradients", ErrUnsupported)
}

func (l *Input) Step(float64, int) error {
	return fmt.Errorf("%w: input layer has no parameters to update", ErrUnsupported)
}

func (l *Input) ZeroGrad() {}

func (l *Input) SaveableParams() ([]float64, error) {
	return nil, fmt.Errorf("%w: input layer has no parameters to save", ErrUnsupported)
}

// LoadParams accepts only an empty buffer.
func (l *Input) LoadParams(params []float64) error {
	if len(params) != 0 {
		return fmt.Errorf("%w: input layer expects 0, got %d", ErrParamCountMismatch, len(params))
	}
	return nil
}

func (l *Input) Summary() Summary {
	return Summary{
		LayerName:    KindInput.String(),
		ActivationFn: activations.TypeNone.String(),
		LayerShape:   l.output.Shape(),
	}
}
