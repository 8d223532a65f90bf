// Package layer provides neural network layer implementations.
package layer

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/FlavioCFOliveira/plainnn/internal/activations"
	"github.com/FlavioCFOliveira/plainnn/internal/tensor"
)

var (
	// ErrUnsupported is returned for operations a layer kind has no meaning for.
	ErrUnsupported = errors.New("layer: unsupported operation")

	// ErrFrozen is returned by Backward and Step on a frozen layer.
	ErrFrozen = fmt.Errorf("%w: layer is frozen", ErrUnsupported)

	// ErrShapeMismatch is returned when widths or buffer lengths disagree.
	ErrShapeMismatch = errors.New("layer: shape mismatch")

	// ErrParamCountMismatch is returned by LoadParams for a buffer of the wrong length.
	ErrParamCountMismatch = fmt.Errorf("%w: parameter count", ErrShapeMismatch)

	// ErrNotInitialized is returned when a lazily shaped layer is used before Initialize.
	ErrNotInitialized = errors.New("layer: not initialized")

	// ErrUnknownLayer is returned by Build for unregistered layer names.
	ErrUnknownLayer = errors.New("layer: unknown layer")
)

// Kind identifies a layer variant.
type Kind int

const (
	KindInput Kind = iota
	KindDense
)

var kindNames = [...]string{"Input", "Dense"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Layer is a stage of the forward/backward pipeline.
type Layer interface {
	Kind() Kind
	Name() string

	// Initialize allocates parameters for an input of the given shape.
	Initialize(inputShape []int, src rand.Source) error
	Initialized() bool

	// Forward computes the layer output. The returned tensor is owned by the
	// layer and is overwritten by the next call.
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)

	// Backward accumulates parameter gradients and returns the per-unit
	// gradient for the preceding layer. nextWeights is nil for the output
	// layer, in which case nextGrad holds the target.
	Backward(prevOutput, nextWeights, nextGrad *tensor.Tensor) (*tensor.Tensor, error)

	// Delta is Backward without the gradient accumulation.
	Delta(nextWeights, nextGrad *tensor.Tensor) (*tensor.Tensor, error)

	// Step applies accumulated gradients once per batch and resets them.
	Step(learningRate float64, batchSize int) error

	// ZeroGrad discards accumulated gradients without applying them.
	ZeroGrad()

	// Params returns the tensor the preceding layer back-propagates through.
	Params() *tensor.Tensor

	SaveableParams() ([]float64, error)
	LoadParams(params []float64) error

	Summary() Summary
	Output() *tensor.Tensor

	Frozen() bool
	SetFrozen(frozen bool)
}

// Summary describes a layer in the architecture file.
type Summary struct {
	LayerName    string `json:"layer_name"`
	ActivationFn string `json:"activation_fn"`
	ParamCount   int    `json:"param_count"`
	ParamSize    int    `json:"param_size"`
	LayerShape   []int  `json:"layer_shape"`
}

// Builder rebuilds a layer from its summary.
type Builder func(s Summary, src rand.Source) (Layer, error)

var (
	buildersMu sync.RWMutex
	builders   = map[string]Builder{
		"input": buildInput,
		"dense": buildDense,
	}
)

// Register makes a layer kind available to Build. Names match case-insensitively.
func Register(name string, b Builder) {
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[strings.ToLower(name)] = b
}

// Build creates a layer from an architecture record.
func Build(s Summary, src rand.Source) (Layer, error) {
	buildersMu.RLock()
	b, ok := builders[strings.ToLower(s.LayerName)]
	buildersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayer, s.LayerName)
	}
	return b(s, src)
}

func buildInput(s Summary, _ rand.Source) (Layer, error) {
	if len(s.LayerShape) == 0 {
		return nil, fmt.Errorf("%w: input layer without shape", ErrShapeMismatch)
	}
	return NewInput(s.LayerShape...)
}

func buildDense(s Summary, src rand.Source) (Layer, error) {
	if len(s.LayerShape) != 2 {
		return nil, fmt.Errorf("%w: dense layer shape %v", ErrShapeMismatch, s.LayerShape)
	}
	act, err := activations.Lookup(s.ActivationFn)
	if err != nil {
		return nil, err
	}
	return NewDense(s.LayerShape[0], s.LayerShape[1], act, src)
}
