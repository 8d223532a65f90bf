package layer

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/FlavioCFOliveira/plainnn/internal/activations"
	"github.com/FlavioCFOliveira/plainnn/internal/opt"
	"github.com/FlavioCFOliveira/plainnn/internal/tensor"
)

// ErrInvalidBatchSize is returned by Step for a non-positive batch size.
var ErrInvalidBatchSize = errors.New("layer: invalid batch size")

const float64Size = 8

// Dense is a fully connected layer followed by an activation.
//
// Weights are stored row-major as [inSize, outSize]: the weight from input i
// to output j is at weights[i*outSize+j]. Gradients accumulate across every
// Backward call until Step consumes them.
type Dense struct {
	inSize  int
	outSize int
	act     activations.Activation

	weights  *tensor.Tensor
	biases   *tensor.Tensor
	dWeights *tensor.Tensor
	dBiases  *tensor.Tensor

	output *tensor.Tensor

	// Reusable buffers for the backward pass
	grads    *tensor.Tensor
	dErr     []float64
	actDeriv []float64

	initialized bool
	frozen      bool
}

// NewDense creates a fully shaped dense layer with Glorot-initialized weights
// and zero biases. A nil src draws from the global generator.
func NewDense(in, out int, act activations.Activation, src rand.Source) (*Dense, error) {
	d, err := NewLazyDense(out, act)
	if err != nil {
		return nil, err
	}
	if err := d.Initialize([]int{in}, src); err != nil {
		return nil, err
	}
	return d, nil
}

// NewLazyDense creates a dense layer whose input size is taken from the
// preceding layer when it is added to a model.
func NewLazyDense(out int, act activations.Activation) (*Dense, error) {
	output, err := tensor.New([]int{out})
	if err != nil {
		return nil, err
	}
	if act == nil {
		act = activations.None{}
	}
	return &Dense{
		outSize:  out,
		act:      act,
		output:   output,
		grads:    tensor.Zeros(out),
		dErr:     make([]float64, out),
		actDeriv: make([]float64, out),
	}, nil
}

// Initialize allocates parameters for inputs whose last dimension is the
// input size. Calling it again discards learned weights.
func (d *Dense) Initialize(inputShape []int, src rand.Source) error {
	if len(inputShape) == 0 {
		return fmt.Errorf("%w: empty input shape", ErrShapeMismatch)
	}
	in := inputShape[len(inputShape)-1]
	shape := []int{in, d.outSize}

	weights, err := tensor.New(shape, tensor.WithGlorot(src))
	if err != nil {
		return err
	}
	dWeights, err := tensor.New(shape)
	if err != nil {
		return err
	}

	d.inSize = in
	d.weights = weights
	d.dWeights = dWeights
	d.biases = tensor.Zeros(d.outSize)
	d.dBiases = tensor.Zeros(d.outSize)
	d.initialized = true
	return nil
}

func (d *Dense) Kind() Kind                         { return KindDense }
func (d *Dense) Name() string                       { return KindDense.String() }
func (d *Dense) Initialized() bool                  { return d.initialized }
func (d *Dense) Frozen() bool                       { return d.frozen }
func (d *Dense) SetFrozen(f bool)                   { d.frozen = f }
func (d *Dense) Output() *tensor.Tensor             { return d.output }
func (d *Dense) Params() *tensor.Tensor             { return d.weights }
func (d *Dense) Activation() activations.Activation { return d.act }

// InSize returns the input size of the layer, 0 until initialized.
func (d *Dense) InSize() int { return d.inSize }

// OutSize returns the output size of the layer.
func (d *Dense) OutSize() int { return d.outSize }

// Weights returns the [in, out] weight tensor.
func (d *Dense) Weights() *tensor.Tensor { return d.weights }

// Biases returns the [out] bias tensor.
func (d *Dense) Biases() *tensor.Tensor { return d.biases }

// WeightGrads returns the accumulated weight gradients.
func (d *Dense) WeightGrads() *tensor.Tensor { return d.dWeights }

// BiasGrads returns the accumulated bias gradients.
func (d *Dense) BiasGrads() *tensor.Tensor { return d.dBiases }

// Forward computes act(b + x·W).
func (d *Dense) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if !d.initialized {
		return nil, ErrNotInitialized
	}
	if input.Size() != d.inSize {
		return nil, fmt.Errorf("%w: dense expects %d inputs, got %d", ErrShapeMismatch, d.inSize, input.Size())
	}

	inSize := d.inSize
	outSize := d.outSize
	x := input.Data()
	w := d.weights.Data()
	b := d.biases.Data()
	out := d.output.Data()

	for j := 0; j < outSize; j++ {
		sum := b[j]
		for i := 0; i < inSize; i++ {
			sum += x[i] * w[i*outSize+j]
		}
		out[j] = sum
	}
	d.act.Forward(out)

	return d.output, nil
}

// Backward computes the per-unit gradient from the cached output and adds
// this sample's contribution to the weight and bias gradients.
// The returned tensor is reused by the next call.
func (d *Dense) Backward(prevOutput, nextWeights, nextGrad *tensor.Tensor) (*tensor.Tensor, error) {
	if d.frozen {
		return nil, ErrFrozen
	}
	if !d.initialized {
		return nil, ErrNotInitialized
	}
	if prevOutput.Size() != d.inSize {
		return nil, fmt.Errorf("%w: previous output has %d values, want %d", ErrShapeMismatch, prevOutput.Size(), d.inSize)
	}

	grads, err := d.Delta(nextWeights, nextGrad)
	if err != nil {
		return nil, err
	}

	g := grads.Data()
	prev := prevOutput.Data()
	dW := d.dWeights.Data()
	for i := 0; i < d.inSize; i++ {
		floats.AddScaled(dW[i*d.outSize:(i+1)*d.outSize], prev[i], g)
	}
	floats.Add(d.dBiases.Data(), g)

	return grads, nil
}

// Delta computes the per-unit gradient without touching the parameter
// gradients, so a frozen layer can still pass an error signal downward.
//
// For the output layer (nextWeights == nil) the error is nextGrad - output,
// nextGrad being the one-hot target. For hidden layers the error is the next
// layer's gradient projected back through its [outSize, k] weight matrix.
func (d *Dense) Delta(nextWeights, nextGrad *tensor.Tensor) (*tensor.Tensor, error) {
	if !d.initialized {
		return nil, ErrNotInitialized
	}

	out := d.output.Data()
	dErr := d.dErr

	if nextWeights == nil {
		if nextGrad.Size() != d.outSize {
			return nil, fmt.Errorf("%w: target has %d values, want %d", ErrShapeMismatch, nextGrad.Size(), d.outSize)
		}
		floats.SubTo(dErr, nextGrad.Data(), out)
	} else {
		k := nextGrad.Size()
		if nextWeights.Size() != d.outSize*k || nextWeights.Dim(0) != d.outSize {
			return nil, fmt.Errorf("%w: next weights %s do not match [%d, %d]", ErrShapeMismatch, nextWeights.ShapeString(), d.outSize, k)
		}
		w := mat.NewDense(d.outSize, k, nextWeights.Data())
		e := mat.NewVecDense(d.outSize, dErr)
		e.MulVec(w, mat.NewVecDense(k, nextGrad.Data()))
	}

	d.act.Backward(d.actDeriv, out)
	floats.MulTo(d.grads.Data(), dErr, d.actDeriv)

	return d.grads, nil
}

// Step applies the accumulated gradients averaged over batchSize and
// resets them to zero.
func (d *Dense) Step(learningRate float64, batchSize int) error {
	if d.frozen {
		return ErrFrozen
	}
	if !d.initialized {
		return ErrNotInitialized
	}
	if batchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, batchSize)
	}

	sgd := opt.SGD{LearningRate: learningRate}
	sgd.StepInPlace(d.weights.Data(), d.dWeights.Data(), batchSize)
	sgd.StepInPlace(d.biases.Data(), d.dBiases.Data(), batchSize)

	d.dWeights.Clear()
	d.dBiases.Clear()
	return nil
}

// ZeroGrad clears the accumulated gradients.
func (d *Dense) ZeroGrad() {
	if !d.initialized {
		return
	}
	d.dWeights.Clear()
	d.dBiases.Clear()
}

// ParamCount returns in*out + out.
func (d *Dense) ParamCount() int {
	return d.inSize*d.outSize + d.outSize
}

// SaveableParams returns the weights row-major followed by the biases.
func (d *Dense) SaveableParams() ([]float64, error) {
	if !d.initialized {
		return nil, ErrNotInitialized
	}
	params := make([]float64, 0, d.ParamCount())
	params = append(params, d.weights.Data()...)
	params = append(params, d.biases.Data()...)
	return params, nil
}

// LoadParams copies weights then biases from a flat buffer produced by SaveableParams.
func (d *Dense) LoadParams(params []float64) error {
	if !d.initialized {
		return ErrNotInitialized
	}
	if len(params) != d.ParamCount() {
		return fmt.Errorf("%w: expected %d, got %d", ErrParamCountMismatch, d.ParamCount(), len(params))
	}
	n := copy(d.weights.Data(), params)
	copy(d.biases.Data(), params[n:])
	return nil
}

func (d *Dense) Summary() Summary {
	return Summary{
		LayerName:    KindDense.String(),
		ActivationFn: d.act.Name(),
		ParamCount:   d.ParamCount(),
		ParamSize:    float64Size,
		LayerShape:   []int{d.inSize, d.outSize},
	}
}
