// Package activations provides the activation functions used by dense layers.
package activations

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
)

// ErrUnknownActivation is returned by Lookup for names that are not registered.
var ErrUnknownActivation = errors.New("activations: unknown activation")

// Type identifies an activation function.
type Type int

const (
	TypeNone Type = iota
	TypeReLU
	TypeSigmoid
	TypeTanh
	TypeSoftmax
)

var typeNames = [...]string{"None", "ReLU", "Sigmoid", "Tanh", "Softmax"}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// Activation is a stateless transform applied to a dense layer's output.
//
// Backward receives the cached forward output y, never the pre-activation
// value, and writes the local derivative used by the chain rule.
type Activation interface {
	Type() Type
	Name() string

	// Forward overwrites x with f(x).
	Forward(x []float64)

	// Backward writes f'(y) for every element of y into dst.
	Backward(dst, y []float64)
}

// Elementwise is implemented by activations that also work on single values.
type Elementwise interface {
	Activation
	Activate(x float64) float64
	Derivative(y float64) float64
}

// None is the identity.
type None struct{}

func (None) Type() Type                 { return TypeNone }
func (None) Name() string               { return TypeNone.String() }
func (None) Activate(x float64) float64 { return x }
func (None) Derivative(float64) float64 { return 1 }
func (n None) Forward(x []float64)      { forward(n, x) }
func (n None) Backward(dst, y []float64) {
	backward(n, dst, y)
}

// ReLU activation function.
type ReLU struct{}

func (ReLU) Type() Type   { return TypeReLU }
func (ReLU) Name() string { return TypeReLU.String() }

// Activate computes max(0, x)
func (ReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// Derivative returns 1 if y > 0, else 0
func (ReLU) Derivative(y float64) float64 {
	if y > 0 {
		return 1
	}
	return 0
}

func (r ReLU) Forward(x []float64)       { forward(r, x) }
func (r ReLU) Backward(dst, y []float64) { backward(r, dst, y) }

// Sigmoid activation function.
type Sigmoid struct{}

func (Sigmoid) Type() Type   { return TypeSigmoid }
func (Sigmoid) Name() string { return TypeSigmoid.String() }

// Activate computes 1 / (1 + e^-x)
func (Sigmoid) Activate(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Derivative computes y * (1 - y) from the sigmoid output y.
func (Sigmoid) Derivative(y float64) float64 {
	return y * (1 - y)
}

func (s Sigmoid) Forward(x []float64)       { forward(s, x) }
func (s Sigmoid) Backward(dst, y []float64) { backward(s, dst, y) }

// Tanh activation function.
type Tanh struct{}

func (Tanh) Type() Type   { return TypeTanh }
func (Tanh) Name() string { return TypeTanh.String() }

// Activate computes tanh(x)
func (Tanh) Activate(x float64) float64 {
	return math.Tanh(x)
}

// Derivative computes 1 - tanh(y)^2 where y is the cached output.
func (Tanh) Derivative(y float64) float64 {
	t := math.Tanh(y)
	return 1 - t*t
}

func (t Tanh) Forward(x []float64)       { forward(t, x) }
func (t Tanh) Backward(dst, y []float64) { backward(t, dst, y) }

// Softmax normalizes the whole output vector.
type Softmax struct{}

func (Softmax) Type() Type   { return TypeSoftmax }
func (Softmax) Name() string { return TypeSoftmax.String() }

// Forward computes exp(x - max) / sum(exp(x - max)) in place.
func (Softmax) Forward(x []float64) {
	if len(x) == 0 {
		return
	}
	maxVal := x[0]
	for _, v := range x[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	sum := 0.0
	for i := range x {
		x[i] = math.Exp(x[i] - maxVal)
		sum += x[i]
	}
	for i := range x {
		x[i] /= sum
	}
}

// Backward uses the diagonal y * (1 - y), not the full softmax Jacobian.
func (Softmax) Backward(dst, y []float64) {
	for i, v := range y {
		dst[i] = v * (1 - v)
	}
}

func forward(e Elementwise, x []float64) {
	for i, v := range x {
		x[i] = e.Activate(v)
	}
}

func backward(e Elementwise, dst, y []float64) {
	for i, v := range y {
		dst[i] = e.Derivative(v)
	}
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Activation{
		"none":    func() Activation { return None{} },
		"relu":    func() Activation { return ReLU{} },
		"sigmoid": func() Activation { return Sigmoid{} },
		"tanh":    func() Activation { return Tanh{} },
		"softmax": func() Activation { return Softmax{} },
	}
)

// Register makes an activation available to Lookup under name.
// Names are matched case-insensitively.
func Register(name string, ctor func() Activation) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = ctor
}

// Lookup returns the activation registered under name.
func Lookup(name string) (Activation, error) {
	registryMu.RLock()
	ctor, ok := registry[strings.ToLower(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActivation, name)
	}
	return ctor(), nil
}
