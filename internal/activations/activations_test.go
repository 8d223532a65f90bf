// Package activations provides unit tests for activation functions.
package activations

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigmoidAtZero(t *testing.T) {
	assert.Equal(t, 0.5, Sigmoid{}.Activate(0))
	assert.Equal(t, 0.25, Sigmoid{}.Derivative(0.5))
}

func TestReLU(t *testing.T) {
	r := ReLU{}
	assert.Equal(t, 0.0, r.Activate(-3))
	assert.Equal(t, 3.0, r.Activate(3))
	assert.Equal(t, 1.0, r.Derivative(3))
	assert.Equal(t, 0.0, r.Derivative(-3))
	assert.Equal(t, 0.0, r.Derivative(0))
}

func TestNoneIsIdentity(t *testing.T) {
	x := []float64{-2, 0, 5}
	None{}.Forward(x)
	assert.Equal(t, []float64{-2, 0, 5}, x)

	dst := make([]float64, 3)
	None{}.Backward(dst, x)
	assert.Equal(t, []float64{1, 1, 1}, dst)
}

func TestTanhBackwardUsesCachedOutput(t *testing.T) {
	x := []float64{0.3, -1.2}
	Tanh{}.Forward(x)
	assert.InDelta(t, math.Tanh(0.3), x[0], 1e-15)

	dst := make([]float64, 2)
	Tanh{}.Backward(dst, x)
	for i, y := range x {
		want := 1 - math.Tanh(y)*math.Tanh(y)
		assert.InDelta(t, want, dst[i], 1e-15)
	}
}

func TestSoftmaxUniform(t *testing.T) {
	x := []float64{1, 1, 1}
	Softmax{}.Forward(x)
	for _, v := range x {
		assert.InDelta(t, 1.0/3.0, v, 1e-15)
	}
}

func TestSoftmaxIsStable(t *testing.T) {
	x := []float64{1000, 1001, 1002}
	Softmax{}.Forward(x)

	sum := 0.0
	for _, v := range x {
		require.False(t, math.IsNaN(v))
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Greater(t, x[2], x[1])
}

// Softmax backward is the diagonal approximation y*(1-y), the same
// formula as Sigmoid, not the full Jacobian.
func TestSoftmaxBackwardIsDiagonalApproximation(t *testing.T) {
	y := []float64{0.2, 0.3, 0.5}
	dst := make([]float64, 3)
	Softmax{}.Backward(dst, y)
	assert.InDeltaSlice(t, []float64{0.16, 0.21, 0.25}, dst, 1e-15)
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name string
		want Type
	}{
		{"None", TypeNone},
		{"relu", TypeReLU},
		{"SIGMOID", TypeSigmoid},
		{"Tanh", TypeTanh},
		{"softmax", TypeSoftmax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, err := Lookup(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, act.Type())
			assert.Equal(t, tt.want.String(), act.Name())
		})
	}

	_, err := Lookup("gelu")
	assert.ErrorIs(t, err, ErrUnknownActivation)
}

type doubling struct{ None }

func (doubling) Name() string        { return "Doubling" }
func (doubling) Forward(x []float64) {
	for i := range x {
		x[i] *= 2
	}
}

func TestRegister(t *testing.T) {
	Register("Doubling", func() Activation { return doubling{} })

	act, err := Lookup("doubling")
	require.NoError(t, err)
	x := []float64{1.5}
	act.Forward(x)
	assert.Equal(t, 3.0, x[0])
}
