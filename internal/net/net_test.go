package net

import (
	"bytes"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlavioCFOliveira/plainnn/internal/activations"
	"github.com/FlavioCFOliveira/plainnn/internal/layer"
	"github.com/FlavioCFOliveira/plainnn/internal/storage"
	"github.com/FlavioCFOliveira/plainnn/internal/tensor"
)

func quiet(opts ...Option) []Option {
	return append([]Option{WithLogger(zerolog.Nop()), WithSeed(1)}, opts...)
}

func mustInput(t *testing.T, n int) *layer.Input {
	t.Helper()
	in, err := layer.NewInput(n)
	require.NoError(t, err)
	return in
}

func mustLazy(t *testing.T, out int, act activations.Activation) *layer.Dense {
	t.Helper()
	d, err := layer.NewLazyDense(out, act)
	require.NoError(t, err)
	return d
}

// mlp builds Input(in) -> Dense(hidden, ReLU) -> Dense(out, Sigmoid).
func mlp(t *testing.T, in, hidden, out int, opts ...Option) *Model {
	t.Helper()
	m, err := NewSequential([]layer.Layer{
		mustInput(t, in),
		mustLazy(t, hidden, activations.ReLU{}),
		mustLazy(t, out, activations.Sigmoid{}),
	}, quiet(opts...)...)
	require.NoError(t, err)
	return m
}

func TestAddLayerFirstMustBeInput(t *testing.T) {
	m := New(quiet()...)
	err := m.AddLayer(mustLazy(t, 3, nil))
	assert.ErrorIs(t, err, ErrFirstLayerNotInput)
	assert.Equal(t, 0, m.Len())

	require.NoError(t, m.AddLayer(mustInput(t, 2)))
	assert.ErrorIs(t, m.AddLayer(mustInput(t, 2)), ErrInputNotFirst)
	assert.Equal(t, 1, m.Len())
}

func TestAddLayerInitializesLazyDense(t *testing.T) {
	m := mlp(t, 4, 3, 2)

	require.Equal(t, 3, m.Len())
	hidden := m.Layer(1).(*layer.Dense)
	assert.True(t, hidden.Initialized())
	assert.Equal(t, []int{4, 3}, hidden.Weights().Shape())
	assert.Equal(t, []int{3, 2}, m.Layer(2).(*layer.Dense).Weights().Shape())
	assert.Equal(t, 4, m.InputSize())
	assert.Equal(t, 2, m.OutputSize())
}

func TestAddLayerRejectsWidthMismatch(t *testing.T) {
	m := New(quiet()...)
	require.NoError(t, m.AddLayer(mustInput(t, 3)))

	d, err := layer.NewDense(4, 2, activations.ReLU{}, rand.NewPCG(1, 1))
	require.NoError(t, err)
	assert.ErrorIs(t, m.AddLayer(d), layer.ErrShapeMismatch)
	assert.Equal(t, 1, m.Len())

	d, err = layer.NewDense(3, 2, activations.ReLU{}, rand.NewPCG(1, 1))
	require.NoError(t, err)
	assert.NoError(t, m.AddLayer(d))
}

func TestSeededModelsAreIdentical(t *testing.T) {
	a := mlp(t, 5, 4, 3)
	b := mlp(t, 5, 4, 3)
	for i := 1; i < a.Len(); i++ {
		assert.Equal(t, a.Layer(i).Params().Data(), b.Layer(i).Params().Data())
	}
}

// Input(2) -> Dense(1, Sigmoid), W = [[1],[1]], b = [0], x = [0.5, 0.5].
func TestForwardSigmoid(t *testing.T) {
	m := New(quiet()...)
	require.NoError(t, m.AddLayer(mustInput(t, 2)))
	require.NoError(t, m.AddLayer(mustLazy(t, 1, activations.Sigmoid{})))
	require.NoError(t, m.Layer(1).LoadParams([]float64{1, 1, 0}))

	out, err := m.Forward(tensor.Vector(0.5, 0.5))
	require.NoError(t, err)
	assert.InDelta(t, 0.731, out.At(0), 1e-3)

	pred, err := m.Predict(tensor.Vector(0.5, 0.5))
	require.NoError(t, err)
	assert.NotSame(t, out, pred)
	assert.Equal(t, out.Data(), pred.Data())
}

func TestForwardErrors(t *testing.T) {
	m := New(quiet()...)
	_, err := m.Forward(tensor.Vector(1))
	assert.ErrorIs(t, err, ErrEmptyModel)

	require.NoError(t, m.AddLayer(mustInput(t, 2)))
	_, err = m.Forward(tensor.Vector(1, 2))
	assert.ErrorIs(t, err, ErrEmptyModel)

	require.NoError(t, m.AddLayer(mustLazy(t, 1, nil)))
	_, err = m.Forward(tensor.Vector(1, 2, 3))
	assert.ErrorIs(t, err, layer.ErrShapeMismatch)
}

func TestFreezeLayer(t *testing.T) {
	m := mlp(t, 2, 2, 2)
	require.NoError(t, m.FreezeLayer(1, true))
	assert.True(t, m.Layer(1).Frozen())
	require.NoError(t, m.FreezeLayer(1, false))
	assert.False(t, m.Layer(1).Frozen())

	assert.ErrorIs(t, m.FreezeLayer(3, true), ErrLayerIndex)
	assert.ErrorIs(t, m.FreezeLayer(-1, true), ErrLayerIndex)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	base := filepath.Join(t.TempDir(), "model")
	m := mlp(t, 6, 5, 3)
	require.NoError(t, m.Save(base, false))

	assert.FileExists(t, storage.ArchPath(base))
	assert.FileExists(t, storage.WeightsPath(base))

	loaded, err := Load(base, quiet()...)
	require.NoError(t, err)
	require.Equal(t, m.Len(), loaded.Len())
	assert.Equal(t, m.Summaries(), loaded.Summaries())

	for i := 1; i < m.Len(); i++ {
		want, err := m.Layer(i).SaveableParams()
		require.NoError(t, err)
		got, err := loaded.Layer(i).SaveableParams()
		require.NoError(t, err)
		require.Len(t, got, len(want))
		for j := range want {
			assert.Equal(t, math.Float64bits(want[j]), math.Float64bits(got[j]))
		}
	}

	x := tensor.Vector(0.1, 0.2, 0.3, 0.4, 0.5, 0.6)
	a, err := m.Predict(x)
	require.NoError(t, err)
	b, err := loaded.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, a.Data(), b.Data())
}

func TestLoadWeightsOnly(t *testing.T) {
	base := filepath.Join(t.TempDir(), "weights")
	src := mlp(t, 3, 2, 2)
	require.NoError(t, src.Save(base, true))
	assert.NoFileExists(t, storage.ArchPath(base))

	dst := mlp(t, 3, 2, 2, WithSeed(99))
	require.NotEqual(t, src.Layer(1).Params().Data(), dst.Layer(1).Params().Data())

	require.NoError(t, dst.Load(base, true))
	assert.Equal(t, src.Layer(1).Params().Data(), dst.Layer(1).Params().Data())
	assert.Equal(t, src.Layer(2).Params().Data(), dst.Layer(2).Params().Data())
}

func TestLoadFailureLeavesModelUnchanged(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "small")
	require.NoError(t, mlp(t, 2, 2, 2).Save(base, false))

	m := mlp(t, 3, 4, 2)
	before := m.Summaries()

	// Architecture of a different model, weights file truncated.
	require.NoError(t, os.WriteFile(storage.WeightsPath(base), []byte{1, 2, 3}, 0o644))
	assert.ErrorIs(t, m.Load(base, false), storage.ErrWeightsSize)
	assert.Equal(t, before, m.Summaries())

	assert.ErrorIs(t, m.Load(filepath.Join(dir, "absent"), false), os.ErrNotExist)
	assert.Equal(t, before, m.Summaries())
}

func TestLoadUnknownLayer(t *testing.T) {
	base := filepath.Join(t.TempDir(), "conv")
	require.NoError(t, storage.SaveArchitecture(base, []layer.Summary{
		{LayerName: "Input", ActivationFn: "None", LayerShape: []int{4}},
		{LayerName: "Conv2D", ActivationFn: "ReLU", LayerShape: []int{4, 4}},
	}))

	_, err := Load(base, quiet()...)
	assert.ErrorIs(t, err, layer.ErrUnknownLayer)
}

func TestSummary(t *testing.T) {
	m, err := NewSequential([]layer.Layer{
		mustInput(t, 784),
		mustLazy(t, 128, activations.ReLU{}),
		mustLazy(t, 10, activations.Sigmoid{}),
	}, quiet()...)
	require.NoError(t, err)
	require.NoError(t, m.FreezeLayer(2, true))

	var buf bytes.Buffer
	m.Summary(&buf)
	out := buf.String()

	assert.Contains(t, out, "Input_0")
	assert.Contains(t, out, "Dense_1")
	assert.Contains(t, out, "Dense_2 (frozen)")
	assert.Contains(t, out, "(128)")
	assert.Contains(t, out, "100,480")
	assert.Contains(t, out, "Total params: 101,770")
	assert.Contains(t, out, "Trainable params: 100,480")
	assert.Contains(t, out, "Non-trainable params: 1,290")
}

func TestByteSize(t *testing.T) {
	assert.Equal(t, "0 B", byteSize(0))
	assert.Equal(t, "1023 B", byteSize(1023))
	assert.Equal(t, "1.00 KB", byteSize(1024))
	assert.Equal(t, "1.50 MB", byteSize(3*512*1024))
}
