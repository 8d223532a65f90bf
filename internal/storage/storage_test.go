package storage

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlavioCFOliveira/plainnn/internal/layer"
)

var mlp = []layer.Summary{
	{LayerName: "Input", ActivationFn: "None", LayerShape: []int{4}},
	{LayerName: "Dense", ActivationFn: "ReLU", ParamCount: 4*3 + 3, ParamSize: 8, LayerShape: []int{4, 3}},
	{LayerName: "Dense", ActivationFn: "Sigmoid", ParamCount: 3*2 + 2, ParamSize: 8, LayerShape: []int{3, 2}},
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "model.json", ArchPath("model"))
	assert.Equal(t, "model.weights", WeightsPath("model"))
	assert.Equal(t, "runs/mnist_epoch_3", CheckpointBase("runs/mnist", 3))
}

func TestArchitectureRoundTrip(t *testing.T) {
	base := filepath.Join(t.TempDir(), "model")
	require.NoError(t, SaveArchitecture(base, mlp))

	got, err := LoadArchitecture(base)
	require.NoError(t, err)
	assert.Equal(t, mlp, got)
}

func TestWriteArchitectureKeyOrder(t *testing.T) {
	summaries := make([]layer.Summary, 12)
	for i := range summaries {
		summaries[i] = layer.Summary{LayerName: "Dense", ActivationFn: "None", LayerShape: []int{1, 1}}
	}

	var buf bytes.Buffer
	require.NoError(t, WriteArchitecture(&buf, summaries))
	text := buf.String()

	prev := -1
	for i := range summaries {
		pos := strings.Index(text, `"`+strconv.Itoa(i)+`": {`)
		require.Greater(t, pos, prev, "key %d out of order", i)
		prev = pos
	}
	assert.Contains(t, text, `"activation_fn": "None"`)
	assert.Contains(t, text, `"layer_name": "Dense"`)

	got, err := ReadArchitecture(&buf)
	require.NoError(t, err)
	assert.Len(t, got, 12)
}

func TestReadArchitectureAcceptsAnyKeyOrder(t *testing.T) {
	doc := `{
		"1": {"layer_name": "Dense", "activation_fn": "Softmax", "param_count": 6, "param_size": 8, "layer_shape": [2, 2]},
		"0": {"layer_name": "Input", "activation_fn": "None", "param_count": 0, "param_size": 0, "layer_shape": [2]}
	}`
	got, err := ReadArchitecture(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Input", got[0].LayerName)
	assert.Equal(t, "Softmax", got[1].ActivationFn)
	assert.Equal(t, []int{2, 2}, got[1].LayerShape)
}

func TestReadArchitectureErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"0": `},
		{"array", `[{"layer_name": "Input"}]`},
		{"non numeric key", `{"first": {"layer_name": "Input"}}`},
		{"negative key", `{"-1": {"layer_name": "Input"}}`},
		{"gap", `{"0": {"layer_name": "Input"}, "2": {"layer_name": "Dense"}}`},
		{"missing name", `{"0": {"activation_fn": "None"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadArchitecture(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, ErrArchitectureParse)
		})
	}
}

func TestLoadArchitectureMissingFile(t *testing.T) {
	_, err := LoadArchitecture(filepath.Join(t.TempDir(), "absent"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWeightsRoundTripIsBitExact(t *testing.T) {
	params := [][]float64{
		nil,
		{0.1, -2.5, math.Pi, math.SmallestNonzeroFloat64, math.MaxFloat64},
		{math.Inf(-1), 0, math.Copysign(0, -1)},
	}
	base := filepath.Join(t.TempDir(), "model")
	require.NoError(t, SaveWeights(base, params))

	info, err := os.Stat(WeightsPath(base))
	require.NoError(t, err)
	assert.Equal(t, int64(8*8), info.Size())

	got, err := LoadWeights(base, []int{0, 5, 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Empty(t, got[0])
	for i := 1; i < 3; i++ {
		require.Len(t, got[i], len(params[i]))
		for j := range params[i] {
			assert.Equal(t, math.Float64bits(params[i][j]), math.Float64bits(got[i][j]))
		}
	}
}

func TestWeightsAreLittleEndianWithoutHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWeights(&buf, [][]float64{{1.5}}))

	want := make([]byte, 8)
	binary.LittleEndian.PutUint64(want, math.Float64bits(1.5))
	assert.Equal(t, want, buf.Bytes())
}

func TestReadWeightsSizeMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWeights(&buf, [][]float64{{1, 2, 3}}))
	data := buf.Bytes()

	_, err := ReadWeights(bytes.NewReader(data), []int{4})
	assert.ErrorIs(t, err, ErrWeightsSize)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ReadWeights(bytes.NewReader(data[:20]), []int{3})
	assert.ErrorIs(t, err, ErrWeightsSize)

	_, err = ReadWeights(bytes.NewReader(data), []int{2})
	assert.ErrorIs(t, err, ErrWeightsSize)

	_, err = ReadWeights(bytes.NewReader(data), []int{1, 2})
	assert.NoError(t, err)
}

func TestFailedWriteKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "model")
	require.NoError(t, SaveWeights(base, [][]float64{{1, 2}}))

	err := writeFile(WeightsPath(base), func(w io.Writer) error {
		if _, err := w.Write([]byte{0xff, 0xff, 0xff}); err != nil {
			return err
		}
		return io.ErrShortWrite
	})
	require.ErrorIs(t, err, io.ErrShortWrite)

	got, err := LoadWeights(base, []int{2})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2}}, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "model"+WeightsExt, entries[0].Name())

	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestWriteFileMissingDirectory(t *testing.T) {
	base := filepath.Join(t.TempDir(), "absent", "model")
	assert.ErrorIs(t, SaveWeights(base, [][]float64{{1}}), os.ErrNotExist)
}
