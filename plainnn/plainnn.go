// Package plainnn is the public entry point to the feed-forward engine: it
// re-exports the model, layer, activation, scheduler and data APIs kept under
// internal/.
package plainnn

import (
	"github.com/FlavioCFOliveira/plainnn/internal/activations"
	"github.com/FlavioCFOliveira/plainnn/internal/data"
	"github.com/FlavioCFOliveira/plainnn/internal/layer"
	"github.com/FlavioCFOliveira/plainnn/internal/net"
	"github.com/FlavioCFOliveira/plainnn/internal/opt"
	"github.com/FlavioCFOliveira/plainnn/internal/tensor"
)

type (
	Model            = net.Model
	Option           = net.Option
	TrainConfig      = net.TrainConfig
	EpochStats       = net.EpochStats
	EvaluationResult = net.EvaluationResult
	Callback         = net.Callback
	Layer            = layer.Layer
	Activation       = activations.Activation
	Scheduler        = opt.Scheduler
	Tensor           = tensor.Tensor
	Loader           = data.Loader
	Sample           = data.Sample
)

// Model creation
var (
	New              = net.New
	NewSequential    = net.NewSequential
	Load             = net.Load
	WithSeed         = net.WithSeed
	WithLogger       = net.WithLogger
	WithScheduler    = net.WithScheduler
	WithCallbacks    = net.WithCallbacks
	DefaultConfig    = net.DefaultTrainConfig
	Vector           = tensor.Vector
	NewEarlyStopping = net.NewEarlyStopping
	NewCSVLogger     = net.NewCSVLogger
	NewStepLR        = opt.NewStepLR
	LookupActivation = activations.Lookup
)

// Activations
var (
	None    = activations.None{}
	ReLU    = activations.ReLU{}
	Sigmoid = activations.Sigmoid{}
	Tanh    = activations.Tanh{}
	Softmax = activations.Softmax{}
)

// Input creates the mandatory first layer of a model.
func Input(size int) (Layer, error) {
	return layer.NewInput(size)
}

// Dense creates a fully connected layer whose input width is taken from the
// preceding layer when it is added to a model.
func Dense(out int, act Activation) (Layer, error) {
	return layer.NewLazyDense(out, act)
}

// Datasets
var (
	NewSliceLoader = data.NewSliceLoader
	NewMNISTLoader = data.NewMNISTLoader
	LoadCSV        = data.LoadCSV
	WithShuffle    = data.WithShuffle
	WithDropLast   = data.WithDropLast
	WithDataSeed   = data.WithSeed
)
