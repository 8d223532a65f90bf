// Package net provides the model: an ordered stack of layers that can be
// trained, evaluated, saved and loaded.
package net

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/FlavioCFOliveira/plainnn/internal/layer"
	"github.com/FlavioCFOliveira/plainnn/internal/opt"
	"github.com/FlavioCFOliveira/plainnn/internal/storage"
	"github.com/FlavioCFOliveira/plainnn/internal/tensor"
)

var (
	// ErrFirstLayerNotInput is returned by AddLayer when the first layer is not an Input.
	ErrFirstLayerNotInput = errors.New("net: first layer must be an input layer")

	// ErrInputNotFirst is returned by AddLayer for an Input anywhere but first.
	ErrInputNotFirst = errors.New("net: input layer after the first position")

	// ErrEmptyModel is returned when an operation needs at least one trainable layer.
	ErrEmptyModel = errors.New("net: model has no layers after the input")

	// ErrLayerIndex is returned for a layer index outside the model.
	ErrLayerIndex = errors.New("net: layer index out of range")
)

// Model is a feed-forward network. Layer 0 is always an Input layer.
type Model struct {
	layers    []layer.Layer
	scheduler opt.Scheduler
	src       rand.Source
	logger    zerolog.Logger
	callbacks []Callback

	stop bool
}

// Option configures a Model.
type Option func(*Model)

// WithSeed makes weight initialization reproducible.
func WithSeed(seed uint64) Option {
	return func(m *Model) {
		m.src = rand.NewPCG(seed, seed)
	}
}

// WithSource sets the generator lazily shaped layers are initialized from.
func WithSource(src rand.Source) Option {
	return func(m *Model) {
		m.src = src
	}
}

// WithLogger replaces the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Model) {
		m.logger = l
	}
}

// WithScheduler sets the learning rate scheduler applied after every epoch.
func WithScheduler(s opt.Scheduler) Option {
	return func(m *Model) {
		m.scheduler = s
	}
}

// WithCallbacks registers training callbacks.
func WithCallbacks(cbs ...Callback) Option {
	return func(m *Model) {
		m.callbacks = append(m.callbacks, cbs...)
	}
}

// New creates an empty model.
func New(opts ...Option) *Model {
	m := &Model{
		src:    rand.NewPCG(rand.Uint64(), rand.Uint64()),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type inputSized interface {
	InSize() int
}

// AddLayer appends l. A lazily shaped layer is initialized from the width of
// the previous layer; a fully shaped one must already match it. On error the
// model is left unchanged.
func (m *Model) AddLayer(l layer.Layer) error {
	if len(m.layers) == 0 {
		if l.Kind() != layer.KindInput {
			return fmt.Errorf("%w: got %s", ErrFirstLayerNotInput, l.Name())
		}
		m.layers = append(m.layers, l)
		return nil
	}
	if l.Kind() == layer.KindInput {
		return fmt.Errorf("%w: position %d", ErrInputNotFirst, len(m.layers))
	}

	prev := m.layers[len(m.layers)-1].Output()
	if !l.Initialized() {
		if err := l.Initialize(prev.Shape(), m.src); err != nil {
			return fmt.Errorf("initialize layer %d: %w", len(m.layers), err)
		}
	} else if s, ok := l.(inputSized); ok && s.InSize() != prev.Size() {
		return fmt.Errorf("%w: layer %d takes %d inputs, previous layer outputs %d",
			layer.ErrShapeMismatch, len(m.layers), s.InSize(), prev.Size())
	}

	m.layers = append(m.layers, l)
	return nil
}

// Layer returns the i-th layer. It panics when i is out of range.
func (m *Model) Layer(i int) layer.Layer { return m.layers[i] }

// Layers returns the layers in order. The slice must not be modified.
func (m *Model) Layers() []layer.Layer { return m.layers }

// Len returns the number of layers including the input.
func (m *Model) Len() int { return len(m.layers) }

// FreezeLayer excludes layer i from gradient updates, or re-enables it.
func (m *Model) FreezeLayer(i int, frozen bool) error {
	if i < 0 || i >= len(m.layers) {
		return fmt.Errorf("%w: %d of %d", ErrLayerIndex, i, len(m.layers))
	}
	m.layers[i].SetFrozen(frozen)
	return nil
}

func (m *Model) SetScheduler(s opt.Scheduler) { m.scheduler = s }
func (m *Model) Scheduler() opt.Scheduler     { return m.scheduler }
func (m *Model) AddCallback(cb Callback)      { m.callbacks = append(m.callbacks, cb) }

// StopTraining makes Train return after the current epoch.
func (m *Model) StopTraining() { m.stop = true }

// Forward runs input through layers 1..n-1; the input layer is skipped.
// The result is owned by the last layer and overwritten by the next call.
func (m *Model) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(m.layers) < 2 {
		return nil, ErrEmptyModel
	}
	out := input
	for i := 1; i < len(m.layers); i++ {
		var err error
		if out, err = m.layers[i].Forward(out); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return out, nil
}

// Predict is Forward returning a copy the caller owns.
func (m *Model) Predict(input *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := m.Forward(input)
	if err != nil {
		return nil, err
	}
	return out.Clone(), nil
}

// InputSize returns the number of values the model takes, 0 when empty.
func (m *Model) InputSize() int {
	if len(m.layers) == 0 {
		return 0
	}
	return m.layers[0].Output().Size()
}

// OutputSize returns the width of the last layer, 0 when empty.
func (m *Model) OutputSize() int {
	if len(m.layers) == 0 {
		return 0
	}
	return m.layers[len(m.layers)-1].Output().Size()
}

// Summaries returns the architecture record of every layer.
func (m *Model) Summaries() []layer.Summary {
	out := make([]layer.Summary, len(m.layers))
	for i, l := range m.layers {
		out[i] = l.Summary()
	}
	return out
}

// Save writes <base>.weights and, unless weightsOnly, <base>.json.
func (m *Model) Save(base string, weightsOnly bool) error {
	if len(m.layers) == 0 {
		return ErrEmptyModel
	}
	if !weightsOnly {
		if err := storage.SaveArchitecture(base, m.Summaries()); err != nil {
			return fmt.Errorf("save architecture: %w", err)
		}
	}

	params := make([][]float64, len(m.layers))
	for i, l := range m.layers {
		if l.Summary().ParamCount == 0 {
			continue
		}
		p, err := l.SaveableParams()
		if err != nil {
			return fmt.Errorf("save layer %d: %w", i, err)
		}
		params[i] = p
	}
	if err := storage.SaveWeights(base, params); err != nil {
		return fmt.Errorf("save weights: %w", err)
	}
	return nil
}

// Load reads a saved model. With weightsOnly the current layers are kept and
// only their parameters are replaced; otherwise the layers are rebuilt from
// <base>.json first. On error the model is left unchanged.
func (m *Model) Load(base string, weightsOnly bool) error {
	layers := m.layers
	if !weightsOnly {
		summaries, err := storage.LoadArchitecture(base)
		if err != nil {
			return err
		}
		fresh := &Model{src: m.src}
		for i, s := range summaries {
			l, err := layer.Build(s, m.src)
			if err != nil {
				return fmt.Errorf("build layer %d: %w", i, err)
			}
			if err := fresh.AddLayer(l); err != nil {
				return err
			}
		}
		layers = fresh.layers
	}
	if len(layers) == 0 {
		return ErrEmptyModel
	}

	counts := make([]int, len(layers))
	for i, l := range layers {
		counts[i] = l.Summary().ParamCount
	}
	params, err := storage.LoadWeights(base, counts)
	if err != nil {
		return err
	}

	for i, l := range layers {
		if err := l.LoadParams(params[i]); err != nil {
			return fmt.Errorf("load layer %d: %w", i, err)
		}
	}

	m.layers = layers
	m.logger.Debug().Str("path", base).Int("layers", len(layers)).Bool("weights_only", weightsOnly).Msg("model loaded")
	return nil
}

// Load creates a model from <base>.json and <base>.weights.
func Load(base string, opts ...Option) (*Model, error) {
	m := New(opts...)
	if err := m.Load(base, false); err != nil {
		return nil, err
	}
	return m, nil
}
