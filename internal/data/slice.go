package data

import (
	"fmt"
	"math/rand/v2"

	"github.com/FlavioCFOliveira/plainnn/internal/tensor"
)

// Option configures a SliceLoader.
type Option func(*SliceLoader)

// WithShuffle shuffles the samples on every NewEpoch.
func WithShuffle(shuffle bool) Option {
	return func(l *SliceLoader) {
		l.shuffle = shuffle
	}
}

// WithDropLast drops the trailing partial batch of each epoch.
func WithDropLast(dropLast bool) Option {
	return func(l *SliceLoader) {
		l.dropLast = dropLast
	}
}

// WithSource sets the generator used for shuffling.
func WithSource(src rand.Source) Option {
	return func(l *SliceLoader) {
		l.rng = rand.New(src)
	}
}

// WithSeed is WithSource over a PCG seeded with seed.
func WithSeed(seed uint64) Option {
	return WithSource(rand.NewPCG(seed, seed))
}

// SliceLoader iterates over in-memory samples.
type SliceLoader struct {
	samples    []Sample
	numClasses int
	shuffle    bool
	dropLast   bool
	offset     int
	rng        *rand.Rand
}

// NewSliceLoader creates a loader over samples with labels in [0, numClasses).
// The slice is owned by the loader and reordered when shuffling.
func NewSliceLoader(samples []Sample, numClasses int, opts ...Option) *SliceLoader {
	l := &SliceLoader{
		samples:    samples,
		numClasses: numClasses,
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load validates the samples.
func (l *SliceLoader) Load() error {
	if len(l.samples) == 0 {
		return ErrEmptyDataset
	}
	width := len(l.samples[0].Input)
	if width == 0 {
		return fmt.Errorf("%w: samples have no values", ErrInconsistentSample)
	}
	for i, s := range l.samples {
		if len(s.Input) != width {
			return fmt.Errorf("%w: sample %d has %d values, want %d", ErrInconsistentSample, i, len(s.Input), width)
		}
		if s.Label < 0 || s.Label >= l.numClasses {
			return fmt.Errorf("%w: sample %d has label %d, classes %d", ErrLabelRange, i, s.Label, l.numClasses)
		}
	}
	l.offset = 0
	return nil
}

// Len returns the number of samples.
func (l *SliceLoader) Len() int { return len(l.samples) }

func (l *SliceLoader) NumClasses() int { return l.numClasses }

// StepsPerEpoch returns the number of batches of batchSize in one epoch,
// counting the trailing partial batch unless it is dropped.
func (l *SliceLoader) StepsPerEpoch(batchSize int) int {
	if batchSize <= 0 {
		return 0
	}
	if l.dropLast {
		return len(l.samples) / batchSize
	}
	return (len(l.samples) + batchSize - 1) / batchSize
}

// Batch returns the next batch of up to size samples. When the epoch cannot
// supply a batch it starts a new epoch and returns an empty batch.
func (l *SliceLoader) Batch(size int) BatchData {
	remaining := len(l.samples) - l.offset
	if size <= 0 || remaining <= 0 || (l.dropLast && remaining < size) {
		l.NewEpoch()
		return BatchData{}
	}
	if size > remaining {
		size = remaining
	}

	b := BatchData{
		Inputs:  make([]*tensor.Tensor, size),
		Targets: make([]*tensor.Tensor, size),
		Labels:  make([]int, size),
	}
	for i, s := range l.samples[l.offset : l.offset+size] {
		b.Inputs[i] = tensor.Vector(s.Input...)
		b.Targets[i] = OneHot(s.Label, l.numClasses)
		b.Labels[i] = s.Label
	}
	l.offset += size
	return b
}

// NewEpoch rewinds the loader, shuffling first when enabled.
func (l *SliceLoader) NewEpoch() {
	l.offset = 0
	if l.shuffle {
		l.Shuffle()
	}
}

// Shuffle reorders the samples in place.
func (l *SliceLoader) Shuffle() {
	l.rng.Shuffle(len(l.samples), func(i, j int) {
		l.samples[i], l.samples[j] = l.samples[j], l.samples[i]
	})
}

// Split keeps the leading ratio of the samples and returns a loader with the
// same options over the rest.
func (l *SliceLoader) Split(ratio float64) *SliceLoader {
	cut := int(float64(len(l.samples)) * ratio)
	cut = max(0, min(cut, len(l.samples)))

	tail := make([]Sample, len(l.samples)-cut)
	copy(tail, l.samples[cut:])
	l.samples = l.samples[:cut:cut]
	l.offset = 0

	return &SliceLoader{
		samples:    tail,
		numClasses: l.numClasses,
		shuffle:    l.shuffle,
		dropLast:   l.dropLast,
		rng:        rand.New(rand.NewPCG(l.rng.Uint64(), l.rng.Uint64())),
	}
}
