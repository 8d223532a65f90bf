// Package data provides the datasets a model trains and evaluates on.
package data

import (
	"errors"

	"github.com/FlavioCFOliveira/plainnn/internal/tensor"
)

var (
	// ErrEmptyDataset is returned by Load when there is nothing to iterate.
	ErrEmptyDataset = errors.New("data: empty dataset")

	// ErrLabelRange is returned for a label outside [0, NumClasses).
	ErrLabelRange = errors.New("data: label out of range")

	// ErrInconsistentSample is returned when samples have different widths.
	ErrInconsistentSample = errors.New("data: inconsistent sample width")
)

// Loader is a pass-through dataset. Batch returns an empty BatchData once
// the epoch is exhausted.
type Loader interface {
	Load() error
	Batch(size int) BatchData
	NewEpoch()
	NumClasses() int
	StepsPerEpoch(batchSize int) int
	Shuffle()
}

// BatchData holds one mini-batch. Inputs[i], Targets[i] and Labels[i]
// describe the same sample; Targets are one-hot.
type BatchData struct {
	Inputs  []*tensor.Tensor
	Targets []*tensor.Tensor
	Labels  []int
}

// Len returns the number of samples in the batch.
func (b BatchData) Len() int { return len(b.Inputs) }

// Empty reports whether the batch holds no samples.
func (b BatchData) Empty() bool { return len(b.Inputs) == 0 }

// OneHot returns a vector of n zeros with a one at idx.
func OneHot(idx, n int) *tensor.Tensor {
	t := tensor.Zeros(n)
	t.Set(idx, 1)
	return t
}

// Sample is one labelled input vector.
type Sample struct {
	Input []float64
	Label int
}
