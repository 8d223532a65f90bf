// Package tensor provides the contiguous float64 buffer used by every layer.
package tensor

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInvalidShape is returned when a shape is empty or has a non-positive dimension.
var ErrInvalidShape = errors.New("tensor: invalid shape")

// Tensor is a dense row-major buffer plus its shape.
// len(data) == product(shape) holds for the whole lifetime of the value.
type Tensor struct {
	shape []int
	data  []float64
}

// Option configures how a freshly allocated buffer is filled.
type Option func(*fill)

type fill struct {
	glorot bool
	src    rand.Source
	value  float64
}

// WithFill fills the buffer with a constant instead of zero.
func WithFill(v float64) Option {
	return func(f *fill) {
		f.value = v
	}
}

// WithGlorot fills the buffer from U[-limit, limit] with limit = sqrt(6/sum(shape)).
// A nil source draws from the global math/rand/v2 generator.
func WithGlorot(src rand.Source) Option {
	return func(f *fill) {
		f.glorot = true
		f.src = src
	}
}

// New allocates a tensor of the given shape. The buffer is zero-filled
// unless an option says otherwise.
func New(shape []int, opts ...Option) (*Tensor, error) {
	t := &Tensor{}
	if err := t.Reshape(shape, opts...); err != nil {
		return nil, err
	}
	return t, nil
}

// Zeros is New without options for callers that already validated the shape.
func Zeros(shape ...int) *Tensor {
	t, err := New(shape)
	if err != nil {
		panic(err)
	}
	return t
}

// FromSlice wraps a copy of data with the given shape.
func FromSlice(shape []int, data []float64) (*Tensor, error) {
	n, err := volume(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrInvalidShape, len(data), shape)
	}
	t := &Tensor{
		shape: append([]int(nil), shape...),
		data:  make([]float64, n),
	}
	copy(t.data, data)
	return t, nil
}

// Vector wraps a copy of values as a rank-1 tensor.
func Vector(values ...float64) *Tensor {
	t, err := FromSlice([]int{len(values)}, values)
	if err != nil {
		panic(err)
	}
	return t
}

// Reshape discards the current contents and reallocates for the new shape.
// On error the tensor is left untouched.
func (t *Tensor) Reshape(shape []int, opts ...Option) error {
	n, err := volume(shape)
	if err != nil {
		return err
	}

	var f fill
	for _, opt := range opts {
		opt(&f)
	}

	data := make([]float64, n)
	switch {
	case f.glorot:
		sum := 0
		for _, d := range shape {
			sum += d
		}
		limit := math.Sqrt(6.0 / float64(sum))
		dist := distuv.Uniform{Min: -limit, Max: limit, Src: f.src}
		for i := range data {
			data[i] = dist.Rand()
		}
	case f.value != 0:
		for i := range data {
			data[i] = f.value
		}
	}

	t.shape = append(t.shape[:0], shape...)
	t.data = data
	return nil
}

// Clear zero-fills the buffer in place.
func (t *Tensor) Clear() {
	clear(t.data)
}

// At returns the element at linear index i.
func (t *Tensor) At(i int) float64 {
	return t.data[i]
}

// Set stores v at linear index i.
func (t *Tensor) Set(i int, v float64) {
	t.data[i] = v
}

// Data exposes the backing slice. Writes go straight into the tensor.
func (t *Tensor) Data() []float64 {
	return t.data
}

// Size returns the number of elements.
func (t *Tensor) Size() int {
	return len(t.data)
}

// Shape returns a copy of the shape.
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Dim returns the size of dimension i. Negative i counts from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		shape: append([]int(nil), t.shape...),
		data:  append([]float64(nil), t.data...),
	}
}

// CopyFrom copies src into t, reallocating t only when the sizes differ.
func (t *Tensor) CopyFrom(src *Tensor) {
	if len(t.data) != len(src.data) {
		t.data = make([]float64, len(src.data))
	}
	t.shape = append(t.shape[:0], src.shape...)
	copy(t.data, src.data)
}

// ShapeString renders the shape as "(d0, d1, ...)".
func (t *Tensor) ShapeString() string {
	parts := make([]string, len(t.shape))
	for i, d := range t.shape {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%s%v", t.ShapeString(), t.data)
}

func volume(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: empty shape", ErrInvalidShape)
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: dimension %d in %v", ErrInvalidShape, d, shape)
		}
		n *= d
	}
	return n, nil
}
