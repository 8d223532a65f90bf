// Package serve exposes a trained model over the live binary protocol and
// over HTTP.
package serve

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/FlavioCFOliveira/plainnn/internal/tensor"
)

// MaxVectorLen bounds the element count a peer may announce.
const MaxVectorLen = 1 << 24

// ErrVectorTooLarge is returned for a length prefix above MaxVectorLen.
var ErrVectorTooLarge = errors.New("serve: vector too large")

// Predictor maps one input vector to one output vector.
type Predictor interface {
	Predict(input *tensor.Tensor) (*tensor.Tensor, error)
}

// ReadVector reads a uint64 little-endian element count followed by that many
// little-endian float64 values. It returns io.EOF only when the stream ends
// cleanly before a new vector.
func ReadVector(r io.Reader) ([]float64, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > MaxVectorLen {
		return nil, fmt.Errorf("%w: %d values", ErrVectorTooLarge, n)
	}

	v := make([]float64, n)
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read %d values: %w", n, err)
	}
	return v, nil
}

// WriteVector writes v in the format ReadVector reads.
func WriteVector(w io.Writer, v []float64) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(v))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, v)
}

// Loop answers every vector read from r with the prediction written to w,
// flushing after each response, until r reaches EOF.
func Loop(r io.Reader, w io.Writer, p Predictor) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	for {
		in, err := ReadVector(br)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(in) == 0 {
			return fmt.Errorf("%w: empty input vector", tensor.ErrInvalidShape)
		}

		out, err := p.Predict(tensor.Vector(in...))
		if err != nil {
			return err
		}
		if err := WriteVector(bw, out.Data()); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
}
