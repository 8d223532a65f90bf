package net

import (
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/FlavioCFOliveira/plainnn/internal/layer"
)

// NewSequential creates a model from layers in order, the first being the
// Input layer.
func NewSequential(layers []layer.Layer, opts ...Option) (*Model, error) {
	m := New(opts...)
	for _, l := range layers {
		if err := m.AddLayer(l); err != nil {
			return nil, err
		}
	}
	return m, nil
}

const summaryRule = "_________________________________________________________________"

// Summary prints a summary of the network architecture.
func (m *Model) Summary(w io.Writer) {
	p := message.NewPrinter(language.English)

	p.Fprintln(w, "Model: Sequential")
	p.Fprintln(w, summaryRule)
	p.Fprintf(w, "%-25s %-20s %-10s\n", "Layer (type)", "Output Shape", "Param #")
	p.Fprintln(w, "=================================================================")

	var total, trainable int
	for i, l := range m.layers {
		s := l.Summary()
		total += s.ParamCount
		if !l.Frozen() {
			trainable += s.ParamCount
		}
		name := fmt.Sprintf("%s_%d", s.LayerName, i)
		if l.Frozen() {
			name += " (frozen)"
		}
		p.Fprintf(w, "%-25s %-20s %-10d\n", name, l.Output().ShapeString(), s.ParamCount)
	}

	p.Fprintln(w, "=================================================================")
	p.Fprintf(w, "Total params: %d (%s)\n", total, byteSize(total*8))
	p.Fprintf(w, "Trainable params: %d (%s)\n", trainable, byteSize(trainable*8))
	p.Fprintf(w, "Non-trainable params: %d (%s)\n", total-trainable, byteSize((total-trainable)*8))
	p.Fprintln(w, summaryRule)
}

func byteSize(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	v := float64(n)
	suffixes := []string{"KB", "MB", "GB", "TB"}
	i := -1
	for v >= unit && i < len(suffixes)-1 {
		v /= unit
		i++
	}
	return fmt.Sprintf("%.2f %s", v, suffixes[i])
}
