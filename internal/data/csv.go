package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
)

// ErrEmptyCSV is returned when a CSV file has no data rows.
var ErrEmptyCSV = errors.New("data: csv file has no data rows")

// CSVOptions describes how LoadCSV maps columns to samples.
type CSVOptions struct {
	// LabelCol is the column holding the integer class label.
	LabelCol int
	// HasHeader skips the first row.
	HasHeader bool
	// NumClasses is inferred as max(label)+1 when zero.
	NumClasses int
	// Normalize rescales every feature column to [0, 1].
	Normalize bool
}

// LoadCSV reads a numeric CSV file into a SliceLoader. Every column except
// LabelCol is a feature.
func LoadCSV(filename string, o CSVOptions, opts ...Option) (*SliceLoader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	start := 0
	if o.HasHeader {
		start = 1
	}
	if len(records) <= start {
		return nil, ErrEmptyCSV
	}

	numCols := len(records[start])
	if o.LabelCol < 0 || o.LabelCol >= numCols {
		return nil, fmt.Errorf("label column %d out of range for %d columns", o.LabelCol, numCols)
	}

	samples := make([]Sample, 0, len(records)-start)
	maxLabel := 0
	for i := start; i < len(records); i++ {
		record := records[i]
		if len(record) != numCols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrInconsistentSample, i, len(record), numCols)
		}

		s := Sample{Input: make([]float64, 0, numCols-1)}
		for j, field := range record {
			val, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse value at row %d, col %d: %w", i, j, err)
			}
			if j != o.LabelCol {
				s.Input = append(s.Input, val)
				continue
			}
			if val != math.Trunc(val) || val < 0 {
				return nil, fmt.Errorf("%w: row %d label %v", ErrLabelRange, i, val)
			}
			s.Label = int(val)
			maxLabel = max(maxLabel, s.Label)
		}
		samples = append(samples, s)
	}

	if o.Normalize {
		normalize(samples)
	}

	numClasses := o.NumClasses
	if numClasses == 0 {
		numClasses = maxLabel + 1
	}

	l := NewSliceLoader(samples, numClasses, opts...)
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l, nil
}

// normalize performs per-column min-max scaling. Constant columns become 0.
func normalize(samples []Sample) {
	width := len(samples[0].Input)
	lo := append([]float64(nil), samples[0].Input...)
	hi := append([]float64(nil), samples[0].Input...)

	for _, s := range samples {
		for i, v := range s.Input {
			lo[i] = math.Min(lo[i], v)
			hi[i] = math.Max(hi[i], v)
		}
	}

	for _, s := range samples {
		for i := 0; i < width; i++ {
			if diff := hi[i] - lo[i]; diff != 0 {
				s.Input[i] = (s.Input[i] - lo[i]) / diff
			} else {
				s.Input[i] = 0
			}
		}
	}
}
