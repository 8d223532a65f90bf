// Package storage reads and writes the two files a saved model consists of:
// the architecture (<base>.json) and the raw parameters (<base>.weights).
package storage

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/FlavioCFOliveira/plainnn/internal/layer"
)

// File extensions appended to a model base path.
const (
	ArchExt    = ".json"
	WeightsExt = ".weights"
)

var (
	// ErrArchitectureParse is returned when an architecture file is not a
	// valid index-keyed layer object.
	ErrArchitectureParse = errors.New("storage: invalid architecture file")

	// ErrWeightsSize is returned when a weights file holds fewer or more
	// values than the architecture calls for.
	ErrWeightsSize = errors.New("storage: weights size mismatch")
)

// ArchPath returns the architecture file for a model base path.
func ArchPath(base string) string { return base + ArchExt }

// WeightsPath returns the weights file for a model base path.
func WeightsPath(base string) string { return base + WeightsExt }

// CheckpointBase returns the base path of the checkpoint written after the
// given 1-based epoch.
func CheckpointBase(path string, epoch int) string {
	return path + "_epoch_" + strconv.Itoa(epoch)
}

// SaveArchitecture writes summaries to <base>.json.
func SaveArchitecture(base string, summaries []layer.Summary) error {
	return writeFile(ArchPath(base), func(w io.Writer) error {
		return WriteArchitecture(w, summaries)
	})
}

// LoadArchitecture reads the summaries from <base>.json in layer order.
func LoadArchitecture(base string) ([]layer.Summary, error) {
	f, err := os.Open(ArchPath(base))
	if err != nil {
		return nil, fmt.Errorf("open architecture: %w", err)
	}
	defer f.Close()
	return ReadArchitecture(f)
}

// WriteArchitecture encodes summaries as a JSON object keyed by layer index.
// Keys are written in index order.
func WriteArchitecture(w io.Writer, summaries []layer.Summary) error {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, s := range summaries {
		if s.LayerShape == nil {
			s.LayerShape = []int{}
		}
		entry, err := json.MarshalIndent(s, "    ", "    ")
		if err != nil {
			return fmt.Errorf("encode layer %d: %w", i, err)
		}
		fmt.Fprintf(&buf, "    %q: ", strconv.Itoa(i))
		buf.Write(entry)
		if i < len(summaries)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")

	_, err := w.Write(buf.Bytes())
	return err
}

// ReadArchitecture decodes an index-keyed architecture object. Keys must be
// exactly "0" through "n-1".
func ReadArchitecture(r io.Reader) ([]layer.Summary, error) {
	var raw map[string]layer.Summary
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchitectureParse, err)
	}

	indices := make([]int, 0, len(raw))
	byIndex := make(map[int]layer.Summary, len(raw))
	for key, s := range raw {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("%w: key %q is not a layer index", ErrArchitectureParse, key)
		}
		if s.LayerName == "" {
			return nil, fmt.Errorf("%w: layer %d has no layer_name", ErrArchitectureParse, idx)
		}
		indices = append(indices, idx)
		byIndex[idx] = s
	}
	sort.Ints(indices)

	summaries := make([]layer.Summary, len(indices))
	for i, idx := range indices {
		if idx != i {
			return nil, fmt.Errorf("%w: missing layer %d", ErrArchitectureParse, i)
		}
		summaries[i] = byIndex[idx]
	}
	return summaries, nil
}

// SaveWeights writes every parameter buffer to <base>.weights back to back.
func SaveWeights(base string, params [][]float64) error {
	return writeFile(WeightsPath(base), func(w io.Writer) error {
		return WriteWeights(w, params)
	})
}

// LoadWeights reads len(counts) buffers from <base>.weights, the i-th holding
// counts[i] values.
func LoadWeights(base string, counts []int) ([][]float64, error) {
	f, err := os.Open(WeightsPath(base))
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	defer f.Close()
	return ReadWeights(bufio.NewReader(f), counts)
}

// WriteWeights encodes params as little-endian float64 values with no header.
func WriteWeights(w io.Writer, params [][]float64) error {
	for i, p := range params {
		if err := binary.Write(w, binary.LittleEndian, p); err != nil {
			return fmt.Errorf("write weights of layer %d: %w", i, err)
		}
	}
	return nil
}

// ReadWeights is the inverse of WriteWeights. The stream must end exactly
// after the last value.
func ReadWeights(r io.Reader, counts []int) ([][]float64, error) {
	params := make([][]float64, len(counts))
	for i, n := range counts {
		if n < 0 {
			return nil, fmt.Errorf("%w: layer %d has negative count %d", ErrWeightsSize, i, n)
		}
		p := make([]float64, n)
		if err := binary.Read(r, binary.LittleEndian, p); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: layer %d wants %d values: %w", ErrWeightsSize, i, n, io.ErrUnexpectedEOF)
			}
			return nil, fmt.Errorf("read weights of layer %d: %w", i, err)
		}
		params[i] = p
	}

	var extra [1]byte
	if _, err := io.ReadFull(r, extra[:]); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, fmt.Errorf("read weights: %w", err)
		}
		return nil, fmt.Errorf("%w: trailing data after %d layers", ErrWeightsSize, len(counts))
	}
	return params, nil
}

// writeFile writes to a temporary file next to path and renames it into
// place, so path holds either its previous content or the complete new one.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
