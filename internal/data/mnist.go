package data

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// IDX magic numbers for unsigned byte tensors of rank 1 and 3.
const (
	idxLabelsMagic = 0x00000801
	idxImagesMagic = 0x00000803

	// MNISTClasses is the number of digit classes.
	MNISTClasses = 10

	// maxIDXImagePixels bounds rows*cols of a single image.
	maxIDXImagePixels = 1 << 24

	// idxPrealloc caps the capacity reserved from an untrusted item count.
	idxPrealloc = 1 << 16
)

// ErrInvalidIDX is returned for files that are not IDX label or image files.
var ErrInvalidIDX = errors.New("data: invalid IDX file")

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// MNISTLoader reads the IDX image and label files of the MNIST digits and
// serves them as a SliceLoader. Pixels are scaled to [0, 1].
type MNISTLoader struct {
	*SliceLoader
	imagesPath string
	labelsPath string
}

// NewMNISTLoader creates a loader for an images/labels IDX pair. Files may be
// raw, gzip or zstd compressed.
func NewMNISTLoader(imagesPath, labelsPath string, opts ...Option) *MNISTLoader {
	return &MNISTLoader{
		SliceLoader: NewSliceLoader(nil, MNISTClasses, opts...),
		imagesPath:  imagesPath,
		labelsPath:  labelsPath,
	}
}

// Load reads both files. Shuffling, when enabled, happens on NewEpoch.
func (m *MNISTLoader) Load() error {
	images, err := readFile(m.imagesPath, ReadIDXImages)
	if err != nil {
		return fmt.Errorf("mnist images %s: %w", m.imagesPath, err)
	}
	labels, err := readFile(m.labelsPath, ReadIDXLabels)
	if err != nil {
		return fmt.Errorf("mnist labels %s: %w", m.labelsPath, err)
	}
	if len(images) != len(labels) {
		return fmt.Errorf("%w: %d images but %d labels", ErrInvalidIDX, len(images), len(labels))
	}

	samples := make([]Sample, len(images))
	for i := range images {
		samples[i] = Sample{Input: images[i], Label: labels[i]}
	}
	m.samples = samples
	return m.SliceLoader.Load()
}

func readFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()

	r, err := decompress(bufio.NewReader(f))
	if err != nil {
		return zero, err
	}
	defer r.Close()
	return read(r)
}

// decompress sniffs the stream and wraps it in a gzip or zstd reader.
func decompress(br *bufio.Reader) (io.ReadCloser, error) {
	head, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		return zr, nil
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return io.NopCloser(br), nil
	}
}

// ReadIDXLabels parses an IDX1 label file.
func ReadIDXLabels(r io.Reader) ([]int, error) {
	var header [2]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrInvalidIDX, err)
	}
	if header[0] != idxLabelsMagic {
		return nil, fmt.Errorf("%w: magic %#08x, want %#08x", ErrInvalidIDX, header[0], idxLabelsMagic)
	}

	count := int64(header[1])
	raw, err := io.ReadAll(io.LimitReader(r, count))
	if err != nil {
		return nil, fmt.Errorf("%w: labels: %w", ErrInvalidIDX, err)
	}
	if int64(len(raw)) != count {
		return nil, fmt.Errorf("%w: header announces %d labels, file holds %d", ErrInvalidIDX, count, len(raw))
	}
	labels := make([]int, len(raw))
	for i, b := range raw {
		labels[i] = int(b)
	}
	return labels, nil
}

// ReadIDXImages parses an IDX3 image file into one flattened row-major vector
// per image, each pixel divided by 255.
func ReadIDXImages(r io.Reader) ([][]float64, error) {
	var header [4]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrInvalidIDX, err)
	}
	if header[0] != idxImagesMagic {
		return nil, fmt.Errorf("%w: magic %#08x, want %#08x", ErrInvalidIDX, header[0], idxImagesMagic)
	}
	count, rows, cols := int(header[1]), uint64(header[2]), uint64(header[3])
	if rows == 0 || cols == 0 || rows*cols > maxIDXImagePixels {
		return nil, fmt.Errorf("%w: image size %dx%d", ErrInvalidIDX, rows, cols)
	}

	// The count comes from the header, so storage grows with the data
	// actually read.
	pixels := make([]byte, rows*cols)
	images := make([][]float64, 0, min(count, idxPrealloc))
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, pixels); err != nil {
			return nil, fmt.Errorf("%w: image %d of %d: %w", ErrInvalidIDX, i, count, err)
		}
		img := make([]float64, len(pixels))
		for j, p := range pixels {
			img[j] = float64(p) / 255
		}
		images = append(images, img)
	}
	return images, nil
}
