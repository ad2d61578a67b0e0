package imageio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "imageio")

var (
	// ErrUnsupportedFormat indicates a file this package cannot decode
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrNotSegmentation indicates a DICOM file without a segment sequence
	ErrNotSegmentation = errors.New("not a segmentation object")
)

// Volume is a labeled N-dimensional image, first axis fastest
type Volume struct {
	Dims   []int
	Labels []int32
}

// NumVoxels returns the product of all dimensions
func (v *Volume) NumVoxels() int {
	n := 1
	for _, d := range v.Dims {
		n *= d
	}
	return n
}

// SameShape reports whether both volumes have identical dimensions
func (v *Volume) SameShape(o *Volume) bool {
	if len(v.Dims) != len(o.Dims) {
		return false
	}
	for i := range v.Dims {
		if v.Dims[i] != o.Dims[i] {
			return false
		}
	}
	return true
}

// VolumeLoader loads a labeled volume from disk
type VolumeLoader interface {
	LoadVolume(path string) (*Volume, error)
}

// Loader dispatches on file suffix to the NIfTI or NRRD reader
type Loader struct{}

// Ensure Loader implements VolumeLoader and SegmentationLoader
var (
	_ VolumeLoader       = Loader{}
	_ SegmentationLoader = Loader{}
)

func (Loader) LoadVolume(path string) (*Volume, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".nii"), strings.HasSuffix(lower, ".nii.gz"):
		return LoadNifti(path)
	case strings.HasSuffix(lower, ".nrrd"):
		return LoadNrrd(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

func (Loader) LoadSegmentation(path string) (*Segmentation, error) {
	return LoadDicomSeg(path)
}

// openMaybeGzip returns a reader over the file, transparently inflating gzip content
func openMaybeGzip(path string) (io.ReadCloser, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	magic, err := br.Peek(2)
	if err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return &gzipFile{Reader: zr, file: f}, nil
	}
	return &plainFile{Reader: br, file: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	_ = g.Reader.Close()
	return g.file.Close()
}

type plainFile struct {
	*bufio.Reader
	file *os.File
}

func (p *plainFile) Close() error {
	return p.file.Close()
}

// sampleType describes how one voxel is stored on disk
type sampleType struct {
	size    int
	decoder func(b []byte, order binary.ByteOrder) float64
}

var (
	sampleUint8   = sampleType{size: 1, decoder: func(b []byte, _ binary.ByteOrder) float64 { return float64(b[0]) }}
	sampleInt8    = sampleType{size: 1, decoder: func(b []byte, _ binary.ByteOrder) float64 { return float64(int8(b[0])) }}
	sampleUint16  = sampleType{size: 2, decoder: func(b []byte, o binary.ByteOrder) float64 { return float64(o.Uint16(b)) }}
	sampleInt16   = sampleType{size: 2, decoder: func(b []byte, o binary.ByteOrder) float64 { return float64(int16(o.Uint16(b))) }}
	sampleUint32  = sampleType{size: 4, decoder: func(b []byte, o binary.ByteOrder) float64 { return float64(o.Uint32(b)) }}
	sampleInt32   = sampleType{size: 4, decoder: func(b []byte, o binary.ByteOrder) float64 { return float64(int32(o.Uint32(b))) }}
	sampleUint64  = sampleType{size: 8, decoder: func(b []byte, o binary.ByteOrder) float64 { return float64(o.Uint64(b)) }}
	sampleInt64   = sampleType{size: 8, decoder: func(b []byte, o binary.ByteOrder) float64 { return float64(int64(o.Uint64(b))) }}
	sampleFloat32 = sampleType{size: 4, decoder: func(b []byte, o binary.ByteOrder) float64 {
		return float64(math.Float32frombits(o.Uint32(b)))
	}}
	sampleFloat64 = sampleType{size: 8, decoder: func(b []byte, o binary.ByteOrder) float64 {
		return math.Float64frombits(o.Uint64(b))
	}}
)

// decodeLabels reads n samples and converts them to integer labels
func decodeLabels(r io.Reader, st sampleType, order binary.ByteOrder, n int, slope, inter float64) ([]int32, error) {
	raw := make([]byte, n*st.size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("failed to read %d voxels: %w", n, err)
	}
	scaled := slope != 0 && (slope != 1 || inter != 0)
	labels := make([]int32, n)
	for i := 0; i < n; i++ {
		v := st.decoder(raw[i*st.size:(i+1)*st.size], order)
		if scaled {
			v = v*slope + inter
		}
		labels[i] = int32(math.Round(v))
	}
	return labels, nil
}

func volumeFromSamples(dims []int, labels []int32) (*Volume, error) {
	v := &Volume{Dims: dims, Labels: labels}
	if v.NumVoxels() != len(labels) {
		return nil, fmt.Errorf("voxel count %d does not match dimensions %v", len(labels), dims)
	}
	return v, nil
}
