package imageio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	NIFTI1_HEADER_SIZE = 348
	NIFTI2_HEADER_SIZE = 540
)

// NIfTI datatype codes
var niftiDatatypes = map[int16]sampleType{
	2:    sampleUint8,
	4:    sampleInt16,
	8:    sampleInt32,
	16:   sampleFloat32,
	64:   sampleFloat64,
	256:  sampleInt8,
	512:  sampleUint16,
	768:  sampleUint32,
	1024: sampleInt64,
	1280: sampleUint64,
}

type niftiHeader struct {
	order     binary.ByteOrder
	dims      []int
	datatype  int16
	voxOffset int64
	slope     float64
	inter     float64
}

// LoadNifti reads a NIfTI-1 or NIfTI-2 single file image (.nii or .nii.gz)
func LoadNifti(path string) (*Volume, error) {
	rc, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rc.Close()
	}()

	hdr, consumed, err := readNiftiHeader(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	st, ok := niftiDatatypes[hdr.datatype]
	if !ok {
		return nil, fmt.Errorf("%w: %s: NIfTI datatype %d", ErrUnsupportedFormat, path, hdr.datatype)
	}

	// skip extensions up to the voxel offset
	if skip := hdr.voxOffset - consumed; skip > 0 {
		if _, err := io.CopyN(io.Discard, rc, skip); err != nil {
			return nil, fmt.Errorf("%s: failed to seek to voxel data: %w", path, err)
		}
	}

	n := 1
	for _, d := range hdr.dims {
		n *= d
	}
	labels, err := decodeLabels(rc, st, hdr.order, n, hdr.slope, hdr.inter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.WithField("path", path).WithField("dims", hdr.dims).Debug("Loaded NIfTI volume")
	return volumeFromSamples(hdr.dims, labels)
}

func readNiftiHeader(r io.Reader) (*niftiHeader, int64, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, 0, fmt.Errorf("failed to read NIfTI header: %w", err)
	}

	var order binary.ByteOrder
	var size int32
	for _, o := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		s := int32(o.Uint32(sizeBuf[:]))
		if s == NIFTI1_HEADER_SIZE || s == NIFTI2_HEADER_SIZE {
			order, size = o, s
			break
		}
	}
	if order == nil {
		return nil, 0, fmt.Errorf("%w: bad NIfTI sizeof_hdr", ErrUnsupportedFormat)
	}

	buf := make([]byte, size)
	copy(buf, sizeBuf[:])
	if _, err := io.ReadFull(r, buf[4:]); err != nil {
		return nil, 0, fmt.Errorf("failed to read NIfTI header: %w", err)
	}

	hdr := &niftiHeader{order: order}
	var ndim int
	if size == NIFTI1_HEADER_SIZE {
		ndim = int(int16(order.Uint16(buf[40:])))
		if ndim < 1 || ndim > 7 {
			return nil, 0, fmt.Errorf("%w: NIfTI dim[0]=%d", ErrUnsupportedFormat, ndim)
		}
		for i := 1; i <= ndim; i++ {
			hdr.dims = append(hdr.dims, int(int16(order.Uint16(buf[40+2*i:]))))
		}
		hdr.datatype = int16(order.Uint16(buf[70:]))
		hdr.voxOffset = int64(math.Float32frombits(order.Uint32(buf[108:])))
		hdr.slope = float64(math.Float32frombits(order.Uint32(buf[112:])))
		hdr.inter = float64(math.Float32frombits(order.Uint32(buf[116:])))
	} else {
		hdr.datatype = int16(order.Uint16(buf[12:]))
		ndim = int(int64(order.Uint64(buf[16:])))
		if ndim < 1 || ndim > 7 {
			return nil, 0, fmt.Errorf("%w: NIfTI dim[0]=%d", ErrUnsupportedFormat, ndim)
		}
		for i := 1; i <= ndim; i++ {
			hdr.dims = append(hdr.dims, int(int64(order.Uint64(buf[16+8*i:]))))
		}
		hdr.voxOffset = int64(order.Uint64(buf[168:]))
		hdr.slope = math.Float64frombits(order.Uint64(buf[176:]))
		hdr.inter = math.Float64frombits(order.Uint64(buf[184:]))
	}

	for _, d := range hdr.dims {
		if d < 0 {
			return nil, 0, fmt.Errorf("%w: negative NIfTI dimension %v", ErrUnsupportedFormat, hdr.dims)
		}
	}
	return hdr, int64(size), nil
}
