package imageio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeNifti1 writes a minimal single-file NIfTI-1 image with int16 voxels
func writeNifti1(t *testing.T, path string, order binary.ByteOrder, dims []int16, voxels []int16, slope float32, compress bool) {
	t.Helper()
	hdr := make([]byte, NIFTI1_HEADER_SIZE)
	order.PutUint32(hdr[0:], NIFTI1_HEADER_SIZE)
	order.PutUint16(hdr[40:], uint16(len(dims)))
	for i, d := range dims {
		order.PutUint16(hdr[42+2*i:], uint16(d))
	}
	order.PutUint16(hdr[70:], 4)  // int16
	order.PutUint16(hdr[72:], 16) // bitpix
	order.PutUint32(hdr[108:], math.Float32bits(352))
	order.PutUint32(hdr[112:], math.Float32bits(slope))
	copy(hdr[344:], "n+1\x00")

	var body bytes.Buffer
	body.Write(hdr)
	body.Write([]byte{0, 0, 0, 0}) // extension flag
	for _, v := range voxels {
		require.NoError(t, binary.Write(&body, order, v))
	}

	data := body.Bytes()
	if compress {
		var zbuf bytes.Buffer
		zw := gzip.NewWriter(&zbuf)
		_, err := zw.Write(data)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		data = zbuf.Bytes()
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLoadNifti(t *testing.T) {
	dir := t.TempDir()
	voxels := []int16{0, 1, 1, 0, 2, 2, 0, 0}

	tests := []struct {
		name     string
		file     string
		order    binary.ByteOrder
		slope    float32
		compress bool
	}{
		{name: "little endian", file: "le.nii", order: binary.LittleEndian},
		{name: "big endian", file: "be.nii", order: binary.BigEndian},
		{name: "gzipped", file: "seg.nii.gz", order: binary.LittleEndian, compress: true},
		{name: "unit slope", file: "slope.nii", order: binary.LittleEndian, slope: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			writeNifti1(t, path, tt.order, []int16{2, 2, 2}, voxels, tt.slope, tt.compress)

			vol, err := Loader{}.LoadVolume(path)
			require.NoError(t, err)
			assert.Equal(t, []int{2, 2, 2}, vol.Dims)
			assert.Equal(t, []int32{0, 1, 1, 0, 2, 2, 0, 0}, vol.Labels)
		})
	}
}

func TestLoadNifti_Errors(t *testing.T) {
	dir := t.TempDir()

	garbage := filepath.Join(dir, "garbage.nii")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not a nifti header"), 0o644))
	_, err := LoadNifti(garbage)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	truncated := filepath.Join(dir, "truncated.nii")
	writeNifti1(t, truncated, binary.LittleEndian, []int16{4, 4, 4}, []int16{1, 2, 3}, 0, false)
	_, err = LoadNifti(truncated)
	assert.Error(t, err)

	_, err = LoadNifti(filepath.Join(dir, "missing.nii"))
	assert.Error(t, err)
}

func TestLoadNrrd(t *testing.T) {
	dir := t.TempDir()

	raw := new(bytes.Buffer)
	raw.WriteString("NRRD0004\n# generated\ntype: unsigned char\ndimension: 3\nsizes: 2 2 1\nencoding: raw\nspace: left-posterior-superior\n\n")
	raw.Write([]byte{0, 3, 3, 0})

	var zdata bytes.Buffer
	zw := gzip.NewWriter(&zdata)
	require.NoError(t, binary.Write(zw, binary.BigEndian, []uint16{0, 3, 3, 0}))
	require.NoError(t, zw.Close())
	gz := new(bytes.Buffer)
	gz.WriteString("NRRD0005\ntype: ushort\ndimension: 3\nsizes: 2 2 1\nendian: big\nencoding: gzip\n\n")
	gz.Write(zdata.Bytes())

	ascii := "NRRD0004\ntype: float\ndimension: 3\nsizes: 2 2 1\nencoding: ascii\n\n0 3.0\n2.9 0\n"

	files := map[string][]byte{
		"raw.nrrd":   raw.Bytes(),
		"gzip.nrrd":  gz.Bytes(),
		"ascii.nrrd": []byte(ascii),
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, content, 0o644))

			vol, err := Loader{}.LoadVolume(path)
			require.NoError(t, err)
			assert.Equal(t, []int{2, 2, 1}, vol.Dims)
			assert.Equal(t, []int32{0, 3, 3, 0}, vol.Labels)
		})
	}
}

func TestLoadNrrd_Errors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"detached.nrrd": "NRRD0004\ntype: uchar\ndimension: 1\nsizes: 4\nencoding: raw\ndata file: seg.raw\n\n",
		"badtype.nrrd":  "NRRD0004\ntype: block\ndimension: 1\nsizes: 4\nencoding: raw\n\n1234",
		"nomagic.nrrd":  "PNG\n",
		"bzip.nrrd":     "NRRD0004\ntype: uchar\ndimension: 1\nsizes: 4\nencoding: bzip2\n\n1234",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := LoadNrrd(path)
			assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)
		})
	}

	mismatch := filepath.Join(dir, "mismatch.nrrd")
	require.NoError(t, os.WriteFile(mismatch, []byte("NRRD0004\ntype: uchar\ndimension: 2\nsizes: 4\nencoding: raw\n\n1234"), 0o644))
	_, err := LoadNrrd(mismatch)
	assert.Error(t, err)
}

func TestLoader_UnknownSuffix(t *testing.T) {
	_, err := Loader{}.LoadVolume("segmentation.mha")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestLoadDicomSeg_NotDicom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.dcm")
	require.NoError(t, os.WriteFile(path, []byte("not a dicom file"), 0o644))
	_, err := Loader{}.LoadSegmentation(path)
	assert.Error(t, err)
}

func TestVolume_SameShape(t *testing.T) {
	a := &Volume{Dims: []int{2, 2, 2}}
	assert.True(t, a.SameShape(&Volume{Dims: []int{2, 2, 2}}))
	assert.False(t, a.SameShape(&Volume{Dims: []int{2, 2}}))
	assert.False(t, a.SameShape(&Volume{Dims: []int{2, 2, 3}}))
	assert.Equal(t, 8, a.NumVoxels())
}
