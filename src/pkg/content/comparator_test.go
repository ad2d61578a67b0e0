package content

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gh-nvat/pipecheck/src/pkg/imageio"
	"github.com/gh-nvat/pipecheck/src/pkg/imageio/imageiotest"
	"github.com/gh-nvat/pipecheck/src/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	volumes  map[string]*imageio.Volume
	segments map[string]*imageio.Segmentation
	errs     map[string]error
}

func (f *fakeLoader) LoadVolume(path string) (*imageio.Volume, error) {
	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	v, ok := f.volumes[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return v, nil
}

func (f *fakeLoader) LoadSegmentation(path string) (*imageio.Segmentation, error) {
	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	s, ok := f.segments[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return s, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func voxels(plane string, idx ...int) imageio.VoxelSet {
	s := make(imageio.VoxelSet)
	for _, i := range idx {
		s[imageio.VoxelKey{Plane: plane, Index: i}] = struct{}{}
	}
	return s
}

func TestKindOf(t *testing.T) {
	tests := map[string]Kind{
		"report.json":    KIND_STRUCTURED,
		"meta.YAML":      KIND_STRUCTURED,
		"meta.yml":       KIND_STRUCTURED,
		"liver.nii":      KIND_VOLUME,
		"liver.nii.gz":   KIND_VOLUME,
		"spleen.nrrd":    KIND_VOLUME,
		"seg.dcm":        KIND_SEGMENTATION,
		"notes.txt":      KIND_UNSUPPORTED,
		"archive.tar.gz": KIND_UNSUPPORTED,
		"no_extension":   KIND_UNSUPPORTED,
	}
	for name, want := range tests {
		assert.Equal(t, want, KindOf(name), name)
	}
}

func TestCompare_Structured(t *testing.T) {
	dir := t.TempDir()
	ref := writeFile(t, dir, "ref.json", `{"a":1,"b":2}`)
	c := NewComparator(models.ComparisonConfig{})

	tests := []struct {
		name    string
		file    string
		content string
		want    bool
	}{
		{"key order ignored", "reordered.json", `{"b":2,"a":1}`, true},
		{"value differs", "changed.json", `{"a":1,"b":3}`, false},
		{"extra key", "extra.json", `{"a":1,"b":2,"c":null}`, false},
		{"scalar versus list", "list.json", `{"a":1,"b":[2]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := writeFile(t, dir, tt.file, tt.content)
			res := c.Compare(out, ref)
			assert.Equal(t, KIND_STRUCTURED, res.Kind)
			assert.NoError(t, res.Err)
			assert.Equal(t, tt.want, res.Equivalent)
			assert.Equal(t, tt.want, c.Equivalent(ref, out), "symmetric")
		})
	}
}

func TestCompare_StructuredYAMLAndErrors(t *testing.T) {
	dir := t.TempDir()
	c := NewComparator(models.ComparisonConfig{})

	a := writeFile(t, dir, "a.yaml", "a: 1\nb: [x, y]\n")
	b := writeFile(t, dir, "b.yml", "b: [x, y]\na: 1\n")
	assert.True(t, c.Equivalent(a, b))

	broken := writeFile(t, dir, "broken.json", `{"a":`)
	res := c.Compare(broken, broken)
	assert.False(t, res.Equivalent)
	assert.Error(t, res.Err)

	res = c.Compare(filepath.Join(dir, "missing.json"), a)
	assert.False(t, res.Equivalent)
	assert.Error(t, res.Err)
}

func TestCompare_Volume(t *testing.T) {
	base := &imageio.Volume{Dims: []int{2, 2}, Labels: []int32{1, 1, 2, 0}}
	loader := &fakeLoader{
		volumes: map[string]*imageio.Volume{
			"same.nii.gz":  base,
			"ref.nii.gz":   base,
			"off.nrrd":     {Dims: []int{2, 2}, Labels: []int32{1, 1, 0, 0}},
			"relabel.nii":  {Dims: []int{2, 2}, Labels: []int32{1, 1, 3, 0}},
			"empty.nii":    {Dims: []int{2, 2}, Labels: []int32{0, 0, 0, 0}},
			"empty2.nii":   {Dims: []int{2, 2}, Labels: []int32{0, 0, 0, 0}},
			"shape.nii.gz": {Dims: []int{4}, Labels: []int32{1, 1, 2, 0}},
		},
		errs: map[string]error{"bad.nii": imageio.ErrUnsupportedFormat},
	}
	c := NewComparatorWithLoaders(models.ComparisonConfig{}, loader, loader)

	res := c.Compare("same.nii.gz", "ref.nii.gz")
	assert.True(t, res.Equivalent)
	assert.Equal(t, []float64{1}, res.Scores)

	res = c.Compare("off.nrrd", "ref.nii.gz")
	assert.False(t, res.Equivalent)
	assert.InDelta(t, 0.8, res.Scores[0], 1e-9)

	assert.False(t, c.Equivalent("relabel.nii", "ref.nii.gz"))
	assert.True(t, c.Equivalent("empty.nii", "empty2.nii"))

	res = c.Compare("shape.nii.gz", "ref.nii.gz")
	assert.False(t, res.Equivalent)
	assert.Error(t, res.Err)

	res = c.Compare("bad.nii", "ref.nii.gz")
	assert.False(t, res.Equivalent)
	assert.True(t, errors.Is(res.Err, imageio.ErrUnsupportedFormat))
}

func TestCompare_VolumeThreshold(t *testing.T) {
	ref := &imageio.Volume{Dims: []int{10}, Labels: []int32{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}}
	out := &imageio.Volume{Dims: []int{10}, Labels: []int32{1, 1, 1, 1, 1, 1, 1, 1, 1, 0}}
	loader := &fakeLoader{volumes: map[string]*imageio.Volume{"out.nrrd": out, "ref.nrrd": ref}}

	// 2*9/19 ~= 0.947
	strict := NewComparatorWithLoaders(models.ComparisonConfig{}, loader, loader)
	assert.False(t, strict.Equivalent("out.nrrd", "ref.nrrd"))

	looseThreshold := 0.9
	loose := NewComparatorWithLoaders(models.ComparisonConfig{DiceThreshold: &looseThreshold}, loader, loader)
	assert.True(t, loose.Equivalent("out.nrrd", "ref.nrrd"))
}

func TestCompare_ZeroThreshold(t *testing.T) {
	ref := &imageio.Volume{Dims: []int{4}, Labels: []int32{1, 1, 1, 1}}
	out := &imageio.Volume{Dims: []int{4}, Labels: []int32{1, 0, 0, 0}}
	disjoint := &imageio.Volume{Dims: []int{4}, Labels: []int32{0, 0, 0, 0}}
	loader := &fakeLoader{volumes: map[string]*imageio.Volume{
		"out.nrrd": out, "ref.nrrd": ref, "empty.nrrd": disjoint,
	}}

	zero := 0.0
	c := NewComparatorWithLoaders(models.ComparisonConfig{DiceThreshold: &zero}, loader, loader)
	assert.Equal(t, 0.0, c.Threshold)
	// any overlap passes, none does not
	assert.True(t, c.Equivalent("out.nrrd", "ref.nrrd"))
	assert.False(t, c.Equivalent("empty.nrrd", "ref.nrrd"))
}

func TestCompare_VolumeOnDisk(t *testing.T) {
	dir := t.TempDir()
	nrrd := "NRRD0004\ntype: uchar\ndimension: 1\nsizes: 4\nencoding: ascii\n\n0 1 1 2\n"
	a := writeFile(t, dir, "a.nrrd", nrrd)
	b := writeFile(t, dir, "b.nrrd", nrrd)

	c := NewComparator(models.ComparisonConfig{})
	res := c.Compare(a, b)
	require.NoError(t, res.Err)
	assert.True(t, res.Equivalent)
	assert.Equal(t, KIND_VOLUME, res.Kind)
}

func TestCompare_Segmentation(t *testing.T) {
	ref := &imageio.Segmentation{Segments: map[int]imageio.VoxelSet{
		1: voxels("0", 0, 1, 2, 3),
		2: voxels("0", 10, 11),
	}}
	same := &imageio.Segmentation{Segments: map[int]imageio.VoxelSet{
		1: voxels("0", 0, 1, 2, 3),
		2: voxels("0", 10, 11),
	}}
	// segment 1 perfect, segment 2 half overlap
	partial := &imageio.Segmentation{Segments: map[int]imageio.VoxelSet{
		1: voxels("0", 0, 1, 2, 3),
		2: voxels("0", 10, 12),
	}}
	fewer := &imageio.Segmentation{Segments: map[int]imageio.VoxelSet{
		1: voxels("0", 0, 1, 2, 3),
	}}
	renumbered := &imageio.Segmentation{Segments: map[int]imageio.VoxelSet{
		1: voxels("0", 0, 1, 2, 3),
		7: voxels("0", 10, 11),
	}}
	loader := &fakeLoader{
		segments: map[string]*imageio.Segmentation{
			"ref.dcm": ref, "same.dcm": same, "partial.dcm": partial,
			"fewer.dcm": fewer, "renumbered.dcm": renumbered,
		},
		errs: map[string]error{"ct.dcm": imageio.ErrNotSegmentation},
	}
	c := NewComparatorWithLoaders(models.ComparisonConfig{}, loader, loader)

	res := c.Compare("same.dcm", "ref.dcm")
	assert.True(t, res.Equivalent)
	assert.Equal(t, []float64{1, 1}, res.Scores)

	res = c.Compare("partial.dcm", "ref.dcm")
	assert.False(t, res.Equivalent, "one failing segment fails the file")
	assert.Equal(t, []float64{1, 0.5}, res.Scores)

	res = c.Compare("fewer.dcm", "ref.dcm")
	assert.False(t, res.Equivalent)
	assert.NoError(t, res.Err)

	res = c.Compare("renumbered.dcm", "ref.dcm")
	assert.False(t, res.Equivalent)
	assert.Error(t, res.Err)

	res = c.Compare("ct.dcm", "ref.dcm")
	assert.True(t, res.Skipped)
	assert.True(t, res.Equivalent)
	assert.Equal(t, KIND_UNSUPPORTED, res.Kind)
}

func TestCompare_SegmentationOnDisk(t *testing.T) {
	dir := t.TempDir()
	spec := func(z string, seg2 ...int) imageiotest.SegSpec {
		return imageiotest.SegSpec{
			Rows: 4, Cols: 4,
			Segments: []int{1, 2},
			Frames: []imageiotest.SegFrame{
				{Segment: 1, Position: []string{"0", "0", z}, Pixels: []int{0, 1, 4, 5}},
				{Segment: 2, Position: []string{"0", "0", z}, Pixels: seg2},
			},
		}
	}
	ref := filepath.Join(dir, "ref.dcm")
	same := filepath.Join(dir, "same.dcm")
	drifted := filepath.Join(dir, "drifted.dcm")
	imageiotest.WriteSeg(t, ref, spec("-30.0", 10, 11, 14, 15))
	imageiotest.WriteSeg(t, same, spec("-30", 10, 11, 14, 15))
	imageiotest.WriteSeg(t, drifted, spec("-30", 10, 11))

	c := NewComparator(models.ComparisonConfig{})

	res := c.Compare(same, ref)
	require.NoError(t, res.Err)
	assert.Equal(t, KIND_SEGMENTATION, res.Kind)
	assert.Equal(t, []float64{1, 1}, res.Scores)
	assert.True(t, res.Equivalent)

	// segment 2 keeps half its voxels: 2*2/(2+4)
	res = c.Compare(drifted, ref)
	require.NoError(t, res.Err)
	assert.InDeltaSlice(t, []float64{1, 4.0 / 6.0}, res.Scores, 1e-9)
	assert.False(t, res.Equivalent)
}

func TestCompare_DicomWithoutSegmentsIsSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.dcm")
	imageiotest.WriteSeg(t, path, imageiotest.SegSpec{
		Rows: 2, Cols: 4,
		Frames: []imageiotest.SegFrame{{Pixels: []int{1}}},
	})

	res := NewComparator(models.ComparisonConfig{}).Compare(path, path)
	assert.True(t, res.Skipped)
	assert.Equal(t, KIND_UNSUPPORTED, res.Kind)
	assert.True(t, res.Equivalent)
}

func TestCompare_SegmentationMean(t *testing.T) {
	c := &Comparator{Threshold: 0.7, Aggregation: models.SEGMENT_AGGREGATION_MEAN}
	assert.True(t, c.aggregate([]float64{1, 0.5}))
	assert.False(t, c.aggregate([]float64{0.6, 0.5}))

	c.Aggregation = models.SEGMENT_AGGREGATION_ALL
	assert.False(t, c.aggregate([]float64{1, 0.5}))
	assert.True(t, c.aggregate(nil))
}

func TestCompare_Unsupported(t *testing.T) {
	c := NewComparator(models.ComparisonConfig{})
	res := c.Compare("/does/not/exist.txt", "/nor/this.txt")
	assert.True(t, res.Skipped)
	assert.True(t, res.Equivalent)
	assert.NoError(t, res.Err)
}
