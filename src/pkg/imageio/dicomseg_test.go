package imageio_test

import (
	"path/filepath"
	"testing"

	"github.com/gh-nvat/pipecheck/src/pkg/imageio"
	"github.com/gh-nvat/pipecheck/src/pkg/imageio/imageiotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func voxels(plane string, indices ...int) imageio.VoxelSet {
	set := make(imageio.VoxelSet)
	for _, i := range indices {
		set[imageio.VoxelKey{Plane: plane, Index: i}] = struct{}{}
	}
	return set
}

func union(sets ...imageio.VoxelSet) imageio.VoxelSet {
	out := make(imageio.VoxelSet)
	for _, s := range sets {
		for k := range s {
			out[k] = struct{}{}
		}
	}
	return out
}

func TestLoadDicomSeg_TwoSegments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.dcm")
	imageiotest.WriteSeg(t, path, imageiotest.SegSpec{
		Rows: 4, Cols: 4,
		Segments: []int{1, 2},
		Frames: []imageiotest.SegFrame{
			{Segment: 1, Position: []string{"0", "0", "0"}, Pixels: []int{0, 1, 2}},
			{Segment: 1, Position: []string{"0", "0", "2.5"}, Pixels: []int{5}},
			{Segment: 2, Position: []string{"0", "0", "0"}, Pixels: []int{8, 15}},
		},
	})

	seg, err := imageio.LoadDicomSeg(path)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, seg.Numbers())
	assert.Equal(t, union(voxels(`0\0\0`, 0, 1, 2), voxels(`0\0\2.5`, 5)), seg.Segments[1])
	assert.Equal(t, voxels(`0\0\0`, 8, 15), seg.Segments[2])
}

func TestLoadDicomSeg_SingleSegmentWithoutPerFrameGroups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "single.dcm")
	imageiotest.WriteSeg(t, path, imageiotest.SegSpec{
		Rows: 2, Cols: 4,
		Segments: []int{3},
		Frames: []imageiotest.SegFrame{
			{Pixels: []int{7}},
			{Pixels: []int{0, 1}},
		},
	})

	seg, err := imageio.Loader{}.LoadSegmentation(path)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, seg.Numbers())
	// planes fall back to the frame ordinal
	assert.Equal(t, union(voxels("0", 7), voxels("1", 0, 1)), seg.Segments[3])
}

func TestLoadDicomSeg_PositionFormatting(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, z string) *imageio.Segmentation {
		path := filepath.Join(dir, name)
		imageiotest.WriteSeg(t, path, imageiotest.SegSpec{
			Rows: 2, Cols: 4,
			Segments: []int{1},
			Frames: []imageiotest.SegFrame{
				{Segment: 1, Position: []string{"-0.0", "10", z}, Pixels: []int{2, 3}},
			},
		})
		seg, err := imageio.LoadDicomSeg(path)
		require.NoError(t, err)
		return seg
	}

	a := write("a.dcm", "12.5")
	b := write("b.dcm", "12.50000")
	assert.Equal(t, a.Segments[1], b.Segments[1])
	assert.Equal(t, voxels(`0\10\12.5`, 2, 3), a.Segments[1])
}

func TestLoadDicomSeg_UnknownSegmentReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dcm")
	imageiotest.WriteSeg(t, path, imageiotest.SegSpec{
		Rows: 2, Cols: 4,
		Segments: []int{1},
		Frames: []imageiotest.SegFrame{
			{Segment: 4, Position: []string{"0", "0", "0"}, Pixels: []int{0}},
		},
	})

	_, err := imageio.LoadDicomSeg(path)
	assert.Error(t, err)
}
