package imageio

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

var (
	tagSegmentSequence               = tag.Tag{Group: 0x0062, Element: 0x0002}
	tagSegmentNumber                 = tag.Tag{Group: 0x0062, Element: 0x0004}
	tagSegmentIdentificationSequence = tag.Tag{Group: 0x0062, Element: 0x000A}
	tagReferencedSegmentNumber       = tag.Tag{Group: 0x0062, Element: 0x000B}
	tagPerFrameFunctionalGroups      = tag.Tag{Group: 0x5200, Element: 0x9230}
	tagPlanePositionSequence         = tag.Tag{Group: 0x0020, Element: 0x9113}
	tagImagePositionPatient          = tag.Tag{Group: 0x0020, Element: 0x0032}
)

const planeKeyScale = 1e4

// VoxelKey addresses one pixel of one plane. Plane is the image position
// of the frame when known, otherwise the ordinal of the frame within its segment.
type VoxelKey struct {
	Plane string
	Index int
}

// VoxelSet is the region of interest of a single segment
type VoxelSet map[VoxelKey]struct{}

// Segmentation holds the per-segment regions of a multi-segment object
type Segmentation struct {
	Segments map[int]VoxelSet
}

// Numbers returns the segment numbers in ascending order
func (s *Segmentation) Numbers() []int {
	nums := make([]int, 0, len(s.Segments))
	for n := range s.Segments {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// SegmentationLoader loads a multi-segment object from disk
type SegmentationLoader interface {
	LoadSegmentation(path string) (*Segmentation, error)
}

// LoadDicomSeg reads a DICOM segmentation object (binary, uncompressed pixel data)
func LoadDicomSeg(path string) (*Segmentation, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DICOM %s: %w", path, err)
	}

	segSeq, err := ds.FindElementByTag(tagSegmentSequence)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotSegmentation, path)
	}

	seg := &Segmentation{Segments: make(map[int]VoxelSet)}
	for _, item := range sequenceItems(segSeq) {
		num, ok := firstInt(item, tagSegmentNumber)
		if !ok {
			return nil, fmt.Errorf("%s: segment without SegmentNumber", path)
		}
		seg.Segments[num] = make(VoxelSet)
	}
	if len(seg.Segments) == 0 {
		return nil, fmt.Errorf("%w: %s: empty segment sequence", ErrNotSegmentation, path)
	}

	pixelData, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("%s: missing pixel data: %w", path, err)
	}
	info := dicom.MustGetPixelDataInfo(pixelData.Value)
	if info.IsEncapsulated {
		return nil, fmt.Errorf("%w: %s: encapsulated pixel data", ErrUnsupportedFormat, path)
	}

	var perFrame [][]*dicom.Element
	if el, err := ds.FindElementByTag(tagPerFrameFunctionalGroups); err == nil {
		perFrame = sequenceItems(el)
	}

	// single-segment objects may omit the per-frame segment reference
	defaultNum := 0
	if nums := seg.Numbers(); len(nums) == 1 {
		defaultNum = nums[0]
	}

	ordinal := make(map[int]int)
	for i, fr := range info.Frames {
		num, plane := frameSegment(perFrame, i, defaultNum)
		set, ok := seg.Segments[num]
		if !ok {
			return nil, fmt.Errorf("%s: frame %d references unknown segment %d", path, i, num)
		}
		if plane == "" {
			plane = strconv.Itoa(ordinal[num])
		}
		ordinal[num]++

		nf, err := fr.GetNativeFrame()
		if err != nil {
			return nil, fmt.Errorf("%s: frame %d: %w", path, i, err)
		}
		for p, px := range nf.Data {
			if len(px) > 0 && px[0] != 0 {
				set[VoxelKey{Plane: plane, Index: p}] = struct{}{}
			}
		}
	}

	logger.WithField("path", path).WithField("segments", seg.Numbers()).Debug("Loaded DICOM segmentation")
	return seg, nil
}

// frameSegment resolves the segment number and plane position of frame i
func frameSegment(perFrame [][]*dicom.Element, i int, defaultNum int) (int, string) {
	num := defaultNum
	if i >= len(perFrame) {
		return num, ""
	}

	plane := ""
	for _, el := range perFrame[i] {
		switch el.Tag {
		case tagSegmentIdentificationSequence:
			for _, item := range sequenceItems(el) {
				if n, ok := firstInt(item, tagReferencedSegmentNumber); ok {
					num = n
				}
			}
		case tagPlanePositionSequence:
			for _, item := range sequenceItems(el) {
				if pos := findElement(item, tagImagePositionPatient); pos != nil {
					if values, ok := pos.Value.GetValue().([]string); ok {
						plane = planeKey(values)
					}
				}
			}
		}
	}
	return num, plane
}

// planeKey normalizes an ImagePositionPatient value so that equal positions
// written with different decimal formatting ("12.5", "12.50") match.
// Coordinates are rounded to 1e-4 mm.
func planeKey(values []string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		v = strings.TrimSpace(v)
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			parts[i] = v
			continue
		}
		f = math.Round(f*planeKeyScale) / planeKeyScale
		if f == 0 {
			f = 0 // -0 and 0 are the same plane
		}
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(parts, "\\")
}

func sequenceItems(el *dicom.Element) [][]*dicom.Element {
	items, ok := el.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil
	}
	out := make([][]*dicom.Element, 0, len(items))
	for _, item := range items {
		if elems, ok := item.GetValue().([]*dicom.Element); ok {
			out = append(out, elems)
		}
	}
	return out
}

func findElement(elems []*dicom.Element, t tag.Tag) *dicom.Element {
	for _, el := range elems {
		if el.Tag == t {
			return el
		}
	}
	return nil
}

func firstInt(elems []*dicom.Element, t tag.Tag) (int, bool) {
	el := findElement(elems, t)
	if el == nil {
		return 0, false
	}
	values, ok := el.Value.GetValue().([]int)
	if !ok || len(values) == 0 {
		return 0, false
	}
	return values[0], true
}
