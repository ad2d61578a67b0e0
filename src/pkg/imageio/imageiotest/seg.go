// Package imageiotest writes small DICOM segmentation files for tests.
package imageiotest

import (
	"os"
	"strconv"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"github.com/suyashkumar/dicom/pkg/uid"
)

const SOP_CLASS_SEGMENTATION = "1.2.840.10008.5.1.4.1.1.66.4"

// SegFrame is one binary frame of a segmentation
type SegFrame struct {
	Segment  int      // ReferencedSegmentNumber, 0 omits the per-frame reference
	Position []string // ImagePositionPatient, nil omits the plane position
	Pixels   []int    // indices of the set pixels, row major
}

// SegSpec describes a 1-bit multi-frame segmentation object
type SegSpec struct {
	Rows, Cols int // Rows*Cols must be a multiple of 8
	Segments   []int
	Frames     []SegFrame
}

// WriteSeg writes spec as an explicit VR little endian DICOM SEG file
func WriteSeg(t testing.TB, path string, spec SegSpec) {
	t.Helper()

	segItems := make([][]*dicom.Element, 0, len(spec.Segments))
	for _, num := range spec.Segments {
		segItems = append(segItems, []*dicom.Element{element(t, tag.SegmentNumber, []int{num})})
	}

	perFrame := make([][]*dicom.Element, 0, len(spec.Frames))
	withPerFrame := false
	for _, f := range spec.Frames {
		var item []*dicom.Element
		if f.Segment != 0 {
			ref := element(t, tag.ReferencedSegmentNumber, []int{f.Segment})
			item = append(item, element(t, tag.SegmentIdentificationSequence, [][]*dicom.Element{{ref}}))
		}
		if f.Position != nil {
			pos := element(t, tag.ImagePositionPatient, f.Position)
			item = append(item, element(t, tag.PlanePositionSequence, [][]*dicom.Element{{pos}}))
		}
		if len(item) > 0 {
			withPerFrame = true
		}
		perFrame = append(perFrame, item)
	}

	elems := []*dicom.Element{
		element(t, tag.MediaStorageSOPClassUID, []string{SOP_CLASS_SEGMENTATION}),
		element(t, tag.MediaStorageSOPInstanceUID, []string{"1.2.826.0.1.3680043.2.1125.1"}),
		element(t, tag.TransferSyntaxUID, []string{uid.ExplicitVRLittleEndian}),
		element(t, tag.SamplesPerPixel, []int{1}),
		element(t, tag.NumberOfFrames, []string{strconv.Itoa(len(spec.Frames))}),
		element(t, tag.Rows, []int{spec.Rows}),
		element(t, tag.Columns, []int{spec.Cols}),
		element(t, tag.BitsAllocated, []int{1}),
		element(t, tag.SegmentSequence, segItems),
	}
	if withPerFrame {
		elems = append(elems, element(t, tag.PerFrameFunctionalGroupsSequence, perFrame))
	}
	elems = append(elems, element(t, tag.PixelData, dicom.PixelDataInfo{
		IntentionallyUnprocessed: true,
		UnprocessedValueData:     packBits(spec),
	}))

	out, err := os.Create(path) // #nosec G304
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer func() {
		_ = out.Close()
	}()
	if err := dicom.Write(out, dicom.Dataset{Elements: elems}); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// packBits encodes every frame at 1 bit per pixel, first pixel in the high bit
func packBits(spec SegSpec) []byte {
	perFrame := spec.Rows * spec.Cols / 8
	data := make([]byte, perFrame*len(spec.Frames))
	for i, f := range spec.Frames {
		for _, p := range f.Pixels {
			data[i*perFrame+p/8] |= 1 << (7 - p%8)
		}
	}
	if len(data)%2 == 1 {
		data = append(data, 0)
	}
	return data
}

func element(t testing.TB, tg tag.Tag, value any) *dicom.Element {
	t.Helper()
	el, err := dicom.NewElement(tg, value)
	if err != nil {
		t.Fatalf("element %v: %v", tg, err)
	}
	return el
}

