package content

import (
	"strings"

	"github.com/gh-nvat/pipecheck/src/pkg/imageio"
	"github.com/gh-nvat/pipecheck/src/pkg/models"
	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "content")

type Kind string

const (
	KIND_STRUCTURED   Kind = "structured"
	KIND_VOLUME       Kind = "volume"
	KIND_SEGMENTATION Kind = "segmentation"
	KIND_UNSUPPORTED  Kind = "unsupported"
)

// FileResult is the outcome of comparing one output file against its reference.
// Err is set when either side could not be loaded; Equivalent is then false.
type FileResult struct {
	Kind       Kind
	Equivalent bool
	Skipped    bool
	Scores     []float64
	Err        error
}

func (r FileResult) withErr(err error) FileResult {
	r.Equivalent = false
	r.Err = err
	return r
}

// Comparator decides semantic equivalence of output/reference file pairs
type Comparator struct {
	Threshold   float64
	Aggregation string

	volumes  imageio.VolumeLoader
	segments imageio.SegmentationLoader
}

// NewComparator builds a comparator backed by the on-disk image readers
func NewComparator(cfg models.ComparisonConfig) *Comparator {
	loader := imageio.Loader{}
	return NewComparatorWithLoaders(cfg, loader, loader)
}

func NewComparatorWithLoaders(cfg models.ComparisonConfig, volumes imageio.VolumeLoader, segments imageio.SegmentationLoader) *Comparator {
	aggregation := cfg.SegmentAggregation
	if aggregation == "" {
		aggregation = models.SEGMENT_AGGREGATION_ALL
	}
	return &Comparator{
		Threshold:   cfg.Threshold(),
		Aggregation: aggregation,
		volumes:     volumes,
		segments:    segments,
	}
}

// KindOf maps a file name to its comparison kind by suffix
func KindOf(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".json"),
		strings.HasSuffix(lower, ".yml"),
		strings.HasSuffix(lower, ".yaml"):
		return KIND_STRUCTURED
	case strings.HasSuffix(lower, ".nii"),
		strings.HasSuffix(lower, ".nii.gz"),
		strings.HasSuffix(lower, ".nrrd"):
		return KIND_VOLUME
	case strings.HasSuffix(lower, ".dcm"):
		return KIND_SEGMENTATION
	default:
		return KIND_UNSUPPORTED
	}
}

// Compare dispatches on the output file's suffix. Unsupported kinds are
// skipped and count as equivalent.
func (c *Comparator) Compare(outputFile, referenceFile string) FileResult {
	var res FileResult
	switch KindOf(outputFile) {
	case KIND_STRUCTURED:
		res = c.compareStructured(outputFile, referenceFile)
	case KIND_VOLUME:
		res = c.compareVolume(outputFile, referenceFile)
	case KIND_SEGMENTATION:
		res = c.compareSegmentation(outputFile, referenceFile)
	default:
		res = FileResult{Kind: KIND_UNSUPPORTED, Skipped: true}
	}
	if res.Skipped {
		res.Equivalent = true
		logger.WithField("file", outputFile).Debug("No content comparison for file type, skipping")
	}
	if res.Err != nil {
		logger.WithField("file", outputFile).WithField("error", res.Err).Warn("Content comparison failed")
	}
	return res
}

// Equivalent is the boolean form of Compare
func (c *Comparator) Equivalent(outputFile, referenceFile string) bool {
	return c.Compare(outputFile, referenceFile).Equivalent
}
