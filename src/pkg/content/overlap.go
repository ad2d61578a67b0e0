package content

import (
	"errors"
	"fmt"

	"github.com/gh-nvat/pipecheck/src/pkg/imageio"
	"github.com/gh-nvat/pipecheck/src/pkg/models"
)

func (c *Comparator) compareVolume(outputFile, referenceFile string) FileResult {
	res := FileResult{Kind: KIND_VOLUME}

	out, err := c.volumes.LoadVolume(outputFile)
	if err != nil {
		return res.withErr(err)
	}
	ref, err := c.volumes.LoadVolume(referenceFile)
	if err != nil {
		return res.withErr(err)
	}

	dc, err := LabelDice(out, ref)
	if err != nil {
		return res.withErr(err)
	}
	res.Scores = []float64{dc}
	res.Equivalent = dc > c.Threshold
	return res
}

func (c *Comparator) compareSegmentation(outputFile, referenceFile string) FileResult {
	res := FileResult{Kind: KIND_SEGMENTATION}

	out, err := c.segments.LoadSegmentation(outputFile)
	if errors.Is(err, imageio.ErrNotSegmentation) {
		res.Kind = KIND_UNSUPPORTED
		res.Skipped = true
		return res
	}
	if err != nil {
		return res.withErr(err)
	}
	ref, err := c.segments.LoadSegmentation(referenceFile)
	if err != nil {
		return res.withErr(err)
	}

	if len(out.Segments) != len(ref.Segments) {
		logger.WithField("file", outputFile).
			WithField("output", len(out.Segments)).
			WithField("reference", len(ref.Segments)).
			Info("Segment count differs")
		return res
	}

	for _, num := range out.Numbers() {
		refSet, ok := ref.Segments[num]
		if !ok {
			return res.withErr(fmt.Errorf("segment %d missing from reference %s", num, referenceFile))
		}
		res.Scores = append(res.Scores, Dice(out.Segments[num], refSet))
	}
	res.Equivalent = c.aggregate(res.Scores)
	return res
}

// aggregate applies the segment aggregation policy, conjunction by default
func (c *Comparator) aggregate(scores []float64) bool {
	if len(scores) == 0 {
		return true
	}
	switch c.Aggregation {
	case models.SEGMENT_AGGREGATION_MEAN:
		sum := 0.0
		for _, s := range scores {
			sum += s
		}
		return sum/float64(len(scores)) > c.Threshold
	default:
		for _, s := range scores {
			if s <= c.Threshold {
				return false
			}
		}
		return true
	}
}
