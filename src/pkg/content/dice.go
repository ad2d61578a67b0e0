package content

import (
	"fmt"

	"github.com/gh-nvat/pipecheck/src/pkg/imageio"
)

// Dice computes 2|A∩B| / (|A|+|B|) over two voxel sets.
// Two empty regions are considered identical.
func Dice(a, b imageio.VoxelSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for k := range small {
		if _, ok := large[k]; ok {
			inter++
		}
	}
	return 2 * float64(inter) / float64(len(a)+len(b))
}

// LabelDice computes the Dice coefficient between the labeled regions of two
// volumes: a voxel belongs to A (or B) when its label is nonzero, and counts
// towards the intersection when both volumes carry the same label there.
func LabelDice(a, b *imageio.Volume) (float64, error) {
	if !a.SameShape(b) {
		return 0, fmt.Errorf("volume shapes differ: %v vs %v", a.Dims, b.Dims)
	}
	var sizeA, sizeB, inter int
	for i, la := range a.Labels {
		lb := b.Labels[i]
		if la != 0 {
			sizeA++
		}
		if lb != 0 {
			sizeB++
		}
		if la != 0 && la == lb {
			inter++
		}
	}
	if sizeA+sizeB == 0 {
		return 1, nil
	}
	return 2 * float64(inter) / float64(sizeA+sizeB), nil
}
