package preprocessing

import (
	"fmt"
	"sort"

	"github.com/ezoic/atomtrain/core/tensor"
	scigoErrors "github.com/ezoic/atomtrain/pkg/errors"
)

// CountClasses returns the number of output channels a segmentation network
// needs for labels.
//
// Rank-4 labels (N, C, H, W) are already one-hot and report C. Rank-3 masks
// (N, H, W) must hold the values 0..k-1 with no gaps; k classes are reported,
// except that a two-valued mask is binary and needs a single channel.
func CountClasses(labels *tensor.Tensor) (int, error) {
	if labels == nil {
		return 0, scigoErrors.NewModelError("CountClasses", "nil labels", scigoErrors.ErrNotTensor)
	}
	switch labels.Rank() {
	case 4:
		return labels.Dim(1), nil
	case 3:
	default:
		return 0, scigoErrors.NewValueError("CountClasses",
			fmt.Sprintf("labels must be (N, H, W) or (N, C, H, W), got %v", labels.Shape()))
	}

	seen := make(map[float64]bool)
	for _, v := range labels.Values() {
		seen[v] = true
	}
	uniq := make([]float64, 0, len(seen))
	for v := range seen {
		uniq = append(uniq, v)
	}
	sort.Float64s(uniq)
	for i, v := range uniq {
		if v != float64(i) {
			return 0, scigoErrors.NewValueError("CountClasses",
				fmt.Sprintf("mask values must be 0..k-1 with increment 1, got %v (use MaskEncoder)", uniq))
		}
	}
	if len(uniq) == 2 {
		return 1, nil
	}
	return len(uniq), nil
}

// OneHot expands a class-index mask (N, H, W) into channels (N, C, H, W).
// With nbClasses == 1 the mask is binary and is returned as a float mask
// (N, 1, H, W).
func OneHot(indices *tensor.Tensor, nbClasses int) (*tensor.Tensor, error) {
	if indices == nil {
		return nil, scigoErrors.NewModelError("OneHot", "nil labels", scigoErrors.ErrNotTensor)
	}
	if indices.Rank() != 3 {
		return nil, scigoErrors.NewDimensionError("OneHot", 3, indices.Rank(), 0)
	}
	if nbClasses < 1 {
		return nil, scigoErrors.NewValueError("OneHot", "nbClasses must be positive")
	}
	n, h, w := indices.Dim(0), indices.Dim(1), indices.Dim(2)
	if nbClasses == 1 {
		return tensor.New(indices.RawData(), n, 1, h, w)
	}

	hw := h * w
	out := tensor.Zeros(n, nbClasses, h, w)
	src, dst := indices.Values(), out.Values()
	for i := 0; i < n; i++ {
		for j := 0; j < hw; j++ {
			k := int(src[i*hw+j])
			if k < 0 || k >= nbClasses {
				return nil, scigoErrors.NewModelError("OneHot",
					fmt.Sprintf("class %d outside [0, %d)", k, nbClasses), scigoErrors.ErrClassMismatch)
			}
			dst[(i*nbClasses+k)*hw+j] = 1
		}
	}
	return out, nil
}

// SqueezeChannels is the inverse of OneHot: a single-channel mask keeps its
// (N, 1, H, W) float layout, several channels collapse to arg-max indices
// (N, H, W).
func SqueezeChannels(onehot *tensor.Tensor) (*tensor.Tensor, error) {
	if onehot == nil {
		return nil, scigoErrors.NewModelError("SqueezeChannels", "nil labels", scigoErrors.ErrNotTensor)
	}
	if onehot.Rank() != 4 {
		return nil, scigoErrors.NewDimensionError("SqueezeChannels", 4, onehot.Rank(), 0)
	}
	n, c, h, w := onehot.Dim(0), onehot.Dim(1), onehot.Dim(2), onehot.Dim(3)
	if c == 1 {
		return onehot.Clone(), nil
	}

	hw := h * w
	src := onehot.Values()
	out := make([]float64, n*hw)
	for i := 0; i < n; i++ {
		for j := 0; j < hw; j++ {
			best, bestV := 0, src[(i*c)*hw+j]
			for k := 1; k < c; k++ {
				if v := src[(i*c+k)*hw+j]; v > bestV {
					best, bestV = k, v
				}
			}
			out[i*hw+j] = float64(best)
		}
	}
	return tensor.New(out, n, h, w)
}
