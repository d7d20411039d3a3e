package preprocessing

import (
	"fmt"

	"github.com/ezoic/atomtrain/core/tensor"
	scigoErrors "github.com/ezoic/atomtrain/pkg/errors"
)

// CheckSignalDims returns x laid out as (N, 1, dim...). dim is the signal
// shape without batch or channel axes: (L) for spectra, (H, W) for images.
// Data that already carries a single channel axis is returned unchanged.
func CheckSignalDims(x *tensor.Tensor, dim []int) (*tensor.Tensor, error) {
	if x == nil {
		return nil, scigoErrors.NewModelError("CheckSignalDims", "nil data", scigoErrors.ErrNotTensor)
	}
	if len(dim) == 0 {
		return nil, scigoErrors.NewValueError("CheckSignalDims", "signal dimensions must be provided")
	}

	shape := x.Shape()
	offset := 1
	switch x.Rank() {
	case len(dim) + 1:
	case len(dim) + 2:
		if shape[1] != 1 {
			return nil, scigoErrors.NewDimensionError("CheckSignalDims", 1, shape[1], 1)
		}
		offset = 2
	default:
		return nil, scigoErrors.NewValueError("CheckSignalDims",
			fmt.Sprintf("shape %v does not match signal dims %v", shape, dim))
	}
	for i, d := range dim {
		if shape[offset+i] != d {
			return nil, scigoErrors.NewDimensionError("CheckSignalDims", d, shape[offset+i], offset+i)
		}
	}
	if offset == 2 {
		return x, nil
	}
	return x.Reshape(append([]int{x.Len(), 1}, dim...)...)
}
