package preprocessing

import (
	"github.com/ezoic/atomtrain/core/tensor"
	scigoErrors "github.com/ezoic/atomtrain/pkg/errors"
)

// ToBatches cuts x along the sample axis into consecutive batches of
// batchSize. The trailing batch may be shorter. Batches are views into x.
func ToBatches(x *tensor.Tensor, batchSize int) ([]*tensor.Tensor, error) {
	if x == nil {
		return nil, scigoErrors.NewModelError("ToBatches", "nil data", scigoErrors.ErrNotTensor)
	}
	if batchSize < 1 {
		return nil, scigoErrors.NewValueError("ToBatches", "batch size must be positive")
	}

	n := x.Len()
	batches := make([]*tensor.Tensor, 0, (n+batchSize-1)/batchSize)
	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}
		b, err := x.Slice(start, end)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}
