package preprocessing

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/ezoic/atomtrain/core/tensor"
	scigoErrors "github.com/ezoic/atomtrain/pkg/errors"
)

// DefaultTestSize is the held-out fraction used when no test set is given.
const DefaultTestSize = 0.15

// TrainTestSplit shuffles the samples of X and y with a PCG generator seeded
// by seed and holds out ceil(testSize*n) of them for testing. X and y are
// split with the same permutation and never modified.
func TrainTestSplit(X, y *tensor.Tensor, testSize float64, seed uint64) (xTrain, xTest, yTrain, yTest *tensor.Tensor, err error) {
	defer scigoErrors.Recover(&err, "TrainTestSplit")
	if X == nil || y == nil {
		return nil, nil, nil, nil, scigoErrors.NewModelError("TrainTestSplit", "nil data", scigoErrors.ErrNotTensor)
	}
	n := X.Len()
	if y.Len() != n {
		return nil, nil, nil, nil, scigoErrors.NewDimensionError("TrainTestSplit", n, y.Len(), 0)
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, nil, nil, scigoErrors.NewValueError("TrainTestSplit",
			fmt.Sprintf("test size must be in (0, 1), got %g", testSize))
	}

	nTest := int(math.Ceil(testSize*float64(n) - 1e-9))
	nTrain := n - nTest
	if nTrain < 1 {
		return nil, nil, nil, nil, scigoErrors.NewModelError("TrainTestSplit",
			fmt.Sprintf("%d samples leave no training data at test size %g", n, testSize), scigoErrors.ErrEmptyData)
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	perm := rng.Perm(n)
	trainIdx, testIdx := perm[:nTrain], perm[nTrain:]

	return X.Gather(trainIdx), X.Gather(testIdx), y.Gather(trainIdx), y.Gather(testIdx), nil
}
