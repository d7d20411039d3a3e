package losses

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
)

func logits(seed uint64, shape ...int) *tensor.Tensor {
	rng := rand.New(rand.NewPCG(seed, seed))
	t := tensor.Zeros(shape...)
	for i := range t.Values() {
		t.Values()[i] = rng.NormFloat64()
	}
	return t
}

func indexMask(seed uint64, classes int, shape ...int) *tensor.Tensor {
	rng := rand.New(rand.NewPCG(seed, seed))
	t := tensor.Zeros(shape...)
	for i := range t.Values() {
		t.Values()[i] = float64(rng.IntN(classes))
	}
	return t
}

func binaryMask(seed uint64, shape ...int) *tensor.Tensor {
	return indexMask(seed, 2, shape...)
}

// numericGrad checks the returned gradient against central differences.
func numericGrad(t *testing.T, fn Func, pred, target *tensor.Tensor) {
	t.Helper()
	_, grad, err := fn(pred, target)
	require.NoError(t, err)
	const h = 1e-6
	vals := pred.Values()
	for i := range vals {
		orig := vals[i]
		vals[i] = orig + h
		up, _, _ := fn(pred, target)
		vals[i] = orig - h
		down, _, _ := fn(pred, target)
		vals[i] = orig
		assert.InDelta(t, (up-down)/(2*h), grad.Values()[i], 1e-6, "element %d", i)
	}
}

func TestSelect(t *testing.T) {
	for _, tag := range []string{"ce", "dice", "focal", "mse", "CE"} {
		for _, classes := range []int{1, 3} {
			fn, err := Select(tag, classes)
			require.NoError(t, err, tag)
			assert.NotNil(t, fn)
		}
	}
	_, err := Select("hinge", 2)
	assert.True(t, errors.Is(err, errors.ErrUnknownLoss))
}

func TestMeanSquaredError(t *testing.T) {
	loss, grad, err := MeanSquaredError(
		tensor.MustNew([]float64{1, 2, 3, 4}, 2, 2),
		tensor.MustNew([]float64{1, 0, 3, 2}, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, 2.0, loss)
	assert.Equal(t, []float64{0, 1, 0, 1}, grad.Values())

	_, _, err = MeanSquaredError(tensor.Zeros(2), tensor.Zeros(3))
	assert.True(t, errors.Is(err, errors.ErrShapeMismatch))
}

func TestCrossEntropyUniformLogits(t *testing.T) {
	loss, _, err := SoftmaxCrossEntropy(tensor.Zeros(2, 4, 3, 3), indexMask(1, 4, 2, 3, 3))
	require.NoError(t, err)
	assert.InDelta(t, math.Log(4), loss, 1e-12)

	loss, _, err = BinaryCrossEntropy(tensor.Zeros(1, 1, 2, 2), binaryMask(2, 1, 1, 2, 2))
	require.NoError(t, err)
	assert.InDelta(t, math.Log(2), loss, 1e-12)
}

func TestCrossEntropyRejectsBadClasses(t *testing.T) {
	_, _, err := SoftmaxCrossEntropy(tensor.Zeros(1, 2, 2, 2), tensor.Full(2, 1, 2, 2))
	assert.Error(t, err)
	_, _, err = SoftmaxCrossEntropy(tensor.Zeros(1, 2, 2, 2), tensor.Zeros(1, 3, 3))
	assert.True(t, errors.Is(err, errors.ErrShapeMismatch))
}

func TestDiceBounds(t *testing.T) {
	mask := binaryMask(3, 1, 1, 4, 4)
	perfect := mask.Clone()
	perfect.Apply(func(v float64) float64 { return 40*v - 20 })

	loss, _, err := DiceLoss(1)(perfect, mask)
	require.NoError(t, err)
	assert.InDelta(t, 0, loss, 1e-6)

	inverted := perfect.Clone()
	inverted.Scale(-1)
	loss, _, err = DiceLoss(1)(inverted, mask)
	require.NoError(t, err)
	assert.InDelta(t, 1, loss, 1e-6)
}

func TestGradients(t *testing.T) {
	tests := []struct {
		name   string
		fn     Func
		pred   *tensor.Tensor
		target *tensor.Tensor
	}{
		{"mse", MeanSquaredError, logits(1, 2, 1, 5), logits(2, 2, 1, 5)},
		{"bce", BinaryCrossEntropy, logits(3, 2, 1, 3, 3), binaryMask(4, 2, 1, 3, 3)},
		{"softmax ce", SoftmaxCrossEntropy, logits(5, 2, 3, 3, 3), indexMask(6, 3, 2, 3, 3)},
		{"binary dice", DiceLoss(1), logits(7, 2, 1, 3, 3), binaryMask(8, 2, 1, 3, 3)},
		{"multiclass dice", DiceLoss(3), logits(9, 2, 3, 3, 3), indexMask(10, 3, 2, 3, 3)},
		{"binary focal", FocalLoss(1, 0.5, 2), logits(11, 2, 1, 3, 3), binaryMask(12, 2, 1, 3, 3)},
		{"multiclass focal", FocalLoss(3, 0.5, 2), logits(13, 2, 3, 3, 3), indexMask(14, 3, 2, 3, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			numericGrad(t, tt.fn, tt.pred, tt.target)
		})
	}
}
