// Package metrics provides the accuracy scores reported during training.
//
// Regression Metrics (image↔spectrum translation):
//   - MSE: Mean Squared Error
//   - RMSE: Root Mean Squared Error (square root of MSE)
//   - MAE: Mean Absolute Error
//   - R²: R-squared coefficient of determination
//   - Explained Variance Score
//
// Segmentation Metrics:
//   - IoU: mean intersection-over-union of predicted and true class maps
//   - PixelAccuracy: fraction of correctly labelled pixels
//
// Every metric compares a target tensor with a prediction tensor of the same
// number of elements; the sample layout is irrelevant for regression metrics.
//
// Example usage:
//
//	r2, err := metrics.R2Score(target, prediction)
//	iou, err := metrics.IoU(2)(labels, logits)
package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ezoic/atomtrain/core/tensor"
	scigoErrors "github.com/ezoic/atomtrain/pkg/errors"
)

// Metric scores a prediction against its target. Higher is not necessarily
// better: check the individual metric.
type Metric func(yTrue, yPred *tensor.Tensor) (float64, error)

func checkPair(op string, yTrue, yPred *tensor.Tensor) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, scigoErrors.NewModelError(op, "nil tensor", scigoErrors.ErrNotTensor)
	}
	n := yTrue.Size()
	if yPred.Size() != n {
		return 0, scigoErrors.NewDimensionError(op, n, yPred.Size(), 0)
	}
	return n, nil
}

// MSE calculates the Mean Squared Error between true and predicted values.
//
// MSE measures the average squared differences between predictions and actual
// values. Lower values indicate better model performance. MSE is sensitive to
// outliers due to the squared differences.
//
// Errors:
//   - ErrNotTensor: if either input is nil
//   - ErrShapeMismatch: if yTrue and yPred have different sizes
//
// Example:
//
//	mse, err := metrics.MSE(yTrue, yPred)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("MSE: %.4f\n", mse)
func MSE(yTrue, yPred *tensor.Tensor) (float64, error) {
	n, err := checkPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}

	// MSE = (1/n) * Σ(yTrue - yPred)²
	t, p := yTrue.Values(), yPred.Values()
	var sum float64
	for i := 0; i < n; i++ {
		diff := t[i] - p[i]
		sum += diff * diff
	}
	return sum / float64(n), nil
}

// RMSE is the square root of MSE.
func RMSE(yTrue, yPred *tensor.Tensor) (float64, error) {
	mse, err := MSE(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// MAE calculates the Mean Absolute Error. It is more robust to outliers than MSE.
func MAE(yTrue, yPred *tensor.Tensor) (float64, error) {
	n, err := checkPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	t, p := yTrue.Values(), yPred.Values()
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(t[i] - p[i])
	}
	return sum / float64(n), nil
}

// R2Score calculates the coefficient of determination (R²) over all elements.
//
// Values range from negative infinity to 1, where 1 indicates perfect
// predictions and 0 indicates predictions no better than the mean.
//
// Errors:
//   - ErrShapeMismatch: if yTrue and yPred have different sizes
//   - ValueError: if all yTrue values are identical (no variance)
func R2Score(yTrue, yPred *tensor.Tensor) (float64, error) {
	n, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	t, p := yTrue.Values(), yPred.Values()
	yMean := stat.Mean(t, nil)

	var tss, rss float64
	for i := 0; i < n; i++ {
		tss += (t[i] - yMean) * (t[i] - yMean)
		rss += (t[i] - p[i]) * (t[i] - p[i])
	}
	if tss == 0 {
		return 0, scigoErrors.NewValueError("R2Score", "total sum of squares is zero (no variance in yTrue)")
	}
	return 1 - rss/tss, nil
}

// ExplainedVarianceScore is 1 - Var(yTrue - yPred) / Var(yTrue). Unlike R² it
// ignores a systematic offset in predictions.
func ExplainedVarianceScore(yTrue, yPred *tensor.Tensor) (float64, error) {
	n, err := checkPair("ExplainedVarianceScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	t, p := yTrue.Values(), yPred.Values()
	diff := make([]float64, n)
	for i := range diff {
		diff[i] = t[i] - p[i]
	}
	varTrue := stat.PopVariance(t, nil)
	if varTrue == 0 {
		return 0, scigoErrors.NewValueError("ExplainedVarianceScore", "no variance in yTrue")
	}
	return 1 - stat.PopVariance(diff, nil)/varTrue, nil
}
