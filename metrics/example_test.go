package metrics_test

import (
	"fmt"
	"log/slog"

	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/metrics"
)

// ExampleMSE demonstrates Mean Squared Error calculation
func ExampleMSE() {
	yTrue := tensor.MustNew([]float64{1.0, 2.0, 3.0, 4.0}, 4)
	yPred := tensor.MustNew([]float64{1.1, 1.9, 3.2, 3.8}, 4)

	mse, err := metrics.MSE(yTrue, yPred)
	if err != nil {
		slog.Error("Test failed", "error", err)
		return
	}

	fmt.Printf("MSE: %.3f\n", mse)

	// Output: MSE: 0.025
}

// ExampleRMSE demonstrates Root Mean Squared Error calculation
func ExampleRMSE() {
	yTrue := tensor.MustNew([]float64{10.0, 20.0, 30.0}, 3)
	yPred := tensor.MustNew([]float64{12.0, 18.0, 32.0}, 3)

	rmse, err := metrics.RMSE(yTrue, yPred)
	if err != nil {
		slog.Error("Test failed", "error", err)
		return
	}

	fmt.Printf("RMSE: %.2f\n", rmse)

	// Output: RMSE: 2.00
}

// ExampleR2Score demonstrates scoring a batch of predicted spectra
func ExampleR2Score() {
	// two spectra of length 3, shaped (N, 1, L)
	spectra := tensor.MustNew([]float64{1, 2, 3, 4, 5, 6}, 2, 1, 3)
	predicted := tensor.MustNew([]float64{1, 2, 3, 4, 5, 6}, 2, 1, 3)

	r2, err := metrics.R2Score(spectra, predicted)
	if err != nil {
		slog.Error("Test failed", "error", err)
		return
	}

	fmt.Printf("R²: %.2f\n", r2)

	// Output: R²: 1.00
}

// ExampleIoU scores a binary segmentation of a 2x2 image
func ExampleIoU() {
	mask := tensor.MustNew([]float64{1, 0, 0, 0}, 1, 1, 2, 2)
	// positive logits mark predicted foreground
	logits := tensor.MustNew([]float64{3, 2, -1, -4}, 1, 1, 2, 2)

	iou, err := metrics.IoU(1)(mask, logits)
	if err != nil {
		slog.Error("Test failed", "error", err)
		return
	}

	// foreground 1/2, background 2/3
	fmt.Printf("IoU: %.4f\n", iou)

	// Output: IoU: 0.5833
}
