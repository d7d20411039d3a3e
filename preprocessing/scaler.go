// Package preprocessing prepares microscopy images, masks and spectra for
// training.
//
// It covers the steps that run once before a trainer is compiled:
//
//   - MinMaxScaler / NormalizeImages: per-sample intensity scaling
//   - MaskEncoder: maps arbitrary mask values to contiguous class indices
//   - CountClasses, OneHot, SqueezeChannels: label cardinality and layout
//   - CheckSignalDims: adds the channel axis expected by the networks
//   - TrainTestSplit, ToBatches: seeded partitioning and pre-batching
//
// Example usage:
//
//	images, err := preprocessing.NormalizeImages(raw)
//	if err != nil {
//		log.Fatal(err)
//	}
//	xTrain, xTest, yTrain, yTest, err := preprocessing.TrainTestSplit(images, masks, 0.15, 1)
package preprocessing

import (
	"fmt"
	"math"

	"github.com/ezoic/atomtrain/core/tensor"
	scigoErrors "github.com/ezoic/atomtrain/pkg/errors"
)

// MinMaxScaler rescales every sample independently to a target range.
// Unlike a feature-wise scaler it keeps no fitted state, so train and test
// images are normalized identically without leaking statistics.
type MinMaxScaler struct {
	// FeatureRange はスケーリング後の範囲 [min, max]
	FeatureRange [2]float64
}

// NewMinMaxScaler creates a new MinMaxScaler for per-sample scaling.
//
// Each sample x is transformed as
// (x - x.min) / (x.max - x.min) * (max - min) + min.
// Constant samples map to the lower bound of the range.
//
// Parameters:
//   - featureRange: Target range for scaling [min, max] (typically [0, 1])
//
// Example:
//
//	scaler := preprocessing.NewMinMaxScaler([2]float64{-1.0, 1.0})
//	scaled, err := scaler.Transform(images)
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{
		FeatureRange: featureRange,
	}
}

// NewMinMaxScalerDefault はデフォルト設定([0,1]範囲)でMinMaxScalerを作成する
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0.0, 1.0})
}

// Transform returns a scaled copy of x; x itself is left untouched.
//
// Errors:
//   - ErrNotTensor: if x is nil
//   - ValueError: if the feature range is empty or inverted
func (m *MinMaxScaler) Transform(x *tensor.Tensor) (_ *tensor.Tensor, err error) {
	defer scigoErrors.Recover(&err, "MinMaxScaler.Transform")
	if x == nil {
		return nil, scigoErrors.NewModelError("MinMaxScaler.Transform", "nil input", scigoErrors.ErrNotTensor)
	}
	lo, hi := m.FeatureRange[0], m.FeatureRange[1]
	if !(hi > lo) {
		return nil, scigoErrors.NewValueError("MinMaxScaler.Transform",
			fmt.Sprintf("invalid feature range [%g, %g]", lo, hi))
	}

	out := x.Clone()
	_, c := out.Dims()
	vals := out.Values()
	for i := 0; i < out.Len(); i++ {
		row := vals[i*c : (i+1)*c]
		min, max := row[0], row[0]
		for _, v := range row[1:] {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		// 定数サンプルは下限に揃える
		scale := max - min
		if math.Abs(scale) < 1e-12 {
			for j := range row {
				row[j] = lo
			}
			continue
		}
		for j, v := range row {
			row[j] = (v-min)/scale*(hi-lo) + lo
		}
	}
	return out, nil
}

// String はスケーラーの文字列表現を返す
func (m *MinMaxScaler) String() string {
	return fmt.Sprintf("MinMaxScaler(feature_range=[%.1f, %.1f])",
		m.FeatureRange[0], m.FeatureRange[1])
}

// NormalizeImages scales every image to [0, 1].
func NormalizeImages(x *tensor.Tensor) (*tensor.Tensor, error) {
	return NewMinMaxScalerDefault().Transform(x)
}
