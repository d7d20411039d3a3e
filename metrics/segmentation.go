package metrics

import (
	"fmt"

	"github.com/ezoic/atomtrain/core/tensor"
	scigoErrors "github.com/ezoic/atomtrain/pkg/errors"
)

// PredictedClasses converts network logits (N, C, spatial...) to a class map
// (N, spatial...). With one channel a pixel is foreground when its logit is
// positive (sigmoid probability above 0.5); otherwise the arg-max channel wins.
func PredictedClasses(logits *tensor.Tensor) (*tensor.Tensor, error) {
	if logits == nil || logits.Rank() < 2 {
		return nil, scigoErrors.NewValueError("PredictedClasses", "logits must be (N, C, ...)")
	}
	n, c := logits.Dim(0), logits.Dim(1)
	s := logits.Size() / (n * c)
	z := logits.Values()
	out := make([]float64, n*s)
	for i := 0; i < n; i++ {
		for j := 0; j < s; j++ {
			if c == 1 {
				if z[i*s+j] > 0 {
					out[i*s+j] = 1
				}
				continue
			}
			best, bestV := 0, z[(i*c)*s+j]
			for k := 1; k < c; k++ {
				if v := z[(i*c+k)*s+j]; v > bestV {
					best, bestV = k, v
				}
			}
			out[i*s+j] = float64(best)
		}
	}
	shape := append([]int{n}, logits.Shape()[2:]...)
	if len(shape) == 1 {
		shape = append(shape, 1)
	}
	return tensor.New(out, shape...)
}

// confusion accumulates a classes x classes matrix indexed [true][pred].
func confusion(op string, classes int, labels, pred *tensor.Tensor) ([][]float64, error) {
	if labels.Size() != pred.Size() {
		return nil, scigoErrors.NewDimensionError(op, pred.Size(), labels.Size(), 0)
	}
	cm := make([][]float64, classes)
	for i := range cm {
		cm[i] = make([]float64, classes)
	}
	t, p := labels.Values(), pred.Values()
	for i := range t {
		ti, pi := int(t[i]), int(p[i])
		if ti < 0 || ti >= classes || pi >= classes {
			return nil, scigoErrors.NewValueError(op, fmt.Sprintf("class %d or %d outside [0, %d)", ti, pi, classes))
		}
		cm[ti][pi]++
	}
	return cm, nil
}

// IoU returns a Metric computing the mean intersection-over-union of the class
// map predicted from logits and the true labels, averaged over the classes
// that occur in either map. A binary model (nbClasses == 1) is scored over
// background and foreground.
//
// Labels are a float mask (binary) or class indices (multiclass), matching the
// targets fed to the segmentation losses.
func IoU(nbClasses int) Metric {
	classes := nbClasses
	if classes < 2 {
		classes = 2
	}
	return func(labels, logits *tensor.Tensor) (float64, error) {
		pred, err := PredictedClasses(logits)
		if err != nil {
			return 0, err
		}
		cm, err := confusion("IoU", classes, labels, pred)
		if err != nil {
			return 0, err
		}
		var sum float64
		counted := 0
		for c := 0; c < classes; c++ {
			inter := cm[c][c]
			union := -inter
			for k := 0; k < classes; k++ {
				union += cm[c][k] + cm[k][c]
			}
			if union == 0 {
				continue
			}
			sum += inter / union
			counted++
		}
		if counted == 0 {
			return 1, nil
		}
		return sum / float64(counted), nil
	}
}

// PixelAccuracy is a Metric giving the fraction of pixels whose predicted
// class equals the label.
func PixelAccuracy(labels, logits *tensor.Tensor) (float64, error) {
	pred, err := PredictedClasses(logits)
	if err != nil {
		return 0, err
	}
	if labels.Size() != pred.Size() {
		return 0, scigoErrors.NewDimensionError("PixelAccuracy", pred.Size(), labels.Size(), 0)
	}
	correct := 0
	t, p := labels.Values(), pred.Values()
	for i := range t {
		if int(t[i]) == int(p[i]) {
			correct++
		}
	}
	return float64(correct) / float64(len(t)), nil
}
