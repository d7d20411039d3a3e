// Package losses implements the training objectives selectable by tag.
//
// Every loss takes raw network outputs (logits for the segmentation losses)
// and returns the scalar loss together with its gradient with respect to the
// prediction, ready for model.Trainable.Backward.
//
// Segmentation targets follow the class count: with one class the target is a
// float mask shaped like the prediction (N, 1, H, W); with several classes it
// holds class indices shaped (N, H, W).
package losses

import (
	"fmt"
	"math"
	"strings"

	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// Func computes a loss and dLoss/dPrediction.
type Func func(pred, target *tensor.Tensor) (float64, *tensor.Tensor, error)

// Loss tags.
const (
	CrossEntropy = "ce"
	Dice         = "dice"
	Focal        = "focal"
	MSE          = "mse"
)

const eps = 1e-7

// Select resolves a loss tag for a model with nbClasses output channels.
// nbClasses is ignored by "mse".
func Select(tag string, nbClasses int) (Func, error) {
	switch strings.ToLower(tag) {
	case CrossEntropy:
		if nbClasses == 1 {
			return BinaryCrossEntropy, nil
		}
		return SoftmaxCrossEntropy, nil
	case Dice:
		return DiceLoss(nbClasses), nil
	case Focal:
		return FocalLoss(nbClasses, 0.5, 2), nil
	case MSE:
		return MeanSquaredError, nil
	}
	return nil, errors.NewModelError("losses.Select", fmt.Sprintf("tag %q", tag), errors.ErrUnknownLoss)
}

// MeanSquaredError is mean((pred-target)^2) over every element.
func MeanSquaredError(pred, target *tensor.Tensor) (float64, *tensor.Tensor, error) {
	if pred.Size() != target.Size() {
		return 0, nil, errors.NewDimensionError("losses.MSE", pred.Size(), target.Size(), 0)
	}
	n := float64(pred.Size())
	grad := tensor.ZerosLike(pred)
	p, t, g := pred.Values(), target.Values(), grad.Values()
	var loss float64
	for i := range p {
		d := p[i] - t[i]
		loss += d * d
		g[i] = 2 * d / n
	}
	return loss / n, grad, nil
}

// BinaryCrossEntropy is the mean sigmoid cross-entropy between logits and a
// float mask of the same size.
func BinaryCrossEntropy(pred, target *tensor.Tensor) (float64, *tensor.Tensor, error) {
	if pred.Size() != target.Size() {
		return 0, nil, errors.NewDimensionError("losses.BCE", pred.Size(), target.Size(), 0)
	}
	n := float64(pred.Size())
	grad := tensor.ZerosLike(pred)
	z, t, g := pred.Values(), target.Values(), grad.Values()
	var loss float64
	for i := range z {
		// max(z,0) - z*t + log(1+exp(-|z|))
		loss += math.Max(z[i], 0) - z[i]*t[i] + math.Log1p(math.Exp(-math.Abs(z[i])))
		g[i] = (sigmoid(z[i]) - t[i]) / n
	}
	return loss / n, grad, nil
}

// SoftmaxCrossEntropy is the mean negative log-likelihood of the target class
// under a softmax over the channel axis.
func SoftmaxCrossEntropy(pred, target *tensor.Tensor) (float64, *tensor.Tensor, error) {
	l, err := classLayout("losses.CE", pred, target)
	if err != nil {
		return 0, nil, err
	}
	probs := l.softmax(pred)
	grad := tensor.ZerosLike(pred)
	g, tv := grad.Values(), target.Values()
	m := float64(l.n * l.s)
	var loss float64
	for i := 0; i < l.n; i++ {
		for j := 0; j < l.s; j++ {
			cls := int(tv[i*l.s+j])
			for c := 0; c < l.c; c++ {
				idx := l.at(i, c, j)
				g[idx] = probs[idx] / m
			}
			idx := l.at(i, cls, j)
			loss -= math.Log(math.Max(probs[idx], eps))
			g[idx] -= 1 / m
		}
	}
	return loss / m, grad, nil
}

// DiceLoss returns 1 - soft Dice coefficient. One class uses sigmoid
// probabilities; several classes use softmax probabilities against one-hot
// targets and average the per-class coefficients.
func DiceLoss(nbClasses int) Func {
	return func(pred, target *tensor.Tensor) (float64, *tensor.Tensor, error) {
		if nbClasses == 1 {
			return binaryDice(pred, target)
		}
		return multiDice(pred, target)
	}
}

func binaryDice(pred, target *tensor.Tensor) (float64, *tensor.Tensor, error) {
	if pred.Size() != target.Size() {
		return 0, nil, errors.NewDimensionError("losses.Dice", pred.Size(), target.Size(), 0)
	}
	z, t := pred.Values(), target.Values()
	p := make([]float64, len(z))
	var inter, sum float64
	for i := range z {
		p[i] = sigmoid(z[i])
		inter += p[i] * t[i]
		sum += p[i] + t[i]
	}
	num, den := 2*inter+eps, sum+eps
	grad := tensor.ZerosLike(pred)
	g := grad.Values()
	for i := range z {
		// d(1 - num/den)/dp = -(2t*den - num)/den^2, times sigmoid'
		dp := -(2*t[i]*den - num) / (den * den)
		g[i] = dp * p[i] * (1 - p[i])
	}
	return 1 - num/den, grad, nil
}

func multiDice(pred, target *tensor.Tensor) (float64, *tensor.Tensor, error) {
	l, err := classLayout("losses.Dice", pred, target)
	if err != nil {
		return 0, nil, err
	}
	probs := l.softmax(pred)
	tv := target.Values()
	onehot := func(i, c, j int) float64 {
		if int(tv[i*l.s+j]) == c {
			return 1
		}
		return 0
	}

	inter := make([]float64, l.c)
	sum := make([]float64, l.c)
	for i := 0; i < l.n; i++ {
		for c := 0; c < l.c; c++ {
			for j := 0; j < l.s; j++ {
				p := probs[l.at(i, c, j)]
				t := onehot(i, c, j)
				inter[c] += p * t
				sum[c] += p + t
			}
		}
	}
	var dice float64
	dLdp := make([]float64, len(probs))
	for c := 0; c < l.c; c++ {
		num, den := 2*inter[c]+eps, sum[c]+eps
		dice += num / den
		for i := 0; i < l.n; i++ {
			for j := 0; j < l.s; j++ {
				t := onehot(i, c, j)
				dLdp[l.at(i, c, j)] = -(2*t*den - num) / (den * den) / float64(l.c)
			}
		}
	}
	grad := l.softmaxBackward(probs, dLdp, pred)
	return 1 - dice/float64(l.c), grad, nil
}

// FocalLoss down-weights well-classified pixels by (1-p_t)^gamma. alpha
// weights the positive class in the binary case.
func FocalLoss(nbClasses int, alpha, gamma float64) Func {
	return func(pred, target *tensor.Tensor) (float64, *tensor.Tensor, error) {
		if nbClasses == 1 {
			return binaryFocal(pred, target, alpha, gamma)
		}
		return multiFocal(pred, target, gamma)
	}
}

// focalTerm returns f(p_t) = -(1-p_t)^gamma log p_t and df/dp_t.
func focalTerm(pt, gamma float64) (float64, float64) {
	pt = math.Min(math.Max(pt, eps), 1-eps)
	q := 1 - pt
	f := -math.Pow(q, gamma) * math.Log(pt)
	df := gamma*math.Pow(q, gamma-1)*math.Log(pt) - math.Pow(q, gamma)/pt
	return f, df
}

func binaryFocal(pred, target *tensor.Tensor, alpha, gamma float64) (float64, *tensor.Tensor, error) {
	if pred.Size() != target.Size() {
		return 0, nil, errors.NewDimensionError("losses.Focal", pred.Size(), target.Size(), 0)
	}
	n := float64(pred.Size())
	grad := tensor.ZerosLike(pred)
	z, t, g := pred.Values(), target.Values(), grad.Values()
	var loss float64
	for i := range z {
		p := sigmoid(z[i])
		pt := t[i]*p + (1-t[i])*(1-p)
		at := alpha*t[i] + (1-alpha)*(1-t[i])
		f, df := focalTerm(pt, gamma)
		loss += at * f
		g[i] = at * df * (2*t[i] - 1) * p * (1 - p) / n
	}
	return loss / n, grad, nil
}

func multiFocal(pred, target *tensor.Tensor, gamma float64) (float64, *tensor.Tensor, error) {
	l, err := classLayout("losses.Focal", pred, target)
	if err != nil {
		return 0, nil, err
	}
	probs := l.softmax(pred)
	grad := tensor.ZerosLike(pred)
	g, tv := grad.Values(), target.Values()
	m := float64(l.n * l.s)
	var loss float64
	for i := 0; i < l.n; i++ {
		for j := 0; j < l.s; j++ {
			cls := int(tv[i*l.s+j])
			pt := probs[l.at(i, cls, j)]
			f, df := focalTerm(pt, gamma)
			loss += f
			for c := 0; c < l.c; c++ {
				delta := 0.0
				if c == cls {
					delta = 1
				}
				g[l.at(i, c, j)] = df * pt * (delta - probs[l.at(i, c, j)]) / m
			}
		}
	}
	return loss / m, grad, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// layout describes a (N, C, spatial...) prediction.
type layout struct {
	n, c, s int
}

func (l layout) at(i, c, j int) int {
	return (i*l.c+c)*l.s + j
}

func classLayout(op string, pred, target *tensor.Tensor) (layout, error) {
	if pred.Rank() < 2 {
		return layout{}, errors.NewDimensionError(op, 2, pred.Rank(), 0)
	}
	l := layout{n: pred.Dim(0), c: pred.Dim(1)}
	l.s = pred.Size() / (l.n * l.c)
	if target.Size() != l.n*l.s {
		return layout{}, errors.NewDimensionError(op, l.n*l.s, target.Size(), 0)
	}
	for _, v := range target.Values() {
		if v < 0 || int(v) >= l.c || v != math.Trunc(v) {
			return layout{}, errors.NewValueError(op, fmt.Sprintf("target class %v outside [0, %d)", v, l.c))
		}
	}
	return l, nil
}

func (l layout) softmax(pred *tensor.Tensor) []float64 {
	z := pred.Values()
	out := make([]float64, len(z))
	for i := 0; i < l.n; i++ {
		for j := 0; j < l.s; j++ {
			maxZ := math.Inf(-1)
			for c := 0; c < l.c; c++ {
				maxZ = math.Max(maxZ, z[l.at(i, c, j)])
			}
			var sum float64
			for c := 0; c < l.c; c++ {
				e := math.Exp(z[l.at(i, c, j)] - maxZ)
				out[l.at(i, c, j)] = e
				sum += e
			}
			for c := 0; c < l.c; c++ {
				out[l.at(i, c, j)] /= sum
			}
		}
	}
	return out
}

// softmaxBackward maps dL/dp to dL/dz through the softmax Jacobian.
func (l layout) softmaxBackward(probs, dLdp []float64, pred *tensor.Tensor) *tensor.Tensor {
	grad := tensor.ZerosLike(pred)
	g := grad.Values()
	for i := 0; i < l.n; i++ {
		for j := 0; j < l.s; j++ {
			var dot float64
			for c := 0; c < l.c; c++ {
				idx := l.at(i, c, j)
				dot += dLdp[idx] * probs[idx]
			}
			for c := 0; c < l.c; c++ {
				idx := l.at(i, c, j)
				g[idx] = probs[idx] * (dLdp[idx] - dot)
			}
		}
	}
	return grad
}
