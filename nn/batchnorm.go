package nn

import (
	"math"

	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
)

const (
	bnMomentum = 0.1
	bnEps      = 1e-5
)

// BatchNorm normalizes every channel (axis 1) over the batch and spatial axes.
// Running statistics are buffers: they travel with the state dict but are not
// trained.
type BatchNorm struct {
	name        string
	channels    int
	gamma, beta *model.Parameter
	runMean     *model.Parameter
	runVar      *model.Parameter

	xhat     []float64
	invStd   []float64
	shape    []int
	training bool
}

// NewBatchNorm creates a batch normalization layer over channels.
func NewBatchNorm(name string, channels int) *BatchNorm {
	bn := &BatchNorm{
		name:     name,
		channels: channels,
		gamma:    newParam(name+".gamma", channels),
		beta:     newParam(name+".beta", channels),
		runMean:  newBuffer(name+".running_mean", 0, channels),
		runVar:   newBuffer(name+".running_var", 1, channels),
	}
	bn.gamma.Value.Fill(1)
	return bn
}

func (bn *BatchNorm) Name() string { return bn.name }

func (bn *BatchNorm) Params() []*model.Parameter {
	return []*model.Parameter{bn.gamma, bn.beta, bn.runMean, bn.runVar}
}

func (bn *BatchNorm) layout(x *tensor.Tensor) (n, s int, err error) {
	if x.Rank() < 2 || x.Dim(1) != bn.channels {
		got := 0
		if x.Rank() >= 2 {
			got = x.Dim(1)
		}
		return 0, 0, errors.NewDimensionError("nn.BatchNorm", bn.channels, got, 1)
	}
	s = 1
	for _, d := range x.Shape()[2:] {
		s *= d
	}
	return x.Dim(0), s, nil
}

func (bn *BatchNorm) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	n, s, err := bn.layout(x)
	if err != nil {
		return nil, err
	}
	C := bn.channels
	src := x.Values()
	out := tensor.ZerosLike(x)
	dst := out.Values()
	gamma, beta := bn.gamma.Value.Values(), bn.beta.Value.Values()
	rm, rv := bn.runMean.Value.Values(), bn.runVar.Value.Values()

	bn.shape = x.Shape()
	bn.training = training
	bn.xhat = make([]float64, len(src))
	bn.invStd = make([]float64, C)
	m := float64(n * s)

	for c := 0; c < C; c++ {
		var mean, variance float64
		if training {
			for i := 0; i < n; i++ {
				for _, v := range src[(i*C+c)*s : (i*C+c+1)*s] {
					mean += v
				}
			}
			mean /= m
			for i := 0; i < n; i++ {
				for _, v := range src[(i*C+c)*s : (i*C+c+1)*s] {
					variance += (v - mean) * (v - mean)
				}
			}
			variance /= m
			unbiased := variance
			if m > 1 {
				unbiased = variance * m / (m - 1)
			}
			rm[c] = (1-bnMomentum)*rm[c] + bnMomentum*mean
			rv[c] = (1-bnMomentum)*rv[c] + bnMomentum*unbiased
		} else {
			mean, variance = rm[c], rv[c]
		}
		inv := 1 / math.Sqrt(variance+bnEps)
		bn.invStd[c] = inv
		for i := 0; i < n; i++ {
			base := (i*C + c) * s
			for j := 0; j < s; j++ {
				xh := (src[base+j] - mean) * inv
				bn.xhat[base+j] = xh
				dst[base+j] = gamma[c]*xh + beta[c]
			}
		}
	}
	return out, nil
}

func (bn *BatchNorm) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	if bn.xhat == nil {
		return nil, errNoForward("nn.BatchNorm.Backward")
	}
	if grad.Size() != len(bn.xhat) {
		return nil, errors.NewDimensionError("nn.BatchNorm.Backward", len(bn.xhat), grad.Size(), 0)
	}
	C := bn.channels
	n := bn.shape[0]
	s := len(bn.xhat) / (n * C)
	m := float64(n * s)
	g := grad.Values()
	dx := tensor.Zeros(bn.shape...)
	dst := dx.Values()
	gamma := bn.gamma.Value.Values()
	dgamma, dbeta := bn.gamma.Grad.Values(), bn.beta.Grad.Values()

	for c := 0; c < C; c++ {
		var sumG, sumGX float64
		for i := 0; i < n; i++ {
			base := (i*C + c) * s
			for j := 0; j < s; j++ {
				sumG += g[base+j]
				sumGX += g[base+j] * bn.xhat[base+j]
			}
		}
		dgamma[c] += sumGX
		dbeta[c] += sumG

		scale := gamma[c] * bn.invStd[c]
		for i := 0; i < n; i++ {
			base := (i*C + c) * s
			for j := 0; j < s; j++ {
				if bn.training {
					dst[base+j] = scale / m * (m*g[base+j] - sumG - bn.xhat[base+j]*sumGX)
				} else {
					dst[base+j] = scale * g[base+j]
				}
			}
		}
	}
	return dx, nil
}
