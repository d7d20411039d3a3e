package optim

import (
	"math"

	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// DefaultLearningRate is the Adam step size used when a trainer is not given
// an optimizer.
const DefaultLearningRate = 1e-3

// Adam implements the Adam optimizer with bias correction.
type Adam struct {
	params []*model.Parameter
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	m      map[string]*tensor.Tensor
	v      map[string]*tensor.Tensor
	steps  int
}

// AdamOption configures an Adam optimizer.
type AdamOption func(*Adam)

// WithBetas sets the moment decay rates.
func WithBetas(beta1, beta2 float64) AdamOption {
	return func(o *Adam) {
		o.beta1 = beta1
		o.beta2 = beta2
	}
}

// WithEpsilon sets the denominator stabilizer.
func WithEpsilon(eps float64) AdamOption {
	return func(o *Adam) { o.eps = eps }
}

// NewAdam binds an Adam optimizer to params. Buffers without gradients are ignored.
func NewAdam(params []*model.Parameter, lr float64, opts ...AdamOption) (*Adam, error) {
	if lr <= 0 {
		return nil, errors.NewValueError("optim.NewAdam", "learning rate must be positive")
	}
	o := &Adam{
		params: trainable(params),
		lr:     lr,
		beta1:  0.9,
		beta2:  0.999,
		eps:    1e-8,
		m:      map[string]*tensor.Tensor{},
		v:      map[string]*tensor.Tensor{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.beta1 < 0 || o.beta1 >= 1 || o.beta2 < 0 || o.beta2 >= 1 {
		return nil, errors.NewValueError("optim.NewAdam", "betas must be in [0, 1)")
	}
	return o, nil
}

func (o *Adam) ZeroGrad() { zeroGrad(o.params) }

func (o *Adam) Step() error {
	o.steps++
	bc1 := 1 - math.Pow(o.beta1, float64(o.steps))
	bc2 := 1 - math.Pow(o.beta2, float64(o.steps))
	for _, p := range o.params {
		m, ok := o.m[p.Name]
		if !ok {
			m = tensor.ZerosLike(p.Value)
			o.m[p.Name] = m
			o.v[p.Name] = tensor.ZerosLike(p.Value)
		}
		v := o.v[p.Name]
		if m.Size() != p.Grad.Size() {
			return errors.NewDimensionError("optim.Adam.Step", m.Size(), p.Grad.Size(), 0)
		}
		g, mv, vv, w := p.Grad.Values(), m.Values(), v.Values(), p.Value.Values()
		for i := range w {
			mv[i] = o.beta1*mv[i] + (1-o.beta1)*g[i]
			vv[i] = o.beta2*vv[i] + (1-o.beta2)*g[i]*g[i]
			w[i] -= o.lr * (mv[i] / bc1) / (math.Sqrt(vv[i]/bc2) + o.eps)
		}
	}
	return nil
}

func (o *Adam) State() State {
	st := State{
		Name:  "adam",
		Hyper: map[string]float64{"lr": o.lr, "beta1": o.beta1, "beta2": o.beta2, "eps": o.eps},
		Steps: o.steps,
		Slots: map[string]tensor.Record{},
	}
	for name, m := range o.m {
		st.Slots["exp_avg/"+name] = m.ToRecord()
		st.Slots["exp_avg_sq/"+name] = o.v[name].ToRecord()
	}
	return st
}
