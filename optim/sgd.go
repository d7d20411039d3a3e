package optim

import (
	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// SGD is stochastic gradient descent with optional momentum and weight decay.
type SGD struct {
	params      []*model.Parameter
	lr          float64
	momentum    float64
	weightDecay float64
	velocity    map[string]*tensor.Tensor
	steps       int
}

// SGDOption configures an SGD optimizer.
type SGDOption func(*SGD)

// WithMomentum sets the momentum factor.
func WithMomentum(m float64) SGDOption {
	return func(o *SGD) { o.momentum = m }
}

// WithWeightDecay sets the L2 penalty.
func WithWeightDecay(wd float64) SGDOption {
	return func(o *SGD) { o.weightDecay = wd }
}

// NewSGD binds an SGD optimizer to params. Buffers without gradients are ignored.
func NewSGD(params []*model.Parameter, lr float64, opts ...SGDOption) (*SGD, error) {
	if lr <= 0 {
		return nil, errors.NewValueError("optim.NewSGD", "learning rate must be positive")
	}
	o := &SGD{params: trainable(params), lr: lr, velocity: map[string]*tensor.Tensor{}}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func (o *SGD) ZeroGrad() { zeroGrad(o.params) }

func (o *SGD) Step() error {
	o.steps++
	for _, p := range o.params {
		update := p.Grad
		if o.weightDecay > 0 {
			update = p.Grad.Clone()
			if err := update.AddScaled(o.weightDecay, p.Value); err != nil {
				return err
			}
		}
		if o.momentum > 0 {
			v, ok := o.velocity[p.Name]
			if !ok {
				v = tensor.ZerosLike(p.Value)
				o.velocity[p.Name] = v
			}
			v.Scale(o.momentum)
			if err := v.AddScaled(1, update); err != nil {
				return err
			}
			update = v
		}
		if err := p.Value.AddScaled(-o.lr, update); err != nil {
			return errors.Wrapf(err, "sgd step on %s", p.Name)
		}
	}
	return nil
}

func (o *SGD) State() State {
	st := State{
		Name:  "sgd",
		Hyper: map[string]float64{"lr": o.lr, "momentum": o.momentum, "weight_decay": o.weightDecay},
		Steps: o.steps,
		Slots: map[string]tensor.Record{},
	}
	for name, v := range o.velocity {
		st.Slots["velocity/"+name] = v.ToRecord()
	}
	return st
}
