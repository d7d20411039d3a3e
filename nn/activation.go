package nn

import (
	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// ReLU is the rectified linear activation.
type ReLU struct {
	name string
	mask []bool
}

func NewReLU(name string) *ReLU { return &ReLU{name: name} }

func (r *ReLU) Name() string               { return r.name }
func (r *ReLU) Params() []*model.Parameter { return nil }

func (r *ReLU) Forward(x *tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	out := x.Clone()
	vals := out.Values()
	r.mask = make([]bool, len(vals))
	for i, v := range vals {
		if v > 0 {
			r.mask[i] = true
		} else {
			vals[i] = 0
		}
	}
	return out, nil
}

func (r *ReLU) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	if r.mask == nil {
		return nil, errNoForward("nn.ReLU.Backward")
	}
	if grad.Size() != len(r.mask) {
		return nil, errors.NewDimensionError("nn.ReLU.Backward", len(r.mask), grad.Size(), 0)
	}
	dx := grad.Clone()
	vals := dx.Values()
	for i := range vals {
		if !r.mask[i] {
			vals[i] = 0
		}
	}
	return dx, nil
}
