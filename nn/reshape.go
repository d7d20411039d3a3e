package nn

import (
	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/tensor"
)

// Reshape changes the per-sample shape while keeping the sample axis.
type Reshape struct {
	name    string
	target  []int
	inShape []int
}

// NewReshape reshapes every sample to target.
func NewReshape(name string, target ...int) *Reshape {
	return &Reshape{name: name, target: append([]int(nil), target...)}
}

// NewFlatten reshapes every sample to a vector of features elements.
func NewFlatten(name string, features int) *Reshape {
	return NewReshape(name, features)
}

func (r *Reshape) Name() string               { return r.name }
func (r *Reshape) Params() []*model.Parameter { return nil }

func (r *Reshape) Forward(x *tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	r.inShape = x.Shape()
	return x.Reshape(append([]int{x.Len()}, r.target...)...)
}

func (r *Reshape) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	if r.inShape == nil {
		return nil, errNoForward("nn.Reshape.Backward")
	}
	return grad.Reshape(r.inShape...)
}
