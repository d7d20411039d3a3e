// Package nn provides the small convolutional encoder/decoder networks the
// trainers operate on.
//
// Layers implement explicit forward and backward passes over core/tensor
// values; a Sequential stack of layers implements model.Trainable.
package nn

import (
	"math"
	"math/rand/v2"

	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// Layer is one differentiable stage of a network.
//
// Forward caches whatever Backward needs; Backward consumes the gradient of the
// loss with respect to the layer output, accumulates parameter gradients and
// returns the gradient with respect to the layer input.
type Layer interface {
	Name() string
	Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error)
	Backward(grad *tensor.Tensor) (*tensor.Tensor, error)
	Params() []*model.Parameter
}

func newParam(name string, shape ...int) *model.Parameter {
	return &model.Parameter{Name: name, Value: tensor.Zeros(shape...), Grad: tensor.Zeros(shape...)}
}

func newBuffer(name string, v float64, shape ...int) *model.Parameter {
	return &model.Parameter{Name: name, Value: tensor.Full(v, shape...)}
}

// heInit fills p with N(0, 2/fanIn) samples.
func heInit(p *model.Parameter, fanIn int, rng *rand.Rand) {
	std := math.Sqrt(2.0 / float64(fanIn))
	vals := p.Value.Values()
	for i := range vals {
		vals[i] = rng.NormFloat64() * std
	}
}

func errNoForward(op string) error {
	return errors.NewValueError(op, "Backward called before Forward")
}
