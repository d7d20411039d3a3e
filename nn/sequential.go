package nn

import (
	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// Sequential chains layers and implements model.Trainable.
type Sequential struct {
	desc     model.Descriptor
	layers   []Layer
	params   []*model.Parameter
	training bool
}

var _ model.Trainable = (*Sequential)(nil)

// NewSequential stacks layers. The network starts in training mode.
func NewSequential(desc model.Descriptor, layers ...Layer) *Sequential {
	s := &Sequential{desc: desc, layers: append([]Layer(nil), layers...), training: true}
	for _, l := range s.layers {
		s.params = append(s.params, l.Params()...)
	}
	return s
}

// Forward runs x through every layer.
func (s *Sequential) Forward(x *tensor.Tensor) (out *tensor.Tensor, err error) {
	defer errors.Recover(&err, "nn.Sequential.Forward")
	if x == nil {
		return nil, errors.NewModelError("nn.Sequential.Forward", "nil input", errors.ErrNotTensor)
	}
	out = x
	for _, l := range s.layers {
		out, err = l.Forward(out, s.training)
		if err != nil {
			return nil, errors.Wrapf(err, "layer %s", l.Name())
		}
	}
	return out, nil
}

// Backward propagates grad from the output through every layer in reverse.
func (s *Sequential) Backward(grad *tensor.Tensor) (err error) {
	defer errors.Recover(&err, "nn.Sequential.Backward")
	g := grad
	for i := len(s.layers) - 1; i >= 0; i-- {
		g, err = s.layers[i].Backward(g)
		if err != nil {
			return errors.Wrapf(err, "layer %s", s.layers[i].Name())
		}
	}
	return nil
}

// Train switches to training mode.
func (s *Sequential) Train() { s.training = true }

// Eval switches to inference mode.
func (s *Sequential) Eval() { s.training = false }

// Training reports the current mode.
func (s *Sequential) Training() bool { return s.training }

func (s *Sequential) Parameters() []*model.Parameter { return s.params }

func (s *Sequential) StateDict() model.StateDict { return model.StateDictOf(s.params) }

func (s *Sequential) LoadStateDict(sd model.StateDict) error { return model.LoadInto(s.params, sd) }

func (s *Sequential) Descriptor() model.Descriptor { return s.desc }

// Layers returns the stacked layers.
func (s *Sequential) Layers() []Layer { return s.layers }

// HasBatchNorm reports whether any layer is a BatchNorm.
func (s *Sequential) HasBatchNorm() bool {
	for _, l := range s.layers {
		if _, ok := l.(*BatchNorm); ok {
			return true
		}
	}
	return false
}
