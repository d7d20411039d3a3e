package nn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// Dense is a fully connected layer. Inputs of any rank are flattened to
// (N, features); the output is (N, out).
type Dense struct {
	name         string
	in, out      int
	weight, bias *model.Parameter

	x *tensor.Tensor
}

// NewDense creates a fully connected layer with He-initialized weights.
func NewDense(name string, in, out int, rng *rand.Rand) (*Dense, error) {
	if in <= 0 || out <= 0 {
		return nil, errors.NewValueError("nn.NewDense", "dimensions must be positive")
	}
	d := &Dense{
		name:   name,
		in:     in,
		out:    out,
		weight: newParam(name+".weight", in, out),
		bias:   newParam(name+".bias", out),
	}
	heInit(d.weight, in, rng)
	return d, nil
}

func (d *Dense) Name() string { return d.name }

func (d *Dense) Params() []*model.Parameter {
	return []*model.Parameter{d.weight, d.bias}
}

func (d *Dense) Forward(x *tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	n, f := x.Dims()
	if f != d.in {
		return nil, errors.NewDimensionError("nn.Dense", d.in, f, 1)
	}
	d.x = x
	out := tensor.Zeros(n, d.out)
	out.Dense().Mul(x.Dense(), d.weight.Value.Dense())
	bias := d.bias.Value.Values()
	for i := 0; i < n; i++ {
		row := out.Dense().RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}
	return out, nil
}

func (d *Dense) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	if d.x == nil {
		return nil, errNoForward("nn.Dense.Backward")
	}
	n, f := grad.Dims()
	if f != d.out || n != d.x.Len() {
		return nil, errors.NewDimensionError("nn.Dense.Backward", d.out, f, 1)
	}
	g := grad.Dense()

	var dW mat.Dense
	dW.Mul(d.x.Dense().T(), g)
	d.weight.Grad.Dense().Add(d.weight.Grad.Dense(), &dW)

	db := d.bias.Grad.Values()
	for i := 0; i < n; i++ {
		for j, v := range g.RawRowView(i) {
			db[j] += v
		}
	}

	dx := tensor.Zeros(d.x.Shape()...)
	dx.Dense().Mul(g, d.weight.Value.Dense().T())
	return dx, nil
}
