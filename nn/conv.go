package nn

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/parallel"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// Conv2D is a stride-1 convolution with "same" zero padding.
//
// Inputs are (N, C, H, W) images or (N, C, L) signals; signals are treated as
// images of height 1 and need a kernel height of 1. Kernel sizes must be odd.
type Conv2D struct {
	name         string
	inCh, outCh  int
	kh, kw       int
	weight, bias *model.Parameter

	inShape []int
	cols    []*mat.Dense
}

// NewConv2D creates a convolution with He-initialized weights.
func NewConv2D(name string, inCh, outCh, kh, kw int, rng *rand.Rand) (*Conv2D, error) {
	if inCh <= 0 || outCh <= 0 {
		return nil, errors.NewValueError("nn.NewConv2D", "channel counts must be positive")
	}
	if kh%2 == 0 || kw%2 == 0 || kh <= 0 || kw <= 0 {
		return nil, errors.NewValueError("nn.NewConv2D", "kernel sizes must be odd and positive")
	}
	c := &Conv2D{
		name:   name,
		inCh:   inCh,
		outCh:  outCh,
		kh:     kh,
		kw:     kw,
		weight: newParam(name+".weight", outCh, inCh, kh, kw),
		bias:   newParam(name+".bias", outCh),
	}
	heInit(c.weight, inCh*kh*kw, rng)
	return c, nil
}

// Name returns the parameter prefix of the layer.
func (c *Conv2D) Name() string { return c.name }

// Params returns weight and bias.
func (c *Conv2D) Params() []*model.Parameter {
	return []*model.Parameter{c.weight, c.bias}
}

func (c *Conv2D) spatial(x *tensor.Tensor) (n, h, w int, err error) {
	switch x.Rank() {
	case 4:
		n, h, w = x.Dim(0), x.Dim(2), x.Dim(3)
	case 3:
		if c.kh != 1 {
			return 0, 0, 0, errors.NewValueError("nn.Conv2D", "signal inputs need a kernel height of 1")
		}
		n, h, w = x.Dim(0), 1, x.Dim(2)
	default:
		return 0, 0, 0, errors.NewDimensionError("nn.Conv2D", 4, x.Rank(), 0)
	}
	if x.Dim(1) != c.inCh {
		return 0, 0, 0, errors.NewDimensionError("nn.Conv2D", c.inCh, x.Dim(1), 1)
	}
	return n, h, w, nil
}

// Forward computes the convolution of every sample.
func (c *Conv2D) Forward(x *tensor.Tensor, _ bool) (*tensor.Tensor, error) {
	n, h, w, err := c.spatial(x)
	if err != nil {
		return nil, err
	}
	outShape := x.Shape()
	outShape[1] = c.outCh
	out := tensor.Zeros(outShape...)

	wm := mat.NewDense(c.outCh, c.inCh*c.kh*c.kw, c.weight.Value.Values())
	bias := c.bias.Value.Values()
	c.cols = make([]*mat.Dense, n)
	c.inShape = x.Shape()
	hw := h * w

	parallel.ParallelizeWithThreshold(n, 4, func(start, end int) {
		for i := start; i < end; i++ {
			col := c.im2col(x.Sample(i).Values(), h, w)
			c.cols[i] = col
			dst := mat.NewDense(c.outCh, hw, out.Values()[i*c.outCh*hw:(i+1)*c.outCh*hw])
			dst.Mul(wm, col)
			for o := 0; o < c.outCh; o++ {
				row := dst.RawRowView(o)
				for j := range row {
					row[j] += bias[o]
				}
			}
		}
	})
	return out, nil
}

// Backward accumulates weight and bias gradients and returns the input gradient.
func (c *Conv2D) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	if c.cols == nil {
		return nil, errNoForward("nn.Conv2D.Backward")
	}
	n := len(c.cols)
	_, hw := c.cols[0].Dims()
	if grad.Size() != n*c.outCh*hw {
		return nil, errors.NewDimensionError("nn.Conv2D.Backward", n*c.outCh*hw, grad.Size(), 0)
	}
	h, w := 1, hw
	if len(c.inShape) == 4 {
		h, w = c.inShape[2], c.inShape[3]
	}

	k := c.inCh * c.kh * c.kw
	wm := mat.NewDense(c.outCh, k, c.weight.Value.Values())
	dW := mat.NewDense(c.outCh, k, c.weight.Grad.Values())
	db := c.bias.Grad.Values()
	dx := tensor.Zeros(c.inShape...)

	var tmp mat.Dense
	var dcol mat.Dense
	for i := 0; i < n; i++ {
		g := mat.NewDense(c.outCh, hw, grad.Values()[i*c.outCh*hw:(i+1)*c.outCh*hw])
		tmp.Mul(g, c.cols[i].T())
		dW.Add(dW, &tmp)
		for o := 0; o < c.outCh; o++ {
			for _, v := range g.RawRowView(o) {
				db[o] += v
			}
		}
		dcol.Mul(wm.T(), g)
		c.col2im(&dcol, dx.Sample(i).Values(), h, w)
	}
	return dx, nil
}

// im2col lays out every receptive field of one (C, H, W) sample as a column.
func (c *Conv2D) im2col(src []float64, h, w int) *mat.Dense {
	ph, pw := c.kh/2, c.kw/2
	col := mat.NewDense(c.inCh*c.kh*c.kw, h*w, nil)
	for ci := 0; ci < c.inCh; ci++ {
		for ki := 0; ki < c.kh; ki++ {
			for kj := 0; kj < c.kw; kj++ {
				row := col.RawRowView((ci*c.kh+ki)*c.kw + kj)
				for y := 0; y < h; y++ {
					sy := y + ki - ph
					if sy < 0 || sy >= h {
						continue
					}
					for x := 0; x < w; x++ {
						sx := x + kj - pw
						if sx < 0 || sx >= w {
							continue
						}
						row[y*w+x] = src[(ci*h+sy)*w+sx]
					}
				}
			}
		}
	}
	return col
}

// col2im scatters column gradients back onto dst, accumulating overlaps.
func (c *Conv2D) col2im(col *mat.Dense, dst []float64, h, w int) {
	ph, pw := c.kh/2, c.kw/2
	for ci := 0; ci < c.inCh; ci++ {
		for ki := 0; ki < c.kh; ki++ {
			for kj := 0; kj < c.kw; kj++ {
				row := col.RawRowView((ci*c.kh+ki)*c.kw + kj)
				for y := 0; y < h; y++ {
					sy := y + ki - ph
					if sy < 0 || sy >= h {
						continue
					}
					for x := 0; x < w; x++ {
						sx := x + kj - pw
						if sx < 0 || sx >= w {
							continue
						}
						dst[(ci*h+sy)*w+sx] += row[y*w+x]
					}
				}
			}
		}
	}
}
