// Package tensor provides the dense N-dimensional array used for images,
// spectra, labels and model parameters.
//
// A Tensor stores its elements row-major in a gonum *mat.Dense whose rows are
// the leading (sample) axis and whose columns are the flattened trailing axes.
// Batch slicing along the sample axis is therefore a zero-copy mat.Dense row
// slice, and matrix products on (batch, features) tensors go straight to gonum.
package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/atomtrain/pkg/errors"
)

// Tensor is a multidimensional array structure wrapping gonum/mat.Dense
type Tensor struct {
	data  *mat.Dense
	shape []int
}

// New creates a tensor backed by data (not copied).
func New(data []float64, shape ...int) (*Tensor, error) {
	if len(shape) == 0 {
		return nil, errors.NewValueError("tensor.New", "shape must be provided")
	}

	size := 1
	for _, s := range shape {
		if s <= 0 {
			return nil, errors.NewValueError("tensor.New", "all dimensions must be positive")
		}
		size *= s
	}

	if len(data) != size {
		return nil, errors.NewDimensionError("tensor.New", size, len(data), 0)
	}

	return &Tensor{
		data:  mat.NewDense(shape[0], size/shape[0], data),
		shape: append([]int{}, shape...),
	}, nil
}

// MustNew is New that panics on error. Use it for literals in tests and examples.
func MustNew(data []float64, shape ...int) *Tensor {
	t, err := New(data, shape...)
	if err != nil {
		panic(err)
	}
	return t
}

// Zeros creates a zero-filled tensor.
func Zeros(shape ...int) *Tensor {
	size := 1
	for _, s := range shape {
		size *= s
	}
	return MustNew(make([]float64, size), shape...)
}

// ZerosLike creates a zero-filled tensor with the shape of t.
func ZerosLike(t *Tensor) *Tensor {
	return Zeros(t.shape...)
}

// Full creates a tensor filled with v.
func Full(v float64, shape ...int) *Tensor {
	t := Zeros(shape...)
	vals := t.Values()
	for i := range vals {
		vals[i] = v
	}
	return t
}

// FromDense wraps a 2D gonum matrix. The matrix is copied when its storage is
// not contiguous.
func FromDense(dense *mat.Dense) *Tensor {
	r, c := dense.Dims()
	raw := dense.RawMatrix()
	if raw.Stride != c {
		var cp mat.Dense
		cp.CloneFrom(dense)
		dense = &cp
	}
	return &Tensor{data: dense, shape: []int{r, c}}
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() []int {
	return append([]int{}, t.shape...)
}

// Dim returns the size of axis i. Negative i counts from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

// Rank returns the number of axes.
func (t *Tensor) Rank() int {
	return len(t.shape)
}

// Len returns the number of samples (size of axis 0).
func (t *Tensor) Len() int {
	return t.shape[0]
}

// Size returns the total number of elements.
func (t *Tensor) Size() int {
	r, c := t.data.Dims()
	return r * c
}

// Dims returns the matrix view dimensions: samples and flattened features.
func (t *Tensor) Dims() (int, int) {
	return t.data.Dims()
}

// Dense returns the underlying matrix view. It shares storage with t.
func (t *Tensor) Dense() *mat.Dense {
	return t.data
}

// Values returns the backing slice in row-major order. It shares storage with t.
func (t *Tensor) Values() []float64 {
	raw := t.data.RawMatrix()
	r, c := t.data.Dims()
	return raw.Data[:r*c]
}

// RawData returns a copy of the elements in row-major order.
func (t *Tensor) RawData() []float64 {
	return append([]float64(nil), t.Values()...)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return MustNew(t.RawData(), t.shape...)
}

// SameShape reports whether t and o have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.shape) != len(o.shape) {
		return false
	}
	for i := range t.shape {
		if t.shape[i] != o.shape[i] {
			return false
		}
	}
	return true
}

func (t *Tensor) offset(idx []int) int {
	if len(idx) != len(t.shape) {
		panic(fmt.Sprintf("tensor: got %d indices for rank %d", len(idx), len(t.shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index %d out of range for axis %d of size %d", v, i, t.shape[i]))
		}
		off = off*t.shape[i] + v
	}
	return off
}

// At returns the element at idx.
func (t *Tensor) At(idx ...int) float64 {
	return t.Values()[t.offset(idx)]
}

// Set stores v at idx.
func (t *Tensor) Set(v float64, idx ...int) {
	t.Values()[t.offset(idx)] = v
}

// Reshape returns a view with a new shape and the same number of elements.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	size := 1
	for _, s := range shape {
		size *= s
	}
	if size != t.Size() {
		return nil, errors.Newf("cannot reshape tensor of size %d to size %d", t.Size(), size)
	}
	return New(t.Values(), shape...)
}

// Slice returns samples [start, end) along axis 0 as a view.
func (t *Tensor) Slice(start, end int) (*Tensor, error) {
	if start < 0 || end > t.shape[0] || start >= end {
		return nil, errors.Newf("invalid slice [%d:%d] for %d samples", start, end, t.shape[0])
	}
	_, c := t.data.Dims()
	shape := append([]int{end - start}, t.shape[1:]...)
	return &Tensor{
		data:  t.data.Slice(start, end, 0, c).(*mat.Dense),
		shape: shape,
	}, nil
}

// Head returns at most n leading samples as a view.
func (t *Tensor) Head(n int) *Tensor {
	if n >= t.shape[0] {
		return t
	}
	s, _ := t.Slice(0, n)
	return s
}

// Sample returns sample i as a view of shape t.Shape()[1:] (or [1] for 1D tensors).
func (t *Tensor) Sample(i int) *Tensor {
	_, c := t.data.Dims()
	shape := t.shape[1:]
	if len(shape) == 0 {
		shape = []int{1}
	}
	return MustNew(t.Values()[i*c:(i+1)*c], shape...)
}

// Gather copies the samples at indices into a new tensor.
func (t *Tensor) Gather(indices []int) *Tensor {
	_, c := t.data.Dims()
	out := make([]float64, 0, len(indices)*c)
	vals := t.Values()
	for _, i := range indices {
		out = append(out, vals[i*c:(i+1)*c]...)
	}
	shape := append([]int{len(indices)}, t.shape[1:]...)
	return MustNew(out, shape...)
}

// Stack joins tensors of identical shape along a new leading axis.
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, errors.NewModelError("tensor.Stack", "nothing to stack", errors.ErrEmptyData)
	}
	out := make([]float64, 0, len(ts)*ts[0].Size())
	for i, s := range ts {
		if !s.SameShape(ts[0]) {
			return nil, errors.NewDimensionError("tensor.Stack", ts[0].Size(), s.Size(), i)
		}
		out = append(out, s.Values()...)
	}
	return New(out, append([]int{len(ts)}, ts[0].shape...)...)
}

// Fill sets every element to v.
func (t *Tensor) Fill(v float64) {
	vals := t.Values()
	for i := range vals {
		vals[i] = v
	}
}

// Scale multiplies every element by c in place.
func (t *Tensor) Scale(c float64) {
	floats.Scale(c, t.Values())
}

// AddScaled computes t += alpha*o in place.
func (t *Tensor) AddScaled(alpha float64, o *Tensor) error {
	if t.Size() != o.Size() {
		return errors.NewDimensionError("Tensor.AddScaled", t.Size(), o.Size(), 0)
	}
	floats.AddScaled(t.Values(), alpha, o.Values())
	return nil
}

// CopyFrom overwrites t with the elements of o.
func (t *Tensor) CopyFrom(o *Tensor) error {
	if t.Size() != o.Size() {
		return errors.NewDimensionError("Tensor.CopyFrom", t.Size(), o.Size(), 0)
	}
	copy(t.Values(), o.Values())
	return nil
}

// Apply replaces every element x with fn(x).
func (t *Tensor) Apply(fn func(float64) float64) {
	vals := t.Values()
	for i, v := range vals {
		vals[i] = fn(v)
	}
}

// Sum returns the sum of all elements.
func (t *Tensor) Sum() float64 {
	return floats.Sum(t.Values())
}

// Mean returns the arithmetic mean of all elements.
func (t *Tensor) Mean() float64 {
	return t.Sum() / float64(t.Size())
}

// Min and Max return the extreme elements.
func (t *Tensor) Min() float64 { return floats.Min(t.Values()) }

// Max returns the largest element.
func (t *Tensor) Max() float64 { return floats.Max(t.Values()) }

// String implements fmt.Stringer with the shape only.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.shape)
}
