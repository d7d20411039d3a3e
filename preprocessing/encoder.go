package preprocessing

import (
	"fmt"
	"sort"

	"github.com/ezoic/atomtrain/core/tensor"
	scigoErrors "github.com/ezoic/atomtrain/pkg/errors"
)

// MaskEncoder maps the distinct values of a label mask (for example 0 and 255
// from an 8-bit annotation) to contiguous class indices 0..k-1.
type MaskEncoder struct {
	// Classes は学習したマスク値の一覧（ソート済み）
	Classes []float64

	classToIdx map[float64]int
	fitted     bool
}

// NewMaskEncoder は新しいMaskEncoderを作成する
//
// 使用例:
//
//	enc := preprocessing.NewMaskEncoder()
//	indices, err := enc.FitTransform(masks)
func NewMaskEncoder() *MaskEncoder {
	return &MaskEncoder{}
}

// Fit collects the sorted set of mask values.
func (e *MaskEncoder) Fit(labels *tensor.Tensor) (err error) {
	defer scigoErrors.Recover(&err, "MaskEncoder.Fit")
	if labels == nil {
		return scigoErrors.NewModelError("MaskEncoder.Fit", "nil labels", scigoErrors.ErrNotTensor)
	}

	seen := make(map[float64]bool)
	for _, v := range labels.Values() {
		seen[v] = true
	}
	e.Classes = make([]float64, 0, len(seen))
	for v := range seen {
		e.Classes = append(e.Classes, v)
	}
	sort.Float64s(e.Classes)

	e.classToIdx = make(map[float64]int, len(e.Classes))
	for i, v := range e.Classes {
		e.classToIdx[v] = i
	}
	e.fitted = true
	return nil
}

// Transform replaces each mask value with its class index. Values not seen
// during Fit are rejected.
func (e *MaskEncoder) Transform(labels *tensor.Tensor) (_ *tensor.Tensor, err error) {
	defer scigoErrors.Recover(&err, "MaskEncoder.Transform")
	if !e.fitted {
		return nil, scigoErrors.NewNotFittedError("MaskEncoder", "Transform")
	}
	if labels == nil {
		return nil, scigoErrors.NewModelError("MaskEncoder.Transform", "nil labels", scigoErrors.ErrNotTensor)
	}

	out := labels.Clone()
	vals := out.Values()
	for i, v := range vals {
		idx, ok := e.classToIdx[v]
		if !ok {
			return nil, scigoErrors.NewValueError("MaskEncoder.Transform",
				fmt.Sprintf("unknown mask value %g", v))
		}
		vals[i] = float64(idx)
	}
	return out, nil
}

// FitTransform fits the encoder and encodes labels in one step.
func (e *MaskEncoder) FitTransform(labels *tensor.Tensor) (*tensor.Tensor, error) {
	if err := e.Fit(labels); err != nil {
		return nil, err
	}
	return e.Transform(labels)
}

// InverseTransform maps class indices back to the original mask values.
func (e *MaskEncoder) InverseTransform(indices *tensor.Tensor) (_ *tensor.Tensor, err error) {
	defer scigoErrors.Recover(&err, "MaskEncoder.InverseTransform")
	if !e.fitted {
		return nil, scigoErrors.NewNotFittedError("MaskEncoder", "InverseTransform")
	}

	out := indices.Clone()
	vals := out.Values()
	for i, v := range vals {
		k := int(v)
		if k < 0 || k >= len(e.Classes) || float64(k) != v {
			return nil, scigoErrors.NewValueError("MaskEncoder.InverseTransform",
				fmt.Sprintf("invalid class index %g", v))
		}
		vals[i] = e.Classes[k]
	}
	return out, nil
}

// NumClasses returns the number of distinct values seen by Fit.
func (e *MaskEncoder) NumClasses() int {
	return len(e.Classes)
}
