// Package model defines the contract between the training controller and the
// networks it trains.
//
// A Trainable is an opaque network with a mutable parameter collection:
//
//	y, err := m.Forward(x)      // caches what Backward needs
//	err = m.Backward(dLossDy)   // accumulates parameter gradients
//	m.Train() / m.Eval()        // mode switch (batch normalization, dropout)
//	sd := m.StateDict()         // name -> tensor, shares storage
//	err = m.LoadStateDict(sd2)  // copies values in
//
// Models are owned exclusively by one trainer for its whole lifetime.
package model

import (
	"sort"

	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// Parameter is a named value and, for trainable parameters, its gradient.
// Buffers (batch-norm running statistics) have a nil Grad.
type Parameter struct {
	Name  string
	Value *tensor.Tensor
	Grad  *tensor.Tensor
}

// Trainable reports whether the optimizer should update p.
func (p *Parameter) Trainable() bool {
	return p.Grad != nil
}

// ZeroGrad clears the accumulated gradient.
func (p *Parameter) ZeroGrad() {
	if p.Grad != nil {
		p.Grad.Fill(0)
	}
}

// Trainable is the capability set the controller needs from a network.
type Trainable interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	Backward(grad *tensor.Tensor) error
	Train()
	Eval()
	Parameters() []*Parameter
	StateDict() StateDict
	LoadStateDict(sd StateDict) error
	Descriptor() Descriptor
}

// Descriptor identifies an architecture well enough to rebuild it from a checkpoint.
type Descriptor struct {
	Architecture string `json:"architecture"`
	NbClasses    int    `json:"nb_classes"`
	InDim        []int  `json:"in_dim,omitempty"`
	OutDim       []int  `json:"out_dim,omitempty"`
	NbFilters    int    `json:"nb_filters"`
	Layers       int    `json:"layers"`
	LatentDim    int    `json:"latent_dim,omitempty"`
	BatchNorm    bool   `json:"batch_norm"`
	Seed         uint64 `json:"seed"`
}

// StateDict maps parameter names to tensors.
type StateDict map[string]*tensor.Tensor

// Keys returns the parameter names in sorted order.
func (sd StateDict) Keys() []string {
	keys := make([]string, 0, len(sd))
	for k := range sd {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy detached from any model.
func (sd StateDict) Clone() StateDict {
	out := make(StateDict, len(sd))
	for k, v := range sd {
		out[k] = v.Clone()
	}
	return out
}

// StateDictOf collects the parameters into a StateDict sharing storage.
func StateDictOf(params []*Parameter) StateDict {
	sd := make(StateDict, len(params))
	for _, p := range params {
		sd[p.Name] = p.Value
	}
	return sd
}

// LoadInto copies sd into params. Every parameter must be present with a
// matching shape; extra keys are rejected.
func LoadInto(params []*Parameter, sd StateDict) error {
	if len(sd) != len(params) {
		return errors.NewDimensionError("model.LoadStateDict", len(params), len(sd), 0)
	}
	for _, p := range params {
		src, ok := sd[p.Name]
		if !ok {
			return errors.NewValueError("model.LoadStateDict", "missing parameter "+p.Name)
		}
		if !src.SameShape(p.Value) {
			return errors.NewModelError("model.LoadStateDict", "parameter "+p.Name, errors.ErrShapeMismatch)
		}
		if err := p.Value.CopyFrom(src); err != nil {
			return err
		}
	}
	return nil
}
