// Package optim implements first-order optimizers over model parameters.
package optim

import (
	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/tensor"
)

// Optimizer updates the trainable parameters it was constructed with.
type Optimizer interface {
	ZeroGrad()
	Step() error
	State() State
}

// State is the serializable optimizer state stored in checkpoints.
type State struct {
	Name  string             `json:"name"`
	Hyper map[string]float64 `json:"hyper"`
	Steps int                `json:"steps"`
	// Slots holds per-parameter moment estimates keyed "<slot>/<param>".
	Slots map[string]tensor.Record `json:"slots,omitempty"`
}

func zeroGrad(params []*model.Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

func trainable(params []*model.Parameter) []*model.Parameter {
	out := make([]*model.Parameter, 0, len(params))
	for _, p := range params {
		if p.Trainable() {
			out = append(out, p)
		}
	}
	return out
}
