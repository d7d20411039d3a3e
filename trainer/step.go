package trainer

import (
	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/losses"
	"github.com/ezoic/atomtrain/metrics"
	"github.com/ezoic/atomtrain/optim"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// StepResult is the outcome of one train or test step.
type StepResult struct {
	Loss        float64
	Accuracy    float64
	HasAccuracy bool
}

// StepExecutor runs single optimization and evaluation steps. It is the only
// place the controller touches model mode and parameters during a cycle.
type StepExecutor struct {
	model  model.Trainable
	opt    optim.Optimizer
	loss   losses.Func
	metric metrics.Metric
	steps  int
}

// NewStepExecutor binds a model, its optimizer and a loss. metric may be nil,
// in which case no accuracy is computed.
func NewStepExecutor(m model.Trainable, opt optim.Optimizer, loss losses.Func, metric metrics.Metric) *StepExecutor {
	return &StepExecutor{model: m, opt: opt, loss: loss, metric: metric}
}

// TrainStep performs forward, loss, backward and an optimizer update.
func (e *StepExecutor) TrainStep(b Batch) (res StepResult, err error) {
	defer errors.Recover(&err, "StepExecutor.TrainStep")
	e.model.Train()
	e.opt.ZeroGrad()

	pred, err := e.model.Forward(b.X)
	if err != nil {
		return res, errors.Wrap(err, "forward")
	}
	loss, grad, err := e.loss(pred, b.Y)
	if err != nil {
		return res, errors.Wrap(err, "loss")
	}
	if err := errors.CheckScalar("train loss", loss, e.steps); err != nil {
		return res, err
	}
	if err := e.model.Backward(grad); err != nil {
		return res, errors.Wrap(err, "backward")
	}
	if err := e.opt.Step(); err != nil {
		return res, errors.Wrap(err, "optimizer step")
	}
	e.steps++

	res.Loss = loss
	return e.score(res, b, pred)
}

// TestStep evaluates the model without updating it.
func (e *StepExecutor) TestStep(b Batch) (res StepResult, err error) {
	defer errors.Recover(&err, "StepExecutor.TestStep")
	e.model.Eval()

	pred, err := e.model.Forward(b.X)
	if err != nil {
		return res, errors.Wrap(err, "forward")
	}
	loss, _, err := e.loss(pred, b.Y)
	if err != nil {
		return res, errors.Wrap(err, "loss")
	}
	res.Loss = loss
	return e.score(res, b, pred)
}

func (e *StepExecutor) score(res StepResult, b Batch, pred *tensor.Tensor) (StepResult, error) {
	if e.metric == nil {
		return res, nil
	}
	acc, err := e.metric(b.Y, pred)
	if err != nil {
		return res, errors.Wrap(err, "accuracy")
	}
	res.Accuracy = acc
	res.HasAccuracy = true
	return res, nil
}

// Steps returns the number of optimizer updates performed.
func (e *StepExecutor) Steps() int {
	return e.steps
}
