// Package trainer drives the training of encoder/decoder networks.
//
// A Controller binds a model.Trainable, an optimizer, a loss and a
// BatchSource, then runs a fixed number of training cycles. Two iteration
// modes are supported:
//
//   - full-epoch: every cycle sweeps the whole train partition, then the
//     whole test partition, and records the mean per-batch loss
//   - fixed-cycle: every cycle performs one train step and one test step on
//     batches chosen at random before training starts
//
// Optional stochastic weight averaging (SWA) collects the weights of the last
// cycles and loads their mean at the end of training. Optional weight
// perturbation adds decaying Gaussian noise to the weights during
// fixed-cycle training.
//
// Example:
//
//	ctrl := trainer.NewController(net, opt)
//	cfg := trainer.NewConfig(trainer.WithTrainingCycles(500), trainer.WithSWA(true))
//	if err := ctrl.Compile(source, loss, nil, cfg); err != nil {
//		return err
//	}
//	res, err := ctrl.Fit()
package trainer

import (
	"fmt"
	"time"

	"github.com/ezoic/atomtrain/checkpoint"
	"github.com/ezoic/atomtrain/core/device"
	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/losses"
	"github.com/ezoic/atomtrain/metrics"
	"github.com/ezoic/atomtrain/optim"
	"github.com/ezoic/atomtrain/pkg/errors"
	"github.com/ezoic/atomtrain/pkg/log"
	"github.com/ezoic/atomtrain/visualize"
)

var globalProvider log.LoggerProvider

// Augmenter transforms a batch before it is fed to a step. step is the
// number of completed training cycles.
type Augmenter interface {
	Augment(b Batch, step int) (Batch, error)
}

// AugmenterFunc adapts a function to Augmenter.
type AugmenterFunc func(b Batch, step int) (Batch, error)

// Augment calls f(b, step).
func (f AugmenterFunc) Augment(b Batch, step int) (Batch, error) { return f(b, step) }

// Evaluation is a full deterministic pass over the test partition.
type Evaluation struct {
	Name        string
	Loss        float64
	Accuracy    float64
	HasAccuracy bool
}

// Result is returned by a successful Fit.
type Result struct {
	Model          model.Trainable
	History        History
	Evaluations    []Evaluation
	CheckpointPath string
	// PlotPath is empty when plotting is disabled or failed.
	PlotPath string
	// Steps is the number of optimizer updates performed.
	Steps int
}

// Controller runs one training job. A controller trains exactly once.
type Controller struct {
	state  *model.StateManager
	logger log.Logger

	model  model.Trainable
	opt    optim.Optimizer
	meta   *checkpoint.MetaState
	device device.Info

	cfg       Config
	source    BatchSource
	exec      *StepExecutor
	snapshots *SnapshotManager
	augmenter Augmenter
	reporter  Reporter

	history History
}

// NewController takes ownership of m and its optimizer. It probes the
// compute device and warns when training falls back to the host.
func NewController(m model.Trainable, opt optim.Optimizer) *Controller {
	if globalProvider == nil {
		globalProvider = log.NewZerologProvider(log.ToLogLevel("info"))
	}
	logger := globalProvider.GetLoggerWithName("Trainer")

	c := &Controller{
		state:  model.NewStateManager(),
		logger: logger,
		model:  m,
		opt:    opt,
		meta:   checkpoint.New(m.Descriptor()),
		device: device.DetectWithWarning(),
	}
	c.reporter = NewLogReporter(logger)
	c.meta.SetWeights(m.StateDict())
	c.meta.SetOptimizer(opt.State())
	return c
}

// SetLogger replaces the controller logger and the default reporter.
func (c *Controller) SetLogger(l log.Logger) {
	c.logger = l
	c.reporter = NewLogReporter(l)
}

// SetReporter replaces the progress reporter.
func (c *Controller) SetReporter(r Reporter) {
	c.reporter = r
}

// SetAugmenter installs a batch transform applied to every batch drawn
// during training cycles. Final evaluations use untransformed batches.
func (c *Controller) SetAugmenter(a Augmenter) {
	c.augmenter = a
}

// Augmenter returns the installed batch transform, nil when none.
func (c *Controller) Augmenter() Augmenter {
	return c.augmenter
}

// Compile binds the data, loss and optional accuracy metric and validates the
// configuration. metric is required when cfg.ComputeAccuracy is set.
func (c *Controller) Compile(source BatchSource, loss losses.Func, metric metrics.Metric, cfg Config) (err error) {
	const op = "trainer.Compile"
	defer errors.Recover(&err, op)

	if source == nil {
		return errors.NewConfigError(op, "no batch source", errors.ErrNotTensor)
	}
	if loss == nil {
		return errors.NewConfigError(op, "no loss function", errors.ErrUnknownLoss)
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return err
	}
	if cfg.FullEpoch != source.FullEpoch() {
		return errors.NewConfigError(op,
			fmt.Sprintf("full_epoch=%t does not match the batch source", cfg.FullEpoch), nil)
	}
	if cfg.Perturb != nil && hasBatchNorm(c.model) {
		return errors.NewConfigError(op, "perturb_weights with batch normalization", errors.ErrBatchNormPerturbation)
	}
	if cfg.ComputeAccuracy && metric == nil {
		return errors.NewConfigError(op, "compute_accuracy needs a metric", nil)
	}
	if !cfg.ComputeAccuracy {
		metric = nil
	}
	for _, s := range []Stream{Train, Test} {
		if source.NumBatches(s) == 0 {
			return errors.NewConfigError(op, s.String()+" partition is empty", errors.ErrEmptyData)
		}
	}

	first, err := source.Batch(0, Train)
	if err != nil {
		return err
	}
	desc := c.model.Descriptor()
	if err := c.state.SetConfigured(source.NumSamples(Train),
		first.X.Shape()[1:], first.Y.Shape()[1:], desc.NbClasses); err != nil {
		return err
	}

	c.cfg = cfg
	c.source = source
	c.exec = NewStepExecutor(c.model, c.opt, loss, metric)
	c.snapshots = NewSnapshotManager(c.model, cfg.TrainingCycles, cfg.FullEpoch, cfg.Perturb, cfg.Seed)
	for k, v := range cfg.asMap() {
		c.meta.Set(k, v)
	}

	c.logger.Info("trainer compiled",
		log.OperationKey, log.OperationCompile,
		log.CyclesKey, cfg.TrainingCycles,
		log.BatchSizeKey, cfg.BatchSize,
		log.FullEpochKey, cfg.FullEpoch,
		log.SamplesKey, source.NumSamples(Train),
		log.BatchesKey, source.NumBatches(Train),
		log.DeviceKey, c.device.String(),
	)
	return nil
}

func hasBatchNorm(m model.Trainable) bool {
	if bn, ok := m.(interface{ HasBatchNorm() bool }); ok {
		return bn.HasBatchNorm()
	}
	return m.Descriptor().BatchNorm
}

// Phase returns the lifecycle phase of the controller.
func (c *Controller) Phase() model.Phase {
	return c.state.Current()
}

// Config returns the compiled configuration with defaults filled in.
func (c *Controller) Config() Config {
	return c.cfg
}

// History returns a copy of the recorded metrics.
func (c *Controller) History() History {
	return c.history.Clone()
}

// Meta returns the checkpoint meta-state.
func (c *Controller) Meta() *checkpoint.MetaState {
	return c.meta
}

// Fit runs the configured number of cycles, then saves the final checkpoint,
// evaluates the model (fixed-cycle mode), applies SWA and plots the history
// as configured.
func (c *Controller) Fit() (_ *Result, err error) {
	defer errors.Recover(&err, "Controller.Fit")
	if err := c.state.Begin(); err != nil {
		return nil, err
	}
	defer c.state.Finish()

	start := time.Now()
	nSamples, inShape, _ := c.state.GetDimensions()
	c.logger.Info("training started",
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhaseTraining,
		log.CyclesKey, c.cfg.TrainingCycles,
		log.SamplesKey, nSamples,
		log.FeaturesKey, inShape,
	)

	for cycle := 0; cycle < c.cfg.TrainingCycles; cycle++ {
		train, test, err := c.runCycle(cycle)
		if err != nil {
			return nil, errors.Wrapf(err, "training cycle %d", cycle)
		}
		c.history.Append(train, test)

		if c.cfg.SWA {
			c.snapshots.SaveRunning(cycle)
		}
		if !c.cfg.FullEpoch {
			changed, err := c.snapshots.Perturb(cycle)
			if err != nil {
				return nil, errors.Wrapf(err, "training cycle %d", cycle)
			}
			if changed {
				c.logger.Debug("weights perturbed",
					log.OperationKey, log.OperationPerturb,
					log.CycleKey, cycle,
					log.VarianceKey, c.snapshots.Variance(cycle))
			}
		}
		if shouldReport(cycle, c.cfg.PrintLoss) && c.reporter != nil {
			c.reporter.Report(newReport(cycle, c.cfg.TrainingCycles, train, test, c.cfg.AccuracyLabel))
		}
	}

	if n := c.history.Len(); n > 1 && c.history.TrainLoss[n-1] >= c.history.TrainLoss[0] {
		errors.Warn(errors.NewConvergenceWarning("Controller.Fit", n, "training loss did not decrease"))
	}

	res, err := c.finish()
	if err != nil {
		return nil, err
	}
	c.logger.Info("training finished",
		log.OperationKey, log.OperationFit,
		log.PhaseKey, log.PhaseFinalize,
		log.DurationMsKey, time.Since(start).Milliseconds(),
		log.PathKey, res.CheckpointPath,
	)
	return res, nil
}

func (c *Controller) runCycle(cycle int) (train, test StepResult, err error) {
	step := c.history.Len()
	if c.cfg.FullEpoch {
		if train, err = c.sweep(Train, step, c.exec.TrainStep); err != nil {
			return
		}
		test, err = c.sweep(Test, step, c.exec.TestStep)
		return
	}

	if train, err = c.single(cycle, Train, step, c.exec.TrainStep); err != nil {
		return
	}
	test, err = c.single(cycle, Test, step, c.exec.TestStep)
	return
}

func (c *Controller) augment(b Batch, step int) (Batch, error) {
	if c.augmenter == nil {
		return b, nil
	}
	out, err := c.augmenter.Augment(b, step)
	if err != nil {
		return Batch{}, errors.Wrap(err, "augmentation")
	}
	return out, nil
}

func (c *Controller) single(cycle int, s Stream, step int, run func(Batch) (StepResult, error)) (StepResult, error) {
	b, err := c.source.Batch(cycle, s)
	if err != nil {
		return StepResult{}, err
	}
	if b, err = c.augment(b, step); err != nil {
		return StepResult{}, err
	}
	return run(b)
}

func (c *Controller) sweep(s Stream, step int, run func(Batch) (StepResult, error)) (StepResult, error) {
	batches, err := c.source.Sweep(s)
	if err != nil {
		return StepResult{}, err
	}
	var acc Accumulator
	for _, b := range batches {
		if b, err = c.augment(b, step); err != nil {
			return StepResult{}, err
		}
		r, err := run(b)
		if err != nil {
			return StepResult{}, err
		}
		acc.Add(r)
	}
	return acc.Mean(), nil
}

func (c *Controller) finish() (*Result, error) {
	res := &Result{Model: c.model}

	path := checkpoint.Path(c.cfg.Filename, c.cfg.CheckpointFormat)
	if err := c.save(path, c.cfg.CheckpointFormat); err != nil {
		return nil, err
	}
	res.CheckpointPath = path

	if !c.cfg.FullEpoch {
		ev, err := c.evaluate("final")
		if err != nil {
			return nil, err
		}
		res.Evaluations = append(res.Evaluations, ev)
	}

	if c.cfg.SWA {
		avg, err := c.snapshots.Average()
		if err != nil {
			return nil, err
		}
		if err := c.model.LoadStateDict(avg); err != nil {
			return nil, errors.Wrap(err, "load averaged weights")
		}
		c.logger.Info("loaded averaged weights",
			log.OperationKey, log.OperationAverage,
			log.SnapshotsKey, c.snapshots.Window())
		ev, err := c.evaluate("swa")
		if err != nil {
			return nil, err
		}
		res.Evaluations = append(res.Evaluations, ev)
	}

	if c.cfg.PlotTrainingHistory {
		plotPath := c.cfg.Filename + "_history.png"
		if err := visualize.PlotLosses(c.history.TrainLoss, c.history.TestLoss, plotPath); err != nil {
			c.logger.Warn("history plot skipped",
				log.OperationKey, log.OperationPlot,
				log.PathKey, plotPath,
				log.ErrorKey, err.Error())
		} else {
			res.PlotPath = plotPath
		}
	}

	res.History = c.history.Clone()
	res.Steps = c.exec.Steps()
	return res, nil
}

// evaluate runs TestStep over every test batch in order.
func (c *Controller) evaluate(name string) (Evaluation, error) {
	batches, err := c.source.Sweep(Test)
	if err != nil {
		return Evaluation{}, err
	}
	var acc Accumulator
	for _, b := range batches {
		r, err := c.exec.TestStep(b)
		if err != nil {
			return Evaluation{}, errors.Wrapf(err, "%s evaluation", name)
		}
		acc.Add(r)
	}
	m := acc.Mean()
	ev := Evaluation{Name: name, Loss: m.Loss, Accuracy: m.Accuracy, HasAccuracy: m.HasAccuracy}

	fields := []interface{}{
		log.OperationKey, log.OperationEvaluate,
		log.PhaseKey, log.PhaseInference,
		"evaluation", name,
		log.TestLossKey, ev.Loss,
	}
	if ev.HasAccuracy {
		fields = append(fields, "test_"+c.cfg.AccuracyLabel, ev.Accuracy)
	}
	c.logger.Info("model evaluated", fields...)
	return ev, nil
}

// Evaluate runs a full pass over the test partition with the current
// weights. It is available once Fit has returned.
func (c *Controller) Evaluate() (_ Evaluation, err error) {
	defer errors.Recover(&err, "Controller.Evaluate")
	if err := c.state.RequireFinished("Evaluate"); err != nil {
		return Evaluation{}, err
	}
	return c.evaluate("evaluate")
}

// SaveModel writes the current weights, optimizer state and configuration to
// path; the format follows the extension.
func (c *Controller) SaveModel(path string) error {
	return c.save(path, checkpoint.FormatFromPath(path))
}

func (c *Controller) save(path string, f checkpoint.Format) error {
	c.meta.SetWeights(c.model.StateDict())
	c.meta.SetOptimizer(c.opt.State())
	if err := c.meta.SaveAs(path, f); err != nil {
		log.LogError(err, "checkpoint save failed")
		return err
	}
	c.logger.Info("checkpoint saved",
		log.OperationKey, log.OperationSave,
		log.PathKey, path)
	return nil
}
