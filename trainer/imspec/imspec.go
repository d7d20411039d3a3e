// Package imspec trains encoder/decoder networks that translate between
// images and spectra: image to spectrum, spectrum to image, or either to
// itself.
package imspec

import (
	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/losses"
	"github.com/ezoic/atomtrain/metrics"
	"github.com/ezoic/atomtrain/nn"
	"github.com/ezoic/atomtrain/optim"
	"github.com/ezoic/atomtrain/pkg/errors"
	"github.com/ezoic/atomtrain/preprocessing"
	"github.com/ezoic/atomtrain/trainer"
)

// AccuracyLabel names the regression score in reports.
const AccuracyLabel = "R2"

// Trainer adapts the generic controller to image/spectrum pairs.
type Trainer struct {
	desc      model.Descriptor
	lr        float64
	testSize  float64
	batchSeed uint64

	net  *nn.Sequential
	ctrl *trainer.Controller
}

// Option configures a Trainer.
type Option func(*Trainer)

// WithLatentDim sets the size of the bottleneck.
func WithLatentDim(n int) Option {
	return func(t *Trainer) { t.desc.LatentDim = n }
}

// WithFilters sets the number of convolution filters per block.
func WithFilters(n int) Option {
	return func(t *Trainer) { t.desc.NbFilters = n }
}

// WithLayers sets the number of encoder blocks.
func WithLayers(n int) Option {
	return func(t *Trainer) { t.desc.Layers = n }
}

// WithBatchNorm toggles batch normalization in the encoder and decoder.
func WithBatchNorm(on bool) Option {
	return func(t *Trainer) { t.desc.BatchNorm = on }
}

// WithSeed seeds weight initialization, splitting and perturbation.
func WithSeed(seed uint64) Option {
	return func(t *Trainer) { t.desc.Seed = seed }
}

// WithBatchSeed seeds batch selection separately from WithSeed.
func WithBatchSeed(seed uint64) Option {
	return func(t *Trainer) { t.batchSeed = seed }
}

// WithLearningRate sets the Adam learning rate.
func WithLearningRate(lr float64) Option {
	return func(t *Trainer) { t.lr = lr }
}

// WithTestSize sets the held-out fraction used when no test set is given.
func WithTestSize(f float64) Option {
	return func(t *Trainer) { t.testSize = f }
}

// New builds a network mapping signals of shape inDim to signals of shape
// outDim. Each is (L) for a spectrum or (H, W) for an image.
func New(inDim, outDim []int, options ...Option) (*Trainer, error) {
	t := &Trainer{
		desc: model.Descriptor{
			InDim:  append([]int{}, inDim...),
			OutDim: append([]int{}, outDim...),
			Seed:   1,
		},
		lr:       optim.DefaultLearningRate,
		testSize: preprocessing.DefaultTestSize,
	}
	for _, opt := range options {
		opt(t)
	}

	net, err := nn.NewImSpecNet(t.desc)
	if err != nil {
		return nil, err
	}
	opt, err := optim.NewAdam(net.Parameters(), t.lr)
	if err != nil {
		return nil, err
	}
	t.net = net
	t.ctrl = trainer.NewController(net, opt)
	return t, nil
}

// Model returns the encoder/decoder network.
func (t *Trainer) Model() *nn.Sequential { return t.net }

// Controller returns the controller holding history and checkpoints.
func (t *Trainer) Controller() *trainer.Controller { return t.ctrl }

// Compile checks signal shapes and binds the data to the controller. When
// xTest or yTest is nil a seeded split of the training data is held out.
// Defaults are mean squared error and R² accuracy.
func (t *Trainer) Compile(xTrain, yTrain, xTest, yTest *tensor.Tensor, options ...trainer.Option) error {
	const op = "imspec.Compile"
	if xTrain == nil || yTrain == nil {
		return errors.NewConfigError(op, "training inputs and targets are required", errors.ErrNotTensor)
	}

	base := []trainer.Option{
		trainer.WithLoss(losses.MSE),
		trainer.WithAccuracyLabel(AccuracyLabel),
		trainer.WithSeed(t.desc.Seed),
		trainer.WithBatchSeed(t.batchSeed),
	}
	cfg := trainer.NewConfig(append(base, options...)...)

	if xTest == nil || yTest == nil {
		var err error
		xTrain, xTest, yTrain, yTest, err = preprocessing.TrainTestSplit(xTrain, yTrain, t.testSize, cfg.Seed)
		if err != nil {
			return err
		}
	}

	var err error
	pairs := []*tensor.Tensor{xTrain, yTrain, xTest, yTest}
	for i, p := range pairs {
		dim := t.desc.InDim
		if i%2 == 1 {
			dim = t.desc.OutDim
		}
		if pairs[i], err = preprocessing.CheckSignalDims(p, dim); err != nil {
			return err
		}
	}

	source, err := trainer.NewSource(pairs[0], pairs[1], pairs[2], pairs[3], cfg)
	if err != nil {
		return err
	}
	loss, err := losses.Select(cfg.Loss, 1)
	if err != nil {
		return errors.NewConfigError(op, "loss", err)
	}
	if err := t.ctrl.Compile(source, loss, metrics.R2Score, cfg); err != nil {
		return err
	}
	t.ctrl.Meta().Set("in_dim", t.desc.InDim)
	t.ctrl.Meta().Set("out_dim", t.desc.OutDim)
	return nil
}

// Fit trains the network. See trainer.Controller.Fit.
func (t *Trainer) Fit() (*trainer.Result, error) {
	return t.ctrl.Fit()
}

// Predict maps inputs to outputs of shape (N, outDim...).
func (t *Trainer) Predict(x *tensor.Tensor) (*tensor.Tensor, error) {
	in, err := preprocessing.CheckSignalDims(x, t.desc.InDim)
	if err != nil {
		return nil, err
	}
	t.net.Eval()
	out, err := t.net.Forward(in)
	if err != nil {
		return nil, err
	}
	return out.Reshape(append([]int{out.Len()}, t.desc.OutDim...)...)
}
