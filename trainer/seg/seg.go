// Package seg trains fully convolutional networks that segment microscopy
// images into nbClasses classes (atoms, defects, background).
//
// Images are (N, H, W) or (N, 1, H, W). Labels are either class-index masks
// (N, H, W) holding 0..k-1, or one-hot masks (N, C, H, W). A two-valued mask
// is binary and trained with a single sigmoid output channel. Masks whose
// values are not 0..k-1 (for example 0/255 annotations) are encoded to class
// indices and Predict maps the classes back to the original values.
package seg

import (
	"github.com/ezoic/atomtrain/augment"
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

// AccuracyLabel names the segmentation accuracy in reports.
const AccuracyLabel = "IoU"

// Trainer adapts the generic controller to segmentation data.
type Trainer struct {
	nbClasses    int
	desc         model.Descriptor
	lr           float64
	testSize     float64
	batchSeed    uint64
	augmentation augment.Options

	net     *nn.Sequential
	ctrl    *trainer.Controller
	encoder *preprocessing.MaskEncoder
}

// Option is a configuration option for Trainer
type Option func(*Trainer)

// WithFilters sets the number of convolution filters per block
func WithFilters(n int) Option {
	return func(t *Trainer) {
		t.desc.NbFilters = n
	}
}

// WithLayers sets the number of convolution blocks
func WithLayers(n int) Option {
	return func(t *Trainer) {
		t.desc.Layers = n
	}
}

// WithBatchNorm toggles batch normalization after each convolution
func WithBatchNorm(on bool) Option {
	return func(t *Trainer) {
		t.desc.BatchNorm = on
	}
}

// WithSeed sets the seed of weight initialization, splitting, perturbation and augmentation
func WithSeed(seed uint64) Option {
	return func(t *Trainer) {
		t.desc.Seed = seed
	}
}

// WithBatchSeed sets a separate seed for batch selection
func WithBatchSeed(seed uint64) Option {
	return func(t *Trainer) {
		t.batchSeed = seed
	}
}

// WithLearningRate sets the Adam learning rate
func WithLearningRate(lr float64) Option {
	return func(t *Trainer) {
		t.lr = lr
	}
}

// WithTestSize sets the held-out fraction used when no test set is given
func WithTestSize(f float64) Option {
	return func(t *Trainer) {
		t.testSize = f
	}
}

// WithAugmentation enables on-the-fly augmentation of training batches
func WithAugmentation(o augment.Options) Option {
	return func(t *Trainer) {
		t.augmentation = o
	}
}

// New builds a segmentation network with nbClasses output channels and its
// Adam optimizer.
func New(nbClasses int, options ...Option) (*Trainer, error) {
	t := &Trainer{
		nbClasses: nbClasses,
		desc:      model.Descriptor{NbClasses: nbClasses, InDim: []int{1}, Seed: 1},
		lr:        optim.DefaultLearningRate,
		testSize:  preprocessing.DefaultTestSize,
	}
	for _, opt := range options {
		opt(t)
	}

	net, err := nn.NewSegNet(t.desc)
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

// Model returns the network being trained.
func (t *Trainer) Model() *nn.Sequential { return t.net }

// Controller exposes the underlying controller for history, evaluation and saving.
func (t *Trainer) Controller() *trainer.Controller { return t.ctrl }

// Compile prepares the data and binds it to the controller. When xTest or
// yTest is nil a seeded split of the training data is held out. Options
// override the segmentation defaults (cross-entropy loss, IoU accuracy).
func (t *Trainer) Compile(xTrain, yTrain, xTest, yTest *tensor.Tensor, options ...trainer.Option) error {
	const op = "seg.Compile"
	if xTrain == nil || yTrain == nil {
		return errors.NewConfigError(op, "training images and labels are required", errors.ErrNotTensor)
	}

	base := []trainer.Option{
		trainer.WithLoss(losses.CrossEntropy),
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

	xTr, yTr, err := t.prepare(xTrain, yTrain, true)
	if err != nil {
		return err
	}
	xTe, yTe, err := t.prepare(xTest, yTest, false)
	if err != nil {
		return err
	}

	source, err := trainer.NewSource(xTr, yTr, xTe, yTe, cfg)
	if err != nil {
		return err
	}
	loss, err := losses.Select(cfg.Loss, t.nbClasses)
	if err != nil {
		return errors.NewConfigError(op, "loss", err)
	}
	if err := t.ctrl.Compile(source, loss, metrics.IoU(t.nbClasses), cfg); err != nil {
		return err
	}
	if t.augmentation.Any() {
		tr := augment.NewTransformer(t.nbClasses, t.augmentation, augment.WithSeed(cfg.Seed))
		t.ctrl.SetAugmenter(trainer.AugmenterFunc(func(b trainer.Batch, step int) (trainer.Batch, error) {
			return t.augment(tr, b, step)
		}))
	}
	t.ctrl.Meta().Set("nb_classes", t.nbClasses)
	return nil
}

// Fit trains the network. See trainer.Controller.Fit.
func (t *Trainer) Fit() (*trainer.Result, error) {
	return t.ctrl.Fit()
}

// Predict returns the class map (N, H, W) for images. When the training
// masks were encoded the map holds the original mask values.
func (t *Trainer) Predict(images *tensor.Tensor) (*tensor.Tensor, error) {
	x, err := t.images(images)
	if err != nil {
		return nil, err
	}
	t.net.Eval()
	logits, err := t.net.Forward(x)
	if err != nil {
		return nil, err
	}
	classes, err := metrics.PredictedClasses(logits)
	if err != nil || t.encoder == nil {
		return classes, err
	}
	return t.encoder.InverseTransform(classes)
}

// prepare normalizes images to (N, 1, H, W) in [0, 1] and converts labels to
// loss targets: a float mask (N, 1, H, W) for one class, class indices
// (N, H, W) otherwise. Only training labels must show every class; a test
// split may be missing some.
func (t *Trainer) prepare(images, labels *tensor.Tensor, train bool) (*tensor.Tensor, *tensor.Tensor, error) {
	const op = "seg.Compile"
	if images == nil || labels == nil {
		return nil, nil, errors.NewConfigError(op, "images and labels are required", errors.ErrNotTensor)
	}
	x, err := t.images(images)
	if err != nil {
		return nil, nil, err
	}
	if labels.Len() != x.Len() {
		return nil, nil, errors.NewDimensionError(op, x.Len(), labels.Len(), 0)
	}
	if labels, err = t.encode(labels, train); err != nil {
		return nil, nil, err
	}

	n := t.nbClasses
	switch {
	case labels.Rank() == 4:
		n = labels.Dim(1)
	case train:
		n, err = preprocessing.CountClasses(labels)
	case labels.Rank() != 3:
		err = errors.NewDimensionError(op, 3, labels.Rank(), 0)
	}
	if err != nil {
		return nil, nil, err
	}
	if n != t.nbClasses {
		return nil, nil, errors.NewConfigError(op, "labels do not match the model output", errors.ErrClassMismatch)
	}

	var y *tensor.Tensor
	switch {
	case labels.Rank() == 4:
		y, err = preprocessing.SqueezeChannels(labels)
	case n == 1:
		y, err = labels.Reshape(labels.Dim(0), 1, labels.Dim(1), labels.Dim(2))
	default:
		y = labels
	}
	if err != nil {
		return nil, nil, err
	}
	if y.Dim(-2) != x.Dim(2) || y.Dim(-1) != x.Dim(3) {
		return nil, nil, errors.NewDimensionError(op, x.Dim(2)*x.Dim(3), y.Dim(-2)*y.Dim(-1), y.Rank()-1)
	}
	return x, y, nil
}

// encode maps non-contiguous training masks to class indices. Test masks
// reuse the mapping fitted on the training masks.
func (t *Trainer) encode(labels *tensor.Tensor, train bool) (*tensor.Tensor, error) {
	if labels.Rank() != 3 {
		return labels, nil
	}
	if !train {
		if t.encoder == nil {
			return labels, nil
		}
		return t.encoder.Transform(labels)
	}
	t.encoder = nil
	if _, err := preprocessing.CountClasses(labels); err == nil {
		return labels, nil
	}
	enc := preprocessing.NewMaskEncoder()
	encoded, err := enc.FitTransform(labels)
	if err != nil {
		return nil, err
	}
	t.encoder = enc
	return encoded, nil
}

func (t *Trainer) images(images *tensor.Tensor) (*tensor.Tensor, error) {
	if images == nil {
		return nil, errors.NewConfigError("seg.images", "images are required", errors.ErrNotTensor)
	}
	x, err := preprocessing.NormalizeImages(images)
	if err != nil {
		return nil, err
	}
	switch x.Rank() {
	case 3:
		return x.Reshape(x.Dim(0), 1, x.Dim(1), x.Dim(2))
	case 4:
		if x.Dim(1) != 1 {
			return nil, errors.NewDimensionError("seg.images", 1, x.Dim(1), 1)
		}
		return x, nil
	}
	return nil, errors.NewValueError("seg.images", "images must be (N, H, W) or (N, 1, H, W)")
}

// augment expands targets to one channel per class, runs the transformer and
// collapses the result back to loss targets.
func (t *Trainer) augment(tr *augment.Transformer, b trainer.Batch, step int) (trainer.Batch, error) {
	labels := b.Y
	if b.Y.Rank() == 3 {
		oh, err := preprocessing.OneHot(b.Y, t.nbClasses)
		if err != nil {
			return trainer.Batch{}, err
		}
		labels = oh
	}
	x, y, err := tr.Run(b.X, labels, step)
	if err != nil {
		return trainer.Batch{}, err
	}
	y, err = preprocessing.SqueezeChannels(y)
	if err != nil {
		return trainer.Batch{}, err
	}
	return trainer.Batch{X: x, Y: y}, nil
}
