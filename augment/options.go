// Package augment applies on-the-fly data augmentation to segmentation
// batches: images (N, H, W) or (N, 1, H, W) with one-hot labels.
//
// A Transformer is configured once; Run is called per batch with the current
// training step. The step seeds the per-call generator, so augmentations vary
// over training and are still reproducible for a given seed.
package augment

import (
	"math/rand/v2"

	"github.com/ezoic/atomtrain/core/tensor"
)

// Layout describes where the class axis of label tensors sits.
type Layout int

const (
	ChannelFirst Layout = iota // (N, C, H, W)
	ChannelLast                // (N, H, W, C)
)

// CustomFunc is a user-supplied transform applied after the built-in ones.
// It must not mutate its inputs.
type CustomFunc func(images, labels *tensor.Tensor, rng *rand.Rand) (*tensor.Tensor, *tensor.Tensor, error)

// Options selects the transforms. Each is independently enableable; the zero
// value disables everything and makes Run the identity.
type Options struct {
	Zoom          bool `yaml:"zoom"`
	GaussNoise    bool `yaml:"gauss_noise"`
	Jitter        bool `yaml:"jitter"`
	PoissonNoise  bool `yaml:"poisson_noise"`
	Contrast      bool `yaml:"contrast"`
	SaltAndPepper bool `yaml:"salt_and_pepper"`
	Blur          bool `yaml:"blur"`
	Resize        bool `yaml:"resize"`
	Rotation      bool `yaml:"rotation"`
	Background    bool `yaml:"background"`

	Custom CustomFunc `yaml:"-"`
}

// Any reports whether at least one transform is enabled.
func (o Options) Any() bool {
	return o.Zoom || o.GaussNoise || o.Jitter || o.PoissonNoise || o.Contrast ||
		o.SaltAndPepper || o.Blur || o.Resize || o.Rotation || o.Background || o.Custom != nil
}

func (o Options) intensity() bool {
	return o.GaussNoise || o.Jitter || o.PoissonNoise || o.Contrast || o.SaltAndPepper || o.Blur || o.Background
}

// Parameter ranges, sampled uniformly per image. Intensities are relative to
// images normalized to [0, 1].
var (
	zoomRange       = [2]float64{1, 1.5}
	gaussStdRange   = [2]float64{0.01, 0.1}
	jitterMaxShift  = 2
	poissonLamRange = [2]float64{30, 45}
	gammaRange      = [2]float64{0.8, 1.2}
	saltPepperRange = [2]float64{0.01, 0.05}
	blurSigmaRange  = [2]float64{0.5, 1.5}
	resizeRange     = [2]float64{0.75, 1.25}
	backgroundRange = [2]float64{0, 0.3}
)

func uniform(rng *rand.Rand, r [2]float64) float64 {
	return r[0] + rng.Float64()*(r[1]-r[0])
}
