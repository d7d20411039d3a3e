package augment

import (
	"math/rand/v2"

	"github.com/ezoic/atomtrain/core/parallel"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// Transformer augments (images, labels) batches.
type Transformer struct {
	nbClasses  int
	in, out    Layout
	regenerate bool
	seed       uint64
	opts       Options
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithLayouts sets the label layout accepted by Run and the one it returns.
func WithLayouts(in, out Layout) Option {
	return func(t *Transformer) {
		t.in = in
		t.out = out
	}
}

// WithRegenerate controls whether each Run draws fresh randomness (true,
// the default) or replays the same draw for every call.
func WithRegenerate(regenerate bool) Option {
	return func(t *Transformer) { t.regenerate = regenerate }
}

// WithSeed sets the base seed combined with the training step.
func WithSeed(seed uint64) Option {
	return func(t *Transformer) { t.seed = seed }
}

// NewTransformer creates a Transformer for labels with nbClasses one-hot
// channels (one channel for binary masks).
func NewTransformer(nbClasses int, opts Options, options ...Option) *Transformer {
	t := &Transformer{nbClasses: nbClasses, regenerate: true, seed: 1, opts: opts}
	for _, o := range options {
		o(t)
	}
	return t
}

// Enabled reports whether Run changes its inputs.
func (t *Transformer) Enabled() bool { return t.opts.Any() }

func (t *Transformer) rng(step int) *rand.Rand {
	stream := uint64(0)
	if t.regenerate {
		stream = uint64(step) + 1
	}
	return rand.New(rand.NewPCG(t.seed, stream))
}

// Run returns augmented copies of images and labels. Inputs are never
// mutated. Without enabled transforms the inputs are returned unchanged.
func (t *Transformer) Run(images, labels *tensor.Tensor, step int) (*tensor.Tensor, *tensor.Tensor, error) {
	if !t.opts.Any() {
		return images, labels, nil
	}
	if images == nil || labels == nil {
		return nil, nil, errors.NewModelError("augment.Run", "nil batch", errors.ErrNotTensor)
	}

	imgs, withChannel, err := imagePlanes(images)
	if err != nil {
		return nil, nil, err
	}
	lbls, err := toChannelFirst(labels, t.in)
	if err != nil {
		return nil, nil, err
	}
	n, h, w := imgs.Dim(0), imgs.Dim(1), imgs.Dim(2)
	if lbls.Dim(0) != n || lbls.Dim(2) != h || lbls.Dim(3) != w {
		return nil, nil, errors.NewDimensionError("augment.Run", n*h*w, lbls.Dim(0)*lbls.Dim(2)*lbls.Dim(3), 0)
	}
	if c := lbls.Dim(1); c != t.nbClasses {
		return nil, nil, errors.NewDimensionError("augment.Run", t.nbClasses, c, 1)
	}

	imgs = imgs.Clone()
	lbls = lbls.Clone()
	rng := t.rng(step)
	seeds := make([]uint64, n)
	for i := range seeds {
		seeds[i] = rng.Uint64()
	}

	parallel.ParallelizeWithThreshold(n, 8, func(start, end int) {
		for i := start; i < end; i++ {
			s := &sample{
				img:    imgs.Sample(i).Values(),
				labels: lbls.Sample(i).Values(),
				c:      t.nbClasses,
				h:      h,
				w:      w,
				rng:    rand.New(rand.NewPCG(seeds[i], uint64(i))),
			}
			t.apply(s)
		}
	})

	if t.opts.Resize {
		f := uniform(rng, resizeRange)
		imgs, lbls = resizeBatch(imgs, lbls, f)
	}
	if t.opts.Custom != nil {
		imgs, lbls, err = t.opts.Custom(imgs, lbls, rng)
		if err != nil {
			return nil, nil, errors.Wrap(err, "custom transform")
		}
	}

	if withChannel {
		if imgs, err = imgs.Reshape(imgs.Dim(0), 1, imgs.Dim(1), imgs.Dim(2)); err != nil {
			return nil, nil, err
		}
	}
	if t.out == ChannelLast {
		lbls = transposeLast(lbls)
	}
	return imgs, lbls, nil
}

func (t *Transformer) apply(s *sample) {
	o := t.opts
	if o.Zoom {
		s.zoom(uniform(s.rng, zoomRange))
	}
	if o.Rotation {
		s.rotate()
	}
	if !o.intensity() {
		return
	}
	if o.Background {
		s.background(uniform(s.rng, backgroundRange))
	}
	normalize(s.img)
	if o.Contrast {
		s.contrast(uniform(s.rng, gammaRange))
	}
	if o.Blur {
		s.blur(uniform(s.rng, blurSigmaRange))
	}
	if o.PoissonNoise {
		s.poisson(uniform(s.rng, poissonLamRange))
	}
	if o.GaussNoise {
		s.gauss(uniform(s.rng, gaussStdRange))
	}
	if o.SaltAndPepper {
		s.saltAndPepper(uniform(s.rng, saltPepperRange))
	}
	if o.Jitter {
		s.jitter(jitterMaxShift)
	}
	normalize(s.img)
}

// imagePlanes views images as (N, H, W).
func imagePlanes(images *tensor.Tensor) (*tensor.Tensor, bool, error) {
	switch {
	case images.Rank() == 3:
		return images, false, nil
	case images.Rank() == 4 && images.Dim(1) == 1:
		v, err := images.Reshape(images.Dim(0), images.Dim(2), images.Dim(3))
		return v, true, err
	}
	return nil, false, errors.NewValueError("augment.Run", "images must be (N, H, W) or (N, 1, H, W)")
}

func toChannelFirst(labels *tensor.Tensor, layout Layout) (*tensor.Tensor, error) {
	if labels.Rank() != 4 {
		return nil, errors.NewDimensionError("augment.Run", 4, labels.Rank(), 0)
	}
	if layout == ChannelFirst {
		return labels, nil
	}
	n, h, w, c := labels.Dim(0), labels.Dim(1), labels.Dim(2), labels.Dim(3)
	out := tensor.Zeros(n, c, h, w)
	src, dst := labels.Values(), out.Values()
	for i := 0; i < n; i++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				for k := 0; k < c; k++ {
					dst[((i*c+k)*h+y)*w+x] = src[((i*h+y)*w+x)*c+k]
				}
			}
		}
	}
	return out, nil
}

func transposeLast(labels *tensor.Tensor) *tensor.Tensor {
	n, c, h, w := labels.Dim(0), labels.Dim(1), labels.Dim(2), labels.Dim(3)
	out := tensor.Zeros(n, h, w, c)
	src, dst := labels.Values(), out.Values()
	for i := 0; i < n; i++ {
		for k := 0; k < c; k++ {
			for y := 0; y < h; y++ {
				for x := 0; x < w; x++ {
					dst[((i*h+y)*w+x)*c+k] = src[((i*c+k)*h+y)*w+x]
				}
			}
		}
	}
	return out
}
