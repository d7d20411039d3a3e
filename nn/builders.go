package nn

import (
	"fmt"
	"math/rand/v2"

	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// Architecture names stored in model.Descriptor.
const (
	ArchSegNet = "segnet"
	ArchImSpec = "imspec"
)

const (
	defaultFilters   = 16
	defaultLayers    = 2
	defaultLatentDim = 2
)

// Build reconstructs an untrained network from a descriptor, typically one
// read back from a checkpoint. Initialization is seeded by desc.Seed, so the
// same descriptor always yields the same initial weights.
func Build(desc model.Descriptor) (*Sequential, error) {
	switch desc.Architecture {
	case ArchSegNet:
		return NewSegNet(desc)
	case ArchImSpec:
		return NewImSpecNet(desc)
	}
	return nil, errors.NewValueError("nn.Build", fmt.Sprintf("unknown architecture %q", desc.Architecture))
}

func withDefaults(desc model.Descriptor) model.Descriptor {
	if desc.NbFilters <= 0 {
		desc.NbFilters = defaultFilters
	}
	if desc.Layers <= 0 {
		desc.Layers = defaultLayers
	}
	return desc
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// convBlock appends conv -> [batchnorm] -> relu.
func convBlock(layers []Layer, name string, in, out, kh, kw int, batchNorm bool, rng *rand.Rand) ([]Layer, error) {
	conv, err := NewConv2D(name+".conv", in, out, kh, kw, rng)
	if err != nil {
		return nil, err
	}
	layers = append(layers, conv)
	if batchNorm {
		layers = append(layers, NewBatchNorm(name+".bn", out))
	}
	return append(layers, NewReLU(name+".relu")), nil
}

// NewSegNet builds a fully convolutional segmentation network. desc.InDim[0]
// is the number of input channels; the output has desc.NbClasses channels of
// logits at the input resolution.
func NewSegNet(desc model.Descriptor) (*Sequential, error) {
	desc = withDefaults(desc)
	desc.Architecture = ArchSegNet
	if len(desc.InDim) == 0 || desc.InDim[0] <= 0 {
		return nil, errors.NewValueError("nn.NewSegNet", "input channels must be set in InDim[0]")
	}
	if desc.NbClasses < 1 {
		return nil, errors.NewValueError("nn.NewSegNet", "number of classes must be at least 1")
	}
	rng := newRNG(desc.Seed)

	var layers []Layer
	var err error
	in := desc.InDim[0]
	for i := 0; i < desc.Layers; i++ {
		layers, err = convBlock(layers, fmt.Sprintf("block%d", i), in, desc.NbFilters, 3, 3, desc.BatchNorm, rng)
		if err != nil {
			return nil, err
		}
		in = desc.NbFilters
	}
	head, err := NewConv2D("head", in, desc.NbClasses, 1, 1, rng)
	if err != nil {
		return nil, err
	}
	layers = append(layers, head)
	return NewSequential(desc, layers...), nil
}

// NewImSpecNet builds an encoder/decoder translating between images and
// spectra. desc.InDim and desc.OutDim are per-sample dims without the channel
// axis: (H, W) for images, (L) for spectra. Input and output carry one channel.
func NewImSpecNet(desc model.Descriptor) (*Sequential, error) {
	desc = withDefaults(desc)
	desc.Architecture = ArchImSpec
	if desc.LatentDim <= 0 {
		desc.LatentDim = defaultLatentDim
	}
	if err := checkSignalShape("InDim", desc.InDim); err != nil {
		return nil, err
	}
	if err := checkSignalShape("OutDim", desc.OutDim); err != nil {
		return nil, err
	}
	rng := newRNG(desc.Seed)
	F := desc.NbFilters

	var layers []Layer
	var err error
	kh, kw := kernelFor(desc.InDim)
	in := 1
	for i := 0; i < desc.Layers; i++ {
		layers, err = convBlock(layers, fmt.Sprintf("encoder%d", i), in, F, kh, kw, desc.BatchNorm, rng)
		if err != nil {
			return nil, err
		}
		in = F
	}
	inSize, outSize := prod(desc.InDim), prod(desc.OutDim)
	layers = append(layers, NewFlatten("flatten", F*inSize))

	latent, err := NewDense("latent", F*inSize, desc.LatentDim, rng)
	if err != nil {
		return nil, err
	}
	expand, err := NewDense("expand", desc.LatentDim, F*outSize, rng)
	if err != nil {
		return nil, err
	}
	layers = append(layers, latent, expand,
		NewReshape("unflatten", append([]int{F}, desc.OutDim...)...),
		NewReLU("expand.relu"))

	kh, kw = kernelFor(desc.OutDim)
	for i := 0; i < desc.Layers-1; i++ {
		layers, err = convBlock(layers, fmt.Sprintf("decoder%d", i), F, F, kh, kw, desc.BatchNorm, rng)
		if err != nil {
			return nil, err
		}
	}
	head, err := NewConv2D("head", F, 1, 1, 1, rng)
	if err != nil {
		return nil, err
	}
	layers = append(layers, head)
	return NewSequential(desc, layers...), nil
}

func checkSignalShape(field string, dims []int) error {
	if len(dims) != 1 && len(dims) != 2 {
		return errors.NewValueError("nn.NewImSpecNet", field+" must be (L) or (H, W)")
	}
	for _, d := range dims {
		if d <= 0 {
			return errors.NewValueError("nn.NewImSpecNet", field+" dims must be positive")
		}
	}
	return nil
}

func kernelFor(dims []int) (int, int) {
	if len(dims) == 1 {
		return 1, 3
	}
	return 3, 3
}

func prod(dims []int) int {
	p := 1
	for _, d := range dims {
		p *= d
	}
	return p
}
