package checkpoint

import (
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/nn"
	"github.com/ezoic/atomtrain/optim"
)

func trainedSegNet(t *testing.T) (*nn.Sequential, optim.Optimizer) {
	t.Helper()
	net, err := nn.NewSegNet(model.Descriptor{
		NbClasses: 3, InDim: []int{1}, NbFilters: 4, Layers: 1, BatchNorm: true, Seed: 7,
	})
	require.NoError(t, err)

	opt, err := optim.NewAdam(net.Parameters(), optim.DefaultLearningRate)
	require.NoError(t, err)
	x := randomImages(2, 6, 6, 3)

	// one real update so weights, running stats and moments are non-trivial
	net.Train()
	out, err := net.Forward(x)
	require.NoError(t, err)
	grad := tensor.Full(0.1, out.Shape()...)
	opt.ZeroGrad()
	require.NoError(t, net.Backward(grad))
	require.NoError(t, opt.Step())
	return net, opt
}

func randomImages(n, h, w int, seed uint64) *tensor.Tensor {
	rng := rand.New(rand.NewPCG(seed, seed))
	x := tensor.Zeros(n, 1, h, w)
	x.Apply(func(float64) float64 { return rng.Float64() })
	return x
}

func TestSaveLoadRestoreAllFormats(t *testing.T) {
	net, opt := trainedSegNet(t)
	net.Eval()
	x := randomImages(2, 6, 6, 11)
	want, err := net.Forward(x)
	require.NoError(t, err)

	ms := New(net.Descriptor())
	ms.SetWeights(net.StateDict())
	ms.SetOptimizer(opt.State())
	ms.Set("loss", "ce")
	ms.Set("training_cycles", 3)
	ms.Set("swa", false)

	for _, f := range []Format{FormatGob, FormatJSON, FormatProto} {
		t.Run(f.String(), func(t *testing.T) {
			path := Path(filepath.Join(t.TempDir(), "model"), f)
			require.NoError(t, ms.Save(path))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, 3, got.Descriptor.NbClasses)
			assert.Equal(t, nn.ArchSegNet, got.Descriptor.Architecture)
			assert.Equal(t, "ce", got.Config["loss"])
			assert.Equal(t, false, got.Config["swa"])
			assert.Equal(t, "adam", got.Optimizer.Name)
			assert.Equal(t, 1, got.Optimizer.Steps)
			assert.Len(t, got.Optimizer.Slots, len(ms.Optimizer.Slots))
			assert.Equal(t, Version, got.Metadata.Version)

			restored, err := got.Restore()
			require.NoError(t, err)
			out, err := restored.Forward(x)
			require.NoError(t, err)
			assert.Equal(t, want.Shape(), out.Shape())
			assert.InDeltaSlice(t, want.Values(), out.Values(), 1e-12)
		})
	}
}

func TestPathAndFormats(t *testing.T) {
	assert.Equal(t, "./model_metadict_final.gob", Path("./model", FormatGob))
	assert.Equal(t, "run/seg_metadict_final.json", Path("run/seg", FormatJSON))
	assert.Equal(t, "m_metadict_final.pb", Path("m", FormatProto))

	assert.Equal(t, FormatJSON, FormatFromPath("a/b.JSON"))
	assert.Equal(t, FormatProto, FormatFromPath("a.pb"))
	assert.Equal(t, FormatGob, FormatFromPath("a.tar"))

	f, err := ParseFormat("protobuf")
	require.NoError(t, err)
	assert.Equal(t, FormatProto, f)
	_, err = ParseFormat("hdf5")
	assert.Error(t, err)
}

func TestRestoreRejectsForeignWeights(t *testing.T) {
	net, _ := trainedSegNet(t)
	ms := New(net.Descriptor())
	ms.SetWeights(net.StateDict())
	ms.Descriptor.NbClasses = 2

	_, err := ms.Restore()
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.gob"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "nope.pb"))
	assert.Error(t, err)
}
