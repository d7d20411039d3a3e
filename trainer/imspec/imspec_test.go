package imspec

import (
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezoic/atomtrain/checkpoint"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
	"github.com/ezoic/atomtrain/pkg/log"
	"github.com/ezoic/atomtrain/trainer"
)

func TestMain(m *testing.M) {
	prev := errors.SetWarningHandler(func(error) {})
	code := m.Run()
	errors.SetWarningHandler(prev)
	os.Exit(code)
}

// pairs returns n 4x4 images whose mean intensity sets the position of a
// peak in a length-8 spectrum.
func pairs(n int, seed uint64) (*tensor.Tensor, *tensor.Tensor) {
	rng := rand.New(rand.NewPCG(seed, seed))
	x := tensor.Zeros(n, 4, 4)
	y := tensor.Zeros(n, 8)
	for i := 0; i < n; i++ {
		level := rng.Float64()
		for j := 0; j < 16; j++ {
			x.Set(level+0.05*rng.NormFloat64(), i, j/4, j%4)
		}
		center := level * 7
		for k := 0; k < 8; k++ {
			d := float64(k) - center
			y.Set(math.Exp(-d*d/2), i, k)
		}
	}
	return x, y
}

func newTrainer(t *testing.T) *Trainer {
	t.Helper()
	tr, err := New([]int{4, 4}, []int{8}, WithFilters(2), WithLayers(1), WithLatentDim(3))
	require.NoError(t, err)
	tr.Controller().SetLogger(log.NewZerologProviderWithWriter(io.Discard, log.ErrorLevel).GetLogger())
	return tr
}

func TestImageToSpectrumFullEpoch(t *testing.T) {
	dir := t.TempDir()
	x, y := pairs(16, 1)
	xt, yt := pairs(4, 2)
	tr := newTrainer(t)

	var reports []trainer.Report
	tr.Controller().SetReporter(trainer.ReporterFunc(func(r trainer.Report) { reports = append(reports, r) }))

	err := tr.Compile(x, y, xt, yt,
		trainer.WithTrainingCycles(4),
		trainer.WithFullEpoch(true),
		trainer.WithBatchSize(4),
		trainer.WithAccuracy(true),
		trainer.WithFilename(filepath.Join(dir, "imspec")),
		trainer.WithCheckpointFormat(checkpoint.FormatJSON),
		trainer.WithPlotHistory(false),
	)
	require.NoError(t, err)

	res, err := tr.Fit()
	require.NoError(t, err)
	assert.Len(t, res.History.TrainLoss, 4)
	assert.Len(t, res.History.TrainAccuracy, 4)
	require.Len(t, reports, 4)
	assert.Equal(t, AccuracyLabel, reports[0].AccuracyLabel)

	ms, err := checkpoint.Load(res.CheckpointPath)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 4}, ms.Descriptor.InDim)
	assert.Equal(t, []int{8}, ms.Descriptor.OutDim)
	assert.Equal(t, 3, ms.Descriptor.LatentDim)

	pred, err := tr.Predict(xt)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 8}, pred.Shape())
}

func TestFixedCycleSWAUnderflow(t *testing.T) {
	dir := t.TempDir()
	x, y := pairs(20, 3)
	tr := newTrainer(t)

	err := tr.Compile(x, y, nil, nil,
		trainer.WithTrainingCycles(10),
		trainer.WithBatchSize(4),
		trainer.WithSWA(true),
		trainer.WithFilename(filepath.Join(dir, "short")),
		trainer.WithPlotHistory(false),
	)
	require.NoError(t, err)

	_, err = tr.Fit()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSWAUnderflow))
	assert.Equal(t, 10, tr.Controller().History().Len())
}

func TestCompileRejectsWrongSignalShape(t *testing.T) {
	x, _ := pairs(8, 1)
	bad := tensor.Zeros(8, 6)
	tr := newTrainer(t)

	err := tr.Compile(x, bad, x, bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrShapeMismatch))
}

func TestSpectrumToImage(t *testing.T) {
	x, y := pairs(8, 4)
	tr, err := New([]int{8}, []int{4, 4}, WithFilters(2), WithLayers(1))
	require.NoError(t, err)

	out, err := tr.Predict(y)
	require.NoError(t, err)
	assert.Equal(t, x.Shape(), out.Shape())
}
