package trainer

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
	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/losses"
	"github.com/ezoic/atomtrain/metrics"
	"github.com/ezoic/atomtrain/nn"
	"github.com/ezoic/atomtrain/optim"
	"github.com/ezoic/atomtrain/pkg/errors"
	"github.com/ezoic/atomtrain/pkg/log"
)

func TestMain(m *testing.M) {
	globalProvider = log.NewZerologProviderWithWriter(io.Discard, log.ErrorLevel)
	prev := errors.SetWarningHandler(func(error) {})
	code := m.Run()
	errors.SetWarningHandler(prev)
	os.Exit(code)
}

// linearNet is a 4 -> 1 dense network, optionally followed by batch norm.
func linearNet(t *testing.T, batchNorm bool) *nn.Sequential {
	t.Helper()
	rng := rand.New(rand.NewPCG(3, 3))
	dense, err := nn.NewDense("fc", 4, 1, rng)
	require.NoError(t, err)
	layers := []nn.Layer{dense}
	if batchNorm {
		layers = append(layers, nn.NewBatchNorm("bn", 1))
	}
	return nn.NewSequential(model.Descriptor{Architecture: "linear", InDim: []int{4}, BatchNorm: batchNorm}, layers...)
}

// regressionData returns n samples of y = x·w with 4 features.
func regressionData(n int, seed uint64) (*tensor.Tensor, *tensor.Tensor) {
	rng := rand.New(rand.NewPCG(seed, seed))
	w := []float64{0.5, -1, 0.25, 2}
	x := tensor.Zeros(n, 4)
	y := tensor.Zeros(n, 1)
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < 4; j++ {
			v := rng.Float64()
			x.Set(v, i, j)
			s += v * w[j]
		}
		y.Set(s, i, 0)
	}
	return x, y
}

func fixedSource(t *testing.T, cycles int) *FixedCycleSource {
	t.Helper()
	x, y := regressionData(24, 1)
	var xs, ys []*tensor.Tensor
	for i := 0; i < 4; i++ {
		bx, err := x.Slice(i*4, i*4+4)
		require.NoError(t, err)
		by, err := y.Slice(i*4, i*4+4)
		require.NoError(t, err)
		xs, ys = append(xs, bx), append(ys, by)
	}
	xt, err := x.Slice(16, 24)
	require.NoError(t, err)
	yt, err := y.Slice(16, 24)
	require.NoError(t, err)
	src, err := NewFixedCycleSource(xs, ys, []*tensor.Tensor{xt}, []*tensor.Tensor{yt}, 4, cycles, 7)
	require.NoError(t, err)
	return src
}

func newController(t *testing.T, net *nn.Sequential) *Controller {
	t.Helper()
	opt, err := optim.NewSGD(net.Parameters(), 0.05)
	require.NoError(t, err)
	return NewController(net, opt)
}

func TestFixedCycleIndicesInRange(t *testing.T) {
	src := fixedSource(t, 50)
	for _, s := range []Stream{Train, Test} {
		idx := src.Indices(s)
		assert.Len(t, idx, 50)
		for _, i := range idx {
			assert.GreaterOrEqual(t, i, 0)
			assert.Less(t, i, src.NumBatches(s))
		}
	}
	assert.Equal(t, 16, src.NumSamples(Train))

	// same seed, same schedule
	again := fixedSource(t, 50)
	assert.Equal(t, src.Indices(Train), again.Indices(Train))

	b, err := src.Batch(49, Train)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Len())
	_, err = src.Batch(50, Train)
	assert.Error(t, err)
}

func TestFixedCycleSourceValidation(t *testing.T) {
	x := tensor.Zeros(4, 2)
	y := tensor.Zeros(4, 1)
	_, err := NewFixedCycleSource(nil, nil, []*tensor.Tensor{x}, []*tensor.Tensor{y}, 4, 10, 1)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	_, err = NewFixedCycleSource([]*tensor.Tensor{x}, []*tensor.Tensor{nil}, []*tensor.Tensor{x}, []*tensor.Tensor{y}, 4, 10, 1)
	assert.True(t, errors.Is(err, errors.ErrNotTensor))

	_, err = NewFixedCycleSource([]*tensor.Tensor{x}, []*tensor.Tensor{tensor.Zeros(3, 1)}, []*tensor.Tensor{x}, []*tensor.Tensor{y}, 4, 10, 1)
	assert.True(t, errors.Is(err, errors.ErrShapeMismatch))
}

func TestFixedCycleCapsBatchSize(t *testing.T) {
	x := tensor.Zeros(6, 2)
	y := tensor.Zeros(6, 1)
	src, err := NewFixedCycleSource([]*tensor.Tensor{x}, []*tensor.Tensor{y}, []*tensor.Tensor{x}, []*tensor.Tensor{y}, 4, 3, 1)
	require.NoError(t, err)
	b, err := src.Batch(0, Test)
	require.NoError(t, err)
	assert.Equal(t, 4, b.Len())
	assert.Equal(t, 4, b.Y.Len())
}

func TestFullEpochSourceBatching(t *testing.T) {
	x, y := regressionData(10, 2)
	src, err := NewFullEpochSource(x, y, x, y, 4, 1)
	require.NoError(t, err)

	assert.Equal(t, 2, src.NumBatches(Train))
	assert.Equal(t, 3, src.NumBatches(Test))

	train, err := src.Sweep(Train)
	require.NoError(t, err)
	require.Len(t, train, 2)
	for _, b := range train {
		assert.Equal(t, 4, b.Len())
	}

	test, err := src.Sweep(Test)
	require.NoError(t, err)
	require.Len(t, test, 3)
	assert.Equal(t, 2, test[2].Len())
	assert.Equal(t, x.At(8, 0), test[2].X.At(0, 0))

	// reshuffled each sweep
	again, err := src.Sweep(Train)
	require.NoError(t, err)
	assert.NotEqual(t, train[0].X.Values(), again[0].X.Values())
}

func TestFullEpochKeepsSingleShortTrainBatch(t *testing.T) {
	x, y := regressionData(3, 2)
	src, err := NewFullEpochSource(x, y, x, y, 4, 1)
	require.NoError(t, err)
	batches, err := src.Sweep(Train)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 3, batches[0].Len())
}

func TestAccumulatorMeanIsPerBatch(t *testing.T) {
	var acc Accumulator
	acc.Add(StepResult{Loss: 1})
	acc.Add(StepResult{Loss: 2, Accuracy: 0.5, HasAccuracy: true})
	acc.Add(StepResult{Loss: 6, Accuracy: 1, HasAccuracy: true})

	m := acc.Mean()
	assert.Equal(t, 3, acc.Count())
	assert.InDelta(t, 3.0, m.Loss, 1e-12)
	assert.InDelta(t, 0.75, m.Accuracy, 1e-12)
	assert.True(t, m.HasAccuracy)

	var empty Accumulator
	assert.Equal(t, StepResult{}, empty.Mean())
}

func setWeights(t *testing.T, m model.Trainable, v float64) {
	t.Helper()
	sd := m.StateDict().Clone()
	for _, w := range sd {
		w.Fill(v)
	}
	require.NoError(t, m.LoadStateDict(sd))
}

func TestSnapshotPoolAveragesFinalWindow(t *testing.T) {
	net := linearNet(t, false)
	sm := NewSnapshotManager(net, 10, true, nil, 1)
	require.Equal(t, FullEpochWindow, sm.Window())

	taken := 0
	for cycle := 0; cycle < 10; cycle++ {
		setWeights(t, net, float64(cycle))
		if sm.SaveRunning(cycle) {
			taken++
		}
	}
	assert.Equal(t, 5, taken)
	assert.Equal(t, 5, sm.PoolSize())

	avg, err := sm.Average()
	require.NoError(t, err)
	for name, w := range avg {
		for _, v := range w.Values() {
			assert.InDelta(t, 7.0, v, 1e-12, name)
		}
	}
	assert.Equal(t, 0, sm.PoolSize())

	// the snapshots are detached copies
	for _, w := range net.StateDict() {
		assert.Equal(t, 9.0, w.Values()[0])
	}
}

func TestSnapshotOverwritesSlot(t *testing.T) {
	net := linearNet(t, false)
	sm := NewSnapshotManager(net, 5, true, nil, 1)
	for cycle := 0; cycle < 5; cycle++ {
		setWeights(t, net, 1)
		sm.SaveRunning(cycle)
	}
	setWeights(t, net, 6)
	sm.SaveRunning(4)
	assert.Equal(t, 5, sm.PoolSize())

	avg, err := sm.Average()
	require.NoError(t, err)
	for _, w := range avg {
		assert.InDelta(t, 2.0, w.Values()[0], 1e-12)
	}
}

func TestSnapshotUnderflow(t *testing.T) {
	net := linearNet(t, false)
	sm := NewSnapshotManager(net, 10, false, nil, 1)
	require.Equal(t, FixedCycleWindow, sm.Window())
	for cycle := 0; cycle < 10; cycle++ {
		sm.SaveRunning(cycle)
	}
	assert.Equal(t, 10, sm.PoolSize())

	_, err := sm.Average()
	assert.True(t, errors.Is(err, errors.ErrSWAUnderflow))
	var cfgErr *errors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))

	empty := NewSnapshotManager(net, 10, false, nil, 1)
	_, err = empty.Average()
	assert.True(t, errors.Is(err, errors.ErrSWAUnderflow))
}

func TestPerturbationVarianceSchedule(t *testing.T) {
	net := linearNet(t, false)
	p := PerturbationConfig{A: 0.1, Gamma: 1.5, Period: 1}
	sm := NewSnapshotManager(net, 100, false, &p, 1)

	for _, pair := range [][2]int{{0, 1}, {3, 9}, {10, 50}} {
		c1, c2 := pair[0], pair[1]
		want := math.Pow((1+float64(c1))/(1+float64(c2)), p.Gamma)
		assert.InDelta(t, want, sm.Variance(c2)/sm.Variance(c1), 1e-12)
	}
	assert.InDelta(t, 0.1, sm.Variance(0), 1e-15)

	off := NewSnapshotManager(net, 100, false, nil, 1)
	assert.Equal(t, 0.0, off.Variance(3))
}

func TestPerturbRespectsPeriod(t *testing.T) {
	net := linearNet(t, false)
	p := PerturbationConfig{A: 0.01, Gamma: 1.5, Period: 3}
	sm := NewSnapshotManager(net, 10, false, &p, 1)

	before := net.StateDict().Clone()
	changed, err := sm.Perturb(0)
	require.NoError(t, err)
	assert.False(t, changed)
	for name, w := range net.StateDict() {
		assert.Equal(t, before[name].Values(), w.Values())
	}

	changed, err = sm.Perturb(2)
	require.NoError(t, err)
	assert.True(t, changed)
	diff := 0
	for name, w := range net.StateDict() {
		for i, v := range w.Values() {
			if v != before[name].Values()[i] {
				diff++
			}
		}
	}
	assert.Greater(t, diff, 0)
}

func TestShouldReport(t *testing.T) {
	var got []int
	for c := 0; c < 10; c++ {
		if shouldReport(c, 4) {
			got = append(got, c)
		}
	}
	assert.Equal(t, []int{0, 3, 7}, got)
}

func TestConfigDefaults(t *testing.T) {
	cfg := NewConfig(WithPerturbation(PerturbationConfig{}), WithSeed(5)).withDefaults()
	assert.Equal(t, 100, cfg.PrintLoss)
	assert.Equal(t, DefaultFilename, cfg.Filename)
	require.NotNil(t, cfg.Perturb)
	assert.Equal(t, DefaultPerturbation(false), *cfg.Perturb)
	assert.Equal(t, uint64(5), cfg.EffectiveBatchSeed())

	epoch := NewConfig(WithFullEpoch(true), WithPerturbation(PerturbationConfig{A: 0.5}), WithBatchSeed(9)).withDefaults()
	assert.Equal(t, 1, epoch.PrintLoss)
	assert.Equal(t, 1, epoch.Perturb.Period)
	assert.Equal(t, 0.5, epoch.Perturb.A)
	assert.Equal(t, uint64(9), epoch.EffectiveBatchSeed())

	assert.Error(t, NewConfig(WithTrainingCycles(0)).validate())
	assert.Error(t, NewConfig(WithBatchSize(-1)).validate())
}

func TestCompileRejectsPerturbationWithBatchNorm(t *testing.T) {
	ctrl := newController(t, linearNet(t, true))
	cfg := NewConfig(WithTrainingCycles(5), WithPerturbation(PerturbationConfig{}), WithPlotHistory(false))

	err := ctrl.Compile(fixedSource(t, 5), losses.MeanSquaredError, nil, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBatchNormPerturbation))
	var cfgErr *errors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, model.Unconfigured, ctrl.Phase())

	_, err = ctrl.Fit()
	assert.True(t, errors.Is(err, errors.ErrNotConfigured))
	assert.Equal(t, 0, ctrl.History().Len())
}

func TestCompileRejectsModeMismatch(t *testing.T) {
	ctrl := newController(t, linearNet(t, false))
	cfg := NewConfig(WithTrainingCycles(5), WithFullEpoch(true))
	err := ctrl.Compile(fixedSource(t, 5), losses.MeanSquaredError, nil, cfg)
	assert.Error(t, err)

	err = ctrl.Compile(fixedSource(t, 5), losses.MeanSquaredError, nil, NewConfig(WithAccuracy(true)))
	assert.Error(t, err)
}

func TestFitFixedCycle(t *testing.T) {
	dir := t.TempDir()
	ctrl := newController(t, linearNet(t, false))
	var reports []Report
	ctrl.SetReporter(ReporterFunc(func(r Report) { reports = append(reports, r) }))

	cfg := NewConfig(
		WithTrainingCycles(40),
		WithPrintLoss(10),
		WithAccuracy(true),
		WithAccuracyLabel("R2"),
		WithFilename(filepath.Join(dir, "run")),
		WithPlotHistory(false),
	)
	require.NoError(t, ctrl.Compile(fixedSource(t, 40), losses.MeanSquaredError, metrics.R2Score, cfg))
	assert.Equal(t, model.Configured, ctrl.Phase())

	res, err := ctrl.Fit()
	require.NoError(t, err)
	assert.Equal(t, model.Finished, ctrl.Phase())

	h := res.History
	assert.Len(t, h.TrainLoss, 40)
	assert.Len(t, h.TestLoss, 40)
	assert.Len(t, h.TrainAccuracy, 40)
	assert.Len(t, h.TestAccuracy, 40)
	assert.Less(t, mean(h.TrainLoss[30:]), mean(h.TrainLoss[:10]))

	require.Len(t, reports, 5)
	assert.Equal(t, 1, reports[0].Cycle)
	assert.Equal(t, 10, reports[1].Cycle)
	assert.Equal(t, 40, reports[4].Cycle)
	assert.Equal(t, "R2", reports[0].AccuracyLabel)
	assert.True(t, reports[0].HasAccuracy)

	require.Len(t, res.Evaluations, 1)
	assert.Equal(t, "final", res.Evaluations[0].Name)
	assert.True(t, res.Evaluations[0].HasAccuracy)

	assert.Equal(t, filepath.Join(dir, "run")+"_metadict_final.gob", res.CheckpointPath)
	ms, err := checkpoint.Load(res.CheckpointPath)
	require.NoError(t, err)
	assert.Equal(t, 40, ms.Config["training_cycles"])
	assert.Equal(t, "sgd", ms.Optimizer.Name)

	_, err = ctrl.Fit()
	assert.True(t, errors.Is(err, errors.ErrAlreadyTrained))

	ev, err := ctrl.Evaluate()
	require.NoError(t, err)
	assert.InDelta(t, res.Evaluations[0].Loss, ev.Loss, 1e-12)
}

func TestFitFullEpochWithSWA(t *testing.T) {
	dir := t.TempDir()
	net := linearNet(t, false)
	ctrl := newController(t, net)

	x, y := regressionData(20, 4)
	xt, yt := regressionData(6, 5)
	src, err := NewFullEpochSource(x, y, xt, yt, 4, 1)
	require.NoError(t, err)

	steps := map[int]int{}
	ctrl.SetAugmenter(AugmenterFunc(func(b Batch, step int) (Batch, error) {
		steps[step]++
		return b, nil
	}))

	cfg := NewConfig(
		WithTrainingCycles(6),
		WithFullEpoch(true),
		WithBatchSize(4),
		WithSWA(true),
		WithFilename(filepath.Join(dir, "epoch")),
		WithCheckpointFormat(checkpoint.FormatJSON),
	)
	require.NoError(t, ctrl.Compile(src, losses.MeanSquaredError, nil, cfg))

	res, err := ctrl.Fit()
	require.NoError(t, err)
	assert.Len(t, res.History.TrainLoss, 6)
	assert.Empty(t, res.History.TrainAccuracy)

	// 5 train + 2 test batches per cycle, tagged with the completed cycle count
	for step := 0; step < 6; step++ {
		assert.Equal(t, 7, steps[step], "step %d", step)
	}

	require.Len(t, res.Evaluations, 1)
	assert.Equal(t, "swa", res.Evaluations[0].Name)
	assert.FileExists(t, res.CheckpointPath)
	assert.FileExists(t, res.PlotPath)
}

func TestFitFixedCycleSWAUnderflow(t *testing.T) {
	dir := t.TempDir()
	ctrl := newController(t, linearNet(t, false))
	cfg := NewConfig(
		WithTrainingCycles(10),
		WithSWA(true),
		WithFilename(filepath.Join(dir, "short")),
		WithPlotHistory(false),
	)
	require.NoError(t, ctrl.Compile(fixedSource(t, 10), losses.MeanSquaredError, nil, cfg))

	_, err := ctrl.Fit()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSWAUnderflow))
	var cfgErr *errors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, 10, ctrl.History().Len())
	assert.FileExists(t, checkpoint.Path(filepath.Join(dir, "short"), checkpoint.FormatGob))
}

func TestFitPropagatesNumericalFailure(t *testing.T) {
	ctrl := newController(t, linearNet(t, false))
	bad := func(pred, target *tensor.Tensor) (float64, *tensor.Tensor, error) {
		return math.NaN(), tensor.ZerosLike(pred), nil
	}
	cfg := NewConfig(WithTrainingCycles(3), WithFilename(filepath.Join(t.TempDir(), "nan")), WithPlotHistory(false))
	require.NoError(t, ctrl.Compile(fixedSource(t, 3), bad, nil, cfg))

	_, err := ctrl.Fit()
	assert.True(t, errors.Is(err, errors.ErrNumerical))
	assert.Equal(t, model.Finished, ctrl.Phase())
}

func mean(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func TestNewSourceFollowsMode(t *testing.T) {
	x, y := regressionData(10, 1)

	fixed, err := NewSource(x, y, x, y, NewConfig(WithBatchSize(4), WithTrainingCycles(7)))
	require.NoError(t, err)
	assert.False(t, fixed.FullEpoch())
	assert.Equal(t, 3, fixed.NumBatches(Train))
	assert.Len(t, fixed.(*FixedCycleSource).Indices(Test), 7)

	epoch, err := NewSource(x, y, x, y, NewConfig(WithBatchSize(4), WithFullEpoch(true)))
	require.NoError(t, err)
	assert.True(t, epoch.FullEpoch())

	_, err = NewSource(nil, y, x, y, NewConfig())
	assert.True(t, errors.Is(err, errors.ErrNotTensor))
}

// flatLoss has a zero gradient, so only perturbation can move the weights.
func flatLoss(pred, target *tensor.Tensor) (float64, *tensor.Tensor, error) {
	return 0.5, tensor.ZerosLike(pred), nil
}

// weightTrace records a copy of the weights after every reported cycle.
func weightTrace(ctrl *Controller, m model.Trainable) *[][]float64 {
	trace := &[][]float64{}
	ctrl.SetReporter(ReporterFunc(func(Report) {
		var w []float64
		for _, k := range m.StateDict().Keys() {
			w = append(w, m.StateDict()[k].RawData()...)
		}
		*trace = append(*trace, w)
	}))
	return trace
}

func TestFitPerturbsOnPeriodCyclesInFixedCycleMode(t *testing.T) {
	net := linearNet(t, false)
	ctrl := newController(t, net)
	trace := weightTrace(ctrl, net)
	initial := net.StateDict().Clone()

	cfg := NewConfig(
		WithTrainingCycles(6),
		WithPrintLoss(1),
		WithPerturbation(PerturbationConfig{A: 0.05, Gamma: 1, Period: 3}),
		WithFilename(filepath.Join(t.TempDir(), "perturb")),
		WithPlotHistory(false),
	)
	require.NoError(t, ctrl.Compile(fixedSource(t, 6), flatLoss, nil, cfg))
	res, err := ctrl.Fit()
	require.NoError(t, err)
	assert.Equal(t, 6, res.Steps)

	var start []float64
	for _, k := range initial.Keys() {
		start = append(start, initial[k].RawData()...)
	}
	w := *trace
	require.Len(t, w, 6)
	assert.Equal(t, start, w[0])
	assert.Equal(t, start, w[1])
	assert.NotEqual(t, w[1], w[2], "perturbed after cycle 2")
	assert.Equal(t, w[2], w[3])
	assert.Equal(t, w[3], w[4])
	assert.NotEqual(t, w[4], w[5], "perturbed after cycle 5")
}

func TestFitDoesNotPerturbInFullEpochMode(t *testing.T) {
	net := linearNet(t, false)
	ctrl := newController(t, net)
	trace := weightTrace(ctrl, net)

	x, y := regressionData(8, 4)
	src, err := NewFullEpochSource(x, y, x, y, 4, 1)
	require.NoError(t, err)
	cfg := NewConfig(
		WithTrainingCycles(4),
		WithFullEpoch(true),
		WithBatchSize(4),
		WithPerturbation(PerturbationConfig{A: 0.05, Gamma: 1, Period: 1}),
		WithFilename(filepath.Join(t.TempDir(), "epoch")),
		WithPlotHistory(false),
	)
	require.NoError(t, ctrl.Compile(src, flatLoss, nil, cfg))
	res, err := ctrl.Fit()
	require.NoError(t, err)
	assert.Equal(t, 8, res.Steps)

	w := *trace
	require.Len(t, w, 4)
	for i := 1; i < len(w); i++ {
		assert.Equal(t, w[0], w[i], "cycle %d", i)
	}
}

func TestFitKeepsResultWhenPlotFails(t *testing.T) {
	dir := t.TempDir()
	net := linearNet(t, false)
	ctrl := newController(t, net)

	// infinite test losses cannot be drawn
	loss := func(pred, target *tensor.Tensor) (float64, *tensor.Tensor, error) {
		if !net.Training() {
			return math.Inf(1), tensor.ZerosLike(pred), nil
		}
		return losses.MeanSquaredError(pred, target)
	}
	cfg := NewConfig(
		WithTrainingCycles(3),
		WithFilename(filepath.Join(dir, "inf")),
	)
	require.NoError(t, ctrl.Compile(fixedSource(t, 3), loss, nil, cfg))

	res, err := ctrl.Fit()
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Empty(t, res.PlotPath)
	assert.Len(t, res.History.TestLoss, 3)
	assert.FileExists(t, res.CheckpointPath)
	assert.NoFileExists(t, filepath.Join(dir, "inf_history.png"))
}

func TestFitWarnsWhenLossDoesNotDecrease(t *testing.T) {
	var warnings []*errors.ConvergenceWarning
	prev := errors.SetWarningHandler(func(w error) {
		var cw *errors.ConvergenceWarning
		if errors.As(w, &cw) {
			warnings = append(warnings, cw)
		}
	})
	defer errors.SetWarningHandler(prev)

	ctrl := newController(t, linearNet(t, false))
	cfg := NewConfig(
		WithTrainingCycles(4),
		WithFilename(filepath.Join(t.TempDir(), "flat")),
		WithPlotHistory(false),
	)
	require.NoError(t, ctrl.Compile(fixedSource(t, 4), flatLoss, nil, cfg))
	_, err := ctrl.Fit()
	require.NoError(t, err)

	require.Len(t, warnings, 1)
	assert.Equal(t, "Controller.Fit", warnings[0].Algorithm)
	assert.Equal(t, 4, warnings[0].Iterations)
}
