package trainer

import (
	"fmt"
	"math/rand/v2"

	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
	"github.com/ezoic/atomtrain/preprocessing"
)

// Stream selects the train or test partition.
type Stream int

const (
	Train Stream = iota
	Test
)

func (s Stream) String() string {
	if s == Test {
		return "test"
	}
	return "train"
}

// Batch is an index-aligned pair of inputs and targets.
type Batch struct {
	X *tensor.Tensor
	Y *tensor.Tensor
}

// Len returns the number of samples in the batch.
func (b Batch) Len() int {
	return b.X.Len()
}

// BatchSource yields the batches the controller trains and tests on.
//
// Sweep returns one complete pass over a partition; Batch returns the single
// batch scheduled for a cycle. Short batches are returned as they are.
type BatchSource interface {
	FullEpoch() bool
	NumBatches(s Stream) int
	NumSamples(s Stream) int
	Batch(cycle int, s Stream) (Batch, error)
	Sweep(s Stream) ([]Batch, error)
}

func checkPair(op string, x, y *tensor.Tensor, what string) error {
	if x == nil || y == nil {
		return errors.NewModelError(op, what+" is missing", errors.ErrNotTensor)
	}
	if x.Len() != y.Len() {
		return errors.NewDimensionError(op, x.Len(), y.Len(), 0)
	}
	return nil
}

// FullEpochSource sweeps over whole partitions every cycle. The train
// partition is reshuffled on each sweep by the source's own generator and its
// trailing partial batch is dropped, unless it is the only batch. The test
// partition is swept in order and keeps its partial batch.
type FullEpochSource struct {
	xTrain, yTrain *tensor.Tensor
	xTest, yTest   *tensor.Tensor
	batchSize      int
	rng            *rand.Rand
}

// NewFullEpochSource creates a full-epoch source over the given partitions.
func NewFullEpochSource(xTrain, yTrain, xTest, yTest *tensor.Tensor, batchSize int, seed uint64) (*FullEpochSource, error) {
	const op = "trainer.NewFullEpochSource"
	if err := checkPair(op, xTrain, yTrain, "training data"); err != nil {
		return nil, err
	}
	if err := checkPair(op, xTest, yTest, "test data"); err != nil {
		return nil, err
	}
	if batchSize < 1 {
		return nil, errors.NewConfigError(op, "batch size must be positive", nil)
	}
	return &FullEpochSource{
		xTrain: xTrain, yTrain: yTrain,
		xTest: xTest, yTest: yTest,
		batchSize: batchSize,
		rng:       rand.New(rand.NewPCG(seed, seed)),
	}, nil
}

// FullEpoch is always true.
func (f *FullEpochSource) FullEpoch() bool { return true }

func (f *FullEpochSource) partition(s Stream) (*tensor.Tensor, *tensor.Tensor) {
	if s == Test {
		return f.xTest, f.yTest
	}
	return f.xTrain, f.yTrain
}

// NumSamples returns the partition size.
func (f *FullEpochSource) NumSamples(s Stream) int {
	x, _ := f.partition(s)
	return x.Len()
}

// NumBatches returns the number of batches one sweep yields.
func (f *FullEpochSource) NumBatches(s Stream) int {
	n := f.NumSamples(s)
	if s == Train {
		if nb := n / f.batchSize; nb > 0 {
			return nb
		}
		return 1
	}
	return (n + f.batchSize - 1) / f.batchSize
}

// Batch returns batch cycle mod NumBatches of the unshuffled partition.
func (f *FullEpochSource) Batch(cycle int, s Stream) (Batch, error) {
	x, y := f.partition(s)
	nb := f.NumBatches(s)
	start := (cycle % nb) * f.batchSize
	end := min(start+f.batchSize, x.Len())
	bx, err := x.Slice(start, end)
	if err != nil {
		return Batch{}, err
	}
	by, err := y.Slice(start, end)
	if err != nil {
		return Batch{}, err
	}
	return Batch{X: bx, Y: by}, nil
}

// Sweep returns one pass over the partition. Train batches are gathered
// copies in a fresh random order; test batches are views in order.
func (f *FullEpochSource) Sweep(s Stream) ([]Batch, error) {
	x, y := f.partition(s)
	n := x.Len()
	nb := f.NumBatches(s)
	batches := make([]Batch, 0, nb)

	if s == Test {
		for i := 0; i < nb; i++ {
			b, err := f.Batch(i, Test)
			if err != nil {
				return nil, err
			}
			batches = append(batches, b)
		}
		return batches, nil
	}

	perm := f.rng.Perm(n)
	for i := 0; i < nb; i++ {
		idx := perm[i*f.batchSize : min((i+1)*f.batchSize, n)]
		batches = append(batches, Batch{X: x.Gather(idx), Y: y.Gather(idx)})
	}
	return batches, nil
}

// FixedCycleSource serves one pre-built batch per stream and cycle. The batch
// indices are drawn uniformly with replacement once, at construction, train
// sequence first.
type FixedCycleSource struct {
	xTrain, yTrain []*tensor.Tensor
	xTest, yTest   []*tensor.Tensor
	batchSize      int
	trainIdx       []int
	testIdx        []int
}

// NewFixedCycleSource creates a fixed-cycle source over pre-batched
// partitions. Each stream gets exactly cycles random batch indices.
func NewFixedCycleSource(xTrain, yTrain, xTest, yTest []*tensor.Tensor, batchSize, cycles int, seed uint64) (*FixedCycleSource, error) {
	const op = "trainer.NewFixedCycleSource"
	if err := checkBatches(op, xTrain, yTrain, "training"); err != nil {
		return nil, err
	}
	if err := checkBatches(op, xTest, yTest, "test"); err != nil {
		return nil, err
	}
	if batchSize < 1 {
		return nil, errors.NewConfigError(op, "batch size must be positive", nil)
	}
	if cycles < 1 {
		return nil, errors.NewConfigError(op, "training cycles must be positive", nil)
	}

	rng := rand.New(rand.NewPCG(seed, seed))
	draw := func(n int) []int {
		idx := make([]int, cycles)
		for i := range idx {
			idx[i] = rng.IntN(n)
		}
		return idx
	}
	src := &FixedCycleSource{
		xTrain: xTrain, yTrain: yTrain,
		xTest: xTest, yTest: yTest,
		batchSize: batchSize,
	}
	src.trainIdx = draw(len(xTrain))
	src.testIdx = draw(len(xTest))
	return src, nil
}

func checkBatches(op string, xs, ys []*tensor.Tensor, what string) error {
	if len(xs) == 0 || len(ys) == 0 {
		return errors.NewModelError(op, what+" batches are empty", errors.ErrEmptyData)
	}
	if len(xs) != len(ys) {
		return errors.NewDimensionError(op, len(xs), len(ys), 0)
	}
	for i := range xs {
		if err := checkPair(op, xs[i], ys[i], fmt.Sprintf("%s batch %d", what, i)); err != nil {
			return err
		}
	}
	return nil
}

// FullEpoch is always false.
func (f *FixedCycleSource) FullEpoch() bool { return false }

func (f *FixedCycleSource) partition(s Stream) ([]*tensor.Tensor, []*tensor.Tensor, []int) {
	if s == Test {
		return f.xTest, f.yTest, f.testIdx
	}
	return f.xTrain, f.yTrain, f.trainIdx
}

// NumBatches returns the number of pre-built batches.
func (f *FixedCycleSource) NumBatches(s Stream) int {
	xs, _, _ := f.partition(s)
	return len(xs)
}

// NumSamples returns the number of samples across all batches.
func (f *FixedCycleSource) NumSamples(s Stream) int {
	xs, _, _ := f.partition(s)
	n := 0
	for _, x := range xs {
		n += x.Len()
	}
	return n
}

// Indices returns a copy of the precomputed batch sequence for s.
func (f *FixedCycleSource) Indices(s Stream) []int {
	_, _, idx := f.partition(s)
	return append([]int(nil), idx...)
}

func (f *FixedCycleSource) at(i int, s Stream) Batch {
	xs, ys, _ := f.partition(s)
	return Batch{X: xs[i].Head(f.batchSize), Y: ys[i].Head(f.batchSize)}
}

// Batch returns the batch scheduled for cycle, capped to the batch size.
func (f *FixedCycleSource) Batch(cycle int, s Stream) (Batch, error) {
	_, _, idx := f.partition(s)
	if cycle < 0 || cycle >= len(idx) {
		return Batch{}, errors.NewValueError("FixedCycleSource.Batch",
			fmt.Sprintf("cycle %d outside [0, %d)", cycle, len(idx)))
	}
	return f.at(idx[cycle], s), nil
}

// Sweep returns every batch of the partition in order.
func (f *FixedCycleSource) Sweep(s Stream) ([]Batch, error) {
	nb := f.NumBatches(s)
	batches := make([]Batch, nb)
	for i := range batches {
		batches[i] = f.at(i, s)
	}
	return batches, nil
}

// NewSource builds the batch source matching cfg: a FullEpochSource when
// cfg.FullEpoch is set, otherwise a FixedCycleSource over the partitions cut
// into cfg.BatchSize batches. Batch selection is seeded by
// cfg.EffectiveBatchSeed().
func NewSource(xTrain, yTrain, xTest, yTest *tensor.Tensor, cfg Config) (BatchSource, error) {
	const op = "trainer.NewSource"
	if err := checkPair(op, xTrain, yTrain, "training data"); err != nil {
		return nil, err
	}
	if err := checkPair(op, xTest, yTest, "test data"); err != nil {
		return nil, err
	}
	seed := cfg.EffectiveBatchSeed()
	if cfg.FullEpoch {
		return NewFullEpochSource(xTrain, yTrain, xTest, yTest, cfg.BatchSize, seed)
	}

	var parts [4][]*tensor.Tensor
	for i, t := range []*tensor.Tensor{xTrain, yTrain, xTest, yTest} {
		b, err := preprocessing.ToBatches(t, cfg.BatchSize)
		if err != nil {
			return nil, err
		}
		parts[i] = b
	}
	return NewFixedCycleSource(parts[0], parts[1], parts[2], parts[3], cfg.BatchSize, cfg.TrainingCycles, seed)
}
