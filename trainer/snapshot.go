package trainer

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/ezoic/atomtrain/core/model"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// SWA window sizes: the number of final cycles whose weights are averaged.
const (
	FullEpochWindow  = 5
	FixedCycleWindow = 30
)

// SnapshotManager keeps the stochastic weight averaging pool and applies
// weight perturbation. Both mutate the model only between cycles.
type SnapshotManager struct {
	model   model.Trainable
	total   int
	window  int
	pool    map[int]model.StateDict
	perturb *PerturbationConfig
	rng     *rand.Rand
}

// NewSnapshotManager creates a manager for a run of total cycles. perturb may
// be nil to disable perturbation; seed drives the perturbation noise.
func NewSnapshotManager(m model.Trainable, total int, fullEpoch bool, perturb *PerturbationConfig, seed uint64) *SnapshotManager {
	w := FixedCycleWindow
	if fullEpoch {
		w = FullEpochWindow
	}
	return &SnapshotManager{
		model:   m,
		total:   total,
		window:  w,
		perturb: perturb,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Window returns the SWA window size W.
func (s *SnapshotManager) Window() int {
	return s.window
}

// SaveRunning stores a detached copy of the current weights when cycle lies
// in the final W cycles, in slot W-(total-cycle). It reports whether a
// snapshot was taken.
func (s *SnapshotManager) SaveRunning(cycle int) bool {
	remaining := s.total - cycle
	if remaining > s.window || remaining < 1 {
		return false
	}
	if s.pool == nil {
		s.pool = make(map[int]model.StateDict, s.window)
	}
	s.pool[s.window-remaining] = s.model.StateDict().Clone()
	return true
}

// PoolSize returns the number of stored snapshots.
func (s *SnapshotManager) PoolSize() int {
	return len(s.pool)
}

// Average returns the element-wise mean of the stored snapshots and discards
// the pool. A pool holding fewer than W snapshots is an error.
func (s *SnapshotManager) Average() (model.StateDict, error) {
	pool := s.pool
	s.pool = nil
	if len(pool) < s.window {
		return nil, errors.NewConfigError("SnapshotManager.Average",
			fmt.Sprintf("%d of %d snapshots collected; train for at least %d cycles", len(pool), s.window, s.window),
			errors.ErrSWAUnderflow)
	}

	first := pool[0]
	avg := make(model.StateDict, len(first))
	for name, t := range first {
		avg[name] = tensor.ZerosLike(t)
	}
	for slot := 0; slot < s.window; slot++ {
		sd := pool[slot]
		for name, acc := range avg {
			t, ok := sd[name]
			if !ok {
				return nil, errors.NewValueError("SnapshotManager.Average",
					fmt.Sprintf("snapshot %d misses %s", slot, name))
			}
			if err := acc.AddScaled(1, t); err != nil {
				return nil, err
			}
		}
	}
	for _, acc := range avg {
		acc.Scale(1 / float64(s.window))
	}
	return avg, nil
}

// Variance returns the perturbation noise variance A/(1+cycle)^Gamma.
func (s *SnapshotManager) Variance(cycle int) float64 {
	if s.perturb == nil {
		return 0
	}
	return s.perturb.A / math.Pow(1+float64(cycle), s.perturb.Gamma)
}

// Perturb adds zero-mean Gaussian noise to every weight when perturbation is
// enabled and (cycle+1) is a multiple of the period. The noisy weights are
// built on a snapshot and loaded in one step. It reports whether the model
// changed.
func (s *SnapshotManager) Perturb(cycle int) (bool, error) {
	if s.perturb == nil || (cycle+1)%s.perturb.Period != 0 {
		return false, nil
	}
	std := math.Sqrt(s.Variance(cycle))
	sd := s.model.StateDict().Clone()
	for _, name := range sd.Keys() {
		sd[name].Apply(func(v float64) float64 {
			return v + s.rng.NormFloat64()*std
		})
	}
	if err := s.model.LoadStateDict(sd); err != nil {
		return false, errors.Wrap(err, "load perturbed weights")
	}
	return true, nil
}
