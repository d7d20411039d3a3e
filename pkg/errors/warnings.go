package errors

import (
	"fmt"
	"math"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// ConvergenceWarning signals that an iterative procedure stopped early or diverged.
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

// NewConvergenceWarning creates a ConvergenceWarning.
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

func (w *ConvergenceWarning) Error() string {
	return fmt.Sprintf("goml: ConvergenceWarning: %s after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
}

// ResourceWarning signals a degraded but usable environment, such as training
// without an accelerator.
type ResourceWarning struct {
	Resource string
	Message  string
}

// NewResourceWarning creates a ResourceWarning.
func NewResourceWarning(resource, message string) *ResourceWarning {
	return &ResourceWarning{Resource: resource, Message: message}
}

func (w *ResourceWarning) Error() string {
	return fmt.Sprintf("goml: ResourceWarning: %s: %s", w.Resource, w.Message)
}

var (
	warnMu      sync.RWMutex
	warnHandler = defaultWarnHandler
)

func defaultWarnHandler(w error) {
	zlog.Logger.WithLevel(zerolog.WarnLevel).Msg(w.Error())
}

// SetWarningHandler replaces the function that receives warnings and returns
// the previous one. Pass nil to restore the zerolog default.
func SetWarningHandler(h func(error)) func(error) {
	warnMu.Lock()
	defer warnMu.Unlock()
	prev := warnHandler
	if h == nil {
		h = defaultWarnHandler
	}
	warnHandler = h
	return prev
}

// Warn reports a non-fatal condition. Execution continues.
func Warn(w error) {
	if w == nil {
		return
	}
	warnMu.RLock()
	h := warnHandler
	warnMu.RUnlock()
	h(w)
}

// CheckScalar returns an error when v is NaN or infinite. iteration is
// recorded for context.
func CheckScalar(name string, v float64, iteration int) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.Wrapf(ErrNumerical, "%s became %v at iteration %d", name, v, iteration)
	}
	return nil
}
