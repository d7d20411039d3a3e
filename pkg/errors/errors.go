// Package errors provides the error types shared by every atomtrain package.
//
// Construction and wrapping go through github.com/cockroachdb/errors so that
// every error carries a stack trace (print it with "%+v"). The typed errors
// below cooperate with the standard errors.Is / errors.As helpers:
//
//	if errors.Is(err, scigoErrors.ErrSWAUnderflow) { ... }
//
//	var cfgErr *scigoErrors.ConfigError
//	if errors.As(err, &cfgErr) { ... }
//
// Configuration problems (ConfigError) are fatal and never retried. Model and
// data problems (ModelError, DimensionError, ValueError) propagate to the
// caller unchanged; the training controller performs no local recovery.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel errors. Wrap them with one of the typed errors to add context.
var (
	// ErrEmptyData is returned when a dataset, batch or partition has no samples.
	ErrEmptyData = errors.New("empty data")
	// ErrNotImplemented marks functionality that a collaborator does not provide.
	ErrNotImplemented = errors.New("not implemented")
	// ErrNotTensor is returned when training data is missing or not a tensor.
	ErrNotTensor = errors.New("training data must be tensors")
	// ErrClassMismatch is returned when the model output classes differ from the labels.
	ErrClassMismatch = errors.New("number of classes in initialized model is different from the number of classes contained in training data")
	// ErrBatchNormPerturbation rejects weight perturbation on batch-normalized models.
	ErrBatchNormPerturbation = errors.New("to use time-dependent weights perturbation, turn off the batch normalization layers")
	// ErrSWAUnderflow is returned when stochastic weight averaging has too few snapshots.
	ErrSWAUnderflow = errors.New("not enough weight snapshots for stochastic weight averaging")
	// ErrNotConfigured is returned when training starts before the trainer was compiled.
	ErrNotConfigured = errors.New("trainer is not configured")
	// ErrAlreadyTrained is returned when a trainer instance is asked to train twice.
	ErrAlreadyTrained = errors.New("trainer has already been run")
	// ErrUnknownLoss is returned for an unrecognized loss tag.
	ErrUnknownLoss = errors.New("unknown loss")
	// ErrShapeMismatch is returned when two tensors must share a shape and do not.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrNumerical is returned when a scalar becomes NaN or infinite.
	ErrNumerical = errors.New("numerical instability")
)

// New, Newf, Wrap, Wrapf, Is, As and Unwrap re-export cockroachdb/errors so
// callers only need to import this package.
var (
	New    = errors.New
	Newf   = errors.Newf
	Wrap   = errors.Wrap
	Wrapf  = errors.Wrapf
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// ValueError reports an invalid argument value.
type ValueError struct {
	Op      string
	Message string
}

// NewValueError creates a ValueError for the operation op.
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("goml: %s: %s", e.Op, e.Message)
}

// DimensionError reports an unexpected size along an axis.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int
}

// NewDimensionError creates a DimensionError.
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("goml: %s: dimension mismatch on axis %d: expected %d, got %d",
		e.Op, e.Axis, e.Expected, e.Got)
}

// Unwrap lets errors.Is(err, ErrShapeMismatch) match dimension errors.
func (e *DimensionError) Unwrap() error { return ErrShapeMismatch }

// NotFittedError is returned when a model is used before it was trained.
type NotFittedError struct {
	ModelName string
	Method    string
}

// NewNotFittedError creates a NotFittedError.
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("goml: %s: model is not fitted, call Fit before %s", e.ModelName, e.Method)
}

// ModelError wraps a failure inside a model, trainer or collaborator.
type ModelError struct {
	Op      string
	Message string
	Err     error
}

// NewModelError creates a ModelError wrapping err.
func NewModelError(op, message string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Message: message, Err: err})
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("goml: %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("goml: %s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// ConfigError is a fatal configuration problem detected before or after training.
type ConfigError struct {
	Op      string
	Message string
	Err     error
}

// NewConfigError creates a ConfigError wrapping err (which may be a sentinel).
func NewConfigError(op, message string, err error) error {
	return errors.WithStack(&ConfigError{Op: op, Message: message, Err: err})
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("goml: %s: invalid configuration: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("goml: %s: invalid configuration: %s: %v", e.Op, e.Message, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Recover converts a panic raised below op (typically a gonum dimension panic)
// into a ModelError stored in *err. Use it as
//
//	defer scigoErrors.Recover(&err, "Controller.Fit")
func Recover(err *error, op string) {
	r := recover()
	if r == nil {
		return
	}
	var cause error
	switch v := r.(type) {
	case error:
		cause = v
	default:
		cause = errors.Newf("%v", v)
	}
	*err = NewModelError(op, "panic recovered", cause)
}
