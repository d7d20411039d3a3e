package errors_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scigoErrors "github.com/ezoic/atomtrain/pkg/errors"
)

func TestConfigErrorWrapsSentinel(t *testing.T) {
	err := scigoErrors.NewConfigError("Controller.Compile", "perturb_weights with batchnorm", scigoErrors.ErrBatchNormPerturbation)

	assert.True(t, errors.Is(err, scigoErrors.ErrBatchNormPerturbation))

	var cfgErr *scigoErrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "Controller.Compile", cfgErr.Op)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestDimensionErrorMatchesShapeMismatch(t *testing.T) {
	err := scigoErrors.NewDimensionError("Tensor.Add", 4, 3, 0)
	assert.True(t, errors.Is(err, scigoErrors.ErrShapeMismatch))
	assert.EqualError(t, err, "goml: Tensor.Add: dimension mismatch on axis 0: expected 4, got 3")
}

func TestRecover(t *testing.T) {
	run := func() (err error) {
		defer scigoErrors.Recover(&err, "Dense.Forward")
		panic("mat: dimension mismatch")
	}

	err := run()
	require.Error(t, err)

	var modelErr *scigoErrors.ModelError
	require.True(t, errors.As(err, &modelErr))
	assert.Equal(t, "Dense.Forward", modelErr.Op)
	assert.Contains(t, err.Error(), "mat: dimension mismatch")
}

func TestRecoverWithoutPanic(t *testing.T) {
	run := func() (err error) {
		defer scigoErrors.Recover(&err, "noop")
		return nil
	}
	assert.NoError(t, run())
}

func TestCheckScalar(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantErr bool
	}{
		{"finite", 0.25, false},
		{"nan", math.NaN(), true},
		{"positive infinity", math.Inf(1), true},
		{"negative infinity", math.Inf(-1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := scigoErrors.CheckScalar("loss", tt.value, 3)
			if tt.wantErr {
				assert.True(t, errors.Is(err, scigoErrors.ErrNumerical))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWarnUsesHandler(t *testing.T) {
	var got []error
	prev := scigoErrors.SetWarningHandler(func(w error) { got = append(got, w) })
	defer scigoErrors.SetWarningHandler(prev)

	scigoErrors.Warn(scigoErrors.NewResourceWarning("accelerator", "no GPU found"))
	scigoErrors.Warn(nil)

	require.Len(t, got, 1)
	assert.Contains(t, got[0].Error(), "no GPU found")
}
