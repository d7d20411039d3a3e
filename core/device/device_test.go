//go:build !cuda

package device

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ezoic/atomtrain/pkg/errors"
)

func TestDetectFallsBackToHost(t *testing.T) {
	info := Detect()
	assert.Equal(t, Host, info.Kind)
	assert.False(t, info.Accelerated())
	assert.Positive(t, info.Cores)
	assert.NotEmpty(t, info.Name)
	assert.Contains(t, info.String(), "cpu")
}

func TestDetectWithWarning(t *testing.T) {
	var warned []error
	prev := errors.SetWarningHandler(func(w error) { warned = append(warned, w) })
	defer errors.SetWarningHandler(prev)

	DetectWithWarning()

	if assert.Len(t, warned, 1) {
		var rw *errors.ResourceWarning
		assert.True(t, errors.As(warned[0], &rw))
		assert.Contains(t, warned[0].Error(), "No GPU found")
	}
}

func TestMemoryUsageWithoutAccelerator(t *testing.T) {
	used, total := MemoryUsage()
	assert.Equal(t, "N/A", used)
	assert.Equal(t, "N/A", total)
}
