package visualize

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezoic/atomtrain/pkg/errors"
)

func TestPlotLosses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_history.png")

	err := PlotLosses([]float64{1, 0.6, 0.4}, []float64{1.1, 0.8, 0.7}, path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestPlotRejectsEmptyAndExtensionless(t *testing.T) {
	dir := t.TempDir()

	err := PlotLosses(nil, nil, filepath.Join(dir, "empty.png"))
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	err = PlotLosses([]float64{1}, nil, filepath.Join(dir, "noext"))
	assert.Error(t, err)
}
