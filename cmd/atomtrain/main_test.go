package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ezoic/atomtrain/checkpoint"
	"github.com/ezoic/atomtrain/core/tensor"
	"github.com/ezoic/atomtrain/pkg/errors"
	"github.com/ezoic/atomtrain/pkg/log"
	"github.com/ezoic/atomtrain/trainer"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard, log.ErrorLevel)
	prev := errors.SetWarningHandler(func(error) {})
	code := m.Run()
	errors.SetWarningHandler(prev)
	os.Exit(code)
}

func TestPerturbationYAML(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want Perturbation
	}{
		{"off", "perturb_weights: false", Perturbation{}},
		{"defaults", "perturb_weights: true", Perturbation{Enabled: true}},
		{
			"explicit",
			"perturb_weights: {a: 0.02, gamma: 2, e_p: 10}",
			Perturbation{Enabled: true, PerturbationConfig: trainer.PerturbationConfig{A: 0.02, Gamma: 2, Period: 10}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got TrainingConfig
			require.NoError(t, yaml.Unmarshal([]byte(tt.doc), &got))
			assert.Equal(t, tt.want, got.PerturbWeights)
		})
	}

	var bad TrainingConfig
	assert.Error(t, yaml.Unmarshal([]byte("perturb_weights: [1, 2]"), &bad))
}

func TestTrainingOptions(t *testing.T) {
	tc := DefaultRunConfig().Training
	tc.TrainingCycles = 7
	tc.PerturbWeights = Perturbation{Enabled: true}
	tc.CheckpointFormat = "json"

	opts, err := tc.Options()
	require.NoError(t, err)
	cfg := trainer.NewConfig(opts...)
	assert.Equal(t, 7, cfg.TrainingCycles)
	assert.Equal(t, "mse", cfg.Loss)
	assert.Equal(t, checkpoint.FormatJSON, cfg.CheckpointFormat)
	require.NotNil(t, cfg.Perturb)

	tc.CheckpointFormat = "hdf5"
	_, err = tc.Options()
	assert.Error(t, err)
}

func TestLoadRunConfigValidation(t *testing.T) {
	dir := t.TempDir()
	write := func(name, doc string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(doc), 0o600))
		return p
	}

	cfg, err := LoadRunConfig(write("ok.yaml", "task: seg\ndata: d.gob\nmodel: {nb_classes: 2}\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Model.NbClasses)
	assert.Equal(t, trainer.DefaultBatchSize, cfg.Training.BatchSize)

	_, err = LoadRunConfig(write("task.yaml", "task: gan\ndata: d.gob\n"))
	assert.Error(t, err)

	_, err = LoadRunConfig(write("dims.yaml", "task: imspec\ndata: d.gob\nmodel: {in_dim: [4, 4]}\n"))
	assert.Error(t, err)

	_, err = LoadRunConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestRunImSpec(t *testing.T) {
	dir := t.TempDir()
	x := tensor.Zeros(12, 4)
	y := tensor.Zeros(12, 6)
	for i := 0; i < 12; i++ {
		for j := 0; j < 4; j++ {
			x.Set(float64(i+j)/16, i, j)
		}
		for j := 0; j < 6; j++ {
			y.Set(float64(i*j)/72, i, j)
		}
	}
	data := filepath.Join(dir, "pairs.json")
	require.NoError(t, SaveDataset(data, Dataset{XTrain: x.ToRecord(), YTrain: y.ToRecord()}))

	xTr, yTr, xTe, yTe, err := LoadDataset(data)
	require.NoError(t, err)
	assert.Equal(t, x.Shape(), xTr.Shape())
	assert.Equal(t, y.Values(), yTr.Values())
	assert.Nil(t, xTe)
	assert.Nil(t, yTe)

	cfg := DefaultRunConfig()
	cfg.Task = TaskImSpec
	cfg.Data = data
	cfg.Model = ModelConfig{InDim: []int{4}, OutDim: []int{6}, Filters: 2, Layers: 1}
	cfg.Training.TrainingCycles = 3
	cfg.Training.BatchSize = 4
	cfg.Training.FullEpoch = true
	cfg.Training.PlotTrainingHistory = false
	cfg.Training.Filename = filepath.Join(dir, "run")
	require.NoError(t, cfg.validate())

	require.NoError(t, run(cfg))
	assert.FileExists(t, checkpoint.Path(cfg.Training.Filename, checkpoint.FormatGob))
}
