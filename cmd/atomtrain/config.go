package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ezoic/atomtrain/augment"
	"github.com/ezoic/atomtrain/checkpoint"
	"github.com/ezoic/atomtrain/pkg/errors"
	"github.com/ezoic/atomtrain/preprocessing"
	"github.com/ezoic/atomtrain/trainer"
)

// Task names accepted in the run file.
const (
	TaskSegmentation = "seg"
	TaskImSpec       = "imspec"
)

// RunConfig is the YAML run file.
type RunConfig struct {
	Task     string `yaml:"task"`
	Data     string `yaml:"data"`
	LogLevel string `yaml:"log_level"`

	Model        ModelConfig     `yaml:"model"`
	Training     TrainingConfig  `yaml:"training"`
	Augmentation augment.Options `yaml:"augmentation"`
}

// ModelConfig describes the network and its optimizer.
type ModelConfig struct {
	NbClasses    int     `yaml:"nb_classes"`
	InDim        []int   `yaml:"in_dim"`
	OutDim       []int   `yaml:"out_dim"`
	LatentDim    int     `yaml:"latent_dim"`
	Filters      int     `yaml:"nb_filters"`
	Layers       int     `yaml:"layers"`
	BatchNorm    bool    `yaml:"batch_norm"`
	LearningRate float64 `yaml:"learning_rate"`
}

// TrainingConfig mirrors trainer.Config with YAML names.
type TrainingConfig struct {
	TrainingCycles      int          `yaml:"training_cycles"`
	BatchSize           int          `yaml:"batch_size"`
	Loss                string       `yaml:"loss"`
	ComputeAccuracy     bool         `yaml:"compute_accuracy"`
	FullEpoch           bool         `yaml:"full_epoch"`
	SWA                 bool         `yaml:"swa"`
	PerturbWeights      Perturbation `yaml:"perturb_weights"`
	PrintLoss           int          `yaml:"print_loss"`
	Filename            string       `yaml:"filename"`
	PlotTrainingHistory bool         `yaml:"plot_training_history"`
	CheckpointFormat    string       `yaml:"checkpoint_format"`
	Seed                uint64       `yaml:"seed"`
	BatchSeed           uint64       `yaml:"batch_seed"`
	TestSize            float64      `yaml:"test_size"`
}

// Perturbation accepts either a boolean or an explicit schedule:
//
//	perturb_weights: true
//	perturb_weights: {a: 0.02, gamma: 1.5, e_p: 20}
type Perturbation struct {
	Enabled bool
	trainer.PerturbationConfig
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Perturbation) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		p.PerturbationConfig = trainer.PerturbationConfig{}
		return node.Decode(&p.Enabled)
	case yaml.MappingNode:
		p.Enabled = true
		return node.Decode(&p.PerturbationConfig)
	}
	return errors.Newf("perturb_weights: expected a boolean or a mapping at line %d", node.Line)
}

// MarshalYAML implements yaml.Marshaler.
func (p Perturbation) MarshalYAML() (interface{}, error) {
	if !p.Enabled || p.PerturbationConfig == (trainer.PerturbationConfig{}) {
		return p.Enabled, nil
	}
	return p.PerturbationConfig, nil
}

// DefaultRunConfig returns the values used for keys missing from a run file.
func DefaultRunConfig() RunConfig {
	d := trainer.DefaultConfig()
	return RunConfig{
		Task:     TaskSegmentation,
		LogLevel: "info",
		Training: TrainingConfig{
			TrainingCycles:      d.TrainingCycles,
			BatchSize:           d.BatchSize,
			Filename:            d.Filename,
			PlotTrainingHistory: d.PlotTrainingHistory,
			CheckpointFormat:    d.CheckpointFormat.String(),
			Seed:                d.Seed,
			TestSize:            preprocessing.DefaultTestSize,
		},
	}
}

// LoadRunConfig reads a YAML run file over DefaultRunConfig.
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read run file %s", path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.NewConfigError("LoadRunConfig", "parse "+path, err)
	}
	return cfg, cfg.validate()
}

func (c RunConfig) validate() error {
	switch c.Task {
	case TaskSegmentation:
		if c.Model.NbClasses < 1 {
			return errors.NewConfigError("RunConfig", "model.nb_classes must be at least 1", nil)
		}
	case TaskImSpec:
		if len(c.Model.InDim) == 0 || len(c.Model.OutDim) == 0 {
			return errors.NewConfigError("RunConfig", "model.in_dim and model.out_dim are required", nil)
		}
	default:
		return errors.NewConfigError("RunConfig", fmt.Sprintf("unknown task %q", c.Task), nil)
	}
	if c.Data == "" {
		return errors.NewConfigError("RunConfig", "data path is required", nil)
	}
	_, err := checkpoint.ParseFormat(c.Training.CheckpointFormat)
	return err
}

// Options translates the training section into trainer options. Loss is
// left to the task default when empty.
func (t TrainingConfig) Options() ([]trainer.Option, error) {
	f, err := checkpoint.ParseFormat(t.CheckpointFormat)
	if err != nil {
		return nil, err
	}
	opts := []trainer.Option{
		trainer.WithTrainingCycles(t.TrainingCycles),
		trainer.WithBatchSize(t.BatchSize),
		trainer.WithAccuracy(t.ComputeAccuracy),
		trainer.WithFullEpoch(t.FullEpoch),
		trainer.WithSWA(t.SWA),
		trainer.WithPrintLoss(t.PrintLoss),
		trainer.WithFilename(t.Filename),
		trainer.WithPlotHistory(t.PlotTrainingHistory),
		trainer.WithCheckpointFormat(f),
		trainer.WithSeed(t.Seed),
		trainer.WithBatchSeed(t.BatchSeed),
	}
	if t.Loss != "" {
		opts = append(opts, trainer.WithLoss(t.Loss))
	}
	if t.PerturbWeights.Enabled {
		opts = append(opts, trainer.WithPerturbation(t.PerturbWeights.PerturbationConfig))
	}
	return opts, nil
}
