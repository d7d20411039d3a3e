package trainer

import (
	"fmt"

	"github.com/ezoic/atomtrain/checkpoint"
	"github.com/ezoic/atomtrain/pkg/errors"
)

// Defaults shared by both iteration modes.
const (
	DefaultTrainingCycles = 1000
	DefaultBatchSize      = 32
	DefaultFilename       = "./model"

	defaultPrintLossFixed = 100
	defaultPrintLossEpoch = 1
)

// PerturbationConfig controls time-decayed weight perturbation. Gaussian
// noise with variance A/(1+cycle)^Gamma is added to every weight each
// Period cycles. Zero fields take the mode-dependent defaults.
type PerturbationConfig struct {
	A      float64 `yaml:"a" json:"a"`
	Gamma  float64 `yaml:"gamma" json:"gamma"`
	Period int     `yaml:"e_p" json:"e_p"`
}

// DefaultPerturbation returns the schedule used when perturbation is enabled
// without explicit values.
func DefaultPerturbation(fullEpoch bool) PerturbationConfig {
	p := PerturbationConfig{A: 0.01, Gamma: 1.5, Period: 50}
	if fullEpoch {
		p.Period = 1
	}
	return p
}

func (p PerturbationConfig) withDefaults(fullEpoch bool) PerturbationConfig {
	d := DefaultPerturbation(fullEpoch)
	if p.A == 0 {
		p.A = d.A
	}
	if p.Gamma == 0 {
		p.Gamma = d.Gamma
	}
	if p.Period == 0 {
		p.Period = d.Period
	}
	return p
}

// Config holds the training settings bound at Compile.
type Config struct {
	TrainingCycles  int
	BatchSize       int
	Loss            string
	ComputeAccuracy bool
	FullEpoch       bool
	SWA             bool
	// Perturb enables weight perturbation when non-nil.
	Perturb *PerturbationConfig
	// PrintLoss is the report period in cycles; 0 selects the mode default.
	PrintLoss           int
	Filename            string
	PlotTrainingHistory bool
	CheckpointFormat    checkpoint.Format
	// AccuracyLabel names the accuracy metric in reports.
	AccuracyLabel string
	Seed          uint64
	// BatchSeed drives batch selection; 0 means use Seed.
	BatchSeed uint64
}

// DefaultConfig returns the settings used when no option overrides them.
func DefaultConfig() Config {
	return Config{
		TrainingCycles:      DefaultTrainingCycles,
		BatchSize:           DefaultBatchSize,
		Loss:                "mse",
		Filename:            DefaultFilename,
		PlotTrainingHistory: true,
		CheckpointFormat:    checkpoint.FormatGob,
		AccuracyLabel:       "accuracy",
		Seed:                1,
	}
}

// NewConfig applies options on top of DefaultConfig.
func NewConfig(options ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range options {
		opt(&cfg)
	}
	return cfg
}

// Option is a configuration option for Config
type Option func(*Config)

// WithTrainingCycles sets the number of training cycles
func WithTrainingCycles(n int) Option {
	return func(c *Config) {
		c.TrainingCycles = n
	}
}

// WithBatchSize sets the batch size
func WithBatchSize(n int) Option {
	return func(c *Config) {
		c.BatchSize = n
	}
}

// WithLoss sets the loss tag ("ce", "dice", "focal", "mse")
func WithLoss(tag string) Option {
	return func(c *Config) {
		c.Loss = tag
	}
}

// WithAccuracy enables the accuracy metric on every step
func WithAccuracy(on bool) Option {
	return func(c *Config) {
		c.ComputeAccuracy = on
	}
}

// WithFullEpoch selects full passes over the data instead of one random batch per cycle
func WithFullEpoch(on bool) Option {
	return func(c *Config) {
		c.FullEpoch = on
	}
}

// WithSWA enables stochastic weight averaging over the final cycles
func WithSWA(on bool) Option {
	return func(c *Config) {
		c.SWA = on
	}
}

// WithPerturbation enables weight perturbation with p; zero fields take defaults
func WithPerturbation(p PerturbationConfig) Option {
	return func(c *Config) {
		c.Perturb = &p
	}
}

// WithPrintLoss sets the report period
func WithPrintLoss(n int) Option {
	return func(c *Config) {
		c.PrintLoss = n
	}
}

// WithFilename sets the checkpoint and plot path prefix
func WithFilename(name string) Option {
	return func(c *Config) {
		c.Filename = name
	}
}

// WithPlotHistory toggles the loss-curve plot written after training
func WithPlotHistory(on bool) Option {
	return func(c *Config) {
		c.PlotTrainingHistory = on
	}
}

// WithCheckpointFormat sets the on-disk checkpoint format
func WithCheckpointFormat(f checkpoint.Format) Option {
	return func(c *Config) {
		c.CheckpointFormat = f
	}
}

// WithAccuracyLabel sets the metric name used in reports
func WithAccuracyLabel(label string) Option {
	return func(c *Config) {
		c.AccuracyLabel = label
	}
}

// WithSeed は乱数シードを設定
func WithSeed(seed uint64) Option {
	return func(c *Config) {
		c.Seed = seed
	}
}

// WithBatchSeed sets a separate seed for batch selection
func WithBatchSeed(seed uint64) Option {
	return func(c *Config) {
		c.BatchSeed = seed
	}
}

// EffectiveBatchSeed returns BatchSeed, or Seed when BatchSeed is unset.
func (c Config) EffectiveBatchSeed() uint64 {
	if c.BatchSeed == 0 {
		return c.Seed
	}
	return c.BatchSeed
}

// withDefaults fills mode-dependent settings.
func (c Config) withDefaults() Config {
	if c.PrintLoss <= 0 {
		c.PrintLoss = defaultPrintLossFixed
		if c.FullEpoch {
			c.PrintLoss = defaultPrintLossEpoch
		}
	}
	if c.Filename == "" {
		c.Filename = DefaultFilename
	}
	if c.Perturb != nil {
		p := c.Perturb.withDefaults(c.FullEpoch)
		c.Perturb = &p
	}
	return c
}

func (c Config) validate() error {
	const op = "trainer.Compile"
	switch {
	case c.TrainingCycles < 1:
		return errors.NewConfigError(op, fmt.Sprintf("training_cycles must be positive, got %d", c.TrainingCycles), nil)
	case c.BatchSize < 1:
		return errors.NewConfigError(op, fmt.Sprintf("batch_size must be positive, got %d", c.BatchSize), nil)
	}
	if p := c.Perturb; p != nil {
		if p.A < 0 || p.Gamma < 0 || p.Period < 1 {
			return errors.NewConfigError(op, fmt.Sprintf("invalid perturbation schedule %+v", *p), nil)
		}
	}
	return nil
}

// asMap flattens the configuration for the checkpoint meta-state.
func (c Config) asMap() map[string]interface{} {
	m := map[string]interface{}{
		"training_cycles":       c.TrainingCycles,
		"batch_size":            c.BatchSize,
		"loss":                  c.Loss,
		"compute_accuracy":      c.ComputeAccuracy,
		"full_epoch":            c.FullEpoch,
		"swa":                   c.SWA,
		"perturb_weights":       c.Perturb != nil,
		"print_loss":            c.PrintLoss,
		"filename":              c.Filename,
		"plot_training_history": c.PlotTrainingHistory,
		"seed":                  int(c.Seed),
		"batch_seed":            int(c.EffectiveBatchSeed()),
	}
	if p := c.Perturb; p != nil {
		m["perturb_a"] = p.A
		m["perturb_gamma"] = p.Gamma
		m["perturb_e_p"] = p.Period
	}
	return m
}
