// Command atomtrain trains a segmentation or image/spectrum network from a
// YAML run file.
//
//	atomtrain -config run.yaml [-data train.gob] [-log-level debug]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ezoic/atomtrain/pkg/errors"
	"github.com/ezoic/atomtrain/pkg/log"
	"github.com/ezoic/atomtrain/trainer"
	"github.com/ezoic/atomtrain/trainer/imspec"
	"github.com/ezoic/atomtrain/trainer/seg"
)

func main() {
	configPath := flag.String("config", "atomtrain.yaml", "YAML run file")
	dataPath := flag.String("data", "", "dataset file (.json or .gob), overrides the run file")
	logLevel := flag.String("log-level", "", "log level, overrides the run file")
	cycles := flag.Int("cycles", 0, "training cycles, overrides the run file")
	flag.Parse()

	cfg, err := LoadRunConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "atomtrain: %v\n", err)
		os.Exit(2)
	}
	if *dataPath != "" {
		cfg.Data = *dataPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *cycles > 0 {
		cfg.Training.TrainingCycles = *cycles
	}
	log.SetupLogger(cfg.LogLevel)

	if err := run(cfg); err != nil {
		log.LogError(err, "training failed")
		os.Exit(1)
	}
}

// fitter is the part of seg.Trainer and imspec.Trainer the command drives.
type fitter interface {
	Controller() *trainer.Controller
	Fit() (*trainer.Result, error)
}

func run(cfg RunConfig) error {
	logger := log.GetLoggerWithName("atomtrain")
	start := time.Now()

	xTrain, yTrain, xTest, yTest, err := LoadDataset(cfg.Data)
	if err != nil {
		return err
	}
	logger.Info("dataset loaded",
		log.PathKey, cfg.Data,
		log.SamplesKey, xTrain.Len(),
		log.ComponentKey, cfg.Task,
	)

	opts, err := cfg.Training.Options()
	if err != nil {
		return err
	}

	var f fitter
	m := cfg.Model
	switch cfg.Task {
	case TaskSegmentation:
		options := []seg.Option{
			seg.WithFilters(m.Filters),
			seg.WithLayers(m.Layers),
			seg.WithBatchNorm(m.BatchNorm),
			seg.WithSeed(cfg.Training.Seed),
			seg.WithBatchSeed(cfg.Training.BatchSeed),
			seg.WithAugmentation(cfg.Augmentation),
		}
		if m.LearningRate > 0 {
			options = append(options, seg.WithLearningRate(m.LearningRate))
		}
		if cfg.Training.TestSize > 0 {
			options = append(options, seg.WithTestSize(cfg.Training.TestSize))
		}
		t, err := seg.New(m.NbClasses, options...)
		if err != nil {
			return err
		}
		t.Controller().SetLogger(log.GetLoggerWithName("Trainer"))
		if err := t.Compile(xTrain, yTrain, xTest, yTest, opts...); err != nil {
			return err
		}
		f = t
	case TaskImSpec:
		options := []imspec.Option{
			imspec.WithFilters(m.Filters),
			imspec.WithLayers(m.Layers),
			imspec.WithLatentDim(m.LatentDim),
			imspec.WithBatchNorm(m.BatchNorm),
			imspec.WithSeed(cfg.Training.Seed),
			imspec.WithBatchSeed(cfg.Training.BatchSeed),
		}
		if m.LearningRate > 0 {
			options = append(options, imspec.WithLearningRate(m.LearningRate))
		}
		if cfg.Training.TestSize > 0 {
			options = append(options, imspec.WithTestSize(cfg.Training.TestSize))
		}
		t, err := imspec.New(m.InDim, m.OutDim, options...)
		if err != nil {
			return err
		}
		t.Controller().SetLogger(log.GetLoggerWithName("Trainer"))
		if err := t.Compile(xTrain, yTrain, xTest, yTest, opts...); err != nil {
			return err
		}
		f = t
	default:
		return errors.NewConfigError("run", "unknown task "+cfg.Task, nil)
	}

	res, err := f.Fit()
	if err != nil {
		return err
	}
	for _, ev := range res.Evaluations {
		fields := []interface{}{log.OperationKey, log.OperationEvaluate, log.MetricNameKey, ev.Name, log.TestLossKey, ev.Loss}
		if ev.HasAccuracy {
			fields = append(fields, log.TestAccKey, ev.Accuracy)
		}
		logger.Info("evaluation", fields...)
	}
	logger.Info("done",
		log.PathKey, res.CheckpointPath,
		log.CyclesKey, res.History.Len(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}
