package trainer

import (
	"fmt"

	"github.com/ezoic/atomtrain/core/device"
	"github.com/ezoic/atomtrain/pkg/log"
)

// Report is the progress snapshot emitted on reporting cycles.
type Report struct {
	Cycle         int // 1-based
	Cycles        int
	TrainLoss     float64
	TestLoss      float64
	TrainAccuracy float64
	TestAccuracy  float64
	HasAccuracy   bool
	AccuracyLabel string
	MemoryUsed    string
	MemoryTotal   string
}

// Memory formats accelerator memory as "used/total" MiB, or "N/A".
func (r Report) Memory() string {
	if r.MemoryUsed == "N/A" {
		return "N/A"
	}
	return r.MemoryUsed + "/" + r.MemoryTotal
}

// Reporter receives progress reports.
type Reporter interface {
	Report(r Report)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Report)

// Report calls f(r).
func (f ReporterFunc) Report(r Report) { f(r) }

// LogReporter writes one structured log line per report.
type LogReporter struct {
	logger log.Logger
}

// NewLogReporter creates a reporter writing to logger.
func NewLogReporter(logger log.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

// Report implements Reporter.
func (l *LogReporter) Report(r Report) {
	fields := []interface{}{
		log.CycleKey, fmt.Sprintf("%d/%d", r.Cycle, r.Cycles),
		log.TrainLossKey, r.TrainLoss,
		log.TestLossKey, r.TestLoss,
	}
	if r.HasAccuracy {
		fields = append(fields,
			"train_"+r.AccuracyLabel, r.TrainAccuracy,
			"test_"+r.AccuracyLabel, r.TestAccuracy)
	}
	fields = append(fields, log.GPUMemoryKey, r.Memory())
	l.logger.Info("training progress", fields...)
}

// shouldReport is true on the first cycle and every printLoss cycles.
func shouldReport(cycle, printLoss int) bool {
	return cycle == 0 || (cycle+1)%printLoss == 0
}

func newReport(cycle, cycles int, train, test StepResult, label string) Report {
	used, total := device.MemoryUsage()
	return Report{
		Cycle:         cycle + 1,
		Cycles:        cycles,
		TrainLoss:     train.Loss,
		TestLoss:      test.Loss,
		TrainAccuracy: train.Accuracy,
		TestAccuracy:  test.Accuracy,
		HasAccuracy:   train.HasAccuracy,
		AccuracyLabel: label,
		MemoryUsed:    used,
		MemoryTotal:   total,
	}
}
