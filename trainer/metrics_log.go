package trainer

// History is the append-only per-cycle training record. All populated
// sequences have the same length; the accuracy sequences stay empty unless
// accuracy is computed.
type History struct {
	TrainLoss     []float64 `json:"train_loss"`
	TestLoss      []float64 `json:"test_loss"`
	TrainAccuracy []float64 `json:"train_accuracy,omitempty"`
	TestAccuracy  []float64 `json:"test_accuracy,omitempty"`
}

// Len returns the number of recorded cycles.
func (h History) Len() int {
	return len(h.TrainLoss)
}

// Append records one completed cycle.
func (h *History) Append(train, test StepResult) {
	h.TrainLoss = append(h.TrainLoss, train.Loss)
	h.TestLoss = append(h.TestLoss, test.Loss)
	if train.HasAccuracy || test.HasAccuracy {
		h.TrainAccuracy = append(h.TrainAccuracy, train.Accuracy)
		h.TestAccuracy = append(h.TestAccuracy, test.Accuracy)
	}
}

// Clone returns a copy that shares no storage with h.
func (h History) Clone() History {
	return History{
		TrainLoss:     append([]float64(nil), h.TrainLoss...),
		TestLoss:      append([]float64(nil), h.TestLoss...),
		TrainAccuracy: append([]float64(nil), h.TrainAccuracy...),
		TestAccuracy:  append([]float64(nil), h.TestAccuracy...),
	}
}

// Accumulator averages step results over one pass. The mean is the plain
// arithmetic mean of per-batch values, regardless of batch sizes.
type Accumulator struct {
	loss, acc float64
	n, nAcc   int
}

// Add records one step.
func (a *Accumulator) Add(r StepResult) {
	a.loss += r.Loss
	a.n++
	if r.HasAccuracy {
		a.acc += r.Accuracy
		a.nAcc++
	}
}

// Count returns the number of recorded steps.
func (a *Accumulator) Count() int {
	return a.n
}

// Mean returns the averaged result. An empty accumulator yields a zero result.
func (a *Accumulator) Mean() StepResult {
	var r StepResult
	if a.n > 0 {
		r.Loss = a.loss / float64(a.n)
	}
	if a.nAcc > 0 {
		r.Accuracy = a.acc / float64(a.nAcc)
		r.HasAccuracy = true
	}
	return r
}
