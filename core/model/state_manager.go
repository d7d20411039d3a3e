package model

import (
	"sync"

	"github.com/ezoic/atomtrain/pkg/errors"
)

// Phase is a trainer lifecycle state.
type Phase int

// Lifecycle phases. Transitions only move forward.
const (
	Unconfigured Phase = iota
	Configured
	Running
	Finished
)

func (p Phase) String() string {
	switch p {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Finished:
		return "finished"
	}
	return "unknown"
}

// StateManager tracks the lifecycle of a trainer in a thread-safe manner.
type StateManager struct {
	Phase Phase // Public for gob encoding
	mu    sync.RWMutex

	// Data dimensions recorded at configuration.
	NSamples  int
	InShape   []int
	OutShape  []int
	NbClasses int
}

// NewStateManager creates a StateManager in the Unconfigured phase.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// Current returns the current phase.
func (s *StateManager) Current() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Phase
}

// SetConfigured records the data dimensions and moves to Configured.
// Reconfiguring a configured trainer is allowed; configuring after a run is not.
func (s *StateManager) SetConfigured(nSamples int, inShape, outShape []int, nbClasses int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Phase >= Running {
		return errors.NewModelError("StateManager.SetConfigured", "cannot reconfigure", errors.ErrAlreadyTrained)
	}
	s.Phase = Configured
	s.NSamples = nSamples
	s.InShape = append([]int(nil), inShape...)
	s.OutShape = append([]int(nil), outShape...)
	s.NbClasses = nbClasses
	return nil
}

// Begin moves from Configured to Running.
func (s *StateManager) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.Phase {
	case Unconfigured:
		return errors.NewModelError("StateManager.Begin", "call Compile first", errors.ErrNotConfigured)
	case Running, Finished:
		return errors.NewModelError("StateManager.Begin", "a trainer runs once", errors.ErrAlreadyTrained)
	}
	s.Phase = Running
	return nil
}

// Finish marks the run complete. It is called whether or not the run succeeded.
func (s *StateManager) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Phase = Finished
}

// RequireFinished returns an error unless a run has completed.
func (s *StateManager) RequireFinished(method string) error {
	if s.Current() != Finished {
		return errors.NewNotFittedError("trainer", method)
	}
	return nil
}

// GetDimensions returns the data dimensions recorded at configuration.
func (s *StateManager) GetDimensions() (nSamples int, inShape, outShape []int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.NSamples, append([]int(nil), s.InShape...), append([]int(nil), s.OutShape...)
}
