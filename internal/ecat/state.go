package ecat

// State machine controller. Transitions are requested, never silently
// applied; partial convergence is surfaced as StateNotReachedError and left
// in place, because higher layers decide whether to proceed degraded.

import (
	"fmt"
	"time"
)

// Broadcast addresses every slave on the segment in RequestState.
const Broadcast = 0

// RequestState asks the addressed slave (or, with Broadcast, the whole
// segment) to transition and waits up to timeout for convergence. Slaves
// already in the target state are not re-written; when every addressed slave
// already holds it, the call succeeds without a bus transaction.
//
// On partial convergence the returned StateNotReachedError names each slave
// still in its prior state. Slaves that did converge keep their recorded
// target state.
func (s *Session) RequestState(target ALState, timeout time.Duration, index int) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if !target.Requestable() {
		return fmt.Errorf("state %#02x is not requestable", uint16(target))
	}
	if s.inventory == nil {
		return ErrNoSlavesFound
	}
	if index < 0 || index > s.inventory.SlaveCount() {
		return fmt.Errorf("slave index %d not in [0, %d]: %w",
			index, s.inventory.SlaveCount(), ErrInvalidSlaveIndex)
	}

	addressed := s.addressedSlaves(index)
	pending := 0
	for _, sl := range addressed {
		if sl.State != target {
			pending++
		}
	}
	if pending == 0 {
		s.log.Verbose("all addressed slaves already in %s, no request issued", target)
		return nil
	}

	s.log.Verbose("requesting %s for slave %d (%d of %d pending)",
		target, index, pending, len(addressed))

	if err := s.link.WriteApplicationState(index, target); err != nil {
		return fmt.Errorf("write state %s: %w", target, err)
	}
	// Record the accepted request on the addressed entry; index 0 is the
	// broadcast pseudo-slave whose state field exists for exactly this.
	s.inventory.slaves[index].State = target

	reached, err := s.link.PollApplicationState(index, target, timeout)
	if err != nil {
		return fmt.Errorf("poll state %s: %w", target, err)
	}

	// Refresh the recorded states of the addressed slaves so the failure
	// report names actual states, and converged slaves keep the new one.
	var notReached []SlaveState
	for _, sl := range addressed {
		actual, rerr := s.link.ReadApplicationState(sl.Index)
		if rerr != nil {
			actual = StateUnknown
		}
		s.inventory.slaves[sl.Index].State = actual
		if actual != target {
			notReached = append(notReached, SlaveState{Index: sl.Index, State: actual})
		}
	}

	if reached == len(addressed) && len(notReached) == 0 {
		s.log.Verbose("all %d addressed slave(s) reached %s", len(addressed), target)
		return nil
	}
	return &StateNotReachedError{Target: target, Pending: notReached}
}

// addressedSlaves resolves index to the set of real slaves a request covers.
func (s *Session) addressedSlaves(index int) []Slave {
	if index == Broadcast {
		return s.inventory.Slaves()
	}
	sl, _ := s.inventory.Slave(index)
	return []Slave{*sl}
}

// Activate drives the segment PRE-OP -> SAFE-OP -> OPERATIONAL, each stage
// bounded by the session's state timeout, and marks process data active.
// The sequence aborts on the first stage that fails to converge; callers
// wanting the continue-anyway behavior can drive RequestState themselves.
// Activation is idempotent while process data is already active.
func (s *Session) Activate() error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if s.inventory == nil || s.inventory.SlaveCount() == 0 {
		return ErrNoSlavesFound
	}
	if s.pdoActive {
		s.log.Verbose("process data already active")
		return nil
	}

	for _, st := range []ALState{StatePreOp, StateSafeOp, StateOperational} {
		if err := s.RequestState(st, s.timeouts.State, Broadcast); err != nil {
			return fmt.Errorf("activate at %s: %w", st, err)
		}
	}

	s.pdoActive = true
	g := s.inventory.Group()
	s.log.Verbose("process data active: %d input bytes, %d output bytes (offset %d)",
		g.InputBytes, g.OutputBytes, g.InputBytes)
	return nil
}

// Deactivate requests INIT for the segment and clears the process-data flag
// unconditionally, whether or not INIT is reached within the timeout.
func (s *Session) Deactivate() error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if !s.pdoActive {
		return nil
	}

	s.stopRequested.Store(true)
	err := s.RequestState(StateInit, s.timeouts.State, Broadcast)
	s.pdoActive = false
	if err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	return nil
}
