package ecat

// Error taxonomy for the master session. Validation errors are detected
// before any bus transaction; StateNotReachedError and WorkingCounterError
// report partial failure without unwinding the session.

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotInitialized is returned when an operation requires an open link
	// handle and the session has none.
	ErrNotInitialized = errors.New("session not initialized, open an interface first")

	// ErrLinkUnavailable wraps a failed transport open.
	ErrLinkUnavailable = errors.New("link layer unavailable")

	// ErrNoSlavesFound is the recoverable outcome of a scan that discovered
	// nothing on the segment.
	ErrNoSlavesFound = errors.New("no slaves found on the bus")

	// ErrProcessDataInactive is returned by process data operations before
	// activation.
	ErrProcessDataInactive = errors.New("process data exchange not active")

	ErrInvalidSlaveIndex = errors.New("invalid slave index")
	ErrInvalidLength     = errors.New("invalid length")
	ErrOutOfRange        = errors.New("write exceeds output region bounds")

	// ErrTransferFailed is returned when a register transaction comes back
	// with a non-positive acknowledgement count.
	ErrTransferFailed = errors.New("transfer failed, no slave acknowledged")
)

// SlaveState names a slave and the application-layer state it reported.
type SlaveState struct {
	Index int
	State ALState
}

// StateNotReachedError reports the slaves that did not converge to the
// requested state within the transition timeout. Converged slaves keep their
// new state; the error is a signal, not a rollback.
type StateNotReachedError struct {
	Target  ALState
	Pending []SlaveState
}

func (e *StateNotReachedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d slave(s) did not reach %s:", len(e.Pending), e.Target)
	for _, p := range e.Pending {
		fmt.Fprintf(&b, " slave %d in %s,", p.Index, p.State)
	}
	return strings.TrimSuffix(b.String(), ",")
}

// WorkingCounterError reports a degraded exchange cycle: the bus returned
// fewer acknowledgements than the group expects. Inputs received in the
// cycle are still delivered.
type WorkingCounterError struct {
	Expected int
	Actual   int
}

func (e *WorkingCounterError) Error() string {
	return fmt.Sprintf("working counter mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// IsDegraded reports whether err is a working counter mismatch, i.e. the
// operation completed but at least one slave did not acknowledge.
func IsDegraded(err error) bool {
	var wce *WorkingCounterError
	return errors.As(err, &wce)
}
