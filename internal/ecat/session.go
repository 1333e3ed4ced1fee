package ecat

// Session lifecycle: one link handle, one optional inventory, the process
// data flags. All bus operations hang off the session; nothing in this
// package keeps global state, so independent sessions can coexist.

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vkaloerov/cecat/internal/logging"
)

// Timeouts bounds the session's blocking bus operations.
type Timeouts struct {
	// State bounds one state-transition request.
	State time.Duration
	// IO bounds the receive half of one process data exchange.
	IO time.Duration
	// Register bounds one physical memory transaction.
	Register time.Duration
}

// DefaultTimeouts mirrors the conventional master defaults: generous state
// transitions, a retry-class exchange timeout.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		State:    5 * time.Second,
		IO:       2 * time.Millisecond,
		Register: 2 * time.Millisecond,
	}
}

// Session is one master session over one link handle.
type Session struct {
	link     LinkLayer
	log      *logging.Logger
	timeouts Timeouts

	ifname    string
	open      bool
	pdoActive bool

	inventory *Inventory

	// loopRunning and stopRequested are the only fields touched from outside
	// the session's single logical thread (the interrupt handler raises the
	// stop flag).
	loopRunning   atomic.Bool
	stopRequested atomic.Bool
}

// NewSession wraps a link layer. The session starts uninitialized; Open
// acquires the handle.
func NewSession(link LinkLayer, log *logging.Logger, timeouts Timeouts) *Session {
	return &Session{link: link, log: log, timeouts: timeouts}
}

// Open binds the link handle to the named interface. Calling Open on an
// already open session is a no-op.
func (s *Session) Open(ifname string) error {
	if s.open {
		s.log.Verbose("session already open on %s", s.ifname)
		return nil
	}
	s.log.Verbose("opening link on interface %s", ifname)
	if err := s.link.Open(ifname); err != nil {
		if diag := s.link.Diagnostics(); diag != "" {
			return fmt.Errorf("%w on %s: %v (%s)", ErrLinkUnavailable, ifname, err, diag)
		}
		return fmt.Errorf("%w on %s: %v", ErrLinkUnavailable, ifname, err)
	}
	s.ifname = ifname
	s.open = true
	return nil
}

// Close releases the link handle and clears the process data flags. Safe to
// call on an unopened session, and more than once.
func (s *Session) Close() error {
	if !s.open {
		return nil
	}
	s.log.Verbose("closing link on interface %s", s.ifname)
	err := s.link.Close()
	s.open = false
	s.pdoActive = false
	s.loopRunning.Store(false)
	s.stopRequested.Store(false)
	return err
}

// requireOpen is the fail-fast precondition of every public bus operation.
func (s *Session) requireOpen() error {
	if !s.open {
		return ErrNotInitialized
	}
	return nil
}

// IsOpen reports whether the session holds a link handle.
func (s *Session) IsOpen() bool { return s.open }

// Interface returns the bound interface name, or "" before Open.
func (s *Session) Interface() string { return s.ifname }

// ProcessDataActive reports whether the PDO activation sequence completed.
func (s *Session) ProcessDataActive() bool { return s.pdoActive }

// LoopRunning reports whether a cyclic exchange loop is in progress.
func (s *Session) LoopRunning() bool { return s.loopRunning.Load() }

// SlaveCount returns the size of the current inventory, 0 before a scan.
func (s *Session) SlaveCount() int {
	if s.inventory == nil {
		return 0
	}
	return s.inventory.SlaveCount()
}

// Slaves returns a snapshot of the current inventory in bus order.
func (s *Session) Slaves() []Slave {
	if s.inventory == nil {
		return nil
	}
	return s.inventory.Slaves()
}

// Group returns the process data group summary of the current inventory.
func (s *Session) Group() Group {
	if s.inventory == nil {
		return Group{}
	}
	return s.inventory.Group()
}

// ReadConfig returns the configuration of one slave by bus index.
func (s *Session) ReadConfig(index int) (*Slave, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	if s.inventory == nil || index < 1 {
		return nil, fmt.Errorf("slave index %d not in [1, %d]: %w",
			index, s.SlaveCount(), ErrInvalidSlaveIndex)
	}
	return s.inventory.Slave(index)
}

// Diagnostics surfaces the link layer's last-error text.
func (s *Session) Diagnostics() string {
	return s.link.Diagnostics()
}
