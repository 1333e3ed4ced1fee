package ecat

// Core types for the EtherCAT bus model: application-layer states, slave
// configuration, and the process data group summary.

import "fmt"

// ALState is an EtherCAT application-layer state.
type ALState uint16

const (
	StateUnknown     ALState = 0x00
	StateInit        ALState = 0x01
	StatePreOp       ALState = 0x02
	StateSafeOp      ALState = 0x04
	StateOperational ALState = 0x08
)

// String returns the conventional display name of the state.
func (s ALState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StatePreOp:
		return "PRE-OP"
	case StateSafeOp:
		return "SAFE-OP"
	case StateOperational:
		return "OPERATIONAL"
	default:
		return "UNKNOWN"
	}
}

// Requestable reports whether the state may be the target of a transition
// request. UNKNOWN is a reporting value only.
func (s ALState) Requestable() bool {
	switch s {
	case StateInit, StatePreOp, StateSafeOp, StateOperational:
		return true
	}
	return false
}

// Slave hardware limits, per the ESC register layout.
const (
	MaxSyncManagers = 8
	MaxFMMUs        = 4
)

// CoE capability bits of the CoEDetails mask.
const (
	CoESDO       = 0x01
	CoESDOInfo   = 0x02
	CoEPDOAssign = 0x04
	CoEPDOConfig = 0x08
	CoEUpload    = 0x10
	CoESDOCA     = 0x20
)

// Mailbox protocol bits.
const (
	MailboxAoE = 0x0001
	MailboxEoE = 0x0002
	MailboxCoE = 0x0004
	MailboxFoE = 0x0008
	MailboxSoE = 0x0010
	MailboxVoE = 0x0020
)

// SyncManager describes one sync-manager channel of a slave.
type SyncManager struct {
	StartAddr uint16
	Length    uint16
	Flags     uint32
}

// FMMU describes one fieldbus memory management unit of a slave.
type FMMU struct {
	LogicalStart  uint32
	Length        uint16
	PhysicalStart uint16
}

// SlaveInfo is the static configuration of one discovered slave, as reported
// by the link layer during discovery.
type SlaveInfo struct {
	Name         string
	VendorID     uint32
	ProductID    uint32
	Revision     uint32
	StationAddr  uint16
	AliasAddr    uint16
	State        ALState
	InputBytes   int
	OutputBytes  int
	SyncManagers []SyncManager
	FMMUs        []FMMU
	MailboxLen   uint16
	MailboxProto uint16
	CoEDetails   uint8
}

// Slave is one device of the populated inventory. Index 0 is the broadcast
// pseudo-slave and carries only a state field.
type Slave struct {
	SlaveInfo

	// Index is the 1-based bus position; 0 for the broadcast pseudo-slave.
	Index int

	// Views into the session I/O map, set by the scanner. Non-owning; they
	// become stale when a rescan replaces the inventory.
	inputs  []byte
	outputs []byte

	inputOffset  int
	outputOffset int
}

// Inputs returns the slave's view into the inputs region of the I/O map.
func (s *Slave) Inputs() []byte { return s.inputs }

// Outputs returns the slave's view into the outputs region of the I/O map.
func (s *Slave) Outputs() []byte { return s.outputs }

// InputOffset returns the slave's byte offset within the inputs region.
func (s *Slave) InputOffset() int { return s.inputOffset }

// OutputOffset returns the slave's byte offset within the outputs region.
func (s *Slave) OutputOffset() int { return s.outputOffset }

func (s *Slave) String() string {
	return fmt.Sprintf("slave %d (%s, vendor 0x%08X, product 0x%08X, %s)",
		s.Index, s.Name, s.VendorID, s.ProductID, s.State)
}

// Group summarizes the single process data group: the committed I/O map
// partition sizes and the working counter a fully acknowledged exchange
// must return.
type Group struct {
	InputBytes  int
	OutputBytes int

	// Working counter contributions: every slave carrying inputs adds one to
	// InputsWKC, every slave carrying outputs adds one to OutputsWKC. An LRW
	// exchange counts output acknowledgements twice.
	InputsWKC  int
	OutputsWKC int
}

// ExpectedWKC returns the working counter of a fully acknowledged exchange.
func (g Group) ExpectedWKC() int {
	return g.OutputsWKC*2 + g.InputsWKC
}
