package ecat

// LinkLayer is the abstract raw-frame transport contract the session core
// consumes. Implementations own frame construction, NIC access and per-call
// timing; the core owns addressing, the I/O map partition and working
// counter accounting.

import "time"

// SlaveSegment locates one slave's process data within the group image.
type SlaveSegment struct {
	StationAddr  uint16
	InputOffset  int
	InputBytes   int
	OutputOffset int
	OutputBytes  int

	// FMMUs is filled in by the link layer during MapProcessData with the
	// mapping units it actually programmed, so the inventory can report the
	// committed configuration per slave.
	FMMUs []FMMU
}

// GroupLayout is the committed I/O map partition handed to the link layer so
// it can program the slaves' logical address mapping. Inputs occupy
// [0, InputBytes), outputs [InputBytes, InputBytes+OutputBytes).
type GroupLayout struct {
	InputBytes  int
	OutputBytes int
	Segments    []SlaveSegment
}

// LinkLayer is the EtherCAT transport collaborator. All methods are
// synchronous single-shot bus operations except PollApplicationState, which
// blocks up to its timeout. A LinkLayer is exclusively owned by one Session
// and is not safe for concurrent use.
type LinkLayer interface {
	// Open binds the transport to one physical interface. An error here is
	// surfaced as ErrLinkUnavailable by the session.
	Open(ifname string) error
	Close() error

	// DiscoverAndConfigure enumerates the segment and returns the static
	// configuration of every slave in bus order. An empty result is a valid
	// outcome (nothing connected).
	DiscoverAndConfigure() ([]SlaveInfo, error)

	// MapProcessData programs the slaves' logical process data mapping
	// according to the committed partition and records the programmed
	// mapping units into the layout's segments.
	MapProcessData(layout *GroupLayout) error

	// WriteApplicationState requests a state transition; slave 0 addresses
	// the whole segment.
	WriteApplicationState(slave int, state ALState) error

	// PollApplicationState waits up to timeout for the addressed slave(s) to
	// report state and returns how many did. The deadline is computed once
	// at call entry.
	PollApplicationState(slave int, state ALState, timeout time.Duration) (reached int, err error)

	// ReadApplicationState returns the current state of one slave.
	ReadApplicationState(slave int) (ALState, error)

	// SendOutputs pushes the outputs region onto the bus; ReceiveInputs
	// collects the returning frame into the inputs region and reports the
	// actual working counter of the exchange.
	SendOutputs(outputs []byte) error
	ReceiveInputs(inputs []byte, timeout time.Duration) (wkc int, err error)

	// ReadPhysicalMemory and WritePhysicalMemory access a slave's physical
	// address space by configured station address, outside the process data
	// path. They return the transaction's working counter.
	ReadPhysicalMemory(station uint16, addr uint16, buf []byte, timeout time.Duration) (wkc int, err error)
	WritePhysicalMemory(station uint16, addr uint16, data []byte, timeout time.Duration) (wkc int, err error)

	// Diagnostics returns transport-level detail for the most recent error,
	// or an empty string.
	Diagnostics() string
}
