package ecat

// Bus discovery. A scan replaces the whole inventory: prior slave views and
// any active process data session are invalidated before the link is asked
// to enumerate the segment.

import "fmt"

// Scan discovers the slave population, commits the I/O map partition in bus
// order and programs the process data mapping. It returns a read-only
// snapshot of the discovered slaves; the inventory itself stays with the
// session for subsequent operations.
//
// Zero devices is the recoverable ErrNoSlavesFound, not a fatal condition.
func (s *Session) Scan() ([]Slave, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}

	// A rescan invalidates any running exchange before touching the bus.
	s.pdoActive = false

	s.log.Verbose("starting bus scan on %s", s.ifname)
	infos, err := s.link.DiscoverAndConfigure()
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	s.log.Verbose("discovery returned %d slave(s)", len(infos))
	if len(infos) == 0 {
		s.inventory = nil
		return nil, ErrNoSlavesFound
	}

	inv, err := newInventory(infos)
	if err != nil {
		return nil, err
	}

	layout := inv.layout()
	if err := s.link.MapProcessData(&layout); err != nil {
		return nil, fmt.Errorf("map process data: %w", err)
	}
	inv.recordMapping(layout)

	s.inventory = inv
	g := inv.Group()
	s.log.Verbose("I/O map committed: %d input bytes, %d output bytes, expected WKC %d",
		g.InputBytes, g.OutputBytes, g.ExpectedWKC())

	return inv.Slaves(), nil
}
