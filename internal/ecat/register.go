package ecat

// Direct register access: point-to-point reads and writes of a slave's
// physical address space, independent of the process data path and of the
// cyclic loop's state.

import "fmt"

// Register transfer length bounds, validated before any bus transaction.
const (
	MinTransferBytes = 1
	MaxTransferBytes = 1024
)

// ReadRegister reads length bytes from the slave's physical memory at addr.
// One request goes out over the link; a non-positive acknowledgement count
// is ErrTransferFailed, with no automatic retry.
func (s *Session) ReadRegister(index int, addr uint16, length int) ([]byte, error) {
	station, err := s.stationFor(index)
	if err != nil {
		return nil, err
	}
	if length < MinTransferBytes || length > MaxTransferBytes {
		return nil, fmt.Errorf("length %d not in [%d, %d]: %w",
			length, MinTransferBytes, MaxTransferBytes, ErrInvalidLength)
	}

	buf := make([]byte, length)
	wkc, err := s.link.ReadPhysicalMemory(station, addr, buf, s.timeouts.Register)
	if err == nil && wkc <= 0 {
		err = ErrTransferFailed
	}
	s.log.LogTransfer("read", index, addr, length, wkc, err)
	if err != nil {
		return nil, fmt.Errorf("read slave %d at 0x%04X: %w", index, addr, err)
	}
	s.log.LogHex("register data", buf)
	return buf, nil
}

// WriteRegister writes data to the slave's physical memory at addr, with the
// same single-shot and acknowledgement semantics as ReadRegister.
func (s *Session) WriteRegister(index int, addr uint16, data []byte) error {
	station, err := s.stationFor(index)
	if err != nil {
		return err
	}
	if len(data) < MinTransferBytes || len(data) > MaxTransferBytes {
		return fmt.Errorf("length %d not in [%d, %d]: %w",
			len(data), MinTransferBytes, MaxTransferBytes, ErrInvalidLength)
	}

	wkc, err := s.link.WritePhysicalMemory(station, addr, data, s.timeouts.Register)
	if err == nil && wkc <= 0 {
		err = ErrTransferFailed
	}
	s.log.LogTransfer("write", index, addr, len(data), wkc, err)
	if err != nil {
		return fmt.Errorf("write slave %d at 0x%04X: %w", index, addr, err)
	}
	return nil
}

// stationFor validates a 1-based slave index and resolves its configured
// station address.
func (s *Session) stationFor(index int) (uint16, error) {
	if err := s.requireOpen(); err != nil {
		return 0, err
	}
	if s.inventory == nil || index < 1 || index > s.inventory.SlaveCount() {
		return 0, fmt.Errorf("slave index %d not in [1, %d]: %w",
			index, s.SlaveCount(), ErrInvalidSlaveIndex)
	}
	sl, err := s.inventory.Slave(index)
	if err != nil {
		return 0, err
	}
	return sl.StationAddr, nil
}
