package ecat

// The I/O map is one fixed-capacity arena shared by the process data engine
// and every slave's input/output views. Inputs occupy the front of the
// buffer, outputs follow immediately; the partition is committed once per
// scan and never moves afterwards.

import "fmt"

// IOMapCapacity bounds the combined process data of one group.
const IOMapCapacity = 4096

// IOMap owns the process data buffer and its committed partition.
type IOMap struct {
	buf         []byte
	inputBytes  int
	outputBytes int
	committed   bool
}

// NewIOMap returns an empty, uncommitted map.
func NewIOMap() *IOMap {
	return &IOMap{buf: make([]byte, IOMapCapacity)}
}

// Commit fixes the partition. It fails if the combined size exceeds the
// map's capacity; a successful commit zeroes the buffer.
func (m *IOMap) Commit(inputBytes, outputBytes int) error {
	if inputBytes < 0 || outputBytes < 0 {
		return fmt.Errorf("negative region size (in=%d, out=%d)", inputBytes, outputBytes)
	}
	if inputBytes+outputBytes > IOMapCapacity {
		return fmt.Errorf("process data (%d in + %d out) exceeds I/O map capacity %d",
			inputBytes, outputBytes, IOMapCapacity)
	}
	for i := range m.buf {
		m.buf[i] = 0
	}
	m.inputBytes = inputBytes
	m.outputBytes = outputBytes
	m.committed = true
	return nil
}

// Committed reports whether a partition is in place.
func (m *IOMap) Committed() bool { return m.committed }

// InputBytes returns the committed inputs region length.
func (m *IOMap) InputBytes() int { return m.inputBytes }

// OutputBytes returns the committed outputs region length.
func (m *IOMap) OutputBytes() int { return m.outputBytes }

// Inputs returns the inputs region, [0, inputBytes).
func (m *IOMap) Inputs() []byte {
	return m.buf[:m.inputBytes]
}

// Outputs returns the outputs region, starting right after the inputs.
func (m *IOMap) Outputs() []byte {
	return m.buf[m.inputBytes : m.inputBytes+m.outputBytes]
}

// WriteOutputs copies data into the outputs region at offset. The bounds
// check runs before any mutation; a failed write leaves the map untouched.
func (m *IOMap) WriteOutputs(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > m.outputBytes {
		return fmt.Errorf("offset %d + %d bytes > %d output bytes: %w",
			offset, len(data), m.outputBytes, ErrOutOfRange)
	}
	copy(m.Outputs()[offset:], data)
	return nil
}

// inputView returns the [off, off+n) slice of the inputs region. Offsets are
// precomputed by the scanner, so bounds hold by construction.
func (m *IOMap) inputView(off, n int) []byte {
	return m.Inputs()[off : off+n]
}

// outputView returns the [off, off+n) slice of the outputs region.
func (m *IOMap) outputView(off, n int) []byte {
	return m.Outputs()[off : off+n]
}
