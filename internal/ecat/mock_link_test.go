package ecat

// mockLink is a scriptable LinkLayer for session tests: fixed discovery
// results, per-slave convergence failures and per-cycle working counter
// shortfalls.

import (
	"errors"
	"time"
)

type mockLink struct {
	openErr     error
	discoverErr error
	infos       []SlaveInfo

	// states holds the simulated AL state per bus index (1-based).
	states map[int]ALState

	// failConverge marks bus indices that ignore transition requests.
	failConverge map[int]bool

	// writeStateErr makes every WriteApplicationState call fail.
	writeStateErr error

	// wkcByCycle overrides the exchange working counter for given cycle
	// numbers (1-based); other cycles return expectedWKC.
	wkcByCycle  map[int]int
	expectedWKC int
	cycle       int

	// inputPattern, when set, fills the inputs region on every receive.
	inputPattern func(inputs []byte)

	opened           bool
	writeStateCalls  int
	sendCalls        int
	receiveCalls     int
	readPhysCalls    int
	writePhysCalls   int
	lastSentOutputs  []byte
	physMemory       map[uint16][]byte // station -> 64KiB image
	physWKC          int
	mappedLayout     *GroupLayout
	diagnosticsText  string
}

func newMockLink(infos []SlaveInfo) *mockLink {
	m := &mockLink{
		infos:        infos,
		states:       make(map[int]ALState),
		failConverge: make(map[int]bool),
		wkcByCycle:   make(map[int]int),
		physMemory:   make(map[uint16][]byte),
		physWKC:      1,
	}
	for i := range infos {
		m.states[i+1] = StatePreOp
		if infos[i].InputBytes > 0 {
			m.expectedWKC++
		}
		if infos[i].OutputBytes > 0 {
			m.expectedWKC += 2
		}
	}
	return m
}

func (m *mockLink) Open(ifname string) error {
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

func (m *mockLink) Close() error {
	m.opened = false
	return nil
}

func (m *mockLink) DiscoverAndConfigure() ([]SlaveInfo, error) {
	if m.discoverErr != nil {
		return nil, m.discoverErr
	}
	out := make([]SlaveInfo, len(m.infos))
	copy(out, m.infos)
	// Stamp the simulated AL state, matching what the real link layers
	// report after discovery.
	for i := range out {
		out[i].State = m.states[i+1]
	}
	return out, nil
}

func (m *mockLink) MapProcessData(layout *GroupLayout) error {
	for i := range layout.Segments {
		seg := &layout.Segments[i]
		if seg.OutputBytes > 0 {
			seg.FMMUs = append(seg.FMMUs, FMMU{
				LogicalStart:  uint32(layout.InputBytes + seg.OutputOffset),
				Length:        uint16(seg.OutputBytes),
				PhysicalStart: 0x0F00,
			})
		}
		if seg.InputBytes > 0 {
			seg.FMMUs = append(seg.FMMUs, FMMU{
				LogicalStart:  uint32(seg.InputOffset),
				Length:        uint16(seg.InputBytes),
				PhysicalStart: 0x1000,
			})
		}
	}
	m.mappedLayout = layout
	return nil
}

func (m *mockLink) WriteApplicationState(slave int, state ALState) error {
	m.writeStateCalls++
	if m.writeStateErr != nil {
		return m.writeStateErr
	}
	apply := func(i int) {
		if !m.failConverge[i] {
			m.states[i] = state
		}
	}
	if slave == Broadcast {
		for i := range m.states {
			apply(i)
		}
		return nil
	}
	apply(slave)
	return nil
}

func (m *mockLink) PollApplicationState(slave int, state ALState, timeout time.Duration) (int, error) {
	reached := 0
	if slave == Broadcast {
		for _, st := range m.states {
			if st == state {
				reached++
			}
		}
		return reached, nil
	}
	if m.states[slave] == state {
		reached = 1
	}
	return reached, nil
}

func (m *mockLink) ReadApplicationState(slave int) (ALState, error) {
	st, ok := m.states[slave]
	if !ok {
		return StateUnknown, errors.New("unknown slave")
	}
	return st, nil
}

func (m *mockLink) SendOutputs(outputs []byte) error {
	m.sendCalls++
	m.lastSentOutputs = append([]byte(nil), outputs...)
	return nil
}

func (m *mockLink) ReceiveInputs(inputs []byte, timeout time.Duration) (int, error) {
	m.receiveCalls++
	m.cycle++
	if m.inputPattern != nil {
		m.inputPattern(inputs)
	}
	if wkc, ok := m.wkcByCycle[m.cycle]; ok {
		return wkc, nil
	}
	return m.expectedWKC, nil
}

func (m *mockLink) ReadPhysicalMemory(station, addr uint16, buf []byte, timeout time.Duration) (int, error) {
	m.readPhysCalls++
	if mem, ok := m.physMemory[station]; ok {
		copy(buf, mem[addr:])
	}
	return m.physWKC, nil
}

func (m *mockLink) WritePhysicalMemory(station, addr uint16, data []byte, timeout time.Duration) (int, error) {
	m.writePhysCalls++
	mem, ok := m.physMemory[station]
	if !ok {
		mem = make([]byte, 1<<16)
		m.physMemory[station] = mem
	}
	copy(mem[addr:], data)
	return m.physWKC, nil
}

func (m *mockLink) Diagnostics() string { return m.diagnosticsText }

// twoSlaveInfos is the partition scenario from the exchange engine tests:
// inputs {4, 2}, outputs {0, 3}.
func twoSlaveInfos() []SlaveInfo {
	return []SlaveInfo{
		{Name: "EL1004", VendorID: 0x2, ProductID: 0x3EC3052, StationAddr: 0x1001, InputBytes: 4},
		{Name: "EL2008", VendorID: 0x2, ProductID: 0x7D83052, StationAddr: 0x1002, InputBytes: 2, OutputBytes: 3},
	}
}
