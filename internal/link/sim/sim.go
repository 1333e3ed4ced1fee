// Package sim provides an in-memory link layer backed by software slaves.
// It implements the same contract as the raw transport, so sessions, tests
// and the --sim CLI flag can run a full master lifecycle without a NIC.
package sim

import (
	"fmt"
	"time"

	"github.com/vkaloerov/cecat/internal/ecat"
)

// Device is one software slave on the simulated segment.
type Device struct {
	Info ecat.SlaveInfo

	// Memory is the slave's 64 KiB physical address space.
	Memory [1 << 16]byte

	// InputGenerator, when set, produces the device's input bytes each
	// exchange cycle. Its result is truncated or zero-padded to the
	// configured input length.
	InputGenerator func(cycle int) []byte

	// FailConverge makes the device ignore state transition requests,
	// staying in whatever state it holds.
	FailConverge bool

	// Silent makes the device skip acknowledging process data exchanges,
	// producing a working counter shortfall.
	Silent bool

	state       ecat.ALState
	outputStart uint16 // physical output buffer, set by MapProcessData
}

// Link is a simulated EtherCAT segment.
type Link struct {
	// OpenErr, when set, makes Open fail (for LinkUnavailable paths).
	OpenErr error

	// WKCOverride, when set, replaces the computed working counter for the
	// given 1-based cycle numbers.
	WKCOverride map[int]int

	devices []*Device
	layout  *ecat.GroupLayout

	opened  bool
	cycle   int
	pending []byte // outputs of the in-flight exchange
	lastErr string
}

// New builds a segment from the given devices, in bus order.
func New(devices ...*Device) *Link {
	return &Link{devices: devices, WKCOverride: make(map[int]int)}
}

// NewDefaultSegment is the canned two-slave segment the --sim flag uses: a
// 4-byte digital input terminal and a coupler with 2 bytes in, 3 bytes out.
func NewDefaultSegment() *Link {
	counter := 0
	return New(
		&Device{
			Info: ecat.SlaveInfo{
				Name:       "SIM-DI4",
				VendorID:   0x00000E0C,
				ProductID:  0x00001001,
				Revision:   0x00010000,
				InputBytes: 4,
				SyncManagers: []ecat.SyncManager{
					{},
					{StartAddr: 0x1000, Length: 4, Flags: 0x00010020},
				},
				CoEDetails: ecat.CoESDO | ecat.CoESDOInfo,
			},
			InputGenerator: func(cycle int) []byte {
				counter++
				return []byte{byte(counter), byte(counter >> 8), 0x00, 0x01}
			},
		},
		&Device{
			Info: ecat.SlaveInfo{
				Name:         "SIM-IO23",
				VendorID:     0x00000E0C,
				ProductID:    0x00001002,
				Revision:     0x00010000,
				InputBytes:   2,
				OutputBytes:  3,
				MailboxLen:   128,
				MailboxProto: ecat.MailboxCoE,
				SyncManagers: []ecat.SyncManager{
					{StartAddr: 0x1800, Length: 128, Flags: 0x00010026},
					{StartAddr: 0x1880, Length: 128, Flags: 0x00010022},
					{StartAddr: 0x0F00, Length: 3, Flags: 0x00010064},
					{StartAddr: 0x1100, Length: 2, Flags: 0x00010020},
				},
				CoEDetails: ecat.CoESDO | ecat.CoEPDOAssign,
			},
		},
	)
}

func (l *Link) Open(ifname string) error {
	if l.OpenErr != nil {
		l.lastErr = l.OpenErr.Error()
		return l.OpenErr
	}
	l.opened = true
	return nil
}

func (l *Link) Close() error {
	l.opened = false
	return nil
}

// DiscoverAndConfigure assigns station addresses in bus order and reports
// every device's static configuration. Devices come up in PRE-OP, the state
// a real configuration pass leaves them in.
func (l *Link) DiscoverAndConfigure() ([]ecat.SlaveInfo, error) {
	if !l.opened {
		return nil, fmt.Errorf("link not open")
	}
	infos := make([]ecat.SlaveInfo, len(l.devices))
	for i, dev := range l.devices {
		dev.state = ecat.StatePreOp
		info := dev.Info
		info.StationAddr = uint16(0x1000 + i + 1)
		info.State = dev.state
		dev.Info.StationAddr = info.StationAddr
		infos[i] = info
	}
	return infos, nil
}

// Default process data buffer addresses for devices declaring no sync
// manager layout.
const (
	defaultOutputStart = 0x0F00
	defaultInputStart  = 0x1000
)

// MapProcessData records the layout and the mapping units a hardware pass
// would program, resolved from each device's declared process data buffers.
func (l *Link) MapProcessData(layout *ecat.GroupLayout) error {
	for i := range layout.Segments {
		if i >= len(l.devices) {
			break
		}
		seg := &layout.Segments[i]
		dev := l.devices[i]
		out, in := dataBuffers(dev.Info)
		dev.outputStart = out

		seg.FMMUs = nil
		if seg.OutputBytes > 0 {
			seg.FMMUs = append(seg.FMMUs, ecat.FMMU{
				LogicalStart:  uint32(layout.InputBytes + seg.OutputOffset),
				Length:        uint16(seg.OutputBytes),
				PhysicalStart: out,
			})
		}
		if seg.InputBytes > 0 {
			seg.FMMUs = append(seg.FMMUs, ecat.FMMU{
				LogicalStart:  uint32(seg.InputOffset),
				Length:        uint16(seg.InputBytes),
				PhysicalStart: in,
			})
		}
	}
	l.layout = layout
	return nil
}

// dataBuffers resolves the physical process data buffer addresses from the
// device's sync manager layout. Mailbox devices carry data on SM2/SM3;
// devices declaring no layout get the conventional defaults.
func dataBuffers(info ecat.SlaveInfo) (out, in uint16) {
	base := 0
	if info.MailboxLen > 0 {
		base = 2
	}
	out, in = defaultOutputStart, defaultInputStart
	if base < len(info.SyncManagers) && info.SyncManagers[base].StartAddr != 0 {
		out = info.SyncManagers[base].StartAddr
	}
	if base+1 < len(info.SyncManagers) && info.SyncManagers[base+1].StartAddr != 0 {
		in = info.SyncManagers[base+1].StartAddr
	}
	return out, in
}

func (l *Link) WriteApplicationState(slave int, state ecat.ALState) error {
	if slave == ecat.Broadcast {
		for _, dev := range l.devices {
			if !dev.FailConverge {
				dev.state = state
			}
		}
		return nil
	}
	dev, err := l.device(slave)
	if err != nil {
		return err
	}
	if !dev.FailConverge {
		dev.state = state
	}
	return nil
}

// PollApplicationState converges instantly: sim devices either follow the
// request or are configured to refuse, so there is nothing to wait for.
func (l *Link) PollApplicationState(slave int, state ecat.ALState, timeout time.Duration) (int, error) {
	if slave == ecat.Broadcast {
		reached := 0
		for _, dev := range l.devices {
			if dev.state == state {
				reached++
			}
		}
		return reached, nil
	}
	dev, err := l.device(slave)
	if err != nil {
		return 0, err
	}
	if dev.state == state {
		return 1, nil
	}
	return 0, nil
}

func (l *Link) ReadApplicationState(slave int) (ecat.ALState, error) {
	dev, err := l.device(slave)
	if err != nil {
		return ecat.StateUnknown, err
	}
	return dev.state, nil
}

func (l *Link) SendOutputs(outputs []byte) error {
	if l.layout == nil {
		return fmt.Errorf("process data not mapped")
	}
	l.pending = append(l.pending[:0], outputs...)
	return nil
}

// ReceiveInputs completes the in-flight exchange: outputs are delivered to
// each device's memory image, inputs are collected per the mapped layout,
// and the working counter reflects every acknowledging device.
func (l *Link) ReceiveInputs(inputs []byte, timeout time.Duration) (int, error) {
	if l.pending == nil {
		return 0, fmt.Errorf("no exchange in flight")
	}
	l.cycle++
	wkc := 0

	for i, seg := range l.layout.Segments {
		dev := l.devices[i]
		if dev.Silent {
			continue
		}
		if seg.OutputBytes > 0 {
			start := dev.outputStart
			if start == 0 {
				start = defaultOutputStart
			}
			copy(dev.Memory[start:], l.pending[seg.OutputOffset:seg.OutputOffset+seg.OutputBytes])
			wkc += 2
		}
		if seg.InputBytes > 0 {
			view := inputs[seg.InputOffset : seg.InputOffset+seg.InputBytes]
			if dev.InputGenerator != nil {
				data := dev.InputGenerator(l.cycle)
				for j := range view {
					if j < len(data) {
						view[j] = data[j]
					} else {
						view[j] = 0
					}
				}
			}
			wkc++
		}
	}
	l.pending = nil

	if override, ok := l.WKCOverride[l.cycle]; ok {
		return override, nil
	}
	return wkc, nil
}

func (l *Link) ReadPhysicalMemory(station, addr uint16, buf []byte, timeout time.Duration) (int, error) {
	dev := l.deviceByStation(station)
	if dev == nil {
		return 0, nil
	}
	copy(buf, dev.Memory[addr:])
	return 1, nil
}

func (l *Link) WritePhysicalMemory(station, addr uint16, data []byte, timeout time.Duration) (int, error) {
	dev := l.deviceByStation(station)
	if dev == nil {
		return 0, nil
	}
	copy(dev.Memory[addr:], data)
	return 1, nil
}

func (l *Link) Diagnostics() string { return l.lastErr }

// Cycle returns the number of completed exchange cycles.
func (l *Link) Cycle() int { return l.cycle }

func (l *Link) device(slave int) (*Device, error) {
	if slave < 1 || slave > len(l.devices) {
		return nil, fmt.Errorf("no device at bus index %d", slave)
	}
	return l.devices[slave-1], nil
}

func (l *Link) deviceByStation(station uint16) *Device {
	for _, dev := range l.devices {
		if dev.Info.StationAddr == station {
			return dev
		}
	}
	return nil
}
