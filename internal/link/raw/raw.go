// Package raw drives a real EtherCAT segment over a network interface,
// using libpcap for frame injection and capture. It implements the same
// link contract as the simulator, so a session does not care which one it
// runs on.
package raw

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket/pcap"

	"github.com/vkaloerov/cecat/internal/ecat"
	"github.com/vkaloerov/cecat/internal/logging"
)

const (
	snapLen     = 65535
	readTimeout = time.Millisecond

	// firstStation is the configured address handed to the first slave;
	// subsequent slaves count up from it.
	firstStation = 0x1001

	// eepromIdleTimeout bounds the wait for the SII interface to finish
	// a pending operation.
	eepromIdleTimeout = 250 * time.Millisecond

	minEthernetFrame = 60
	ethernetHeader   = 14
)

var broadcastMAC = net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Link is a pcap-backed EtherCAT master port.
type Link struct {
	log *logging.Logger

	mu      sync.Mutex
	handle  *pcap.Handle
	srcMAC  net.HardwareAddr
	ifname  string
	idx     uint8
	slaves  []ecat.SlaveInfo
	layout  *ecat.GroupLayout
	lastErr string

	pendingOutputs  []byte
	exchangePending bool
}

// New returns an unopened link. The logger receives per-transaction debug
// output.
func New(log *logging.Logger) *Link {
	return &Link{log: log}
}

func (l *Link) Open(ifname string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	netif, err := net.InterfaceByName(ifname)
	if err != nil {
		l.lastErr = fmt.Sprintf("interface %s not found", ifname)
		return fmt.Errorf("lookup interface %s: %w", ifname, err)
	}

	handle, err := pcap.OpenLive(ifname, snapLen, true, readTimeout)
	if err != nil {
		l.lastErr = fmt.Sprintf("open %s: %v (raw sockets usually need root)", ifname, err)
		return fmt.Errorf("open live capture on %s: %w", ifname, err)
	}
	if err := handle.SetBPFFilter("ether proto 0x88a4"); err != nil {
		handle.Close()
		return fmt.Errorf("set BPF filter: %w", err)
	}

	l.handle = handle
	l.srcMAC = netif.HardwareAddr
	l.ifname = ifname
	l.lastErr = ""
	return nil
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.handle != nil {
		l.handle.Close()
		l.handle = nil
	}
	l.slaves = nil
	l.layout = nil
	return nil
}

func (l *Link) Diagnostics() string { return l.lastErr }

// roundtrip sends the datagrams in one frame and waits for the processed
// frame to come back around the ring. The capture also sees our own
// transmission; an echo is recognized by its untouched payload and only
// accepted, with its zero counters, once the deadline passes with nothing
// better.
func (l *Link) roundtrip(dgs []datagram, timeout time.Duration) ([]datagram, error) {
	if l.handle == nil {
		return nil, fmt.Errorf("link not open")
	}

	l.idx++
	for i := range dgs {
		dgs[i].Idx = l.idx
	}

	payload, err := encodeFrame(dgs)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, ethernetHeader+len(payload))
	frame = append(frame, broadcastMAC...)
	frame = append(frame, l.srcMAC...)
	frame = append(frame, byte(etherType>>8), byte(etherType))
	frame = append(frame, payload...)
	for len(frame) < minEthernetFrame {
		frame = append(frame, 0)
	}

	if err := l.handle.WritePacketData(frame); err != nil {
		return nil, fmt.Errorf("send frame: %w", err)
	}

	deadline := time.Now().Add(timeout)
	var echo []datagram
	for {
		data, _, err := l.handle.ReadPacketData()
		if err != nil {
			if errors.Is(err, pcap.NextErrorTimeoutExpired) {
				if time.Now().After(deadline) {
					break
				}
				continue
			}
			return nil, fmt.Errorf("receive frame: %w", err)
		}
		if len(data) < ethernetHeader {
			continue
		}
		if uint16(data[12])<<8|uint16(data[13]) != etherType {
			continue
		}

		got, err := decodeFrame(data[ethernetHeader:])
		if err != nil || len(got) == 0 || got[0].Idx != l.idx {
			continue
		}
		if isEcho(data, payload) {
			echo = got
			if time.Now().After(deadline) {
				break
			}
			continue
		}
		return got, nil
	}

	// Nothing on the ring processed the frame. An open port without
	// slaves never returns it, so report the transmission as-is with
	// zero working counters.
	if echo != nil {
		return echo, nil
	}
	return nil, fmt.Errorf("no response within %v", timeout)
}

// isEcho reports whether a captured frame is our own transmission coming
// back off the capture unprocessed. A frame shorter than the sent payload
// cannot be the echo; another master's traffic may carry a matching index
// byte in a shorter frame.
func isEcho(data, payload []byte) bool {
	if len(data) < ethernetHeader+len(payload) {
		return false
	}
	return bytes.Equal(data[ethernetHeader:ethernetHeader+len(payload)], payload)
}

// execute runs a single-datagram transaction and returns the returned
// payload and working counter.
func (l *Link) execute(cmd command, addr uint32, data []byte, timeout time.Duration) ([]byte, int, error) {
	got, err := l.roundtrip([]datagram{{Cmd: cmd, Addr: addr, Data: data}}, timeout)
	if err != nil {
		return nil, 0, err
	}
	dg := got[0]
	l.log.Debug("%s addr=%08x len=%d wkc=%d", cmd, addr, len(data), dg.WKC)
	return dg.Data, int(dg.WKC), nil
}

// ioTimeout is the per-transaction deadline for configuration traffic,
// where the caller did not supply one.
const ioTimeout = 20 * time.Millisecond

func (l *Link) brd(offset uint16, n int) ([]byte, int, error) {
	return l.execute(cmdBRD, uint32(offset)<<16, make([]byte, n), ioTimeout)
}

func (l *Link) bwr(offset uint16, data []byte) (int, error) {
	_, wkc, err := l.execute(cmdBWR, uint32(offset)<<16, data, ioTimeout)
	return wkc, err
}

func (l *Link) fprd(station, offset uint16, n int, timeout time.Duration) ([]byte, int, error) {
	return l.execute(cmdFPRD, stationAddr(station, offset), make([]byte, n), timeout)
}

func (l *Link) fpwr(station, offset uint16, data []byte, timeout time.Duration) (int, error) {
	_, wkc, err := l.execute(cmdFPWR, stationAddr(station, offset), data, timeout)
	return wkc, err
}

func (l *Link) fprdU16(station, offset uint16) (uint16, error) {
	b, wkc, err := l.fprd(station, offset, 2, ioTimeout)
	if err != nil {
		return 0, err
	}
	if wkc <= 0 {
		return 0, fmt.Errorf("station %#04x did not answer read of %#04x", station, offset)
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

func (l *Link) fpwrU16(station, offset, value uint16) error {
	wkc, err := l.fpwr(station, offset, []byte{byte(value), byte(value >> 8)}, ioTimeout)
	if err != nil {
		return err
	}
	if wkc <= 0 {
		return fmt.Errorf("station %#04x did not answer write of %#04x", station, offset)
	}
	return nil
}

// DiscoverAndConfigure counts the slaves on the ring, hands out station
// addresses in bus order, pulls each slave's identity and layout from its
// information interface, and requests PRE-OP.
func (l *Link) DiscoverAndConfigure() ([]ecat.SlaveInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, count, err := l.brd(regType, 2)
	if err != nil {
		return nil, fmt.Errorf("count slaves: %w", err)
	}
	l.log.Verbose("broadcast read answered by %d slaves", count)
	if count == 0 {
		l.slaves = nil
		return nil, nil
	}

	// Reset the application layer everywhere, acknowledging stale errors.
	if _, err := l.bwr(regALControl, leU16(uint16(ecat.StateInit)|alErrorBit)); err != nil {
		return nil, fmt.Errorf("reset to INIT: %w", err)
	}

	infos := make([]ecat.SlaveInfo, count)
	for i := 1; i <= count; i++ {
		station := uint16(firstStation + i - 1)
		_, wkc, err := l.execute(cmdAPWR,
			positionAddr(i, regConfiguredStationAddress),
			leU16(station), ioTimeout)
		if err != nil {
			return nil, fmt.Errorf("assign station to slave %d: %w", i, err)
		}
		if wkc <= 0 {
			return nil, fmt.Errorf("slave %d did not accept station address", i)
		}

		info, err := readSlaveInfo(l.eepromWordReader(station))
		if err != nil {
			return nil, fmt.Errorf("read slave %d configuration: %w", i, err)
		}
		info.StationAddr = station

		if info.AliasAddr, err = l.fprdU16(station, regConfiguredStationAlias); err != nil {
			return nil, fmt.Errorf("read slave %d alias: %w", i, err)
		}

		infos[i-1] = info
		l.log.Verbose("slave %d: %s vendor=%08x product=%08x in=%d out=%d",
			i, info.Name, info.VendorID, info.ProductID, info.InputBytes, info.OutputBytes)
	}

	// Bring the segment to PRE-OP and record where each slave landed.
	if _, err := l.bwr(regALControl, leU16(uint16(ecat.StatePreOp)|alErrorBit)); err != nil {
		return nil, fmt.Errorf("request PRE-OP: %w", err)
	}
	time.Sleep(10 * time.Millisecond)
	for i := range infos {
		state, err := l.readALState(infos[i].StationAddr)
		if err != nil {
			return nil, fmt.Errorf("read slave %d state: %w", i+1, err)
		}
		infos[i].State = state
	}

	l.slaves = infos
	return infos, nil
}

// MapProcessData programs each slave's process data sync managers and FMMUs
// against the logical arena: inputs first, outputs directly after. Each
// programmed mapping unit is recorded into its segment.
func (l *Link) MapProcessData(layout *ecat.GroupLayout) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(layout.Segments) != len(l.slaves) {
		return fmt.Errorf("layout covers %d slaves, segment has %d", len(layout.Segments), len(l.slaves))
	}

	for i := range layout.Segments {
		seg := &layout.Segments[i]
		info := &l.slaves[i]
		outSM, inSM := processDataSMs(info)
		seg.FMMUs = nil

		if seg.OutputBytes > 0 {
			if outSM == nil {
				return fmt.Errorf("slave %d has %d output bytes but no output sync manager", i+1, seg.OutputBytes)
			}
			if err := l.writeSyncManager(seg.StationAddr, outSM.index, outSM.start, uint16(seg.OutputBytes), smControlOutputs); err != nil {
				return fmt.Errorf("slave %d output sync manager: %w", i+1, err)
			}
			logical := uint32(layout.InputBytes + seg.OutputOffset)
			if err := l.writeFMMU(seg.StationAddr, 0, logical, uint16(seg.OutputBytes), outSM.start, fmmuTypeWrite); err != nil {
				return fmt.Errorf("slave %d output mapping: %w", i+1, err)
			}
			seg.FMMUs = append(seg.FMMUs, ecat.FMMU{
				LogicalStart:  logical,
				Length:        uint16(seg.OutputBytes),
				PhysicalStart: outSM.start,
			})
		}
		if seg.InputBytes > 0 {
			if inSM == nil {
				return fmt.Errorf("slave %d has %d input bytes but no input sync manager", i+1, seg.InputBytes)
			}
			if err := l.writeSyncManager(seg.StationAddr, inSM.index, inSM.start, uint16(seg.InputBytes), smControlInputs); err != nil {
				return fmt.Errorf("slave %d input sync manager: %w", i+1, err)
			}
			if err := l.writeFMMU(seg.StationAddr, 1, uint32(seg.InputOffset), uint16(seg.InputBytes), inSM.start, fmmuTypeRead); err != nil {
				return fmt.Errorf("slave %d input mapping: %w", i+1, err)
			}
			seg.FMMUs = append(seg.FMMUs, ecat.FMMU{
				LogicalStart:  uint32(seg.InputOffset),
				Length:        uint16(seg.InputBytes),
				PhysicalStart: inSM.start,
			})
		}
	}

	l.layout = layout
	return nil
}

const (
	smControlOutputs = 0x64 // buffered, ECAT write
	smControlInputs  = 0x20 // buffered, ECAT read

	fmmuTypeRead  = 1
	fmmuTypeWrite = 2

	// Default physical buffer addresses for slaves whose information
	// interface carries no sync manager layout.
	defaultOutputStart = 0x0F00
	defaultInputStart  = 0x1000
)

type smSlot struct {
	index int
	start uint16
}

// processDataSMs picks the sync manager channels carrying process data.
// Mailbox-capable slaves use SM0/SM1 for the mailbox and SM2/SM3 for data;
// simple devices use SM0/SM1 for data directly.
func processDataSMs(info *ecat.SlaveInfo) (out, in *smSlot) {
	base := 0
	if info.MailboxLen > 0 {
		base = 2
	}
	outIdx, inIdx := base, base+1

	pick := func(idx int, fallback uint16) *smSlot {
		if idx < len(info.SyncManagers) && info.SyncManagers[idx].StartAddr != 0 {
			return &smSlot{index: idx, start: info.SyncManagers[idx].StartAddr}
		}
		return &smSlot{index: idx, start: fallback}
	}
	return pick(outIdx, defaultOutputStart), pick(inIdx, defaultInputStart)
}

func (l *Link) writeSyncManager(station uint16, index int, start, length uint16, control byte) error {
	entry := make([]byte, syncManagerEntryLen)
	entry[0] = byte(start)
	entry[1] = byte(start >> 8)
	entry[2] = byte(length)
	entry[3] = byte(length >> 8)
	entry[4] = control
	entry[6] = 0x01 // activate
	offset := uint16(regSyncManagerBase + index*syncManagerEntryLen)

	wkc, err := l.fpwr(station, offset, entry, ioTimeout)
	if err != nil {
		return err
	}
	if wkc <= 0 {
		return fmt.Errorf("station %#04x rejected sync manager %d", station, index)
	}
	return nil
}

func (l *Link) writeFMMU(station uint16, index int, logical uint32, length, phys uint16, fmmuType byte) error {
	entry := make([]byte, fmmuEntryLen)
	entry[0] = byte(logical)
	entry[1] = byte(logical >> 8)
	entry[2] = byte(logical >> 16)
	entry[3] = byte(logical >> 24)
	entry[4] = byte(length)
	entry[5] = byte(length >> 8)
	entry[6] = 0 // logical start bit
	entry[7] = 7 // logical end bit
	entry[8] = byte(phys)
	entry[9] = byte(phys >> 8)
	entry[10] = 0 // physical start bit
	entry[11] = fmmuType
	entry[12] = 0x01 // activate
	offset := uint16(regFMMUBase + index*fmmuEntryLen)

	wkc, err := l.fpwr(station, offset, entry, ioTimeout)
	if err != nil {
		return err
	}
	if wkc <= 0 {
		return fmt.Errorf("station %#04x rejected FMMU %d", station, index)
	}
	return nil
}

func (l *Link) WriteApplicationState(slave int, state ecat.ALState) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	value := leU16(uint16(state) | alErrorBit)
	if slave == 0 {
		_, err := l.bwr(regALControl, value)
		return err
	}
	station, err := l.stationOf(slave)
	if err != nil {
		return err
	}
	wkc, err := l.fpwr(station, regALControl, value, ioTimeout)
	if err != nil {
		return err
	}
	if wkc <= 0 {
		return fmt.Errorf("slave %d did not acknowledge state request", slave)
	}
	return nil
}

// PollApplicationState counts how many of the addressed slaves report the
// target state, rechecking until all converge or the deadline passes.
func (l *Link) PollApplicationState(slave int, state ecat.ALState, timeout time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var stations []uint16
	if slave == 0 {
		for i := range l.slaves {
			stations = append(stations, l.slaves[i].StationAddr)
		}
	} else {
		station, err := l.stationOf(slave)
		if err != nil {
			return 0, err
		}
		stations = append(stations, station)
	}

	deadline := time.Now().Add(timeout)
	for {
		reached := 0
		for _, station := range stations {
			got, err := l.readALState(station)
			if err != nil {
				return reached, err
			}
			if got == state {
				reached++
			}
		}
		if reached == len(stations) || time.Now().After(deadline) {
			return reached, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (l *Link) ReadApplicationState(slave int) (ecat.ALState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	station, err := l.stationOf(slave)
	if err != nil {
		return ecat.StateUnknown, err
	}
	return l.readALState(station)
}

func (l *Link) readALState(station uint16) (ecat.ALState, error) {
	status, err := l.fprdU16(station, regALStatus)
	if err != nil {
		return ecat.StateUnknown, err
	}
	switch state := ecat.ALState(status & alStateMask); state {
	case ecat.StateInit, ecat.StatePreOp, ecat.StateSafeOp, ecat.StateOperational:
		return state, nil
	default:
		return ecat.StateUnknown, nil
	}
}

// SendOutputs stages the output image for the next exchange.
func (l *Link) SendOutputs(outputs []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.layout == nil {
		return fmt.Errorf("process data not mapped")
	}
	if len(outputs) != l.layout.OutputBytes {
		return fmt.Errorf("output image is %d bytes, mapping expects %d", len(outputs), l.layout.OutputBytes)
	}
	l.pendingOutputs = append(l.pendingOutputs[:0], outputs...)
	l.exchangePending = true
	return nil
}

// ReceiveInputs completes the exchange: a logical read-write over the whole
// arena, split across datagrams when it exceeds a frame. Working counters
// of the parts are summed.
func (l *Link) ReceiveInputs(inputs []byte, timeout time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.layout == nil {
		return 0, fmt.Errorf("process data not mapped")
	}
	if !l.exchangePending {
		return 0, fmt.Errorf("no exchange staged")
	}
	l.exchangePending = false

	if len(inputs) != l.layout.InputBytes {
		return 0, fmt.Errorf("input image is %d bytes, mapping expects %d", len(inputs), l.layout.InputBytes)
	}

	arena := make([]byte, l.layout.InputBytes+l.layout.OutputBytes)
	copy(arena[l.layout.InputBytes:], l.pendingOutputs)

	const chunk = maxFrameData - datagramHeaderLen - datagramWKCLen
	total := 0
	for off := 0; off < len(arena) || off == 0; off += chunk {
		end := off + chunk
		if end > len(arena) {
			end = len(arena)
		}
		data, wkc, err := l.execute(cmdLRW, uint32(off), arena[off:end], timeout)
		if err != nil {
			return total, fmt.Errorf("process data exchange: %w", err)
		}
		copy(arena[off:end], data)
		total += wkc
		if end == len(arena) {
			break
		}
	}

	copy(inputs, arena[:l.layout.InputBytes])
	return total, nil
}

func (l *Link) ReadPhysicalMemory(station, addr uint16, buf []byte, timeout time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, wkc, err := l.fprd(station, addr, len(buf), timeout)
	if err != nil {
		return 0, err
	}
	copy(buf, data)
	return wkc, nil
}

func (l *Link) WritePhysicalMemory(station, addr uint16, data []byte, timeout time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.fpwr(station, addr, data, timeout)
}

// eepromWordReader returns a reader over the slave's information interface.
// Each read programs the word address, issues the read command, waits for
// the interface to go idle and pulls the data register.
func (l *Link) eepromWordReader(station uint16) wordReader {
	return func(word uint16) (uint16, error) {
		if err := l.eepromWaitIdle(station); err != nil {
			return 0, err
		}

		addr := []byte{byte(word), byte(word >> 8), 0, 0}
		if wkc, err := l.fpwr(station, regEEPROMAddress, addr, ioTimeout); err != nil {
			return 0, err
		} else if wkc <= 0 {
			return 0, fmt.Errorf("station %#04x rejected EEPROM address", station)
		}

		// Command word: read strobe in the high byte.
		if wkc, err := l.fpwr(station, regEEPROMControlStatus, []byte{0x00, 0x01}, ioTimeout); err != nil {
			return 0, err
		} else if wkc <= 0 {
			return 0, fmt.Errorf("station %#04x rejected EEPROM read command", station)
		}

		if err := l.eepromWaitIdle(station); err != nil {
			return 0, err
		}

		status, err := l.fprdU16(station, regEEPROMControlStatus)
		if err != nil {
			return 0, err
		}
		if status&0xE000 != 0 {
			return 0, fmt.Errorf("EEPROM error bits set on station %#04x: %#04x", station, status)
		}

		data, wkc, err := l.fprd(station, regEEPROMData, 4, ioTimeout)
		if err != nil {
			return 0, err
		}
		if wkc <= 0 {
			return 0, fmt.Errorf("station %#04x did not deliver EEPROM data", station)
		}
		return uint16(data[0]) | uint16(data[1])<<8, nil
	}
}

func (l *Link) eepromWaitIdle(station uint16) error {
	deadline := time.Now().Add(eepromIdleTimeout)
	for {
		status, err := l.fprdU16(station, regEEPROMControlStatus)
		if err != nil {
			return err
		}
		if status&0x8000 == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("EEPROM interface busy on station %#04x", station)
		}
		time.Sleep(time.Millisecond)
	}
}

func (l *Link) stationOf(slave int) (uint16, error) {
	if slave < 1 || slave > len(l.slaves) {
		return 0, fmt.Errorf("no slave at bus index %d", slave)
	}
	return l.slaves[slave-1].StationAddr, nil
}

func leU16(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}
