package raw

import (
	"encoding/binary"
	"fmt"
)

// EtherCAT frames ride directly on Ethernet with their own ethertype. A
// frame is a 2-byte header followed by one or more datagrams; each datagram
// is a 10-byte header, the payload, and a trailing 16-bit working counter.
// All multi-byte fields are little-endian.
const (
	etherType = 0x88A4

	frameHeaderLen    = 2
	datagramHeaderLen = 10
	datagramWKCLen    = 2

	// frameType occupies the top nibble of the frame header word;
	// type 1 carries datagrams.
	frameTypeDatagrams = 1

	// maxFrameData keeps a full frame with Ethernet header under the
	// standard MTU.
	maxFrameData = 1470
)

type command uint8

const (
	cmdNOP  command = 0
	cmdAPRD command = 1
	cmdAPWR command = 2
	cmdAPRW command = 3
	cmdFPRD command = 4
	cmdFPWR command = 5
	cmdFPRW command = 6
	cmdBRD  command = 7
	cmdBWR  command = 8
	cmdBRW  command = 9
	cmdLRD  command = 10
	cmdLWR  command = 11
	cmdLRW  command = 12
	cmdARMW command = 13
	cmdFRMW command = 14
)

var commandNames = map[command]string{
	cmdNOP:  "NOP",
	cmdAPRD: "APRD",
	cmdAPWR: "APWR",
	cmdAPRW: "APRW",
	cmdFPRD: "FPRD",
	cmdFPWR: "FPWR",
	cmdFPRW: "FPRW",
	cmdBRD:  "BRD",
	cmdBWR:  "BWR",
	cmdBRW:  "BRW",
	cmdLRD:  "LRD",
	cmdLWR:  "LWR",
	cmdLRW:  "LRW",
	cmdARMW: "ARMW",
	cmdFRMW: "FRMW",
}

func (c command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

// datagram is one EtherCAT datagram, header fields plus payload. WKC is
// filled in on decode; it is always sent as zero.
type datagram struct {
	Cmd  command
	Idx  uint8
	Addr uint32
	Data []byte
	WKC  uint16
}

// positionAddr builds the 32-bit address for auto-increment commands. Each
// slave increments ADP as the datagram passes, and acts when it reaches
// zero, so the n-th slave on the wire (1-based) is addressed with 1-n.
func positionAddr(pos int, offset uint16) uint32 {
	adp := uint16(int16(1 - pos))
	return uint32(adp) | uint32(offset)<<16
}

// stationAddr builds the 32-bit address for configured-address commands.
func stationAddr(station, offset uint16) uint32 {
	return uint32(station) | uint32(offset)<<16
}

func (d *datagram) byteLen() int {
	return datagramHeaderLen + len(d.Data) + datagramWKCLen
}

// encodeFrame serializes the datagrams into a single EtherCAT frame. The
// last datagram's "more" bit is left clear so slaves know where to stop.
func encodeFrame(dgs []datagram) ([]byte, error) {
	if len(dgs) == 0 {
		return nil, fmt.Errorf("frame needs at least one datagram")
	}

	total := 0
	for i := range dgs {
		total += dgs[i].byteLen()
	}
	if total > maxFrameData {
		return nil, fmt.Errorf("frame data %d bytes exceeds %d", total, maxFrameData)
	}

	buf := make([]byte, frameHeaderLen+total)
	binary.LittleEndian.PutUint16(buf, uint16(total)&0x07FF|frameTypeDatagrams<<12)

	off := frameHeaderLen
	for i := range dgs {
		dg := &dgs[i]
		if len(dg.Data) > 0x07FF {
			return nil, fmt.Errorf("datagram %d payload %d bytes exceeds %d", i, len(dg.Data), 0x07FF)
		}

		lenWord := uint16(len(dg.Data))
		if i < len(dgs)-1 {
			lenWord |= 1 << 15 // more datagrams follow
		}

		buf[off] = uint8(dg.Cmd)
		buf[off+1] = dg.Idx
		binary.LittleEndian.PutUint32(buf[off+2:], dg.Addr)
		binary.LittleEndian.PutUint16(buf[off+6:], lenWord)
		binary.LittleEndian.PutUint16(buf[off+8:], 0) // interrupt
		off += datagramHeaderLen

		copy(buf[off:], dg.Data)
		off += len(dg.Data)

		binary.LittleEndian.PutUint16(buf[off:], 0) // working counter
		off += datagramWKCLen
	}

	return buf, nil
}

// decodeFrame parses an EtherCAT frame payload back into datagrams. Data
// slices alias the input buffer.
func decodeFrame(b []byte) ([]datagram, error) {
	if len(b) < frameHeaderLen {
		return nil, fmt.Errorf("short frame: %d bytes", len(b))
	}
	word := binary.LittleEndian.Uint16(b)
	if word>>12&0x0F != frameTypeDatagrams {
		return nil, fmt.Errorf("unexpected frame type %d", word>>12&0x0F)
	}
	frameLen := int(word & 0x07FF)
	if frameHeaderLen+frameLen > len(b) {
		return nil, fmt.Errorf("frame claims %d data bytes, have %d", frameLen, len(b)-frameHeaderLen)
	}
	b = b[frameHeaderLen : frameHeaderLen+frameLen]

	var dgs []datagram
	for {
		if len(b) < datagramHeaderLen {
			return nil, fmt.Errorf("short datagram header: %d bytes", len(b))
		}
		var dg datagram
		dg.Cmd = command(b[0])
		dg.Idx = b[1]
		dg.Addr = binary.LittleEndian.Uint32(b[2:])
		lenWord := binary.LittleEndian.Uint16(b[6:])
		more := lenWord&(1<<15) != 0
		dataLen := int(lenWord & 0x07FF)
		b = b[datagramHeaderLen:]

		if len(b) < dataLen+datagramWKCLen {
			return nil, fmt.Errorf("datagram claims %d data bytes, have %d", dataLen, len(b))
		}
		dg.Data = b[:dataLen]
		dg.WKC = binary.LittleEndian.Uint16(b[dataLen:])
		b = b[dataLen+datagramWKCLen:]

		dgs = append(dgs, dg)
		if !more {
			break
		}
	}
	return dgs, nil
}
