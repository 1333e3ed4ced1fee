package raw

import (
	"bytes"
	"testing"
)

func TestFrameRoundtrip(t *testing.T) {
	dgs := []datagram{
		{Cmd: cmdBRD, Idx: 7, Addr: uint32(regType) << 16, Data: []byte{0x00, 0x00}},
		{Cmd: cmdLRW, Idx: 7, Addr: 0x00000004, Data: []byte{0xDE, 0xAD, 0xBE}},
	}

	buf, err := encodeFrame(dgs)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	wantLen := frameHeaderLen +
		datagramHeaderLen + 2 + datagramWKCLen +
		datagramHeaderLen + 3 + datagramWKCLen
	if len(buf) != wantLen {
		t.Fatalf("encoded %d bytes, want %d", len(buf), wantLen)
	}

	// Frame header: length in the low bits, type 1 in the top nibble.
	word := uint16(buf[0]) | uint16(buf[1])<<8
	if word>>12 != frameTypeDatagrams {
		t.Errorf("frame type = %d, want %d", word>>12, frameTypeDatagrams)
	}
	if int(word&0x07FF) != wantLen-frameHeaderLen {
		t.Errorf("frame length = %d, want %d", word&0x07FF, wantLen-frameHeaderLen)
	}

	// First datagram must carry the more-datagrams bit, the last must not.
	if buf[2+6+1]&0x80 == 0 {
		t.Error("first datagram missing more bit")
	}

	got, err := decodeFrame(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("decoded %d datagrams, want 2", len(got))
	}
	for i := range got {
		if got[i].Cmd != dgs[i].Cmd || got[i].Idx != dgs[i].Idx || got[i].Addr != dgs[i].Addr {
			t.Errorf("datagram %d header = %+v, want %+v", i, got[i], dgs[i])
		}
		if !bytes.Equal(got[i].Data, dgs[i].Data) {
			t.Errorf("datagram %d data = % X, want % X", i, got[i].Data, dgs[i].Data)
		}
		if got[i].WKC != 0 {
			t.Errorf("datagram %d wkc = %d, want 0", i, got[i].WKC)
		}
	}
}

func TestDecodeReadsWorkingCounter(t *testing.T) {
	buf, err := encodeFrame([]datagram{{Cmd: cmdFPRD, Addr: stationAddr(0x1001, regALStatus), Data: make([]byte, 2)}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// A slave increments the trailing counter in place.
	buf[len(buf)-2] = 3

	got, err := decodeFrame(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got[0].WKC != 3 {
		t.Errorf("wkc = %d, want 3", got[0].WKC)
	}
}

func TestDecodeRejectsTruncatedFrames(t *testing.T) {
	buf, err := encodeFrame([]datagram{{Cmd: cmdBRD, Data: make([]byte, 8)}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	for _, cut := range []int{1, frameHeaderLen, frameHeaderLen + 4, len(buf) - 1} {
		if _, err := decodeFrame(buf[:cut]); err == nil {
			t.Errorf("decode of %d/%d bytes succeeded", cut, len(buf))
		}
	}
}

func TestEncodeRejectsOversizedFrames(t *testing.T) {
	if _, err := encodeFrame(nil); err == nil {
		t.Error("empty frame accepted")
	}
	if _, err := encodeFrame([]datagram{{Cmd: cmdLRW, Data: make([]byte, maxFrameData)}}); err == nil {
		t.Error("oversized frame accepted")
	}
}

func TestEchoDetection(t *testing.T) {
	payload, err := encodeFrame([]datagram{{Cmd: cmdBRD, Idx: 9, Addr: uint32(regType) << 16, Data: make([]byte, 32)}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	header := make([]byte, ethernetHeader)

	full := append(append([]byte{}, header...), payload...)
	if !isEcho(full, payload) {
		t.Error("untouched transmission not recognized as echo")
	}

	// A processed frame differs in the counter bytes.
	processed := append([]byte{}, full...)
	processed[len(processed)-2] = 1
	if isEcho(processed, payload) {
		t.Error("processed frame treated as echo")
	}

	// A valid but shorter frame from another master may carry the same index
	// byte; the comparison must not reach past its end.
	short, err := encodeFrame([]datagram{{Cmd: cmdBRD, Idx: 9, Data: make([]byte, 2)}})
	if err != nil {
		t.Fatalf("encode short: %v", err)
	}
	if isEcho(append(append([]byte{}, header...), short...), payload) {
		t.Error("short foreign frame treated as echo")
	}
	if isEcho(header, payload) {
		t.Error("header-only frame treated as echo")
	}
}

func TestPositionAddr(t *testing.T) {
	tests := []struct {
		pos  int
		want uint16
	}{
		{1, 0x0000},
		{2, 0xFFFF},
		{3, 0xFFFE},
	}
	for _, tt := range tests {
		addr := positionAddr(tt.pos, regConfiguredStationAddress)
		if adp := uint16(addr); adp != tt.want {
			t.Errorf("positionAddr(%d) adp = %#04x, want %#04x", tt.pos, adp, tt.want)
		}
		if ado := uint16(addr >> 16); ado != regConfiguredStationAddress {
			t.Errorf("positionAddr(%d) ado = %#04x, want %#04x", tt.pos, ado, regConfiguredStationAddress)
		}
	}
}
