package report

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/vkaloerov/cecat/internal/ecat"
	"github.com/vkaloerov/cecat/internal/metrics"
)

func TestHexDump(t *testing.T) {
	data := []byte("EtherCAT!\x00\x01\x02\x03\x04\x05\x06\x07\x08")

	out := HexDump(data, 16)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("dump has %d lines, want 2:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "0000: ") || !strings.HasPrefix(lines[1], "0010: ") {
		t.Errorf("offset columns wrong:\n%s", out)
	}
	if !strings.Contains(lines[0], "|EtherCAT!") {
		t.Errorf("ASCII column missing text:\n%s", out)
	}
	if !strings.Contains(lines[0], "45 74 68 65") {
		t.Errorf("hex column wrong:\n%s", out)
	}
	// Non-printable bytes become dots.
	if !strings.Contains(lines[0], ".") {
		t.Errorf("non-printables not masked:\n%s", out)
	}
}

func TestHexDumpAtRebasesOffsets(t *testing.T) {
	out := HexDumpAt(0x0120, make([]byte, 20), 16)
	if !strings.Contains(out, "0120:") || !strings.Contains(out, "0130:") {
		t.Errorf("rebased offsets missing:\n%s", out)
	}
}

func testSlaves() []ecat.Slave {
	return []ecat.Slave{
		{Index: 1, SlaveInfo: ecat.SlaveInfo{
			Name: "EL1004", VendorID: 2, ProductID: 0x03EC3052,
			StationAddr: 0x1001, InputBytes: 4, State: ecat.StateOperational,
		}},
		{Index: 2, SlaveInfo: ecat.SlaveInfo{
			Name: "EL2008", VendorID: 2, ProductID: 0x07D83052,
			StationAddr: 0x1002, InputBytes: 2, OutputBytes: 3,
			MailboxLen: 128, MailboxProto: ecat.MailboxCoE,
			CoEDetails: ecat.CoESDO | ecat.CoEPDOAssign,
			State:      ecat.StateSafeOp,
		}},
	}
}

func TestScanTable(t *testing.T) {
	out := ScanTable(testSlaves())

	for _, want := range []string{"2 slave(s) found", "EL1004", "EL2008", "OPERATIONAL", "SAFE-OP", "0x1001"} {
		if !strings.Contains(out, want) {
			t.Errorf("scan table missing %q:\n%s", want, out)
		}
	}
}

func TestConfigDetail(t *testing.T) {
	s := testSlaves()[1]
	s.SyncManagers = []ecat.SyncManager{{StartAddr: 0x1800, Length: 128}}
	s.FMMUs = []ecat.FMMU{{LogicalStart: 0x4, Length: 3, PhysicalStart: 0x0F00}}

	out := ConfigDetail(s)
	for _, want := range []string{
		"Slave 2: EL2008",
		"Mailbox   128 bytes, protocols CoE",
		"CoE       SDO+PDOassign",
		"SM0       start 0x1800",
		"FMMU0",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("config detail missing %q:\n%s", want, out)
		}
	}
}

func TestStatusPanel(t *testing.T) {
	group := ecat.Group{InputBytes: 6, OutputBytes: 3, InputsWKC: 2, OutputsWKC: 1}
	out := StatusPanel("eth1", true, group, testSlaves())

	for _, want := range []string{"eth1", "active", "6 bytes in, 3 bytes out", "Expected WKC  4", "slave 1", "slave 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("status panel missing %q:\n%s", want, out)
		}
	}
}

func TestInputViews(t *testing.T) {
	snap := ecat.InputSnapshot{
		Raw: []byte{0xAA, 0xBB, 0xCC},
		Slaves: []ecat.InputView{
			{Index: 1, Name: "EL1004", Offset: 0, Data: []byte{0xAA, 0xBB}},
			{Index: 2, Name: "EL2008", Offset: 2, Data: []byte{0xCC}},
		},
	}

	out := InputViews(snap)
	if !strings.Contains(out, "aa bb") || !strings.Contains(out, "cc") {
		t.Errorf("input views missing data:\n%s", out)
	}
	if !strings.Contains(out, "[2+1]") {
		t.Errorf("offset annotation missing:\n%s", out)
	}
}

func TestLoopSummary(t *testing.T) {
	sink := metrics.NewSink()
	sink.Record(metrics.CycleMetric{Cycle: 1, WKC: 4, Expected: 4, RTTMs: 1.5})
	sink.Record(metrics.CycleMetric{Cycle: 2, WKC: 1, Expected: 4, Degraded: true, RTTMs: 2.5})

	out := LoopSummary(sink.GetSummary())
	for _, want := range []string{"Cycles    2", "Degraded  1", "min 1.500", "max 2.500"} {
		if !strings.Contains(out, want) {
			t.Errorf("loop summary missing %q:\n%s", want, out)
		}
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	name := strings.Repeat("Ü", 30)
	got := truncate(name, 24)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated name is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 24 {
		t.Errorf("truncated to %d runes, want 24", n)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated name missing ellipsis: %q", got)
	}

	if got := truncate("short", 24); got != "short" {
		t.Errorf("short name altered: %q", got)
	}
}
