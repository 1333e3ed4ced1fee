package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/vkaloerov/cecat/internal/config"
	"github.com/vkaloerov/cecat/internal/ecat"
	"github.com/vkaloerov/cecat/internal/link/sim"
	"github.com/vkaloerov/cecat/internal/logging"
)

func newTestRepl(t *testing.T) (*repl, *bytes.Buffer) {
	t.Helper()

	logger, err := logging.NewLogger(logging.LogLevelSilent, "")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	session := ecat.NewSession(sim.NewDefaultSegment(), logger, ecat.DefaultTimeouts())
	if err := session.Open(simInterfaceName); err != nil {
		t.Fatalf("open: %v", err)
	}

	sc := &sessionContext{
		session: session,
		logger:  logger,
		cfg:     config.CreateDefaultConfig(),
		useSim:  true,
	}
	t.Cleanup(sc.close)

	out := &bytes.Buffer{}
	return &repl{sc: sc, out: out}, out
}

func TestParseAddr(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantErr bool
	}{
		{"0x1000", 0x1000, false},
		{"4096", 4096, false},
		{"0", 0, false},
		{"0xFFFF", 0xFFFF, false},
		{"0x10000", 0, true},
		{"bogus", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		got, err := parseAddr(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseAddr(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("parseAddr(%q) = %#04x, want %#04x", tt.in, got, tt.want)
		}
	}
}

func TestParseBytes(t *testing.T) {
	got, err := parseBytes([]string{"0x12", "0x34", "171", "0"})
	if err != nil {
		t.Fatalf("parseBytes: %v", err)
	}
	if !bytes.Equal(got, []byte{0x12, 0x34, 0xAB, 0x00}) {
		t.Errorf("parseBytes = % X", got)
	}

	for _, bad := range [][]string{{"256"}, {"0x1FF"}, {"xyz"}, {"-1"}} {
		if _, err := parseBytes(bad); err == nil {
			t.Errorf("parseBytes(%v) accepted", bad)
		}
	}
}

func TestSplitTextWrite(t *testing.T) {
	idx, addr, text, err := splitTextWrite("text-write 1 0x1000 Hello World")
	if err != nil {
		t.Fatalf("splitTextWrite: %v", err)
	}
	if idx != 1 || addr != 0x1000 || text != "Hello World" {
		t.Errorf("got %d %#04x %q", idx, addr, text)
	}

	for _, bad := range []string{
		"text-write",
		"text-write 1",
		"text-write 1 0x1000",
		"text-write x 0x1000 hi",
		"text-write 1 zz hi",
	} {
		if _, _, _, err := splitTextWrite(bad); err == nil {
			t.Errorf("splitTextWrite(%q) accepted", bad)
		}
	}
}

func TestDispatchQuit(t *testing.T) {
	r, _ := newTestRepl(t)
	if !r.dispatch("quit") || !r.dispatch("exit") {
		t.Error("quit/exit did not end the session")
	}
	if r.dispatch("") || r.dispatch("   ") {
		t.Error("blank line ended the session")
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	r, out := newTestRepl(t)
	r.dispatch("frobnicate")
	if !strings.Contains(out.String(), "Unknown command") {
		t.Errorf("no error for unknown command:\n%s", out.String())
	}
}

func TestDispatchFullSession(t *testing.T) {
	r, out := newTestRepl(t)

	r.dispatch("scan")
	if !strings.Contains(out.String(), "2 slave(s) found") {
		t.Fatalf("scan output:\n%s", out.String())
	}

	out.Reset()
	r.dispatch("read-config 2")
	if !strings.Contains(out.String(), "SIM-IO23") {
		t.Errorf("read-config output:\n%s", out.String())
	}

	out.Reset()
	r.dispatch("pdo-start")
	if !r.sc.session.ProcessDataActive() {
		t.Fatal("pdo-start did not activate process data")
	}

	out.Reset()
	r.dispatch("pdo-write 0 0xFF 0x01")
	if !strings.Contains(out.String(), "wrote 2 byte(s)") {
		t.Errorf("pdo-write output:\n%s", out.String())
	}

	out.Reset()
	r.dispatch("pdo-read")
	if !strings.Contains(out.String(), "SIM-DI4") {
		t.Errorf("pdo-read output:\n%s", out.String())
	}

	out.Reset()
	r.dispatch("write 1 0x1000 0xAA 0xBB")
	r.dispatch("read 1 0x1000 2")
	if !strings.Contains(out.String(), "aa bb") {
		t.Errorf("register roundtrip output:\n%s", out.String())
	}

	out.Reset()
	r.dispatch("text-write 1 0x2000 Hi")
	r.dispatch("read 1 0x2000 2")
	if !strings.Contains(out.String(), "|Hi|") {
		t.Errorf("text-write roundtrip output:\n%s", out.String())
	}

	out.Reset()
	r.dispatch("pdo-loop 3 1")
	if !strings.Contains(out.String(), "Cycles    3") {
		t.Errorf("pdo-loop output:\n%s", out.String())
	}

	out.Reset()
	r.dispatch("status")
	if !strings.Contains(out.String(), "Expected WKC  4") {
		t.Errorf("status output:\n%s", out.String())
	}

	out.Reset()
	r.dispatch("pdo-stop")
	if r.sc.session.ProcessDataActive() {
		t.Error("pdo-stop left process data active")
	}
}

func TestDispatchErrorsAreNotFatal(t *testing.T) {
	r, out := newTestRepl(t)

	// Register access before any scan.
	if r.dispatch("read 1 0x0000 2") {
		t.Error("command error ended the session")
	}
	if !strings.Contains(out.String(), "ERROR:") {
		t.Errorf("error not surfaced:\n%s", out.String())
	}

	out.Reset()
	r.dispatch("pdo-read")
	if !strings.Contains(out.String(), "ERROR:") {
		t.Errorf("inactive pdo-read not surfaced:\n%s", out.String())
	}
}

func TestVerboseToggle(t *testing.T) {
	r, out := newTestRepl(t)

	r.dispatch("verbose on")
	if r.sc.logger.GetLevel() != logging.LogLevelVerbose {
		t.Error("verbose on did not raise the log level")
	}
	r.dispatch("verbose off")
	if r.sc.logger.GetLevel() != logging.LogLevelInfo {
		t.Error("verbose off did not lower the log level")
	}

	out.Reset()
	r.dispatch("verbose")
	if !strings.Contains(out.String(), "verbose is off") {
		t.Errorf("verbose query output:\n%s", out.String())
	}

	out.Reset()
	r.dispatch("verbose maybe")
	if !strings.Contains(out.String(), "ERROR:") {
		t.Errorf("bad verbose argument accepted:\n%s", out.String())
	}
}
