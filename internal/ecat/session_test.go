package ecat

import (
	"errors"
	"testing"

	"github.com/vkaloerov/cecat/internal/logging"
)

func newTestSession(t *testing.T, link LinkLayer) *Session {
	t.Helper()
	log, err := logging.NewLogger(logging.LogLevelSilent, "")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return NewSession(link, log, DefaultTimeouts())
}

func TestSessionOpenIdempotent(t *testing.T) {
	link := newMockLink(nil)
	s := newTestSession(t, link)

	if err := s.Open("eth0"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if !s.IsOpen() || s.Interface() != "eth0" {
		t.Fatalf("session not open on eth0 after Open")
	}
	// Second open is a successful no-op.
	if err := s.Open("eth1"); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if s.Interface() != "eth0" {
		t.Errorf("interface = %q, want eth0 (reopen must not rebind)", s.Interface())
	}
}

func TestSessionOpenLinkUnavailable(t *testing.T) {
	link := newMockLink(nil)
	link.openErr = errors.New("permission denied")
	link.diagnosticsText = "socket(AF_PACKET): EPERM"
	s := newTestSession(t, link)

	err := s.Open("eth0")
	if !errors.Is(err, ErrLinkUnavailable) {
		t.Fatalf("err = %v, want ErrLinkUnavailable", err)
	}
	if s.IsOpen() {
		t.Error("session must stay uninitialized after failed open")
	}
}

func TestSessionCloseIdempotent(t *testing.T) {
	link := newMockLink(nil)
	s := newTestSession(t, link)

	// Close before open is safe.
	if err := s.Close(); err != nil {
		t.Fatalf("close unopened: %v", err)
	}

	if err := s.Open("eth0"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("double close: %v", err)
	}
	if s.IsOpen() || s.ProcessDataActive() {
		t.Error("flags must be cleared after close")
	}
}

func TestOperationsRequireOpenSession(t *testing.T) {
	link := newMockLink(twoSlaveInfos())
	s := newTestSession(t, link)

	if _, err := s.Scan(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Scan err = %v, want ErrNotInitialized", err)
	}
	if err := s.RequestState(StateInit, 0, Broadcast); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("RequestState err = %v, want ErrNotInitialized", err)
	}
	if _, err := s.ExchangeOnce(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ExchangeOnce err = %v, want ErrNotInitialized", err)
	}
	if _, err := s.ReadRegister(1, 0x1000, 16); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ReadRegister err = %v, want ErrNotInitialized", err)
	}
	if _, err := s.ReadConfig(1); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ReadConfig err = %v, want ErrNotInitialized", err)
	}
}
