package ecat

import (
	"errors"
	"testing"
)

func TestIOMapCommitCapacity(t *testing.T) {
	m := NewIOMap()
	if err := m.Commit(2048, 2048); err != nil {
		t.Fatalf("commit at capacity: %v", err)
	}
	if err := m.Commit(2048, 2049); err == nil {
		t.Fatal("expected error for partition exceeding capacity")
	}
}

func TestIOMapRegionsAreDisjoint(t *testing.T) {
	m := NewIOMap()
	if err := m.Commit(6, 3); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := m.WriteOutputs(0, []byte{0xFF, 0x00, 0x01}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for i, b := range m.Inputs() {
		if b != 0 {
			t.Errorf("inputs[%d] = %#02x, want 0 (regions must not alias)", i, b)
		}
	}
	// The outputs land right after the inputs region in the arena.
	if got := m.Outputs(); got[0] != 0xFF || got[1] != 0x00 || got[2] != 0x01 {
		t.Errorf("outputs = % X, want FF 00 01", got)
	}
}

func TestIOMapWriteOutputsBounds(t *testing.T) {
	m := NewIOMap()
	if err := m.Commit(6, 3); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tests := []struct {
		name   string
		offset int
		n      int
		ok     bool
	}{
		{"exact fit", 0, 3, true},
		{"tail", 2, 1, true},
		{"overrun", 1, 3, false},
		{"negative offset", -1, 1, false},
		{"past end", 3, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.WriteOutputs(tt.offset, make([]byte, tt.n))
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrOutOfRange) {
				t.Errorf("err = %v, want ErrOutOfRange", err)
			}
		})
	}
}
