package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func testModel() *SelectorModel {
	return &SelectorModel{
		Entries: []InterfaceEntry{
			{Name: "lo", IsLoopback: true, IsUp: true, Addresses: []string{"127.0.0.1/8"}},
			{Name: "eth0", IsUp: true, Addresses: []string{"10.0.0.2/24", "fe80::1/64"}},
			{Name: "eth1", IsUp: false},
		},
	}
}

func key(s string) tea.KeyMsg {
	if len(s) == 1 {
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{}
}

func TestCursorNavigation(t *testing.T) {
	m := testModel()

	m.Update(key("down"))
	m.Update(key("down"))
	if m.Cursor != 2 {
		t.Errorf("cursor = %d, want 2", m.Cursor)
	}

	// Clamped at the bottom.
	m.Update(key("down"))
	if m.Cursor != 2 {
		t.Errorf("cursor = %d, want 2 after clamp", m.Cursor)
	}

	m.Update(key("up"))
	if m.Cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.Cursor)
	}

	m.Update(key("g"))
	if m.Cursor != 0 {
		t.Errorf("cursor = %d, want 0 after home", m.Cursor)
	}
	m.Update(key("G"))
	if m.Cursor != 2 {
		t.Errorf("cursor = %d, want 2 after end", m.Cursor)
	}
}

func TestEnterSelects(t *testing.T) {
	m := testModel()
	m.Update(key("down"))
	_, cmd := m.Update(key("enter"))

	if m.Selected != "eth0" {
		t.Errorf("selected = %q, want eth0", m.Selected)
	}
	if cmd == nil {
		t.Error("enter did not quit the program")
	}
}

func TestEscCancels(t *testing.T) {
	m := testModel()
	_, cmd := m.Update(key("esc"))

	if !m.Canceled {
		t.Error("esc did not mark the model canceled")
	}
	if m.Selected != "" {
		t.Errorf("selected = %q, want empty", m.Selected)
	}
	if cmd == nil {
		t.Error("esc did not quit the program")
	}
}

func TestViewRendersEntries(t *testing.T) {
	m := testModel()
	m.Cursor = 1

	out := m.View()
	for _, want := range []string{"Select Network Interface", "lo", "eth0", "eth1", "[lo]", "[up]", "[--]", "10.0.0.2/24 (+1)", "> "} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}
}
