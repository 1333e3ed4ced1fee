// Package ui provides the interactive interface selector shown when no
// capture interface is named on the command line.
package ui

import (
	"fmt"
	"net"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1)
)

// InterfaceEntry represents a network interface in the selector.
type InterfaceEntry struct {
	Name       string
	Addresses  []string
	IsLoopback bool
	IsUp       bool
}

// listInterfaces enumerates the machine's interfaces. Loopbacks are kept
// but rendered dimmed; EtherCAT needs a physical port.
func listInterfaces() ([]InterfaceEntry, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	entries := make([]InterfaceEntry, 0, len(ifaces))
	for _, iface := range ifaces {
		entry := InterfaceEntry{
			Name:       iface.Name,
			IsLoopback: iface.Flags&net.FlagLoopback != 0,
			IsUp:       iface.Flags&net.FlagUp != 0,
		}
		if addrs, err := iface.Addrs(); err == nil {
			for _, a := range addrs {
				entry.Addresses = append(entry.Addresses, a.String())
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SelectorModel handles interface selection.
type SelectorModel struct {
	Entries  []InterfaceEntry
	Cursor   int
	Selected string
	Canceled bool
}

// NewSelectorModel creates a selector over the machine's interfaces.
func NewSelectorModel() (*SelectorModel, error) {
	entries, err := listInterfaces()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no network interfaces found")
	}
	return &SelectorModel{Entries: entries}, nil
}

func (m *SelectorModel) Init() tea.Cmd { return nil }

func (m *SelectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "esc", "ctrl+c", "q":
		m.Canceled = true
		return m, tea.Quit
	case "up", "k":
		if m.Cursor > 0 {
			m.Cursor--
		}
	case "down", "j":
		if m.Cursor < len(m.Entries)-1 {
			m.Cursor++
		}
	case "g", "home":
		m.Cursor = 0
	case "G", "end":
		m.Cursor = len(m.Entries) - 1
	case "enter":
		m.Selected = m.Entries[m.Cursor].Name
		return m, tea.Quit
	}
	return m, nil
}

func (m *SelectorModel) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Select Network Interface"))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 50))
	b.WriteString("\n")

	for i, entry := range m.Entries {
		prefix := "  "
		if i == m.Cursor {
			prefix = "> "
		}

		status := "[--]"
		if entry.IsLoopback {
			status = "[lo]"
		} else if entry.IsUp {
			status = "[up]"
		}

		addrStr := ""
		if len(entry.Addresses) > 0 {
			addrStr = entry.Addresses[0]
			if len(entry.Addresses) > 1 {
				addrStr += fmt.Sprintf(" (+%d)", len(entry.Addresses)-1)
			}
		}

		line := fmt.Sprintf("%s%-16s %s %s", prefix, entry.Name, status, addrStr)
		switch {
		case i == m.Cursor:
			b.WriteString(selectedStyle.Render(line))
		case entry.IsLoopback || !entry.IsUp:
			b.WriteString(dimStyle.Render(line))
		default:
			b.WriteString(line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("↑↓/j/k: navigate    Enter: select    Esc: cancel"))
	return borderStyle.Render(b.String())
}

// SelectInterface runs the selector and returns the chosen interface name.
// An empty name means the user canceled.
func SelectInterface() (string, error) {
	model, err := NewSelectorModel()
	if err != nil {
		return "", err
	}

	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return "", fmt.Errorf("run interface selector: %w", err)
	}

	m, ok := final.(*SelectorModel)
	if !ok || m.Canceled {
		return "", nil
	}
	return m.Selected, nil
}
