package report

// Terminal rendering of scan results and session status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/vkaloerov/cecat/internal/ecat"
	"github.com/vkaloerov/cecat/internal/metrics"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	badStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

func stateStyle(state ecat.ALState) lipgloss.Style {
	switch state {
	case ecat.StateOperational:
		return okStyle
	case ecat.StateSafeOp, ecat.StatePreOp:
		return warnStyle
	case ecat.StateInit:
		return dimStyle
	default:
		return badStyle
	}
}

// ScanTable renders the discovered slaves, one row per device.
func ScanTable(slaves []ecat.Slave) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("%d slave(s) found", len(slaves))))
	sb.WriteString("\n")
	sb.WriteString(headerStyle.Render(fmt.Sprintf("%-3s %-24s %-10s %-10s %-6s %-4s %-4s %-7s %s",
		"#", "Name", "Vendor", "Product", "Addr", "In", "Out", "Mbox", "State")))
	sb.WriteString("\n")

	for _, s := range slaves {
		mbox := "-"
		if s.MailboxLen > 0 {
			mbox = fmt.Sprintf("%d", s.MailboxLen)
		}
		line := fmt.Sprintf("%-3d %-24s %08x   %08x   %#04x %-4d %-4d %-7s ",
			s.Index, truncate(s.Name, 24), s.VendorID, s.ProductID,
			s.StationAddr, s.InputBytes, s.OutputBytes, mbox)
		sb.WriteString(line)
		sb.WriteString(stateStyle(s.State).Render(s.State.String()))
		sb.WriteString("\n")
	}

	return sb.String()
}

// ConfigDetail renders one slave's full configuration: identity, mailbox,
// sync managers and FMMUs.
func ConfigDetail(s ecat.Slave) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(fmt.Sprintf("Slave %d: %s", s.Index, s.Name)))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  Vendor    %08x\n", s.VendorID)
	fmt.Fprintf(&sb, "  Product   %08x\n", s.ProductID)
	fmt.Fprintf(&sb, "  Revision  %08x\n", s.Revision)
	fmt.Fprintf(&sb, "  Station   %#04x  Alias %#04x\n", s.StationAddr, s.AliasAddr)
	fmt.Fprintf(&sb, "  State     %s\n", s.State)
	fmt.Fprintf(&sb, "  I/O       %d bytes in, %d bytes out\n", s.InputBytes, s.OutputBytes)

	if s.MailboxLen > 0 {
		fmt.Fprintf(&sb, "  Mailbox   %d bytes, protocols %s\n", s.MailboxLen, mailboxProtocols(s.MailboxProto))
	}
	if s.CoEDetails != 0 {
		fmt.Fprintf(&sb, "  CoE       %s\n", coeDetails(s.CoEDetails))
	}

	for i, sm := range s.SyncManagers {
		fmt.Fprintf(&sb, "  SM%d       start %#04x length %4d flags %#06x\n", i, sm.StartAddr, sm.Length, sm.Flags)
	}
	for i, f := range s.FMMUs {
		fmt.Fprintf(&sb, "  FMMU%d     logical %#08x length %4d phys %#04x\n", i, f.LogicalStart, f.Length, f.PhysicalStart)
	}

	return sb.String()
}

// StatusPanel renders the session-level view: link, partition, expected
// working counter and per-slave states.
func StatusPanel(ifname string, pdoActive bool, group ecat.Group, slaves []ecat.Slave) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Session status"))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  Interface     %s\n", ifname)

	pdo := badStyle.Render("inactive")
	if pdoActive {
		pdo = okStyle.Render("active")
	}
	fmt.Fprintf(&sb, "  Process data  %s\n", pdo)
	fmt.Fprintf(&sb, "  I/O map       %d bytes in, %d bytes out\n", group.InputBytes, group.OutputBytes)
	fmt.Fprintf(&sb, "  Expected WKC  %d\n", group.ExpectedWKC())

	for _, s := range slaves {
		fmt.Fprintf(&sb, "  slave %-3d %-24s ", s.Index, truncate(s.Name, 24))
		sb.WriteString(stateStyle(s.State).Render(s.State.String()))
		sb.WriteString("\n")
	}

	return sb.String()
}

// InputViews renders a process data snapshot, one line per slave with its
// input window in hex.
func InputViews(snap ecat.InputSnapshot) string {
	var sb strings.Builder
	for _, v := range snap.Slaves {
		fmt.Fprintf(&sb, "slave %-3d %-24s [%d+%d] % x\n",
			v.Index, truncate(v.Name, 24), v.Offset, len(v.Data), v.Data)
	}
	return sb.String()
}

// LoopSummary renders aggregated cycle statistics after a pdo-loop run.
func LoopSummary(sum metrics.Summary) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Loop summary"))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  Cycles    %d\n", sum.TotalCycles)

	degraded := fmt.Sprintf("%d", sum.DegradedCycles)
	if sum.DegradedCycles > 0 {
		degraded = badStyle.Render(degraded)
	} else {
		degraded = okStyle.Render(degraded)
	}
	fmt.Fprintf(&sb, "  Degraded  %s\n", degraded)

	if sum.TotalCycles > 0 {
		fmt.Fprintf(&sb, "  RTT ms    min %.3f  avg %.3f  max %.3f  p95 %.3f\n",
			sum.MinRTT, sum.AvgRTT, sum.MaxRTT, sum.P95RTT)
	}
	return sb.String()
}

// truncate shortens a display name to n runes. Slave names come from SII
// strings and may carry multi-byte characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func mailboxProtocols(mask uint16) string {
	var names []string
	for _, p := range []struct {
		bit  uint16
		name string
	}{
		{ecat.MailboxAoE, "AoE"},
		{ecat.MailboxEoE, "EoE"},
		{ecat.MailboxCoE, "CoE"},
		{ecat.MailboxFoE, "FoE"},
		{ecat.MailboxSoE, "SoE"},
		{ecat.MailboxVoE, "VoE"},
	} {
		if mask&p.bit != 0 {
			names = append(names, p.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "+")
}

func coeDetails(mask byte) string {
	var names []string
	for _, p := range []struct {
		bit  byte
		name string
	}{
		{ecat.CoESDO, "SDO"},
		{ecat.CoESDOInfo, "SDOinfo"},
		{ecat.CoEPDOAssign, "PDOassign"},
		{ecat.CoEPDOConfig, "PDOconfig"},
		{ecat.CoEUpload, "upload"},
		{ecat.CoESDOCA, "SDOCA"},
	} {
		if mask&p.bit != 0 {
			names = append(names, p.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "+")
}
