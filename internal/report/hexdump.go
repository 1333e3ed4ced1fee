package report

// Hex dump utilities for register and process data display

import (
	"fmt"
	"strings"
)

// HexDump creates a hex dump of raw data
func HexDump(data []byte, width int) string {
	if width <= 0 {
		width = 16
	}

	var sb strings.Builder
	for i := 0; i < len(data); i += width {
		// Offset
		sb.WriteString(fmt.Sprintf("%04x: ", i))

		// Hex bytes
		for j := 0; j < width; j++ {
			if i+j < len(data) {
				sb.WriteString(fmt.Sprintf("%02x ", data[i+j]))
			} else {
				sb.WriteString("   ")
			}
		}

		// ASCII representation
		sb.WriteString(" |")
		for j := 0; j < width && i+j < len(data); j++ {
			b := data[i+j]
			if b >= 32 && b < 127 {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}

	return sb.String()
}

// HexDumpAt is HexDump with the offset column rebased, for dumps of a
// register window where the left column should show ESC addresses.
func HexDumpAt(base uint16, data []byte, width int) string {
	if width <= 0 {
		width = 16
	}
	if len(data) == 0 {
		return ""
	}

	dump := HexDump(data, width)
	lines := strings.Split(strings.TrimRight(dump, "\n"), "\n")
	for i, line := range lines {
		if len(line) < 5 {
			continue
		}
		lines[i] = fmt.Sprintf("%04x:%s", int(base)+i*width, line[5:])
	}
	return strings.Join(lines, "\n") + "\n"
}
