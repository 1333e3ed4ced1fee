package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vkaloerov/cecat/internal/ecat"
	"github.com/vkaloerov/cecat/internal/logging"
	"github.com/vkaloerov/cecat/internal/metrics"
	"github.com/vkaloerov/cecat/internal/report"
)

const replPrompt = "dummy_says> "

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive session (scan, state control, PDO, register access)",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sc.close()

			fmt.Fprintf(os.Stdout, "cecat %s on %s (type 'help' for commands)\n",
				version, sc.session.Interface())

			r := &repl{sc: sc, out: os.Stdout}
			return r.run(os.Stdin)
		},
	}
}

type repl struct {
	sc  *sessionContext
	out io.Writer
}

func (r *repl) run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, replPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		if r.dispatch(scanner.Text()) {
			return nil
		}
	}
}

// dispatch executes one REPL line. It returns true when the session should
// end. Command errors are printed, never returned: the loop survives them.
func (r *repl) dispatch(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	var err error
	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		r.printHelp()
	case "scan":
		err = r.cmdScan()
	case "read-config":
		err = r.cmdReadConfig(args)
	case "status":
		err = r.cmdStatus()
	case "verbose":
		err = r.cmdVerbose(args)
	case "read":
		err = r.cmdRead(args)
	case "write":
		err = r.cmdWrite(args)
	case "text-write":
		err = r.cmdTextWrite(line)
	case "pdo-start":
		err = r.sc.session.Activate()
		if err == nil {
			fmt.Fprintln(r.out, "PDO exchange active, segment is OPERATIONAL")
		}
	case "pdo-stop":
		err = r.sc.session.Deactivate()
		if err == nil {
			fmt.Fprintln(r.out, "PDO exchange stopped, segment is INIT")
		}
	case "pdo-read":
		err = r.cmdPdoRead()
	case "pdo-write":
		err = r.cmdPdoWrite(args)
	case "pdo-loop":
		err = r.cmdPdoLoop(args)
	default:
		fmt.Fprintf(r.out, "ERROR: Unknown command %q (try 'help')\n", cmd)
	}

	if err != nil {
		fmt.Fprintf(r.out, "ERROR: %v\n", err)
	}
	return false
}

func (r *repl) cmdScan() error {
	slaves, err := r.sc.session.Scan()
	if err != nil {
		return err
	}
	fmt.Fprint(r.out, report.ScanTable(slaves))
	return nil
}

func (r *repl) cmdReadConfig(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: read-config <slave_idx>")
	}
	idx, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	slave, err := r.sc.session.ReadConfig(idx)
	if err != nil {
		return err
	}
	fmt.Fprint(r.out, report.ConfigDetail(*slave))
	return nil
}

func (r *repl) cmdStatus() error {
	s := r.sc.session
	fmt.Fprint(r.out, report.StatusPanel(s.Interface(), s.ProcessDataActive(), s.Group(), s.Slaves()))
	if diag := s.Diagnostics(); diag != "" {
		fmt.Fprintf(r.out, "  Link          %s\n", diag)
	}
	return nil
}

func (r *repl) cmdVerbose(args []string) error {
	logger := r.sc.logger
	if len(args) == 0 {
		state := "off"
		if logger.GetLevel() >= logging.LogLevelVerbose {
			state = "on"
		}
		fmt.Fprintf(r.out, "verbose is %s\n", state)
		return nil
	}
	switch args[0] {
	case "on":
		logger.SetLevel(logging.LogLevelVerbose)
	case "off":
		logger.SetLevel(logging.LogLevelInfo)
	default:
		return fmt.Errorf("usage: verbose [on|off]")
	}
	return nil
}

func (r *repl) cmdRead(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: read <slave_idx> <addr> <len>")
	}
	idx, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	addr, err := parseAddr(args[1])
	if err != nil {
		return err
	}
	length, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid length %q", args[2])
	}

	data, err := r.sc.session.ReadRegister(idx, addr, length)
	if err != nil {
		return err
	}
	fmt.Fprint(r.out, report.HexDumpAt(addr, data, 16))
	return nil
}

func (r *repl) cmdWrite(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: write <slave_idx> <addr> <byte1> [byte2 ...]")
	}
	idx, err := parseIndex(args[0])
	if err != nil {
		return err
	}
	addr, err := parseAddr(args[1])
	if err != nil {
		return err
	}
	data, err := parseBytes(args[2:])
	if err != nil {
		return err
	}

	if err := r.sc.session.WriteRegister(idx, addr, data); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "wrote %d byte(s) to slave %d at %#04x\n", len(data), idx, addr)
	return nil
}

// cmdTextWrite takes the raw line so the text keeps its inner spacing. The
// text is sent as raw bytes, no character set translation.
func (r *repl) cmdTextWrite(line string) error {
	idx, addr, text, err := splitTextWrite(line)
	if err != nil {
		return err
	}

	if err := r.sc.session.WriteRegister(idx, addr, []byte(text)); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "wrote %q (%d bytes) to slave %d at %#04x\n", text, len(text), idx, addr)
	return nil
}

func (r *repl) cmdPdoRead() error {
	snap, err := r.sc.session.ReadInputs()
	if snap != nil {
		fmt.Fprint(r.out, report.InputViews(*snap))
	}
	return err
}

func (r *repl) cmdPdoWrite(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: pdo-write <offset> <byte1> [byte2 ...]")
	}
	offset, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid offset %q", args[0])
	}
	data, err := parseBytes(args[1:])
	if err != nil {
		return err
	}

	if err := r.sc.session.WriteOutputs(offset, data); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "wrote %d byte(s) to outputs at offset %d\n", len(data), offset)
	return nil
}

func (r *repl) cmdPdoLoop(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: pdo-loop <cycles> [interval_ms]")
	}
	cycles, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid cycle count %q", args[0])
	}
	intervalMs := r.sc.cfg.Loop.IntervalMs
	if len(args) > 1 {
		if intervalMs, err = strconv.Atoi(args[1]); err != nil {
			return fmt.Errorf("invalid interval %q", args[1])
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintf(os.Stderr, "\nReceived interrupt, stopping loop...\n")
			r.sc.session.StopLoop()
		case <-done:
		}
	}()

	sink := metrics.NewSink()
	result, err := r.sc.session.RunLoop(cycles, intervalMs, func(cr ecat.CycleResult) {
		sink.Record(metrics.CycleMetric{
			Timestamp: time.Now(),
			Cycle:     cr.Cycle,
			WKC:       cr.WKC,
			Expected:  cr.Expected,
			Degraded:  cr.Degraded,
			RTTMs:     float64(cr.Elapsed) / float64(time.Millisecond),
		})
	})
	if err != nil {
		return err
	}

	if result.Stopped {
		fmt.Fprintln(r.out, "Loop stopped by request")
	}
	fmt.Fprint(r.out, report.LoopSummary(sink.GetSummary()))
	return nil
}

func (r *repl) printHelp() {
	fmt.Fprint(r.out, `
=== EtherCAT CLI Commands ===

Basic Commands:
  help              - Show this help message
  scan              - Scan EtherCAT bus and list all slaves
  read-config <idx> - Read configuration of slave at index <idx>
  status            - Show current status and statistics
  verbose [on|off]  - Enable/disable verbose mode
  quit, exit        - Exit the program

Direct Memory Access:
  read <idx> <addr> <len>
                    - Read <len> bytes from slave <idx> at address <addr>
                      Example: read 1 0x1000 16
  write <idx> <addr> <byte1> <byte2> ...
                    - Write bytes to slave <idx> at address <addr>
                      Example: write 1 0x1000 0x12 0x34 0xAB
  text-write <idx> <addr> <text>
                    - Write a text string as raw bytes to slave <idx>
                      Example: text-write 1 0x1000 Hello World

PDO Cyclic Data Exchange:
  pdo-start         - Start PDO exchange (transition to OPERATIONAL)
  pdo-stop          - Stop PDO exchange (transition to INIT)
  pdo-read          - Read PDO input data from all slaves
  pdo-write <offset> <byte1> <byte2> ...
                    - Write bytes to PDO outputs at offset
                      Example: pdo-write 0 0xFF 0x00
  pdo-loop <cycles> [interval_ms]
                    - Run PDO exchange loop for testing
                      Example: pdo-loop 1000 10

`)
}

// parseIndex parses a 1-based slave index.
func parseIndex(s string) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid slave index %q", s)
	}
	return idx, nil
}

// parseAddr parses a 16-bit register address, accepting 0x-prefixed hex,
// octal and decimal.
func parseAddr(s string) (uint16, error) {
	addr, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return uint16(addr), nil
}

// parseBytes parses byte value arguments, each in any base strconv accepts.
func parseBytes(args []string) ([]byte, error) {
	data := make([]byte, len(args))
	for i, arg := range args {
		v, err := strconv.ParseUint(arg, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid byte value %q", arg)
		}
		data[i] = byte(v)
	}
	return data, nil
}

// splitTextWrite splits "text-write <idx> <addr> <text...>". Words of the
// text are rejoined with single spaces.
func splitTextWrite(line string) (idx int, addr uint16, text string, err error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return 0, 0, "", fmt.Errorf("usage: text-write <slave_idx> <addr> <text>")
	}
	if idx, err = parseIndex(fields[1]); err != nil {
		return 0, 0, "", err
	}
	if addr, err = parseAddr(fields[2]); err != nil {
		return 0, 0, "", err
	}
	return idx, addr, strings.Join(fields[3:], " "), nil
}
