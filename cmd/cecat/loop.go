package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vkaloerov/cecat/internal/ecat"
	"github.com/vkaloerov/cecat/internal/errors"
	"github.com/vkaloerov/cecat/internal/metrics"
	"github.com/vkaloerov/cecat/internal/report"
)

func newLoopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "loop [cycles [interval_ms]]",
		Short: "Scan, go OPERATIONAL and run a cyclic exchange loop",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sc.close()

			cycles := sc.cfg.Loop.Cycles
			intervalMs := sc.cfg.Loop.IntervalMs
			if len(args) > 0 {
				if cycles, err = strconv.Atoi(args[0]); err != nil {
					return fmt.Errorf("invalid cycle count %q", args[0])
				}
			}
			if len(args) > 1 {
				if intervalMs, err = strconv.Atoi(args[1]); err != nil {
					return fmt.Errorf("invalid interval %q", args[1])
				}
			}

			if _, err := sc.session.Scan(); err != nil {
				return errors.WrapBusError(err, "scan")
			}
			if err := sc.session.Activate(); err != nil {
				return errors.WrapBusError(err, "activate")
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
					sc.session.StopLoop()
				case <-done:
				}
			}()

			sink := metrics.NewSink()
			start := time.Now()
			last := start
			result, err := sc.session.RunLoop(cycles, intervalMs, func(cr ecat.CycleResult) {
				now := time.Now()
				sink.Record(metrics.CycleMetric{
					Timestamp: now,
					Cycle:     cr.Cycle,
					WKC:       cr.WKC,
					Expected:  cr.Expected,
					Degraded:  cr.Degraded,
					RTTMs:     float64(cr.Elapsed) / float64(time.Millisecond),
				})
				if now.Sub(last) >= time.Second {
					fmt.Fprintf(os.Stdout, "Cycle %d/%d (degraded: %d)\r", cr.Cycle, cycles, sink.GetSummary().DegradedCycles)
					last = now
				}
			})
			if err != nil {
				return errors.WrapBusError(err, "pdo-loop")
			}

			fmt.Fprintf(os.Stdout, "\nLoop finished in %v\n", time.Since(start).Round(time.Millisecond))
			if result.Stopped {
				fmt.Fprintln(os.Stdout, "Loop stopped by request")
			}
			fmt.Fprint(os.Stdout, report.LoopSummary(sink.GetSummary()))

			if err := sc.session.Deactivate(); err != nil {
				return errors.WrapBusError(err, "deactivate")
			}
			return nil
		},
	}
}
