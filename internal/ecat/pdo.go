package ecat

// Process data exchange engine: single exchange cycles over the committed
// I/O map, offset-addressed output writes, and the bounded cyclic loop.

import (
	"fmt"
	"time"
)

// Loop bounds, validated before the first cycle runs.
const (
	MinLoopCycles     = 1
	MaxLoopCycles     = 1_000_000
	MinLoopIntervalMs = 1
	MaxLoopIntervalMs = 10_000
)

// CycleResult describes one completed exchange cycle.
type CycleResult struct {
	Cycle    int
	WKC      int
	Expected int
	Degraded bool
	Elapsed  time.Duration
}

// LoopResult summarizes a finished cyclic loop.
type LoopResult struct {
	Executed int
	Degraded int
	Stopped  bool
}

// InputView is one slave's slice of the inputs region after an exchange.
type InputView struct {
	Index  int
	Name   string
	Offset int
	Data   []byte
}

// InputSnapshot is the result of ReadInputs: the raw concatenated inputs
// region plus the per-slave views, in bus order.
type InputSnapshot struct {
	Raw    []byte
	Slaves []InputView
}

// ExchangeOnce performs one exchange cycle: the outputs region goes out, the
// inputs region is refreshed from the returning frame, and the working
// counter is checked against the group's expectation. A short count returns
// the received WKC together with a WorkingCounterError; the inputs are still
// delivered, stale data is not discarded.
func (s *Session) ExchangeOnce() (int, error) {
	if err := s.requireOpen(); err != nil {
		return 0, err
	}
	if !s.pdoActive {
		return 0, ErrProcessDataInactive
	}

	if err := s.link.SendOutputs(s.inventory.ioMap.Outputs()); err != nil {
		return 0, fmt.Errorf("send outputs: %w", err)
	}
	wkc, err := s.link.ReceiveInputs(s.inventory.ioMap.Inputs(), s.timeouts.IO)
	if err != nil {
		return wkc, fmt.Errorf("receive inputs: %w", err)
	}

	expected := s.inventory.Group().ExpectedWKC()
	if wkc < expected {
		s.log.Verbose("working counter mismatch (got %d, expected %d)", wkc, expected)
		return wkc, &WorkingCounterError{Expected: expected, Actual: wkc}
	}
	s.log.Verbose("exchange complete (WKC %d)", wkc)
	return wkc, nil
}

// ReadInputs runs one exchange cycle and returns the refreshed inputs as
// per-slave views plus the raw region. A degraded cycle still yields the
// snapshot; the WorkingCounterError rides along for the caller to weigh.
func (s *Session) ReadInputs() (*InputSnapshot, error) {
	_, err := s.ExchangeOnce()
	if err != nil && !IsDegraded(err) {
		return nil, err
	}

	snap := &InputSnapshot{Raw: s.inventory.ioMap.Inputs()}
	for _, sl := range s.inventory.Slaves() {
		if sl.InputBytes == 0 {
			continue
		}
		snap.Slaves = append(snap.Slaves, InputView{
			Index:  sl.Index,
			Name:   sl.Name,
			Offset: sl.InputOffset(),
			Data:   sl.Inputs(),
		})
	}
	return snap, err
}

// WriteOutputs copies data into the outputs region at offset and performs
// one exchange cycle so the write takes effect immediately. Bounds are
// validated before anything touches the map or the bus.
func (s *Session) WriteOutputs(offset int, data []byte) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if !s.pdoActive {
		return ErrProcessDataInactive
	}
	if err := s.inventory.ioMap.WriteOutputs(offset, data); err != nil {
		return err
	}
	s.log.Verbose("wrote %d bytes to output offset %d", len(data), offset)
	_, err := s.ExchangeOnce()
	return err
}

// RunLoop performs exactly cycles exchange cycles, sleeping intervalMs
// between iterations and counting degraded cycles. The cooperative stop flag
// (raised by StopLoop, typically from an interrupt handler) is checked once
// per iteration boundary, never mid-cycle. onCycle, when non-nil, observes
// every completed cycle.
func (s *Session) RunLoop(cycles, intervalMs int, onCycle func(CycleResult)) (LoopResult, error) {
	if err := s.requireOpen(); err != nil {
		return LoopResult{}, err
	}
	if !s.pdoActive {
		return LoopResult{}, ErrProcessDataInactive
	}
	if cycles < MinLoopCycles || cycles > MaxLoopCycles {
		return LoopResult{}, fmt.Errorf("cycles %d not in [%d, %d]: %w",
			cycles, MinLoopCycles, MaxLoopCycles, ErrInvalidLength)
	}
	if intervalMs < MinLoopIntervalMs || intervalMs > MaxLoopIntervalMs {
		return LoopResult{}, fmt.Errorf("interval %d ms not in [%d, %d]: %w",
			intervalMs, MinLoopIntervalMs, MaxLoopIntervalMs, ErrInvalidLength)
	}

	s.stopRequested.Store(false)
	s.loopRunning.Store(true)
	defer s.loopRunning.Store(false)

	expected := s.inventory.Group().ExpectedWKC()
	interval := time.Duration(intervalMs) * time.Millisecond

	var res LoopResult
	for i := 0; i < cycles; i++ {
		if s.stopRequested.Load() {
			res.Stopped = true
			break
		}

		start := time.Now()
		wkc, err := s.ExchangeOnce()
		degraded := err != nil
		if degraded {
			res.Degraded++
		}
		res.Executed++

		if onCycle != nil {
			onCycle(CycleResult{
				Cycle:    i + 1,
				WKC:      wkc,
				Expected: expected,
				Degraded: degraded,
				Elapsed:  time.Since(start),
			})
		}

		if i < cycles-1 {
			time.Sleep(interval)
		}
	}

	s.log.Verbose("loop finished: %d cycle(s), %d degraded, stopped=%v",
		res.Executed, res.Degraded, res.Stopped)
	return res, nil
}

// StopLoop raises the cooperative stop flag. Safe to call from a signal
// handler goroutine; the loop observes it at the next iteration boundary.
func (s *Session) StopLoop() {
	s.stopRequested.Store(true)
}
