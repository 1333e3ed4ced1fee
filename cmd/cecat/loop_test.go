package main

import "testing"

// TestLoopCommandRunsSimSegment drives the loop subcommand over the
// simulated segment, covering the scan/activate/loop/deactivate path and the
// release of the interrupt goroutine when the loop ends on its own.
func TestLoopCommandRunsSimSegment(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"loop", "3", "1", "--sim"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("loop command: %v", err)
	}
}

func TestLoopCommandRejectsBadArguments(t *testing.T) {
	for _, args := range [][]string{
		{"loop", "abc", "--sim"},
		{"loop", "3", "xyz", "--sim"},
	} {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		if err := cmd.Execute(); err == nil {
			t.Errorf("args %v accepted", args)
		}
	}
}
