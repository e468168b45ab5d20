package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressReporter_StampsElapsed(t *testing.T) {
	pr := NewProgressReporter()
	defer pr.Close()

	time.Sleep(5 * time.Millisecond)
	pr.Emit(ProgressEvent{Phase: PhaseCFG, Status: ProgressWorking, Message: "12 files"})

	select {
	case got := <-pr.Subscribe():
		assert.Equal(t, PhaseCFG, got.Phase)
		assert.Equal(t, "12 files", got.Message)
		assert.GreaterOrEqual(t, got.Elapsed, 5*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for progress event")
	}
}

func TestProgressReporter_FullBufferCountsDrops(t *testing.T) {
	pr := NewProgressReporter()
	defer pr.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < progressBuffer+36; i++ {
			pr.Emit(ProgressEvent{Phase: PhaseBackend, Status: ProgressWorking})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}
	assert.Equal(t, int64(36), pr.Dropped())
}

func TestProgressReporter_CloseTwiceAndEmitAfterClose(t *testing.T) {
	pr := NewProgressReporter()
	pr.Emit(ProgressEvent{Phase: PhaseCallGraph, Status: ProgressComplete})
	pr.Close()
	pr.Close()
	pr.Emit(ProgressEvent{Phase: PhaseDFG, Status: ProgressComplete})

	var received []ProgressEvent
	for ev := range pr.Subscribe() {
		received = append(received, ev)
	}
	require.Len(t, received, 1)
	assert.Equal(t, PhaseCallGraph, received[0].Phase)
	assert.Zero(t, pr.Dropped())
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		name   string
		event  ProgressEvent
		expect string
	}{
		{
			name:   "working",
			event:  ProgressEvent{Phase: PhaseDFG, Status: ProgressWorking},
			expect: "[  0.00s] ● dfg       started",
		},
		{
			name:   "complete with message",
			event:  ProgressEvent{Phase: PhaseBackend, Status: ProgressComplete, Message: "12 edges", Elapsed: 1500 * time.Millisecond},
			expect: "[  1.50s] ✓ backend   done: 12 edges",
		},
		{
			name:   "failed",
			event:  ProgressEvent{Phase: PhaseDiff, Status: ProgressFailed, Message: "timeout"},
			expect: "[  0.00s] ✗ diff      failed: timeout",
		},
		{
			name:   "skipped",
			event:  ProgressEvent{Phase: PhasePurge, Status: ProgressSkipped, Message: "diff given"},
			expect: "[  0.00s] - purge     skipped: diff given",
		},
		{
			name:   "unknown status",
			event:  ProgressEvent{Phase: PhaseCallGraph, Status: "paused"},
			expect: "[  0.00s] ? callgraph paused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, FormatProgress(tt.event))
		})
	}
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "callgraph", PhaseCallGraph.String())
	assert.Equal(t, "unknown", Phase(42).String())
}
