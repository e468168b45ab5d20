package orchestrator

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const progressBuffer = 64

// ProgressReporter fans run events out to one subscriber without ever
// blocking the run. Events that do not fit the buffer are counted and
// discarded.
type ProgressReporter struct {
	start   time.Time
	ch      chan ProgressEvent
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewProgressReporter() *ProgressReporter {
	return &ProgressReporter{
		start: time.Now(),
		ch:    make(chan ProgressEvent, progressBuffer),
	}
}

// Emit stamps event with the elapsed run time and queues it. Emit after
// Close is a no-op.
func (pr *ProgressReporter) Emit(event ProgressEvent) {
	event.Elapsed = time.Since(pr.start)
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	if pr.closed {
		return
	}
	select {
	case pr.ch <- event:
	default:
		pr.dropped.Add(1)
	}
}

// Subscribe returns the event stream. It is closed by Close.
func (pr *ProgressReporter) Subscribe() <-chan ProgressEvent {
	return pr.ch
}

// Dropped reports how many events were discarded on a full buffer.
func (pr *ProgressReporter) Dropped() int64 {
	return pr.dropped.Load()
}

// Close ends the stream. Calling it again has no effect.
func (pr *ProgressReporter) Close() {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if !pr.closed {
		pr.closed = true
		close(pr.ch)
	}
}

// FormatProgress renders one event as a status line for the terminal.
func FormatProgress(event ProgressEvent) string {
	var mark, text string
	switch event.Status {
	case ProgressWorking:
		mark, text = "●", "started"
	case ProgressComplete:
		mark, text = "✓", "done"
	case ProgressFailed:
		mark, text = "✗", "failed"
	case ProgressSkipped:
		mark, text = "-", "skipped"
	default:
		mark, text = "?", string(event.Status)
	}
	line := fmt.Sprintf("[%6.2fs] %s %-9s %s", event.Elapsed.Seconds(), mark, event.Phase, text)
	if event.Message != "" {
		line += ": " + event.Message
	}
	return line
}
