// Package frontend enumerates source files and fans them out to per-file
// analyzers that write graph facts into a pipe.
package frontend

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/py2graph/internal/pipe"
)

// Producer enumerates the files of one run, calling emit for each. It must
// stop and return emit's error if emit fails.
type Producer func(ctx context.Context, emit func(file string) error) error

// Consumer analyzes a single file and writes its facts to sink. Consume is
// called concurrently from several workers.
type Consumer interface {
	Consume(ctx context.Context, root, file string, sink pipe.Sink) error
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(ctx context.Context, root, file string, sink pipe.Sink) error

func (f ConsumerFunc) Consume(ctx context.Context, root, file string, sink pipe.Sink) error {
	return f(ctx, root, file, sink)
}

// RunStats counts the files a Runner handled.
type RunStats struct {
	Files  int
	Failed int
}

// Runner drives one producer and a pool of consumer workers.
type Runner struct {
	// Name labels logs and metrics, e.g. "cfg" or "dfg".
	Name     string
	Root     string
	Producer Producer
	Consumer Consumer
	Sink     pipe.Sink
	// Workers is the number of consumer goroutines. Values below 1 mean 1.
	Workers int
	// QueueSize bounds the producer queue. Zero means 2*Workers.
	QueueSize int
	Logger    *slog.Logger
}

// DefaultWorkers sizes the worker pool for fileCount files: a quarter of
// the file count, at least 1 and at most the CPU count.
func DefaultWorkers(fileCount int) int {
	n := fileCount / 4
	if n > runtime.NumCPU() {
		n = runtime.NumCPU()
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run enumerates files and analyzes each one on a worker. A failing or
// panicking consumer is logged and counted, and never stops the others.
// Run returns an error only if the producer fails or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) (RunStats, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("frontend", r.Name)

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	size := r.QueueSize
	if size <= 0 {
		size = 2 * workers
	}

	queue := make(chan string, size)
	results := make([]RunStats, workers)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Closing the queue is the termination signal every worker observes.
		defer close(queue)
		logger.Debug("producer started")
		err := r.Producer(gctx, func(file string) error {
			select {
			case queue <- file:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
		if err != nil {
			return fmt.Errorf("frontend %s: produce: %w", r.Name, err)
		}
		logger.Debug("producer finished")
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			logger.Debug("worker started", "worker", w)
			for file := range queue {
				if err := r.consume(gctx, file); err != nil {
					results[w].Failed++
					filesTotal.WithLabelValues(r.Name, "failed").Inc()
					logger.Error("analyze file", "file", file, "error", err)
				} else {
					filesTotal.WithLabelValues(r.Name, "ok").Inc()
				}
				results[w].Files++
			}
			logger.Debug("worker finished", "worker", w)
			return nil
		})
	}

	err := g.Wait()
	var total RunStats
	for _, s := range results {
		total.Files += s.Files
		total.Failed += s.Failed
	}
	return total, err
}

func (r *Runner) consume(ctx context.Context, file string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.Consumer.Consume(ctx, r.Root, file, r.Sink)
}
