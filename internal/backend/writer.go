// Package backend drains a pipe into a graph store: every vertex first,
// then every edge, resolving edge endpoints to store IDs through a cache.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/py2graph/internal/cache"
	"github.com/dusk-indust/py2graph/internal/graph"
	"github.com/dusk-indust/py2graph/internal/pipe"
)

// MinimumUnit is the number of queued items that justifies one more worker.
const MinimumUnit = 64

const (
	DefaultVertexBatch = 500
	DefaultEdgeBatch   = 200
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Second
)

// ErrUnresolvedVertex is returned when no store ID is recorded for a vertex
// key or any of the lines above it.
var ErrUnresolvedVertex = errors.New("backend: unresolved vertex")

// Config tunes a Writer. Zero values select the defaults.
type Config struct {
	// MaxWorkers caps the worker count of each phase.
	MaxWorkers  int
	VertexBatch int
	EdgeBatch   int
	// MaxAttempts bounds how often one edge batch is submitted.
	MaxAttempts int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 1
	}
	if c.VertexBatch <= 0 {
		c.VertexBatch = DefaultVertexBatch
	}
	if c.EdgeBatch <= 0 {
		c.EdgeBatch = DefaultEdgeBatch
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	} else if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// Stats summarizes one Run.
type Stats struct {
	Vertices       int64
	Edges          int64
	InvalidEdges   int64
	Unresolved     int64
	Retries        int64
	DroppedBatches int64
}

type counters struct {
	vertices, edges, invalid, unresolved, retries, dropped atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Vertices:       c.vertices.Load(),
		Edges:          c.edges.Load(),
		InvalidEdges:   c.invalid.Load(),
		Unresolved:     c.unresolved.Load(),
		Retries:        c.retries.Load(),
		DroppedBatches: c.dropped.Load(),
	}
}

// Writer materializes a pipe's contents in a graph store.
type Writer struct {
	store  graph.Store
	ids    cache.Cache
	cfg    Config
	logger *slog.Logger
	stats  counters
}

// NewWriter returns a Writer over store. ids records the store ID of every
// written vertex; it must outlive the Writer when runs are incremental.
func NewWriter(store graph.Store, ids cache.Cache, cfg Config, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if ids == nil {
		ids = cache.NewMemory()
	}
	return &Writer{store: store, ids: ids, cfg: cfg.withDefaults(), logger: logger}
}

// Workers returns the worker count for count queued items:
// count/MinimumUnit, at least 1 and at most max.
func Workers(count, max int) int {
	n := count / MinimumUnit
	if n > max {
		n = max
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Run writes every vertex of src, waits for all of them, then writes every
// edge. Failures are logged and skipped; Run never fails.
func (w *Writer) Run(ctx context.Context, src pipe.Source) Stats {
	w.WriteVertices(ctx, src)
	w.WriteEdges(ctx, src)
	return w.stats.snapshot()
}

// WriteVertices drains the vertex stream and returns once every worker has
// flushed its last batch.
//
// The worker count is fixed from the vertices queued when the phase starts.
// When the writer runs alongside the frontends that count is near zero, so
// the vertex phase uses a single worker and keeps pace with analysis.
func (w *Writer) WriteVertices(ctx context.Context, src pipe.Source) {
	n := Workers(src.VertexCount(), w.cfg.MaxWorkers)
	ctx, span := tracer.Start(ctx, "backend.WriteVertices",
		trace.WithAttributes(attribute.Int("workers", n)))
	defer span.End()

	w.runWorkers(ctx, "vertices", n, func(ctx context.Context, client graph.Store) {
		batch := make([]graph.Vertex, 0, w.cfg.VertexBatch)
		for {
			v, ok := src.GetVertex()
			if !ok {
				break
			}
			if v.Invalid() {
				w.logger.Debug("skip invalid vertex", "key", v.Key())
				continue
			}
			batch = append(batch, v)
			if len(batch) == w.cfg.VertexBatch {
				w.flushVertices(ctx, client, batch)
				batch = batch[:0]
			}
		}
		if len(batch) > 0 {
			w.flushVertices(ctx, client, batch)
		}
	})
	span.SetAttributes(attribute.Int64("vertices", w.stats.vertices.Load()))
}

func (w *Writer) flushVertices(ctx context.Context, client graph.Store, batch []graph.Vertex) {
	start := time.Now()
	ids, err := client.AddVertexBulk(ctx, batch)
	batchDuration.WithLabelValues("vertex").Observe(time.Since(start).Seconds())
	if err == nil && len(ids) != len(batch) {
		err = fmt.Errorf("store returned %d ids for %d vertices", len(ids), len(batch))
	}
	if err != nil {
		vertexBatchesDropped.Inc()
		w.logger.Error("write vertex batch", "size", len(batch), "error", err)
		return
	}
	for i, v := range batch {
		if err := cache.PutVertexID(w.ids, v.Key(), ids[i]); err != nil {
			w.logger.Error("cache vertex id", "key", v.Key(), "error", err)
		}
	}
	w.stats.vertices.Add(int64(len(batch)))
	verticesWritten.Add(float64(len(batch)))
	w.logger.Info("wrote vertex batch", "size", len(batch))
}

// WriteEdges drains the edge stream. It must only run after WriteVertices
// has returned, since endpoints are resolved through the ID cache.
func (w *Writer) WriteEdges(ctx context.Context, src pipe.Source) {
	n := Workers(src.EdgeCount(), w.cfg.MaxWorkers)
	ctx, span := tracer.Start(ctx, "backend.WriteEdges",
		trace.WithAttributes(attribute.Int("workers", n)))
	defer span.End()

	w.runWorkers(ctx, "edges", n, func(ctx context.Context, client graph.Store) {
		batch := make([]graph.StoredEdge, 0, w.cfg.EdgeBatch)
		for {
			e, ok := src.GetEdge()
			if !ok {
				break
			}
			se, ok := w.resolveEdge(e)
			if !ok {
				continue
			}
			batch = append(batch, se)
			if len(batch) == w.cfg.EdgeBatch {
				w.flushEdges(ctx, client, batch)
				batch = batch[:0]
			}
		}
		if len(batch) > 0 {
			w.flushEdges(ctx, client, batch)
		}
	})

	span.SetAttributes(attribute.Int64("edges", w.stats.edges.Load()))
	if d := w.stats.dropped.Load(); d > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d edge batches dropped", d))
	}
}

func (w *Writer) resolveEdge(e graph.Edge) (graph.StoredEdge, bool) {
	if e.From.Invalid() || e.To.Invalid() {
		w.stats.invalid.Add(1)
		edgesSkipped.WithLabelValues("invalid").Inc()
		w.logger.Debug("skip edge with invalid endpoint", "label", e.Label, "from", e.From.Key(), "to", e.To.Key())
		return graph.StoredEdge{}, false
	}
	from, err := w.ResolveID(e.From)
	if err == nil {
		var to graph.VertexID
		if to, err = w.ResolveID(e.To); err == nil {
			return graph.StoredEdge{Label: e.Label, From: from, To: to, Props: e.Props}, true
		}
	}
	w.stats.unresolved.Add(1)
	edgesSkipped.WithLabelValues("unresolved").Inc()
	w.logger.Warn("skip edge", "label", e.Label, "from", e.From.Key(), "to", e.To.Key(), "error", err)
	return graph.StoredEdge{}, false
}

// ResolveID returns the store ID of v. On a miss for a statement vertex it
// walks up the file one line at a time to line 1, so a line folded into an
// earlier statement resolves to that statement.
func (w *Writer) ResolveID(v graph.Vertex) (graph.VertexID, error) {
	id, ok, err := cache.VertexID(w.ids, v.Key())
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}
	if v.Label == graph.LabelCode {
		for line := v.Lineno - 1; line >= 1; line-- {
			id, ok, err := cache.VertexID(w.ids, graph.CodeVertex(v.File, line).Key())
			if err != nil {
				return 0, err
			}
			if ok {
				return id, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnresolvedVertex, v.Key())
}

func (w *Writer) flushEdges(ctx context.Context, client graph.Store, batch []graph.StoredEdge) {
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := client.AddEdgeBulk(ctx, batch)
		batchDuration.WithLabelValues("edge").Observe(time.Since(start).Seconds())
		if err == nil {
			w.stats.edges.Add(int64(len(batch)))
			edgesWritten.Add(float64(len(batch)))
			w.logger.Info("wrote edge batch", "size", len(batch), "attempt", attempt)
			return
		}
		if attempt >= w.cfg.MaxAttempts {
			w.drop(batch, attempt, err)
			return
		}

		w.stats.retries.Add(1)
		batchRetries.Inc()
		w.logger.Warn("retry edge batch", "size", len(batch), "attempt", attempt, "error", err)
		select {
		case <-time.After(w.cfg.RetryDelay):
		case <-ctx.Done():
			w.drop(batch, attempt, ctx.Err())
			return
		}
	}
}

func (w *Writer) drop(batch []graph.StoredEdge, attempts int, err error) {
	w.stats.dropped.Add(1)
	edgeBatchesDropped.Inc()
	w.logger.Error("drop edge batch", "size", len(batch), "attempts", attempts, "error", err)
}

// runWorkers runs n workers, each with its own store client. The first
// worker uses the Writer's store; the others use clones. A clone that
// cannot be opened costs one worker.
func (w *Writer) runWorkers(ctx context.Context, phase string, n int, work func(context.Context, graph.Store)) {
	clients := []graph.Store{w.store}
	for i := 1; i < n; i++ {
		c, err := w.store.Clone()
		if err != nil {
			w.logger.Warn("clone store client", "phase", phase, "error", err)
			break
		}
		clients = append(clients, c)
	}
	defer func() {
		for _, c := range clients[1:] {
			if c == w.store {
				continue
			}
			if err := c.Close(); err != nil {
				w.logger.Warn("close store client", "phase", phase, "error", err)
			}
		}
	}()

	w.logger.Debug("phase started", "phase", phase, "workers", len(clients))
	var g errgroup.Group
	for i, client := range clients {
		g.Go(func() error {
			w.logger.Debug("worker started", "phase", phase, "worker", i)
			work(ctx, client)
			w.logger.Debug("worker finished", "phase", phase, "worker", i)
			return nil
		})
	}
	_ = g.Wait()
	w.logger.Debug("phase finished", "phase", phase)
}
