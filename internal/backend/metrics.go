package backend

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("py2graph.backend")

var (
	verticesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "py2graph_vertices_written_total",
		Help: "Vertices persisted to the graph store",
	})

	edgesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "py2graph_edges_written_total",
		Help: "Edges persisted to the graph store",
	})

	// edgesSkipped counts edges never submitted, by reason
	edgesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "py2graph_edges_skipped_total",
		Help: "Edges skipped before submission by reason",
	}, []string{"reason"})

	batchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "py2graph_edge_batch_retries_total",
		Help: "Edge batch write retries",
	})

	edgeBatchesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "py2graph_edge_batches_dropped_total",
		Help: "Edge batches dropped after exhausting retries",
	})

	vertexBatchesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "py2graph_vertex_batches_dropped_total",
		Help: "Vertex batches the graph store rejected",
	})

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "py2graph_batch_write_duration_seconds",
		Help:    "Bulk write duration in seconds by kind",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"kind"})
)
