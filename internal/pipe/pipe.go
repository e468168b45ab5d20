// Package pipe carries vertices and edges from analysis workers to the
// backend writer. A Pipe has two independent unbounded streams; producers
// see it only through Sink, consumers only through Source.
package pipe

import (
	"sync"

	"github.com/dusk-indust/py2graph/internal/graph"
)

// Sink is the producer facet of a Pipe.
type Sink interface {
	PutVertex(v graph.Vertex)
	PutEdge(e graph.Edge)
	// SealVertices marks the vertex stream complete. Idempotent.
	SealVertices()
	// SealEdges marks the edge stream complete. Idempotent.
	SealEdges()
	// Seal marks both streams complete.
	Seal()
}

// Source is the consumer facet of a Pipe.
type Source interface {
	// GetVertex blocks until a vertex is available or the vertex stream is
	// sealed and drained, in which case ok is false.
	GetVertex() (v graph.Vertex, ok bool)
	// GetEdge blocks like GetVertex for the edge stream.
	GetEdge() (e graph.Edge, ok bool)
	// VertexCount is the number of vertices put so far.
	VertexCount() int
	// EdgeCount is the number of edges put so far.
	EdgeCount() int
}

// Pipe is a two-stream unbounded collector. Put never blocks and never
// drops; every consumer blocked in Get is released once the stream is
// sealed and drained.
type Pipe struct {
	vertices *stream[graph.Vertex]
	edges    *stream[graph.Edge]
}

// New returns an empty, unsealed Pipe.
func New() *Pipe {
	return &Pipe{
		vertices: newStream[graph.Vertex](),
		edges:    newStream[graph.Edge](),
	}
}

// Sink returns the producer facet.
func (p *Pipe) Sink() Sink { return sink{p} }

// Source returns the consumer facet.
func (p *Pipe) Source() Source { return source{p} }

type sink struct{ p *Pipe }

func (s sink) PutVertex(v graph.Vertex) { s.p.vertices.put(v) }
func (s sink) PutEdge(e graph.Edge)     { s.p.edges.put(e) }
func (s sink) SealVertices()            { s.p.vertices.seal() }
func (s sink) SealEdges()               { s.p.edges.seal() }
func (s sink) Seal() {
	s.p.vertices.seal()
	s.p.edges.seal()
}

type source struct{ p *Pipe }

func (s source) GetVertex() (graph.Vertex, bool) { return s.p.vertices.get() }
func (s source) GetEdge() (graph.Edge, bool)     { return s.p.edges.get() }
func (s source) VertexCount() int                { return s.p.vertices.count() }
func (s source) EdgeCount() int                  { return s.p.edges.count() }

// stream is an unbounded FIFO guarded by a mutex; cond wakes getters on put
// and broadcasts on seal.
type stream[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []T
	head     int
	sealed   bool
	produced int
}

func newStream[T any]() *stream[T] {
	s := &stream[T]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// put enqueues v. Items put after seal are still delivered to consumers
// that have not yet observed the end of the stream.
func (s *stream[T]) put(v T) {
	s.mu.Lock()
	s.items = append(s.items, v)
	s.produced++
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *stream[T]) get() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.head == len(s.items) && !s.sealed {
		s.cond.Wait()
	}
	var zero T
	if s.head == len(s.items) {
		return zero, false
	}
	v := s.items[s.head]
	s.items[s.head] = zero
	s.head++
	if s.head > 1024 && s.head*2 >= len(s.items) {
		n := copy(s.items, s.items[s.head:])
		s.items = s.items[:n]
		s.head = 0
	}
	return v, true
}

func (s *stream[T]) seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *stream[T]) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.produced
}
