package graph

import (
	"context"
	"errors"
	"io"
)

// ErrNotSupported is returned when a backend lacks a capability, such as
// graph traversal for incremental diffs.
var ErrNotSupported = errors.New("graph: operation not supported by backend")

// Store is the interface for the graph backend.
// Implementations: KuzuStore, SQLiteStore, FileStore (debug), MemStore (testing).
type Store interface {
	io.Closer

	// Clone returns a handle that is safe to use concurrently with the
	// receiver. Clones share the underlying database; closing a clone never
	// closes the database itself.
	Clone() (Store, error)

	// Drop removes every vertex and edge.
	Drop(ctx context.Context) error

	// Init prepares the backend for writes. It is idempotent.
	Init(ctx context.Context) error

	// AddVertex persists v and returns its store-assigned ID.
	AddVertex(ctx context.Context, v Vertex) (VertexID, error)

	// AddVertexBulk persists vertices and returns their IDs in input order.
	AddVertexBulk(ctx context.Context, vs []Vertex) ([]VertexID, error)

	// AddEdge persists a single resolved edge.
	AddEdge(ctx context.Context, e StoredEdge) error

	// AddEdgeBulk persists a batch of resolved edges. A failed call must not
	// leave part of the batch behind, so that callers may retry it whole.
	AddEdgeBulk(ctx context.Context, es []StoredEdge) error
}

// Traverser is implemented by stores that can be queried after writing.
// It is required for incremental rebuilds from a diff.
type Traverser interface {
	// RelatedFiles returns files connected to file by a related edge in
	// either direction.
	RelatedFiles(ctx context.Context, file string) ([]string, error)

	// DeleteFile removes every vertex belonging to file and its incident edges.
	DeleteFile(ctx context.Context, file string) error

	// Stats returns vertex and edge counts.
	Stats(ctx context.Context) (*GraphStats, error)
}
