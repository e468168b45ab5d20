package graph

import (
	"context"
	"sort"
	"sync"
)

// Compile-time assertion: *MemStore satisfies Store and Traverser.
var (
	_ Store     = (*MemStore)(nil)
	_ Traverser = (*MemStore)(nil)
)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
// Clones share the same state.
type MemStore struct {
	mu       sync.RWMutex
	next     VertexID
	vertices map[VertexID]Vertex
	edges    []StoredEdge
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{vertices: make(map[VertexID]Vertex)}
}

// Clone returns the receiver; MemStore is safe for concurrent use.
func (m *MemStore) Clone() (Store, error) { return m, nil }

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }

// Init is a no-op for the in-memory store.
func (m *MemStore) Init(_ context.Context) error { return nil }

// Drop clears all vertices and edges. IDs keep increasing.
func (m *MemStore) Drop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vertices = make(map[VertexID]Vertex)
	m.edges = nil
	return nil
}

// AddVertex stores v under a fresh ID.
func (m *MemStore) AddVertex(_ context.Context, v Vertex) (VertexID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(v), nil
}

// AddVertexBulk stores vs and returns their IDs in order.
func (m *MemStore) AddVertexBulk(_ context.Context, vs []Vertex) ([]VertexID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]VertexID, len(vs))
	for i, v := range vs {
		ids[i] = m.insert(v)
	}
	return ids, nil
}

func (m *MemStore) insert(v Vertex) VertexID {
	m.next++
	m.vertices[m.next] = v
	return m.next
}

// AddEdge appends an edge to the internal slice.
func (m *MemStore) AddEdge(_ context.Context, e StoredEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = append(m.edges, e)
	return nil
}

// AddEdgeBulk appends edges to the internal slice.
func (m *MemStore) AddEdgeBulk(_ context.Context, es []StoredEdge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = append(m.edges, es...)
	return nil
}

// Vertex returns the vertex stored under id.
func (m *MemStore) Vertex(id VertexID) (Vertex, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vertices[id]
	return v, ok
}

// Vertices returns a snapshot of all stored vertices keyed by ID.
func (m *MemStore) Vertices() map[VertexID]Vertex {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[VertexID]Vertex, len(m.vertices))
	for id, v := range m.vertices {
		out[id] = v
	}
	return out
}

// Edges returns a snapshot of all stored edges in insertion order.
func (m *MemStore) Edges() []StoredEdge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StoredEdge, len(m.edges))
	copy(out, m.edges)
	return out
}

// ---------- Traversal ----------

// RelatedFiles returns files linked to file by a related edge in either direction.
func (m *MemStore) RelatedFiles(_ context.Context, file string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	for _, e := range m.edges {
		if e.Label != EdgeRelated {
			continue
		}
		from, okFrom := m.vertices[e.From]
		to, okTo := m.vertices[e.To]
		if !okFrom || !okTo {
			continue
		}
		switch file {
		case from.File:
			seen[to.File] = true
		case to.File:
			seen[from.File] = true
		}
	}
	delete(seen, file)
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

// DeleteFile removes the vertices of file and every edge touching them.
func (m *MemStore) DeleteFile(_ context.Context, file string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gone := map[VertexID]bool{}
	for id, v := range m.vertices {
		if v.File == file {
			gone[id] = true
			delete(m.vertices, id)
		}
	}
	kept := m.edges[:0]
	for _, e := range m.edges {
		if gone[e.From] || gone[e.To] {
			continue
		}
		kept = append(kept, e)
	}
	m.edges = kept
	return nil
}

// Stats returns vertex and edge counts.
func (m *MemStore) Stats(_ context.Context) (*GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	files := 0
	for _, v := range m.vertices {
		if v.Label == LabelFile {
			files++
		}
	}
	return &GraphStats{
		FileCount:   files,
		VertexCount: len(m.vertices),
		EdgeCount:   len(m.edges),
	}, nil
}
