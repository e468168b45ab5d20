package graph

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "vertices.jsonl"), filepath.Join(dir, "edges.jsonl"))
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestNewFileStore_SamePathRejected(t *testing.T) {
	p := filepath.Join(t.TempDir(), "graph.jsonl")
	_, err := NewFileStore(p, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestFileStore_WritesJSONLines(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	v := CodeVertex("a.py", 2)
	v.Code = "y = x"
	ids, err := s.AddVertexBulk(ctx, []Vertex{FileVertex("a.py"), v})
	require.NoError(t, err)
	require.Equal(t, []VertexID{1, 2}, ids)
	require.NoError(t, s.AddEdge(ctx, StoredEdge{Label: EdgeCFG, From: 1, To: 2}))

	vs, err := s.ReadVertices()
	require.NoError(t, err)
	assert.Equal(t, "y = x", vs[2].Code)
	assert.Equal(t, LabelFile, vs[1].Label)

	es, err := s.ReadEdges()
	require.NoError(t, err)
	assert.Equal(t, []StoredEdge{{Label: EdgeCFG, From: 1, To: 2}}, es)
}

func TestFileStore_ConcurrentClonesDoNotInterleave(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		c, err := s.Clone()
		require.NoError(t, err)
		wg.Add(1)
		go func(c Store) {
			defer wg.Done()
			batch := make([]Vertex, 50)
			for j := range batch {
				batch[j] = CodeVertex("a.py", j+1)
			}
			_, err := c.AddVertexBulk(ctx, batch)
			assert.NoError(t, err)
		}(c)
	}
	wg.Wait()

	vs, err := s.ReadVertices()
	require.NoError(t, err)
	assert.Len(t, vs, 400)
}

func TestFileStore_InitResumesNumbering(t *testing.T) {
	dir := t.TempDir()
	vp, ep := filepath.Join(dir, "v.jsonl"), filepath.Join(dir, "e.jsonl")
	ctx := context.Background()

	s, err := NewFileStore(vp, ep)
	require.NoError(t, err)
	require.NoError(t, s.Init(ctx))
	_, err = s.AddVertexBulk(ctx, []Vertex{FileVertex("a.py"), FileVertex("b.py")})
	require.NoError(t, err)

	s2, err := NewFileStore(vp, ep)
	require.NoError(t, err)
	require.NoError(t, s2.Init(ctx))
	id, err := s2.AddVertex(ctx, FileVertex("c.py"))
	require.NoError(t, err)
	assert.Equal(t, VertexID(3), id)
}

func TestFileStore_Drop(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()
	_, err := s.AddVertex(ctx, FileVertex("a.py"))
	require.NoError(t, err)

	require.NoError(t, s.Drop(ctx))
	require.NoError(t, s.Init(ctx))

	vs, err := s.ReadVertices()
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestFileStore_NotTraversable(t *testing.T) {
	var s Store = newTestFileStore(t)
	_, ok := s.(Traverser)
	assert.False(t, ok)
}
