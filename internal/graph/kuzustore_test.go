//go:build cgo

package graph

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a fresh in-memory KuzuStore with an initialized schema.
// It registers a cleanup function to close the store when the test finishes.
func newTestStore(t *testing.T) *KuzuStore {
	t.Helper()
	s, err := NewKuzuStore()
	require.NoError(t, err, "NewKuzuStore should not fail")
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.Init(ctx), "Init should not fail")
	return s
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestKuzuStore_Init(t *testing.T) {
	s, err := NewKuzuStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()

	// First call creates the tables.
	require.NoError(t, s.Init(ctx))

	// Second call should be idempotent (IF NOT EXISTS).
	require.NoError(t, s.Init(ctx))
}

func TestKuzuStore_Contract(t *testing.T) {
	testStoreContract(t, newTestStore(t))
}

func TestKuzuStore_AllEdgeLabels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := addFileWithStatements(t, s, "a.py", 1, 2)
	var edges []StoredEdge
	for _, l := range EdgeLabels {
		edges = append(edges, StoredEdge{Label: l, From: ids[1], To: ids[2], Props: map[string]string{"k": "v"}})
	}
	require.NoError(t, s.AddEdgeBulk(ctx, edges))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(EdgeLabels), st.EdgeCount)
}

func TestKuzuStore_UnknownEdgeLabelRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := addFileWithStatements(t, s, "a.py", 1, 2)
	err := s.AddEdgeBulk(ctx, []StoredEdge{
		{Label: EdgeCFG, From: ids[1], To: ids[2]},
		{Label: "bogus", From: ids[1], To: ids[2]},
	})
	require.Error(t, err)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.EdgeCount, "failed batch must leave no edges")
}

func TestKuzuStore_ClonesWriteConcurrently(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		c, err := s.Clone()
		require.NoError(t, err)
		wg.Add(1)
		go func(c Store) {
			defer wg.Done()
			defer c.Close()
			_, err := c.AddVertexBulk(ctx, []Vertex{CodeVertex("a.py", 1), CodeVertex("a.py", 2)})
			assert.NoError(t, err)
		}(c)
	}
	wg.Wait()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, st.VertexCount)
}

func TestKuzuStore_Close(t *testing.T) {
	s, err := NewKuzuStore()
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
