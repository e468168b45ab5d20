package pipe

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/py2graph/internal/graph"
)

func drainVertices(src Source, n int) [][]graph.Vertex {
	out := make([][]graph.Vertex, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				v, ok := src.GetVertex()
				if !ok {
					return
				}
				out[i] = append(out[i], v)
			}
		}(i)
	}
	wg.Wait()
	return out
}

func TestPipe_EveryConsumerTerminatesAfterSeal(t *testing.T) {
	p := New()
	sink, src := p.Sink(), p.Source()

	const producers, perProducer, consumers = 4, 250, 8

	done := make(chan [][]graph.Vertex)
	go func() { done <- drainVertices(src, consumers) }()

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 1; j <= perProducer; j++ {
				sink.PutVertex(graph.CodeVertex("f.py", i*perProducer+j))
			}
		}(i)
	}
	wg.Wait()
	sink.SealVertices()

	select {
	case got := <-done:
		seen := map[string]bool{}
		for _, vs := range got {
			for _, v := range vs {
				require.False(t, seen[v.Key()], "vertex %s delivered twice", v.Key())
				seen[v.Key()] = true
			}
		}
		assert.Len(t, seen, producers*perProducer)
	case <-time.After(5 * time.Second):
		t.Fatal("consumers did not terminate after seal")
	}
	assert.Equal(t, producers*perProducer, src.VertexCount())
}

func TestPipe_StreamsSealIndependently(t *testing.T) {
	p := New()
	sink, src := p.Sink(), p.Source()

	sink.PutEdge(graph.NewEdge(graph.EdgeCFG, graph.FileVertex("a.py"), graph.CodeVertex("a.py", 1)))
	sink.SealVertices()

	_, ok := src.GetVertex()
	assert.False(t, ok, "sealed empty vertex stream")

	e, ok := src.GetEdge()
	require.True(t, ok)
	assert.Equal(t, graph.EdgeCFG, e.Label)

	got := make(chan bool)
	go func() {
		_, ok := src.GetEdge()
		got <- ok
	}()
	select {
	case <-got:
		t.Fatal("GetEdge returned before the edge stream was sealed")
	case <-time.After(50 * time.Millisecond):
	}
	sink.SealEdges()
	assert.False(t, <-got)
}

func TestPipe_SealIsIdempotent(t *testing.T) {
	p := New()
	sink, src := p.Sink(), p.Source()
	sink.PutVertex(graph.FileVertex("a.py"))
	sink.Seal()
	sink.Seal()
	sink.SealVertices()

	_, ok := src.GetVertex()
	assert.True(t, ok, "items put before seal are still delivered")
	_, ok = src.GetVertex()
	assert.False(t, ok)
	_, ok = src.GetEdge()
	assert.False(t, ok)
}

func TestPipe_FacetsAreDistinct(t *testing.T) {
	p := New()
	_, isSource := p.Sink().(Source)
	_, isSink := p.Source().(Sink)
	assert.False(t, isSource)
	assert.False(t, isSink)
}

func TestPipe_FIFOAcrossCompaction(t *testing.T) {
	p := New()
	sink, src := p.Sink(), p.Source()
	for i := 1; i <= 5000; i++ {
		sink.PutVertex(graph.CodeVertex("a.py", i))
	}
	sink.SealVertices()
	for i := 1; i <= 5000; i++ {
		v, ok := src.GetVertex()
		require.True(t, ok)
		require.Equal(t, i, v.Lineno)
	}
	_, ok := src.GetVertex()
	assert.False(t, ok)
	assert.Equal(t, 5000, src.VertexCount())
}
