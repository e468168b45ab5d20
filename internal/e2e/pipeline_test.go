//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/py2graph/internal/cache"
	"github.com/dusk-indust/py2graph/internal/diff"
	"github.com/dusk-indust/py2graph/internal/graph"
	"github.com/dusk-indust/py2graph/internal/orchestrator"
)

func fixtureRoot() string {
	return filepath.Join("..", "..", "testdata", "fixtures", "py_project")
}

// runFixture builds the fixture project into store and drains progress.
func runFixture(t *testing.T, env *orchestrator.Env, d *diff.CommitDiff) *orchestrator.Result {
	t.Helper()

	pipeline := orchestrator.NewPipeline(env, orchestrator.Options{
		ProjectPath: fixtureRoot(),
		Diff:        d,
		Build:       true,
		RetryDelay:  time.Millisecond,
	}, nil)
	progressCh := pipeline.Progress()
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		for range progressCh {
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := pipeline.Run(ctx)
	pipeline.Close()
	<-drainDone
	require.NoError(t, err)
	return res
}

func newEnv(t *testing.T) (*orchestrator.Env, *graph.MemStore) {
	t.Helper()
	store := graph.NewMemStore()
	env, err := orchestrator.NewEnv(store, cache.NewMemory())
	require.NoError(t, err)
	return env, store
}

// renderEdges prints every stored edge as "label from -> to" using vertex
// keys, sorted so the output is independent of worker scheduling.
func renderEdges(store *graph.MemStore) []string {
	vs := store.Vertices()
	var out []string
	for _, e := range store.Edges() {
		out = append(out, fmt.Sprintf("%s %s -> %s", e.Label, vs[e.From].Key(), vs[e.To].Key()))
	}
	sort.Strings(out)
	return out
}

func TestPipeline_E2E_Fixture(t *testing.T) {
	env, store := newEnv(t)
	res := runFixture(t, env, nil)

	assert.Equal(t, 4, res.Files)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 4, res.CallPairs)
	assert.Zero(t, res.Backend.DroppedBatches)

	for _, v := range store.Vertices() {
		assert.False(t, strings.HasPrefix(v.File, "build/"), "ignored file %s was analyzed", v.File)
		assert.False(t, v.Invalid(), "invalid vertex %+v stored", v)
	}

	ctx := context.Background()
	related, err := store.RelatedFiles(ctx, "pkg/models.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/service.py"}, related)

	related, err = store.RelatedFiles(ctx, "pkg/service.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py", "pkg/models.py"}, related)

	related, err = store.RelatedFiles(ctx, "pkg/__init__.py")
	require.NoError(t, err)
	assert.Empty(t, related)

	edges := renderEdges(store)
	assert.Contains(t, edges, "cg pkg/service.py:5 -> pkg/models.py:1")
	assert.Contains(t, edges, "dfg pkg/models.py:1 -> pkg/service.py:5")
	assert.Contains(t, edges, "related pkg/models.py -> pkg/service.py")
	assert.Contains(t, edges, "related pkg/service.py -> main.py")
}

func TestPipeline_E2E_DiffRebuildIsStable(t *testing.T) {
	env, store := newEnv(t)
	runFixture(t, env, nil)
	before := renderEdges(store)

	res := runFixture(t, env, &diff.CommitDiff{Modified: []string{"pkg/models.py"}})
	assert.Equal(t, []string{"pkg/models.py", "pkg/service.py"}, res.Readd)
	assert.Equal(t, 2, res.CallPairs)

	// Calls from untouched files into rebuilt ones are not re-resolved.
	after := renderEdges(store)
	assert.Contains(t, after, "related pkg/models.py -> pkg/service.py")
	assert.NotContains(t, after, "related pkg/service.py -> main.py")
	assert.Less(t, len(after), len(before))
}
