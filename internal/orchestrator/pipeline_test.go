package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/py2graph/internal/cache"
	"github.com/dusk-indust/py2graph/internal/config"
	"github.com/dusk-indust/py2graph/internal/diff"
	"github.com/dusk-indust/py2graph/internal/graph"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

var twoFiles = map[string]string{
	"a.py": "def foo():\n    return 1\n",
	"b.py": "from a import foo\nfoo()\n",
}

func memEnv(t *testing.T) (*Env, *graph.MemStore) {
	t.Helper()
	store := graph.NewMemStore()
	env, err := NewEnv(store, cache.NewMemory())
	require.NoError(t, err)
	return env, store
}

func run(t *testing.T, env *Env, opts Options) *Result {
	t.Helper()
	opts.RetryDelay = time.Millisecond
	p := NewPipeline(env, opts, quietLogger())
	defer p.Close()
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	return res
}

// idsByKey maps vertex keys to their IDs, failing on duplicates.
func idsByKey(t *testing.T, s *graph.MemStore) map[string]graph.VertexID {
	t.Helper()
	out := map[string]graph.VertexID{}
	for id, v := range s.Vertices() {
		_, dup := out[v.Key()]
		require.False(t, dup, "duplicate vertex %s", v.Key())
		out[v.Key()] = id
	}
	return out
}

func hasEdge(s *graph.MemStore, label graph.EdgeLabel, from, to graph.VertexID) bool {
	for _, e := range s.Edges() {
		if e.Label == label && e.From == from && e.To == to {
			return true
		}
	}
	return false
}

func countLabel(s *graph.MemStore, label graph.EdgeLabel) int {
	n := 0
	for _, e := range s.Edges() {
		if e.Label == label {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Env
// ---------------------------------------------------------------------------

func TestEnv_RejectsSecondInitialization(t *testing.T) {
	env, _ := memEnv(t)
	assert.ErrorIs(t, env.SetStore(graph.NewMemStore()), ErrAlreadyInitialized)
	assert.ErrorIs(t, env.SetCache(cache.NewMemory()), ErrAlreadyInitialized)
	assert.NoError(t, env.Close())
}

func TestOpenEnv_MemoryBackends(t *testing.T) {
	cfg := &config.Config{ProjectPath: "."}
	cfg.Cache.Database = config.CacheMemory
	cfg.Backend.Database = config.BackendMemory

	env, err := OpenEnv(cfg, quietLogger())
	require.NoError(t, err)
	defer env.Close()
	assert.IsType(t, &graph.MemStore{}, env.Store())
	assert.IsType(t, &cache.Memory{}, env.Cache())
}

func TestOpenStore_Unsupported(t *testing.T) {
	cfg := &config.Config{}
	cfg.Backend.Database = "gremlin"
	_, err := OpenStore(cfg)
	assert.ErrorIs(t, err, config.ErrUnsupportedBackend)

	cfg.Cache.Database = "redis"
	_, err = OpenCache(cfg, nil)
	assert.ErrorIs(t, err, config.ErrUnsupportedCache)
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

func TestPipeline_CrossFileCallEndToEnd(t *testing.T) {
	root := writeProject(t, twoFiles)
	env, store := memEnv(t)

	res := run(t, env, Options{ProjectPath: root, Build: true, CalcWorkers: 2, IOWorkers: 2})
	assert.Equal(t, 2, res.Files)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 1, res.CallPairs)
	assert.NotEmpty(t, res.RunID)
	assert.Zero(t, res.Backend.DroppedBatches)

	ids := idsByKey(t, store)
	call, def := ids["b.py:2"], ids["a.py:1"]
	require.NotZero(t, call)
	require.NotZero(t, def)

	assert.True(t, hasEdge(store, graph.EdgeCG, call, def), "cg call site -> definition")
	assert.True(t, hasEdge(store, graph.EdgeDFG, def, call), "dfg definition -> call site")
	assert.True(t, hasEdge(store, graph.EdgeRelated, ids["a.py"], ids["b.py"]))
	assert.Equal(t, 1, countLabel(store, graph.EdgeRelated))
}

func TestPipeline_WithoutBuildOnlyPrepares(t *testing.T) {
	root := writeProject(t, twoFiles)
	env, store := memEnv(t)

	res := run(t, env, Options{ProjectPath: root})
	assert.Zero(t, res.Files)
	assert.Empty(t, store.Vertices())
}

func TestPipeline_ForcePurgesStoreAndCache(t *testing.T) {
	root := writeProject(t, twoFiles)
	env, store := memEnv(t)

	run(t, env, Options{ProjectPath: root, Build: true})
	first := len(store.Vertices())
	require.NotZero(t, first)

	run(t, env, Options{ProjectPath: root, Build: true, Force: true})
	assert.Len(t, store.Vertices(), first)
	idsByKey(t, store)
}

func TestPipeline_DiffRebuildsOnlyAffectedFiles(t *testing.T) {
	files := map[string]string{
		"a.py": "def foo():\n    return 1\n",
		"b.py": "from a import foo\nfoo()\n",
		"c.py": "z = 3\n",
	}
	root := writeProject(t, files)
	env, store := memEnv(t)
	run(t, env, Options{ProjectPath: root, Build: true})

	var cBefore graph.VertexID
	for id, v := range store.Vertices() {
		if v.Key() == "c.py:1" {
			cBefore = id
		}
	}
	require.NotZero(t, cBefore)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("def foo():\n    x = 2\n    return x\n"), 0o644))
	res := run(t, env, Options{
		ProjectPath: root,
		Build:       true,
		Force:       true,
		Diff:        &diff.CommitDiff{Modified: []string{"a.py"}},
	})
	assert.Equal(t, []string{"a.py", "b.py"}, res.Readd)
	assert.Equal(t, 2, res.Files)

	ids := idsByKey(t, store)
	assert.Equal(t, cBefore, ids["c.py:1"], "untouched file keeps its vertices")
	assert.Contains(t, ids, "a.py:3")
	assert.True(t, hasEdge(store, graph.EdgeCG, ids["b.py:2"], ids["a.py:1"]))
}

func TestPipeline_DiffFallsBackToFullBuild(t *testing.T) {
	root := writeProject(t, twoFiles)
	dir := t.TempDir()
	fs, err := graph.NewFileStore(filepath.Join(dir, "v.jsonl"), filepath.Join(dir, "e.jsonl"))
	require.NoError(t, err)
	env, err := NewEnv(fs, cache.NewMemory())
	require.NoError(t, err)

	res := run(t, env, Options{
		ProjectPath: root,
		Build:       true,
		Diff:        &diff.CommitDiff{Modified: []string{"a.py"}},
	})
	assert.Nil(t, res.Readd)
	assert.Equal(t, 2, res.Files)

	vs, err := fs.ReadVertices()
	require.NoError(t, err)
	assert.NotEmpty(t, vs)
}

func TestPipeline_MissingProject(t *testing.T) {
	env, _ := memEnv(t)
	p := NewPipeline(env, Options{ProjectPath: filepath.Join(t.TempDir(), "nope"), Build: true}, quietLogger())
	defer p.Close()
	_, err := p.Run(context.Background())
	assert.Error(t, err)
}

func TestPipeline_EmitsProgress(t *testing.T) {
	root := writeProject(t, twoFiles)
	env, _ := memEnv(t)
	p := NewPipeline(env, Options{ProjectPath: root, Build: true}, quietLogger())
	_, err := p.Run(context.Background())
	require.NoError(t, err)
	p.Close()

	seen := map[Phase]ProgressStatus{}
	for ev := range p.Progress() {
		if ev.Status == ProgressComplete {
			seen[ev.Phase] = ev.Status
		}
	}
	for _, ph := range []Phase{PhaseCFG, PhaseDFG, PhaseCallGraph, PhaseBackend} {
		assert.Equal(t, ProgressComplete, seen[ph], ph.String())
	}
}
