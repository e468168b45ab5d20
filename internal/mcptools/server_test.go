package mcptools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/py2graph/internal/cache"
	"github.com/dusk-indust/py2graph/internal/graph"
	"github.com/dusk-indust/py2graph/internal/orchestrator"
)

// setupServerClient wires an MCP server and client together using in-memory
// transports over a memory-backed Env.
func setupServerClient(t *testing.T, store graph.Store) *mcp.ClientSession {
	t.Helper()

	env, err := orchestrator.NewEnv(store, cache.NewMemory())
	require.NoError(t, err)
	svc := NewGraphService(env, slog.New(slog.NewTextHandler(io.Discard, nil)))
	server := NewMCPServer(svc)

	st, ct := mcp.NewInMemoryTransports()
	ctx := context.Background()

	_, err = server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		session.Close()
	})
	return session
}

// fixtureProject copies two Python files into a temp dir: b.py calls a
// function defined in a.py.
func fixtureProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("def foo():\n    return 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.py"), []byte("from a import foo\nfoo()\n"), 0o644))
	return root
}

func callTool[T any](t *testing.T, session *mcp.ClientSession, name string, args any) T {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	require.False(t, result.IsError, "%s should not return an error", name)
	require.NotNil(t, result.StructuredContent, "expected structured content from %s", name)

	raw, err := json.Marshal(result.StructuredContent)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestMCPListTools(t *testing.T) {
	session := setupServerClient(t, graph.NewMemStore())

	result, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	sort.Strings(names)
	assert.Equal(t, []string{"apply_diff", "build_graph", "related_files"}, names)
}

func TestMCPBuildGraphAndRelatedFiles(t *testing.T) {
	session := setupServerClient(t, graph.NewMemStore())
	root := fixtureProject(t)

	out := callTool[BuildGraphOutput](t, session, "build_graph", BuildGraphInput{ProjectPath: root})
	assert.Equal(t, 2, out.Files)
	assert.Equal(t, 1, out.CallPairs)
	assert.Greater(t, out.Edges, int64(0))
	require.NotNil(t, out.Stats)
	assert.Equal(t, 2, out.Stats.FileCount)

	rel := callTool[RelatedFilesOutput](t, session, "related_files", RelatedFilesInput{File: "a.py"})
	assert.Equal(t, []string{"b.py"}, rel.Files)
}

func TestMCPApplyDiff(t *testing.T) {
	session := setupServerClient(t, graph.NewMemStore())
	root := fixtureProject(t)
	callTool[BuildGraphOutput](t, session, "build_graph", BuildGraphInput{ProjectPath: root})

	out := callTool[ApplyDiffOutput](t, session, "apply_diff", ApplyDiffInput{
		ProjectPath: root,
		Modified:    []string{"a.py"},
	})
	assert.Equal(t, []string{"a.py", "b.py"}, out.Readd)
	assert.Equal(t, 2, out.Result.Files)
}

type writeOnlyStore struct{ graph.Store }

func TestMCPRelatedFilesNeedsTraversal(t *testing.T) {
	session := setupServerClient(t, writeOnlyStore{graph.NewMemStore()})

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "related_files",
		Arguments: RelatedFilesInput{File: "a.py"},
	})
	if err != nil {
		return
	}
	assert.True(t, result.IsError)
}

func TestMCPCallUnknownTool(t *testing.T) {
	session := setupServerClient(t, graph.NewMemStore())

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "nonexistent_tool",
		Arguments: map[string]any{},
	})

	// The MCP SDK may return an error at the protocol level or set IsError on
	// the result. Accept either behavior.
	if err != nil {
		return
	}
	require.NotNil(t, result)
	assert.True(t, result.IsError, "calling an unknown tool should set IsError")
}
