//go:build e2e

package e2e

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var update = flag.Bool("update", false, "update golden files")

// goldenFile returns the path of the rendered fixture graph.
func goldenFile() string {
	return filepath.Join("..", "..", "testdata", "golden", "py_project.edges")
}

func renderFixture(t *testing.T) string {
	t.Helper()
	env, store := newEnv(t)
	runFixture(t, env, nil)
	return strings.Join(renderEdges(store), "\n") + "\n"
}

// TestGolden compares the fixture graph against the golden file. If the
// golden file does not exist, the test is skipped with a message to run
// with -update.
func TestGolden(t *testing.T) {
	golden, err := os.ReadFile(goldenFile())
	if os.IsNotExist(err) {
		t.Skip("golden file not found; run with -update to generate")
		return
	}
	require.NoError(t, err)

	assert.Equal(t, string(golden), renderFixture(t), "fixture graph does not match golden file")
}

// TestUpdateGolden regenerates the golden file from the current pipeline output.
// Run with: go test -tags e2e -run TestUpdateGolden ./internal/e2e/ -update
func TestUpdateGolden(t *testing.T) {
	if !*update {
		t.Skip("skipping golden file update; run with -update flag")
	}

	actual := renderFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(goldenFile()), 0o755))
	require.NoError(t, os.WriteFile(goldenFile(), []byte(actual), 0o644))
	t.Logf("updated %s", goldenFile())
}
