//go:build cgo

package orchestrator

import "github.com/dusk-indust/py2graph/internal/graph"

func openKuzu(path string) (graph.Store, error) {
	if path == "" {
		return graph.NewKuzuStore()
	}
	return graph.NewKuzuFileStore(path)
}

func openSQLite(path string) (graph.Store, error) {
	return graph.NewSQLiteStore(path)
}
