//go:build !cgo

package orchestrator

import (
	"errors"

	"github.com/dusk-indust/py2graph/internal/graph"
)

var errNoCgo = errors.New("orchestrator: backend requires a cgo build")

func openKuzu(string) (graph.Store, error) { return nil, errNoCgo }

func openSQLite(string) (graph.Store, error) { return nil, errNoCgo }
