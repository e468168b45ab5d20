package orchestrator

import (
	"fmt"
	"log/slog"

	"github.com/dusk-indust/py2graph/internal/cache"
	"github.com/dusk-indust/py2graph/internal/config"
	"github.com/dusk-indust/py2graph/internal/graph"
)

// OpenCache opens the vertex-ID cache named by cfg.
func OpenCache(cfg *config.Config, logger *slog.Logger) (cache.Cache, error) {
	switch cfg.Cache.Database {
	case config.CacheNone:
		return cache.Nop{}, nil
	case config.CacheMemory:
		return cache.NewMemory(), nil
	case config.CacheBadger:
		path := cfg.Cache.Badger.Path
		return cache.OpenBadger(cache.BadgerConfig{Path: path, InMemory: path == "", Logger: logger})
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnsupportedCache, cfg.Cache.Database)
	}
}

// OpenStore opens the graph store named by cfg. Kuzu and SQLite need a
// cgo build.
func OpenStore(cfg *config.Config) (graph.Store, error) {
	switch cfg.Backend.Database {
	case config.BackendMemory:
		return graph.NewMemStore(), nil
	case config.BackendFileDB:
		return graph.NewFileStore(cfg.Backend.FileDB.VertexFile, cfg.Backend.FileDB.EdgeFile)
	case config.BackendKuzu:
		return openKuzu(cfg.Backend.Kuzu.Path)
	case config.BackendSQLite:
		return openSQLite(cfg.Backend.SQLite.Path)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnsupportedBackend, cfg.Backend.Database)
	}
}
