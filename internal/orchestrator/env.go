package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dusk-indust/py2graph/internal/cache"
	"github.com/dusk-indust/py2graph/internal/config"
	"github.com/dusk-indust/py2graph/internal/graph"
)

// ErrAlreadyInitialized is returned when a store or cache is installed in
// an Env that already holds one.
var ErrAlreadyInitialized = errors.New("orchestrator: already initialized")

// Env owns the graph store and vertex-ID cache shared by every run of one
// process. Each may be installed exactly once.
type Env struct {
	mu    sync.Mutex
	store graph.Store
	cache cache.Cache
}

// NewEnv returns an Env holding store and ids.
func NewEnv(store graph.Store, ids cache.Cache) (*Env, error) {
	e := &Env{}
	if err := e.SetStore(store); err != nil {
		return nil, err
	}
	if err := e.SetCache(ids); err != nil {
		return nil, err
	}
	return e, nil
}

// OpenEnv opens the store and cache named by cfg.
func OpenEnv(cfg *config.Config, logger *slog.Logger) (*Env, error) {
	ids, err := OpenCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	store, err := OpenStore(cfg)
	if err != nil {
		_ = ids.Close()
		return nil, err
	}
	return NewEnv(store, ids)
}

// SetStore installs the graph store.
func (e *Env) SetStore(s graph.Store) error {
	if s == nil {
		return errors.New("orchestrator: nil store")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.store != nil {
		return fmt.Errorf("%w: graph store", ErrAlreadyInitialized)
	}
	e.store = s
	return nil
}

// SetCache installs the vertex-ID cache.
func (e *Env) SetCache(c cache.Cache) error {
	if c == nil {
		return errors.New("orchestrator: nil cache")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cache != nil {
		return fmt.Errorf("%w: cache", ErrAlreadyInitialized)
	}
	e.cache = c
	return nil
}

func (e *Env) Store() graph.Store {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store
}

func (e *Env) Cache() cache.Cache {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cache
}

// Close closes the store and the cache.
func (e *Env) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	if e.cache != nil {
		errs = append(errs, e.cache.Close())
	}
	return errors.Join(errs...)
}
