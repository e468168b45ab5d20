// Package cache is the key/value store that maps vertex keys to the IDs the
// graph backend assigned them.
package cache

import (
	"fmt"
	"strconv"

	"github.com/dusk-indust/py2graph/internal/graph"
)

// Cache is a concurrent string-keyed byte store.
// Implementations: Nop (disabled), Memory, Badger.
type Cache interface {
	// Get returns the value for key and whether it was present.
	Get(key string) ([]byte, bool, error)
	// Set stores value under key.
	Set(key string, value []byte) error
	// Update atomically replaces the value for key with fn's result. It is
	// the read-modify-write unit for callers that need insert-if-absent or
	// append semantics; the vertex-ID helpers below only overwrite.
	Update(key string, fn func(old []byte, found bool) ([]byte, error)) error
	// Clear removes every key.
	Clear() error
	Close() error
}

// PutVertexID records the store ID of the vertex with the given key.
func PutVertexID(c Cache, key string, id graph.VertexID) error {
	return c.Set(key, strconv.AppendInt(nil, int64(id), 10))
}

// VertexID looks up the store ID recorded for key.
func VertexID(c Cache, key string) (graph.VertexID, bool, error) {
	b, ok, err := c.Get(key)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("cache: decode vertex id for %s: %w", key, err)
	}
	return graph.VertexID(n), true, nil
}
