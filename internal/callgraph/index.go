// Package callgraph indexes function definitions and call sites by file path
// and links them once every file has been analyzed.
package callgraph

import (
	"sort"
	"sync"
)

// node is one path segment of a Trie. Each node guards its own maps so
// writers on unrelated paths never contend.
type node struct {
	mu       sync.Mutex
	children map[string]*node
	names    map[string][]string
}

func newNode() *node {
	return &node{children: map[string]*node{}, names: map[string][]string{}}
}

func (n *node) child(seg string) *node {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.children[seg]
	if !ok {
		c = newNode()
		n.children[seg] = c
	}
	return c
}

func (n *node) lookupChild(seg string) *node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.children[seg]
}

func (n *node) add(name, key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, k := range n.names[name] {
		if k == key {
			return
		}
	}
	n.names[name] = append(n.names[name], key)
}

// snapshot copies the node's maps so callers can iterate without holding
// the lock.
func (n *node) snapshot() (map[string]*node, map[string][]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	children := make(map[string]*node, len(n.children))
	for k, v := range n.children {
		children[k] = v
	}
	names := make(map[string][]string, len(n.names))
	for k, v := range n.names {
		names[k] = append([]string(nil), v...)
	}
	return children, names
}

// Trie maps (path segments, function name) to an ordered, de-duplicated
// list of vertex keys.
type Trie struct {
	root *node
}

// NewTrie returns an empty Trie.
func NewTrie() *Trie {
	return &Trie{root: newNode()}
}

// Insert records key under segs and name. Safe for concurrent use.
func (t *Trie) Insert(segs []string, name, key string) {
	n := t.root
	for _, s := range segs {
		if s == "" {
			continue
		}
		n = n.child(s)
	}
	n.add(name, key)
}

// Lookup returns the keys recorded under segs and name.
func (t *Trie) Lookup(segs []string, name string) []string {
	n := t.root
	for _, s := range segs {
		if s == "" {
			continue
		}
		if n = n.lookupChild(s); n == nil {
			return nil
		}
	}
	_, names := n.snapshot()
	return names[name]
}

// Index holds the caller index (definitions) and callee index (call sites)
// of one run, plus the set of file pairs already linked by a related edge.
type Index struct {
	Callers *Trie
	Callees *Trie

	relatedMu sync.Mutex
	related   map[[2]string]bool
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{
		Callers: NewTrie(),
		Callees: NewTrie(),
		related: map[[2]string]bool{},
	}
}

// AddDefinition records that function name is defined in file at key.
func (ix *Index) AddDefinition(file, name, key string) {
	ix.Callers.Insert(SplitPath(file), name, key)
}

// AddCallSite records that the statement at key calls name, defined in
// the file at path.
func (ix *Index) AddCallSite(path, name, key string) {
	ix.Callees.Insert(SplitPath(path), name, key)
}

// MarkRelated reports whether the ordered pair (from, to) is new, and
// records it. The set is never reset for the lifetime of the Index.
func (ix *Index) MarkRelated(from, to string) bool {
	ix.relatedMu.Lock()
	defer ix.relatedMu.Unlock()
	k := [2]string{from, to}
	if ix.related[k] {
		return false
	}
	ix.related[k] = true
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
