package cache

import "sync"

var (
	_ Cache = (*Memory)(nil)
	_ Cache = Nop{}
)

// Memory is an in-process Cache. Thread-safe via sync.RWMutex.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory returns an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Update(key string, fn func(old []byte, found bool) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, found := m.data[key]
	next, err := fn(old, found)
	if err != nil {
		return err
	}
	m.data[key] = next
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

// Len returns the number of keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *Memory) Close() error { return nil }

// Nop is a Cache that stores nothing. Every lookup misses.
type Nop struct{}

func (Nop) Get(string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(string, []byte) error         { return nil }
func (Nop) Update(key string, fn func([]byte, bool) ([]byte, error)) error {
	_, err := fn(nil, false)
	return err
}
func (Nop) Clear() error { return nil }
func (Nop) Close() error { return nil }
