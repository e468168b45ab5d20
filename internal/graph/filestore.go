package graph

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Compile-time assertion: *FileStore satisfies Store.
var _ Store = (*FileStore)(nil)

// FileStore appends vertices and edges as JSON lines to two files. It is a
// debugging backend: it cannot be queried, so it does not implement Traverser.
//
// All clones share one mutex, which serializes every write to either file.
type FileStore struct {
	shared *fileShared
}

type fileShared struct {
	mu         sync.Mutex
	next       VertexID
	vertexPath string
	edgePath   string
}

// vertexRecord is one line of the vertex file.
type vertexRecord struct {
	ID VertexID `json:"id"`
	Vertex
}

// NewFileStore returns a FileStore writing to vertexPath and edgePath.
// The two paths must differ.
func NewFileStore(vertexPath, edgePath string) (*FileStore, error) {
	if vertexPath == "" || edgePath == "" {
		return nil, errors.New("filestore: vertex and edge paths are required")
	}
	va, err := filepath.Abs(vertexPath)
	if err != nil {
		return nil, fmt.Errorf("filestore: resolve %s: %w", vertexPath, err)
	}
	ea, err := filepath.Abs(edgePath)
	if err != nil {
		return nil, fmt.Errorf("filestore: resolve %s: %w", edgePath, err)
	}
	if va == ea {
		return nil, fmt.Errorf("filestore: vertex and edge files must differ: %s", va)
	}
	return &FileStore{shared: &fileShared{vertexPath: va, edgePath: ea}}, nil
}

// Clone returns a handle sharing the receiver's files and lock.
func (s *FileStore) Clone() (Store, error) {
	return &FileStore{shared: s.shared}, nil
}

// Close is a no-op; files are opened per write.
func (s *FileStore) Close() error { return nil }

// Drop removes both files.
func (s *FileStore) Drop(_ context.Context) error {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	for _, p := range []string{s.shared.vertexPath, s.shared.edgePath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("filestore: drop %s: %w", p, err)
		}
	}
	s.shared.next = 0
	return nil
}

// Init creates both files if missing and continues numbering after the
// highest vertex ID already on disk.
func (s *FileStore) Init(_ context.Context) error {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	for _, p := range []string{s.shared.vertexPath, s.shared.edgePath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("filestore: init %s: %w", p, err)
		}
		f, err := os.OpenFile(p, os.O_CREATE|os.O_RDONLY, 0o644)
		if err != nil {
			return fmt.Errorf("filestore: init %s: %w", p, err)
		}
		f.Close()
	}
	last, err := lastVertexID(s.shared.vertexPath)
	if err != nil {
		return err
	}
	if last > s.shared.next {
		s.shared.next = last
	}
	return nil
}

func lastVertexID(path string) (VertexID, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("filestore: scan %s: %w", path, err)
	}
	defer f.Close()

	var last VertexID
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var rec vertexRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		if rec.ID > last {
			last = rec.ID
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("filestore: scan %s: %w", path, err)
	}
	return last, nil
}

// AddVertex appends v and returns its ID.
func (s *FileStore) AddVertex(ctx context.Context, v Vertex) (VertexID, error) {
	ids, err := s.AddVertexBulk(ctx, []Vertex{v})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// AddVertexBulk appends vs and returns their IDs in order.
func (s *FileStore) AddVertexBulk(_ context.Context, vs []Vertex) ([]VertexID, error) {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	ids := make([]VertexID, len(vs))
	recs := make([]any, len(vs))
	next := s.shared.next
	for i, v := range vs {
		next++
		ids[i] = next
		recs[i] = vertexRecord{ID: next, Vertex: v}
	}
	if err := appendLines(s.shared.vertexPath, recs); err != nil {
		return nil, err
	}
	s.shared.next = next
	return ids, nil
}

// AddEdge appends a single edge.
func (s *FileStore) AddEdge(ctx context.Context, e StoredEdge) error {
	return s.AddEdgeBulk(ctx, []StoredEdge{e})
}

// AddEdgeBulk appends edges.
func (s *FileStore) AddEdgeBulk(_ context.Context, es []StoredEdge) error {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	recs := make([]any, len(es))
	for i, e := range es {
		recs[i] = e
	}
	return appendLines(s.shared.edgePath, recs)
}

// appendLines encodes recs fully before touching the file, so an encoding
// failure writes nothing.
func appendLines(path string, recs []any) error {
	if len(recs) == 0 {
		return nil
	}
	var buf []byte
	for _, r := range recs {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("filestore: encode: %w", err)
		}
		buf = append(buf, b...)
		buf = append(buf, '\n')
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("filestore: open %s: %w", path, err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("filestore: write %s: %w", path, err)
	}
	return f.Close()
}

// ReadVertices decodes every vertex line of the vertex file.
func (s *FileStore) ReadVertices() (map[VertexID]Vertex, error) {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	out := map[VertexID]Vertex{}
	err := readLines(s.shared.vertexPath, func(b []byte) error {
		var rec vertexRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return err
		}
		out[rec.ID] = rec.Vertex
		return nil
	})
	return out, err
}

// ReadEdges decodes every edge line of the edge file.
func (s *FileStore) ReadEdges() ([]StoredEdge, error) {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	var out []StoredEdge
	err := readLines(s.shared.edgePath, func(b []byte) error {
		var e StoredEdge
		if err := json.Unmarshal(b, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

func readLines(path string, fn func([]byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("filestore: open %s: %w", path, err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 1 {
			if derr := fn(line); derr != nil {
				return fmt.Errorf("filestore: decode %s: %w", path, derr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("filestore: read %s: %w", path, err)
		}
	}
}
