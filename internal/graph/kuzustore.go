//go:build cgo

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore implements the Store interface using KuzuDB as the graph backend.
// It requires CGO because the go-kuzu driver wraps KuzuDB's C library.
//
// Every clone owns its own connection on the shared database. KuzuDB admits a
// single write transaction at a time, so bulk writes serialize on a mutex
// shared by all clones.
type KuzuStore struct {
	db     *kuzu.Database
	conn   *kuzu.Connection
	writes *sync.Mutex
	owner  bool
}

// Compile-time checks that KuzuStore satisfies Store and Traverser.
var (
	_ Store     = (*KuzuStore)(nil)
	_ Traverser = (*KuzuStore)(nil)
)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore backed by a file-based KuzuDB at the
// given directory path. KuzuDB creates the directory itself for new databases.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	// Ensure parent directory exists (KuzuDB creates the leaf directory).
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuStore, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn, writes: &sync.Mutex{}, owner: true}, nil
}

// Clone opens a new connection on the same database.
func (s *KuzuStore) Clone() (Store, error) {
	conn, err := kuzu.OpenConnection(s.db)
	if err != nil {
		return nil, fmt.Errorf("kuzu: clone connection: %w", err)
	}
	return &KuzuStore{db: s.db, conn: conn, writes: s.writes}, nil
}

// Close releases the connection, and the database if s opened it.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.owner && s.db != nil {
		s.db.Close()
		s.db = nil
	}
	return nil
}

// ---------- Schema setup ----------

// ddlStatements defines the Cypher DDL executed by Init.
// Order matters: node tables must precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Vertex(
		id SERIAL,
		label STRING,
		key STRING,
		file STRING,
		lineno INT64,
		code STRING,
		ast STRING,
		func_name STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS CFG(FROM Vertex TO Vertex, props STRING)`,
	`CREATE REL TABLE IF NOT EXISTS DFG(FROM Vertex TO Vertex, props STRING)`,
	`CREATE REL TABLE IF NOT EXISTS CG(FROM Vertex TO Vertex, props STRING)`,
	`CREATE REL TABLE IF NOT EXISTS RELATED(FROM Vertex TO Vertex, props STRING)`,
}

// Init creates all node and relationship tables if they do not exist.
func (s *KuzuStore) Init(_ context.Context) error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// Drop deletes every vertex together with its relationships. The schema is
// left in place.
func (s *KuzuStore) Drop(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	s.writes.Lock()
	defer s.writes.Unlock()
	if err := s.exec("MATCH (v:Vertex) DETACH DELETE v", nil); err != nil {
		return fmt.Errorf("kuzu: drop: %w", err)
	}
	return nil
}

// ---------- Write operations ----------

const createVertexCypher = `CREATE (v:Vertex {
	label: $label,
	key: $key,
	file: $file,
	lineno: $lineno,
	code: $code,
	ast: $ast,
	func_name: $fn
}) RETURN v.id`

func vertexParams(v Vertex) map[string]any {
	return map[string]any{
		"label":  string(v.Label),
		"key":    v.Key(),
		"file":   v.File,
		"lineno": int64(v.Lineno),
		"code":   v.Code,
		"ast":    v.AST,
		"fn":     v.FuncName,
	}
}

// AddVertex inserts a Vertex node and returns its serial ID.
func (s *KuzuStore) AddVertex(ctx context.Context, v Vertex) (VertexID, error) {
	ids, err := s.AddVertexBulk(ctx, []Vertex{v})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// AddVertexBulk inserts vertices inside one transaction.
func (s *KuzuStore) AddVertexBulk(_ context.Context, vs []Vertex) ([]VertexID, error) {
	if len(vs) == 0 {
		return nil, nil
	}
	s.writes.Lock()
	defer s.writes.Unlock()

	stmt, err := s.conn.Prepare(createVertexCypher)
	if err != nil {
		return nil, fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	ids := make([]VertexID, 0, len(vs))
	err = s.inTx(func() error {
		for _, v := range vs {
			rows, err := s.collect(s.conn.Execute(stmt, vertexParams(v)))
			if err != nil {
				return err
			}
			if len(rows) == 0 || len(rows[0]) == 0 {
				return fmt.Errorf("kuzu: create vertex %s: no id returned", v.Key())
			}
			ids = append(ids, VertexID(toInt64(rows[0][0])))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// AddEdge inserts a single relationship.
func (s *KuzuStore) AddEdge(ctx context.Context, e StoredEdge) error {
	return s.AddEdgeBulk(ctx, []StoredEdge{e})
}

// AddEdgeBulk inserts relationships inside one transaction so a failed batch
// leaves nothing behind.
func (s *KuzuStore) AddEdgeBulk(_ context.Context, es []StoredEdge) error {
	if len(es) == 0 {
		return nil
	}
	s.writes.Lock()
	defer s.writes.Unlock()

	return s.inTx(func() error {
		for _, e := range es {
			cypher, err := edgeCypher(e.Label)
			if err != nil {
				return err
			}
			props := ""
			if len(e.Props) > 0 {
				b, err := json.Marshal(e.Props)
				if err != nil {
					return fmt.Errorf("kuzu: encode edge props: %w", err)
				}
				props = string(b)
			}
			if err := s.exec(cypher, map[string]any{
				"src":   int64(e.From),
				"dst":   int64(e.To),
				"props": props,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// edgeTable maps an edge label to its relationship table.
func edgeTable(label EdgeLabel) (string, error) {
	switch label {
	case EdgeCFG:
		return "CFG", nil
	case EdgeDFG:
		return "DFG", nil
	case EdgeCG:
		return "CG", nil
	case EdgeRelated:
		return "RELATED", nil
	default:
		return "", fmt.Errorf("kuzu: unsupported edge label: %s", label)
	}
}

// edgeCypher returns the MATCH-CREATE Cypher for the given edge label.
func edgeCypher(label EdgeLabel) (string, error) {
	table, err := edgeTable(label)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`MATCH (a:Vertex), (b:Vertex)
		WHERE a.id = $src AND b.id = $dst
		CREATE (a)-[:%s {props: $props}]->(b)`, table), nil
}

// ---------- Traversal ----------

// RelatedFiles returns files linked to file by a RELATED edge in either direction.
func (s *KuzuStore) RelatedFiles(_ context.Context, file string) ([]string, error) {
	queries := []string{
		"MATCH (a:Vertex {label: 'file', file: $file})-[:RELATED]->(b:Vertex) RETURN DISTINCT b.file",
		"MATCH (a:Vertex)-[:RELATED]->(b:Vertex {label: 'file', file: $file}) RETURN DISTINCT a.file",
	}
	seen := map[string]bool{}
	var out []string
	for _, q := range queries {
		rows, err := s.query(q, map[string]any{"file": file})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			f := toString(r[0])
			if f == file || seen[f] {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

// DeleteFile removes all vertices of file together with their relationships.
func (s *KuzuStore) DeleteFile(_ context.Context, file string) error {
	s.writes.Lock()
	defer s.writes.Unlock()
	if err := s.exec("MATCH (v:Vertex {file: $file}) DETACH DELETE v", map[string]any{"file": file}); err != nil {
		return fmt.Errorf("kuzu: delete file %s: %w", file, err)
	}
	return nil
}

// ---------- Stats ----------

// Stats returns vertex and edge counts.
func (s *KuzuStore) Stats(_ context.Context) (*GraphStats, error) {
	files, err := s.count("MATCH (v:Vertex) WHERE v.label = 'file' RETURN count(v)")
	if err != nil {
		return nil, err
	}
	vertices, err := s.count("MATCH (v:Vertex) RETURN count(v)")
	if err != nil {
		return nil, err
	}
	edges := 0
	for _, label := range EdgeLabels {
		table, _ := edgeTable(label)
		n, err := s.count(fmt.Sprintf("MATCH ()-[r:%s]->() RETURN count(r)", table))
		if err != nil {
			return nil, err
		}
		edges += n
	}
	return &GraphStats{FileCount: files, VertexCount: vertices, EdgeCount: edges}, nil
}

// ---------- Internal helpers ----------

// inTx runs fn inside an explicit transaction. Callers hold s.writes.
func (s *KuzuStore) inTx(fn func() error) error {
	if err := s.exec("BEGIN TRANSACTION", nil); err != nil {
		return fmt.Errorf("kuzu: begin: %w", err)
	}
	if err := fn(); err != nil {
		if rbErr := s.exec("ROLLBACK", nil); rbErr != nil {
			return fmt.Errorf("kuzu: rollback after %v: %w", err, rbErr)
		}
		return err
	}
	if err := s.exec("COMMIT", nil); err != nil {
		return fmt.Errorf("kuzu: commit: %w", err)
	}
	return nil
}

// exec runs a Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	if len(params) == 0 {
		res, err := s.conn.Query(cypher)
		if err != nil {
			return fmt.Errorf("kuzu: execute: %w", err)
		}
		res.Close()
		return nil
	}
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a parameterized Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	if len(params) == 0 {
		return s.collect(s.conn.Query(cypher))
	}
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return nil, fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()
	return s.collect(s.conn.Execute(stmt, params))
}

func (s *KuzuStore) collect(res *kuzu.QueryResult, err error) ([][]any, error) {
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

func (s *KuzuStore) count(cypher string) (int, error) {
	rows, err := s.query(cypher, nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return int(toInt64(rows[0][0])), nil
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, uint64, float64, string).

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
