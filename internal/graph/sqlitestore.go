//go:build cgo

package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store and Traverser on a single SQLite file.
// Clones share the *sql.DB pool; writes serialize inside SQLite.
type SQLiteStore struct {
	db    *sql.DB
	owner bool
}

var (
	_ Store     = (*SQLiteStore)(nil)
	_ Traverser = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens a SQLite database at dbPath with WAL mode enabled.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create parent directory: %w", err)
		}
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=30000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and avoids
	// SQLITE_BUSY between pooled writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping database: %w", err)
	}
	return &SQLiteStore{db: db, owner: true}, nil
}

// Clone returns a handle on the same pool.
func (s *SQLiteStore) Clone() (Store, error) {
	return &SQLiteStore{db: s.db}, nil
}

// Close closes the pool if s opened it.
func (s *SQLiteStore) Close() error {
	if !s.owner {
		return nil
	}
	return s.db.Close()
}

const sqliteDDL = `
CREATE TABLE IF NOT EXISTS vertices (
  id        INTEGER PRIMARY KEY AUTOINCREMENT,
  label     TEXT NOT NULL,
  key       TEXT NOT NULL,
  file      TEXT NOT NULL,
  lineno    INTEGER NOT NULL DEFAULT 0,
  code      TEXT,
  ast       TEXT,
  func_name TEXT
);

CREATE TABLE IF NOT EXISTS edges (
  id    INTEGER PRIMARY KEY AUTOINCREMENT,
  label TEXT NOT NULL,
  src   INTEGER NOT NULL REFERENCES vertices(id),
  dst   INTEGER NOT NULL REFERENCES vertices(id),
  props TEXT
);

CREATE INDEX IF NOT EXISTS idx_vertices_file ON vertices(file);
CREATE INDEX IF NOT EXISTS idx_vertices_key ON vertices(key);
CREATE INDEX IF NOT EXISTS idx_edges_src ON edges(src);
CREATE INDEX IF NOT EXISTS idx_edges_dst ON edges(dst);
CREATE INDEX IF NOT EXISTS idx_edges_label ON edges(label);
`

// Init creates tables and indexes. Idempotent.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteDDL); err != nil {
		return fmt.Errorf("sqlite: init schema: %w", err)
	}
	return nil
}

// Drop deletes all rows.
func (s *SQLiteStore) Drop(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM edges"); err != nil {
			return fmt.Errorf("sqlite: drop edges: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM vertices"); err != nil {
			return fmt.Errorf("sqlite: drop vertices: %w", err)
		}
		return nil
	})
}

// AddVertex inserts v and returns its row ID.
func (s *SQLiteStore) AddVertex(ctx context.Context, v Vertex) (VertexID, error) {
	ids, err := s.AddVertexBulk(ctx, []Vertex{v})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// AddVertexBulk inserts vs in one transaction.
func (s *SQLiteStore) AddVertexBulk(ctx context.Context, vs []Vertex) ([]VertexID, error) {
	ids := make([]VertexID, 0, len(vs))
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO vertices (label, key, file, lineno, code, ast, func_name) VALUES (?, ?, ?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("sqlite: prepare vertex insert: %w", err)
		}
		defer stmt.Close()
		for _, v := range vs {
			res, err := stmt.ExecContext(ctx, string(v.Label), v.Key(), v.File, v.Lineno, v.Code, v.AST, v.FuncName)
			if err != nil {
				return fmt.Errorf("sqlite: insert vertex %s: %w", v.Key(), err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("sqlite: vertex id %s: %w", v.Key(), err)
			}
			ids = append(ids, VertexID(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// AddEdge inserts one edge.
func (s *SQLiteStore) AddEdge(ctx context.Context, e StoredEdge) error {
	return s.AddEdgeBulk(ctx, []StoredEdge{e})
}

// AddEdgeBulk inserts es in one transaction.
func (s *SQLiteStore) AddEdgeBulk(ctx context.Context, es []StoredEdge) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO edges (label, src, dst, props) VALUES (?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("sqlite: prepare edge insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range es {
			var props sql.NullString
			if len(e.Props) > 0 {
				b, err := json.Marshal(e.Props)
				if err != nil {
					return fmt.Errorf("sqlite: encode edge props: %w", err)
				}
				props = sql.NullString{String: string(b), Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, string(e.Label), int64(e.From), int64(e.To), props); err != nil {
				return fmt.Errorf("sqlite: insert %s edge %d->%d: %w", e.Label, e.From, e.To, err)
			}
		}
		return nil
	})
}

// RelatedFiles returns files linked to file by a related edge in either direction.
func (s *SQLiteStore) RelatedFiles(ctx context.Context, file string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT b.file FROM edges e
		  JOIN vertices a ON a.id = e.src
		  JOIN vertices b ON b.id = e.dst
		 WHERE e.label = 'related' AND a.file = ? AND b.file <> ?
		UNION
		SELECT DISTINCT a.file FROM edges e
		  JOIN vertices a ON a.id = e.src
		  JOIN vertices b ON b.id = e.dst
		 WHERE e.label = 'related' AND b.file = ? AND a.file <> ?
		ORDER BY 1`, file, file, file, file)
	if err != nil {
		return nil, fmt.Errorf("sqlite: related files of %s: %w", file, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("sqlite: scan related file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// DeleteFile removes the vertices of file and their incident edges.
func (s *SQLiteStore) DeleteFile(ctx context.Context, file string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM edges
			 WHERE src IN (SELECT id FROM vertices WHERE file = ?)
			    OR dst IN (SELECT id FROM vertices WHERE file = ?)`, file, file); err != nil {
			return fmt.Errorf("sqlite: delete edges of %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM vertices WHERE file = ?", file); err != nil {
			return fmt.Errorf("sqlite: delete vertices of %s: %w", file, err)
		}
		return nil
	})
}

// Stats returns vertex and edge counts.
func (s *SQLiteStore) Stats(ctx context.Context) (*GraphStats, error) {
	var st GraphStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
		  (SELECT count(*) FROM vertices WHERE label = 'file'),
		  (SELECT count(*) FROM vertices),
		  (SELECT count(*) FROM edges)`).Scan(&st.FileCount, &st.VertexCount, &st.EdgeCount)
	if err != nil {
		return nil, fmt.Errorf("sqlite: stats: %w", err)
	}
	return &st, nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}
