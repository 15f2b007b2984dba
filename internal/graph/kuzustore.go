//go:build cgo

package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	kuzu "github.com/kuzudb/go-kuzu"
	"go.uber.org/zap"
)

// KuzuStore implements the Store interface using KuzuDB as an embedded graph
// backend. It requires CGO because the go-kuzu driver wraps KuzuDB's C library.
//
// A single connection is shared; mu serialises statements and transactions.
type KuzuStore struct {
	mu     sync.Mutex
	db     *kuzu.Database
	conn   *kuzu.Connection
	logger *zap.Logger
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore(logger *zap.Logger) (*KuzuStore, error) {
	return openKuzu(":memory:", logger)
}

// NewKuzuFileStore creates a KuzuStore backed by a file-based KuzuDB at the
// given path. KuzuDB creates the leaf directory itself for new databases.
func NewKuzuFileStore(dbPath string, logger *zap.Logger) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath, logger)
}

func openKuzu(path string, logger *zap.Logger) (*KuzuStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database %s: %w: %v", path, ErrStoreConnection, err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w: %v", ErrStoreConnection, err)
	}
	return &KuzuStore{db: db, conn: conn, logger: logger}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	return nil
}

// ---------- Schema setup ----------

// kuzuDDL renders the schema as Kuzu DDL. Node tables precede relationship
// tables. Kuzu has no secondary property indexes, so the primary key on id
// is the only index created.
func kuzuDDL() []string {
	var stmts []string
	for _, d := range NodeDefs {
		cols := []string{"id STRING"}
		for _, p := range d.Properties {
			cols = append(cols, p.Name+" "+string(p.Type))
		}
		stmts = append(stmts, fmt.Sprintf("CREATE NODE TABLE IF NOT EXISTS %s(%s, PRIMARY KEY(id))",
			d.Label, strings.Join(cols, ", ")))
	}
	for _, d := range RelDefs {
		var parts []string
		for _, e := range d.Endpoints {
			parts = append(parts, fmt.Sprintf("FROM %s TO %s", e[0], e[1]))
		}
		for _, p := range d.Properties {
			parts = append(parts, p.Name+" "+string(p.Type))
		}
		stmts = append(stmts, fmt.Sprintf("CREATE REL TABLE IF NOT EXISTS %s(%s)", d.Type, strings.Join(parts, ", ")))
	}
	return stmts
}

// InitSchema creates all node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range kuzuDDL() {
		res, err := s.conn.Query(stmt)
		if err != nil {
			if isKuzuConflict(err) {
				s.logger.Debug("schema element exists", zap.String("statement", stmt))
				continue
			}
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

func isKuzuConflict(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// ---------- Write operations ----------

// UpsertNode merges a node outside any explicit transaction.
func (s *KuzuStore) UpsertNode(ctx context.Context, n Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return kuzuWriter{s}.UpsertNode(ctx, n)
}

// UpsertRelationship merges a relationship outside any explicit transaction.
func (s *KuzuStore) UpsertRelationship(ctx context.Context, r Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return kuzuWriter{s}.UpsertRelationship(ctx, r)
}

// Batch runs fn inside BEGIN TRANSACTION / COMMIT, rolling back on error.
func (s *KuzuStore) Batch(ctx context.Context, fn func(w Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.run("BEGIN TRANSACTION"); err != nil {
		return fmt.Errorf("kuzu: begin: %w", err)
	}
	if err := fn(kuzuWriter{s}); err != nil {
		if rbErr := s.run("ROLLBACK"); rbErr != nil {
			s.logger.Warn("kuzu rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := s.run("COMMIT"); err != nil {
		return &WriteError{Command: "COMMIT", Err: err}
	}
	return nil
}

// kuzuWriter issues writes on the store's connection. Callers hold s.mu.
type kuzuWriter struct{ s *KuzuStore }

func (w kuzuWriter) UpsertNode(_ context.Context, n Node) error {
	props, createProps, err := validateNode(n)
	if err != nil {
		return &WriteError{Command: fmt.Sprintf("upsert %s %s", n.Label, n.ID), Err: err}
	}
	st := mergeNodeStatement(n, props, createProps)
	if _, err := w.s.query(st.cypher, st.params); err != nil {
		return &WriteError{Command: st.cypher, Err: err}
	}
	return nil
}

func (w kuzuWriter) UpsertRelationship(_ context.Context, r Relationship) error {
	props, err := validateRelationship(r)
	if err != nil {
		return &WriteError{Command: fmt.Sprintf("upsert %s %s -> %s", r.Type, r.From, r.To), Err: err}
	}
	st := mergeRelStatement(r, props)
	rows, err := w.s.query(st.cypher, st.params)
	if err != nil {
		return &WriteError{Command: st.cypher, Err: err}
	}
	if len(rows) == 0 || len(rows[0]) == 0 || toInt(rows[0][0]) == 0 {
		return &WriteError{Command: st.cypher, Err: ErrMissingEndpoint}
	}
	return nil
}

// ---------- Read operations ----------

// ReadNodes returns nodes matching f, ordered by id.
func (s *KuzuStore) ReadNodes(_ context.Context, f NodeFilter) ([]Node, error) {
	st, def, err := readNodesStatement(f)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.query(st.cypher, st.params)
	if err != nil {
		return nil, err
	}
	out := make([]Node, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToNode(def, r))
	}
	return out, nil
}

// ReadRelationships returns relationships matching f, ordered by (from, to).
func (s *KuzuStore) ReadRelationships(_ context.Context, f RelFilter) ([]Relationship, error) {
	st, def, err := readRelsStatement(f)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.query(st.cypher, st.params)
	if err != nil {
		return nil, err
	}
	out := make([]Relationship, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToRelationship(def, r))
	}
	return out, nil
}

// ---------- Internal helpers ----------

// run executes an unparameterised statement and discards its result.
func (s *KuzuStore) run(cypher string) error {
	if s.conn == nil {
		return ErrStoreConnection
	}
	res, err := s.conn.Query(cypher)
	if err != nil {
		return err
	}
	res.Close()
	return nil
}

// query runs a parameterized Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	if s.conn == nil {
		return nil, ErrStoreConnection
	}
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
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
