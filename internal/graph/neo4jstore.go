package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4jConfig holds connection settings for a Neo4j server.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string // empty selects the server default
}

// Neo4jStore implements Store against a Neo4j server over Bolt.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// Compile-time check that Neo4jStore satisfies Store.
var _ Store = (*Neo4jStore)(nil)

// NewNeo4jStore connects to Neo4j and verifies connectivity.
func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig, logger *zap.Logger) (*Neo4jStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j: create driver: %w: %v", ErrStoreConnection, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify %s: %w: %v", cfg.URI, ErrStoreConnection, err)
	}
	return &Neo4jStore{driver: driver, database: cfg.Database, logger: logger}, nil
}

// Close releases the driver and its connection pool.
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

// ---------- Schema setup ----------

// neo4jSchema renders a uniqueness constraint on id for every label plus
// one index per indexed property.
func neo4jSchema() []string {
	var stmts []string
	for _, d := range NodeDefs {
		lower := strings.ToLower(string(d.Label))
		stmts = append(stmts, fmt.Sprintf(
			"CREATE CONSTRAINT ckg_%s_id IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE", lower, d.Label))
		for _, p := range d.Properties {
			if !p.Indexed {
				continue
			}
			stmts = append(stmts, fmt.Sprintf(
				"CREATE INDEX ckg_%s_%s IF NOT EXISTS FOR (n:%s) ON (n.%s)", lower, p.Name, d.Label, p.Name))
		}
	}
	return stmts
}

// InitSchema applies constraints and indexes. Equivalent elements that
// already exist are logged and skipped.
func (s *Neo4jStore) InitSchema(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range neo4jSchema() {
		result, err := session.Run(ctx, stmt, nil)
		if err == nil {
			_, err = result.Consume(ctx)
		}
		if err == nil {
			continue
		}
		err = classifyNeo4j(err)
		if IsSchemaConflict(err) {
			s.logger.Debug("schema element exists", zap.String("statement", stmt))
			continue
		}
		return fmt.Errorf("neo4j: init schema: %w", err)
	}
	return nil
}

// classifyNeo4j maps driver errors onto the package's sentinel errors.
func classifyNeo4j(err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) {
		return fmt.Errorf("%w: %v", ErrStoreConnection, err)
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		switch {
		case strings.HasSuffix(neoErr.Code, "EquivalentSchemaRuleAlreadyExists"),
			strings.HasSuffix(neoErr.Code, "ConstraintAlreadyExists"),
			strings.HasSuffix(neoErr.Code, "IndexAlreadyExists"):
			return fmt.Errorf("%w: %v", ErrSchemaConflict, err)
		}
	}
	return err
}

// ---------- Write operations ----------

// UpsertNode merges a node in its own write transaction.
func (s *Neo4jStore) UpsertNode(ctx context.Context, n Node) error {
	return s.Batch(ctx, func(w Writer) error { return w.UpsertNode(ctx, n) })
}

// UpsertRelationship merges a relationship in its own write transaction.
func (s *Neo4jStore) UpsertRelationship(ctx context.Context, r Relationship) error {
	return s.Batch(ctx, func(w Writer) error { return w.UpsertRelationship(ctx, r) })
}

// Batch runs fn in a managed write transaction. The driver may retry fn on
// transient failures; fn must therefore be safe to re-run.
func (s *Neo4jStore) Batch(ctx context.Context, fn func(w Writer) error) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, fn(neo4jWriter{tx: tx})
	})
	if err == nil {
		return nil
	}
	var we *WriteError
	if errors.As(err, &we) {
		we.Err = classifyNeo4j(we.Err)
		return we
	}
	return classifyNeo4j(err)
}

type neo4jWriter struct {
	tx neo4j.ManagedTransaction
}

func (w neo4jWriter) UpsertNode(ctx context.Context, n Node) error {
	props, createProps, err := validateNode(n)
	if err != nil {
		return &WriteError{Command: fmt.Sprintf("upsert %s %s", n.Label, n.ID), Err: err}
	}
	st := mergeNodeStatement(n, props, createProps)
	result, err := w.tx.Run(ctx, st.cypher, st.params)
	if err == nil {
		_, err = result.Consume(ctx)
	}
	if err != nil {
		return &WriteError{Command: st.cypher, Err: err}
	}
	return nil
}

func (w neo4jWriter) UpsertRelationship(ctx context.Context, r Relationship) error {
	props, err := validateRelationship(r)
	if err != nil {
		return &WriteError{Command: fmt.Sprintf("upsert %s %s -> %s", r.Type, r.From, r.To), Err: err}
	}
	st := mergeRelStatement(r, props)
	result, err := w.tx.Run(ctx, st.cypher, st.params)
	if err != nil {
		return &WriteError{Command: st.cypher, Err: err}
	}
	record, err := result.Single(ctx)
	if err != nil {
		return &WriteError{Command: st.cypher, Err: err}
	}
	if len(record.Values) == 0 || toInt(record.Values[0]) == 0 {
		return &WriteError{Command: st.cypher, Err: ErrMissingEndpoint}
	}
	return nil
}

// ---------- Read operations ----------

// ReadNodes returns nodes matching f, ordered by id.
func (s *Neo4jStore) ReadNodes(ctx context.Context, f NodeFilter) ([]Node, error) {
	st, def, err := readNodesStatement(f)
	if err != nil {
		return nil, err
	}
	rows, err := s.readRows(ctx, st)
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
func (s *Neo4jStore) ReadRelationships(ctx context.Context, f RelFilter) ([]Relationship, error) {
	st, def, err := readRelsStatement(f)
	if err != nil {
		return nil, err
	}
	rows, err := s.readRows(ctx, st)
	if err != nil {
		return nil, err
	}
	out := make([]Relationship, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToRelationship(def, r))
	}
	return out, nil
}

func (s *Neo4jStore) readRows(ctx context.Context, st statement) ([][]any, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	rows, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, st.cypher, st.params)
		if err != nil {
			return nil, err
		}
		var rows [][]any
		for result.Next(ctx) {
			rows = append(rows, result.Record().Values)
		}
		return rows, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: read: %w", classifyNeo4j(err))
	}
	return rows.([][]any), nil
}
