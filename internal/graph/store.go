package graph

import (
	"context"
	"io"
)

// Store is the interface for the code knowledge graph backend.
// Implementations: KuzuStore (embedded), Neo4jStore (server), MemStore (testing).
// All graph DB access goes through this interface; nothing outside this
// package builds Cypher.
type Store interface {
	io.Closer
	Writer

	// InitSchema applies uniqueness constraints and property indexes for
	// every label in NodeDefs. It is idempotent: elements that already
	// exist are treated as success.
	InitSchema(ctx context.Context) error

	// Batch runs fn inside a single write transaction. Either every write
	// made through the supplied Writer is applied, or none is.
	Batch(ctx context.Context, fn func(w Writer) error) error

	// ReadNodes returns the nodes matching f, ordered by id.
	ReadNodes(ctx context.Context, f NodeFilter) ([]Node, error)

	// ReadRelationships returns the relationships matching f, ordered by
	// (from, to).
	ReadRelationships(ctx context.Context, f RelFilter) ([]Relationship, error)
}

// Writer is the write half of a Store. Both operations are upserts: writing
// the same node or relationship twice leaves one copy.
type Writer interface {
	// UpsertNode creates the node if no node with its label and id exists,
	// then sets Props. CreateProps are only set on creation.
	UpsertNode(ctx context.Context, n Node) error

	// UpsertRelationship creates the relationship if it does not exist,
	// then sets Props. It fails with ErrMissingEndpoint when either
	// endpoint node is absent.
	UpsertRelationship(ctx context.Context, r Relationship) error
}

// Node is a labelled graph node. Props never contains "id".
type Node struct {
	Label       Label
	ID          string
	Props       map[string]any
	CreateProps map[string]any
}

// Relationship is a typed, directed edge between two nodes identified by
// label and id.
type Relationship struct {
	Type      RelType
	FromLabel Label
	From      string
	ToLabel   Label
	To        string
	Props     map[string]any
}

// NodeFilter selects nodes of one label. Empty fields do not filter.
type NodeFilter struct {
	Label   Label
	GraphID string
	// Where holds additional property equality constraints.
	Where map[string]any
	Limit int
}

// RelFilter selects relationships of one type.
type RelFilter struct {
	Type    RelType
	GraphID string
	Limit   int
}

// NewRelationship builds a relationship between two identity keys,
// deriving both endpoint labels from the keys.
func NewRelationship(t RelType, from, to string, props map[string]any) Relationship {
	return Relationship{
		Type:      t,
		FromLabel: LabelOfKey(from),
		From:      from,
		ToLabel:   LabelOfKey(to),
		To:        to,
		Props:     props,
	}
}

// String returns a node property as a string, or "" if absent.
func (n Node) String(name string) string {
	v, ok := n.Props[name]
	if !ok || v == nil {
		return ""
	}
	return toString(v)
}

// Int returns a node property as an int, or 0 if absent.
func (n Node) Int(name string) int {
	return toInt(n.Props[name])
}

// Bool returns a node property as a bool, or false if absent.
func (n Node) Bool(name string) bool {
	return toBool(n.Props[name])
}
