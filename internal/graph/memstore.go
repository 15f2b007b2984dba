package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// relKey identifies a relationship. At most one relationship of a type
// exists between two nodes.
type relKey struct {
	typ      RelType
	from, to string
}

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
// It enforces the same schema checks as the database backends.
type MemStore struct {
	mu    sync.RWMutex
	nodes map[string]Node // key: node id
	rels  map[relKey]Relationship
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes: make(map[string]Node),
		rels:  make(map[relKey]Relationship),
	}
}

// InitSchema is a no-op for the in-memory store.
func (m *MemStore) InitSchema(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}

// UpsertNode creates or updates a node.
func (m *MemStore) UpsertNode(ctx context.Context, n Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertNode(n, nil)
}

// UpsertRelationship creates or updates a relationship.
func (m *MemStore) UpsertRelationship(ctx context.Context, r Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertRelationship(r, nil)
}

// Batch applies fn's writes atomically. The store stays locked for the
// duration of fn; on error every write made by fn is undone.
func (m *MemStore) Batch(ctx context.Context, fn func(w Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		m:         m,
		prevNodes: make(map[string]*Node),
		prevRels:  make(map[relKey]*Relationship),
	}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// ReadNodes returns matching nodes ordered by id. Filter keys are checked
// against the schema the same way the Cypher backends check them.
func (m *MemStore) ReadNodes(_ context.Context, f NodeFilter) ([]Node, error) {
	where, err := validateWhere(f)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Node, 0)
	for _, n := range m.nodes {
		if n.Label != f.Label {
			continue
		}
		if f.GraphID != "" && n.String("graph_id") != f.GraphID {
			continue
		}
		if !matchesWhere(n.Props, where) {
			continue
		}
		out = append(out, Node{Label: n.Label, ID: n.ID, Props: copyProps(n.Props)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ReadRelationships returns matching relationships ordered by (from, to).
func (m *MemStore) ReadRelationships(_ context.Context, f RelFilter) ([]Relationship, error) {
	if _, ok := relDef(f.Type); !ok {
		return nil, fmt.Errorf("relationship %q: %w", f.Type, ErrUnknownSchema)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Relationship, 0)
	for _, r := range m.rels {
		if r.Type != f.Type {
			continue
		}
		if f.GraphID != "" && toString(r.Props["graph_id"]) != f.GraphID {
			continue
		}
		r.Props = copyProps(r.Props)
		out = append(out, r)
	}
	sortRelationships(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// upsertNode applies n. When tx is non-nil the previous state is recorded
// for rollback. Callers hold m.mu.
func (m *MemStore) upsertNode(n Node, tx *memTx) error {
	props, createProps, err := validateNode(n)
	if err != nil {
		return &WriteError{Command: fmt.Sprintf("upsert %s %s", n.Label, n.ID), Err: err}
	}
	prev, exists := m.nodes[n.ID]
	if tx != nil {
		tx.saveNode(n.ID, prev, exists)
	}
	merged := make(map[string]any, len(props)+len(createProps))
	if exists {
		for k, v := range prev.Props {
			merged[k] = v
		}
	} else {
		for k, v := range createProps {
			merged[k] = v
		}
	}
	for k, v := range props {
		merged[k] = v
	}
	m.nodes[n.ID] = Node{Label: n.Label, ID: n.ID, Props: merged}
	return nil
}

func (m *MemStore) upsertRelationship(r Relationship, tx *memTx) error {
	cmd := fmt.Sprintf("upsert %s %s -> %s", r.Type, r.From, r.To)
	props, err := validateRelationship(r)
	if err != nil {
		return &WriteError{Command: cmd, Err: err}
	}
	from, okFrom := m.nodes[r.From]
	to, okTo := m.nodes[r.To]
	if !okFrom || !okTo || from.Label != r.FromLabel || to.Label != r.ToLabel {
		return &WriteError{Command: cmd, Err: ErrMissingEndpoint}
	}
	k := relKey{typ: r.Type, from: r.From, to: r.To}
	prev, exists := m.rels[k]
	if tx != nil {
		tx.saveRel(k, prev, exists)
	}
	merged := make(map[string]any, len(props))
	if exists {
		for pk, v := range prev.Props {
			merged[pk] = v
		}
	}
	for pk, v := range props {
		merged[pk] = v
	}
	r.Props = merged
	m.rels[k] = r
	return nil
}

// memTx is the Writer handed to Batch callbacks. It records the first
// prior state of every touched entry so a failed batch can be undone.
type memTx struct {
	m         *MemStore
	prevNodes map[string]*Node // nil value: node did not exist
	prevRels  map[relKey]*Relationship
}

func (tx *memTx) UpsertNode(_ context.Context, n Node) error {
	return tx.m.upsertNode(n, tx)
}

func (tx *memTx) UpsertRelationship(_ context.Context, r Relationship) error {
	return tx.m.upsertRelationship(r, tx)
}

func (tx *memTx) saveNode(id string, prev Node, exists bool) {
	if _, seen := tx.prevNodes[id]; seen {
		return
	}
	if exists {
		tx.prevNodes[id] = &prev
	} else {
		tx.prevNodes[id] = nil
	}
}

func (tx *memTx) saveRel(k relKey, prev Relationship, exists bool) {
	if _, seen := tx.prevRels[k]; seen {
		return
	}
	if exists {
		tx.prevRels[k] = &prev
	} else {
		tx.prevRels[k] = nil
	}
}

func (tx *memTx) rollback() {
	for k, prev := range tx.prevRels {
		if prev == nil {
			delete(tx.m.rels, k)
		} else {
			tx.m.rels[k] = *prev
		}
	}
	for id, prev := range tx.prevNodes {
		if prev == nil {
			delete(tx.m.nodes, id)
		} else {
			tx.m.nodes[id] = *prev
		}
	}
}

// validateWhere resolves f's label and coerces each filter value to its
// declared property type.
func validateWhere(f NodeFilter) (map[string]any, error) {
	def, ok := nodeDef(f.Label)
	if !ok {
		return nil, fmt.Errorf("label %q: %w", f.Label, ErrUnknownSchema)
	}
	where := make(map[string]any, len(f.Where))
	for k, v := range f.Where {
		p, ok := findProperty(def.Properties, k)
		if !ok {
			return nil, fmt.Errorf("%s.%s: %w", f.Label, k, ErrUnknownSchema)
		}
		cv, err := coerce(p, v)
		if err != nil {
			return nil, err
		}
		where[k] = cv
	}
	return where, nil
}

func matchesWhere(props, where map[string]any) bool {
	for k, want := range where {
		got, ok := props[k]
		if !ok || toString(got) != toString(want) {
			return false
		}
	}
	return true
}

func sortRelationships(rels []Relationship) {
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].From != rels[j].From {
			return rels[i].From < rels[j].From
		}
		return rels[i].To < rels[j].To
	})
}
