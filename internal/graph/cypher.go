package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Cypher builders shared by KuzuStore and Neo4jStore. Labels, relationship
// types, and property names are interpolated only after validation against
// the schema; every value travels as a parameter.

type statement struct {
	cypher string
	params map[string]any
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func setClause(alias string, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s.%s = $%s", alias, k, k)
	}
	return strings.Join(parts, ", ")
}

// mergeNodeStatement builds an idempotent node upsert. props and
// createProps must already be validated.
func mergeNodeStatement(n Node, props, createProps map[string]any) statement {
	params := map[string]any{"id": n.ID}
	onCreate := make(map[string]any, len(props)+len(createProps))
	for k, v := range createProps {
		onCreate[k] = v
		params[k] = v
	}
	for k, v := range props {
		onCreate[k] = v
		params[k] = v
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE (n:%s {id: $id})", n.Label)
	if len(onCreate) > 0 {
		fmt.Fprintf(&b, " ON CREATE SET %s", setClause("n", sortedKeys(onCreate)))
	}
	if len(props) > 0 {
		fmt.Fprintf(&b, " ON MATCH SET %s", setClause("n", sortedKeys(props)))
	}
	return statement{cypher: b.String(), params: params}
}

// mergeRelStatement builds an idempotent relationship upsert that returns
// the number of relationships matched or created. Zero means an endpoint
// is missing.
func mergeRelStatement(r Relationship, props map[string]any) statement {
	params := map[string]any{"src": r.From, "dst": r.To}
	for k, v := range props {
		params[k] = v
	}
	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (a:%s {id: $src}), (b:%s {id: $dst}) MERGE (a)-[r:%s]->(b)",
		r.FromLabel, r.ToLabel, r.Type)
	if len(props) > 0 {
		fmt.Fprintf(&b, " SET %s", setClause("r", sortedKeys(props)))
	}
	b.WriteString(" RETURN count(r)")
	return statement{cypher: b.String(), params: params}
}

// readNodesStatement builds a node read returning id followed by every
// declared property, in NodeDef order.
func readNodesStatement(f NodeFilter) (statement, NodeDef, error) {
	def, ok := nodeDef(f.Label)
	if !ok {
		return statement{}, NodeDef{}, fmt.Errorf("label %q: %w", f.Label, ErrUnknownSchema)
	}
	params := map[string]any{}
	var conds []string
	if f.GraphID != "" {
		conds = append(conds, "n.graph_id = $graph_id")
		params["graph_id"] = f.GraphID
	}
	for _, k := range sortedKeys(f.Where) {
		p, ok := findProperty(def.Properties, k)
		if !ok {
			return statement{}, NodeDef{}, fmt.Errorf("%s.%s: %w", f.Label, k, ErrUnknownSchema)
		}
		v, err := coerce(p, f.Where[k])
		if err != nil {
			return statement{}, NodeDef{}, err
		}
		name := "w_" + k
		conds = append(conds, fmt.Sprintf("n.%s = $%s", k, name))
		params[name] = v
	}

	cols := []string{"n.id"}
	for _, p := range def.Properties {
		cols = append(cols, "n."+p.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (n:%s)", f.Label)
	if len(conds) > 0 {
		fmt.Fprintf(&b, " WHERE %s", strings.Join(conds, " AND "))
	}
	fmt.Fprintf(&b, " RETURN %s ORDER BY n.id", strings.Join(cols, ", "))
	if f.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", f.Limit)
	}
	return statement{cypher: b.String(), params: params}, def, nil
}

// readRelsStatement builds a relationship read returning the endpoint ids
// followed by every declared property.
func readRelsStatement(f RelFilter) (statement, RelDef, error) {
	def, ok := relDef(f.Type)
	if !ok {
		return statement{}, RelDef{}, fmt.Errorf("relationship %q: %w", f.Type, ErrUnknownSchema)
	}
	params := map[string]any{}
	cols := []string{"a.id", "b.id"}
	for _, p := range def.Properties {
		cols = append(cols, "r."+p.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (a)-[r:%s]->(b)", f.Type)
	if f.GraphID != "" {
		b.WriteString(" WHERE r.graph_id = $graph_id")
		params["graph_id"] = f.GraphID
	}
	fmt.Fprintf(&b, " RETURN %s ORDER BY a.id, b.id", strings.Join(cols, ", "))
	if f.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", f.Limit)
	}
	return statement{cypher: b.String(), params: params}, def, nil
}

// rowToNode converts a row produced by readNodesStatement. Null columns
// are left out of Props.
func rowToNode(def NodeDef, row []any) Node {
	n := Node{Label: def.Label, ID: toString(row[0]), Props: make(map[string]any, len(def.Properties))}
	for i, p := range def.Properties {
		if i+1 >= len(row) || row[i+1] == nil {
			continue
		}
		n.Props[p.Name] = normalize(p, row[i+1])
	}
	return n
}

// rowToRelationship converts a row produced by readRelsStatement.
func rowToRelationship(def RelDef, row []any) Relationship {
	r := NewRelationship(def.Type, toString(row[0]), toString(row[1]), make(map[string]any, len(def.Properties)))
	for i, p := range def.Properties {
		if i+2 >= len(row) || row[i+2] == nil {
			continue
		}
		r.Props[p.Name] = normalize(p, row[i+2])
	}
	return r
}

// normalize maps a value read from a backend onto the type written for
// the column.
func normalize(p Property, v any) any {
	switch p.Type {
	case PropInt:
		return int64(toInt(v))
	case PropBool:
		return toBool(v)
	default:
		return toString(v)
	}
}
