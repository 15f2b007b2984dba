package graph

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// --- Enums ---

// Label names a node type in the code knowledge graph.
type Label string

const (
	LabelProject  Label = "Project"
	LabelFile     Label = "File"
	LabelClass    Label = "Class"
	LabelFunction Label = "Function"
	LabelImport   Label = "Import"
)

// RelType names a relationship type.
type RelType string

const (
	RelContains   RelType = "CONTAINS"
	RelExtends    RelType = "EXTENDS"
	RelImplements RelType = "IMPLEMENTS"
	RelCalls      RelType = "CALLS"
	RelImports    RelType = "IMPORTS"
)

// PropType is the column type of a property. Every backend stores scalar
// values only; list-valued properties are comma-joined strings.
type PropType string

const (
	PropString PropType = "STRING"
	PropInt    PropType = "INT64"
	PropBool   PropType = "BOOLEAN"
)

// --- Declarative schema ---

// Property declares one node or relationship property.
type Property struct {
	Name    string
	Type    PropType
	Indexed bool
}

// NodeDef declares a node label. Every label also has a unique "id"
// property that is not listed in Properties.
type NodeDef struct {
	Label      Label
	Properties []Property
}

// RelDef declares a relationship type and the label pairs it may connect.
type RelDef struct {
	Type       RelType
	Endpoints  [][2]Label
	Properties []Property
}

var graphIDProp = Property{Name: "graph_id", Type: PropString, Indexed: true}

// NodeDefs is the node schema applied by every store's InitSchema.
var NodeDefs = []NodeDef{
	{Label: LabelProject, Properties: []Property{
		graphIDProp,
		{Name: "project_id", Type: PropString, Indexed: true},
		{Name: "created_at", Type: PropInt},
	}},
	{Label: LabelFile, Properties: []Property{
		graphIDProp,
		{Name: "path", Type: PropString, Indexed: true},
		{Name: "language", Type: PropString},
		{Name: "loc", Type: PropInt},
	}},
	{Label: LabelClass, Properties: []Property{
		graphIDProp,
		{Name: "name", Type: PropString, Indexed: true},
		{Name: "kind", Type: PropString},
		{Name: "file_path", Type: PropString, Indexed: true},
		{Name: "qualified_name", Type: PropString},
		{Name: "superclass", Type: PropString},
		{Name: "interfaces", Type: PropString},
		{Name: "unresolved_supertypes", Type: PropString},
		{Name: "modifiers", Type: PropString},
		{Name: "attributes", Type: PropString},
		{Name: "method_count", Type: PropInt},
		{Name: "start_line", Type: PropInt},
		{Name: "end_line", Type: PropInt},
	}},
	{Label: LabelFunction, Properties: []Property{
		graphIDProp,
		{Name: "name", Type: PropString, Indexed: true},
		{Name: "file_path", Type: PropString, Indexed: true},
		{Name: "qualified_name", Type: PropString},
		{Name: "owner_class", Type: PropString},
		{Name: "is_method", Type: PropBool},
		{Name: "parameters", Type: PropString},
		{Name: "return_type", Type: PropString},
		{Name: "modifiers", Type: PropString},
		{Name: "start_line", Type: PropInt},
		{Name: "end_line", Type: PropInt},
	}},
	{Label: LabelImport, Properties: []Property{
		graphIDProp,
		{Name: "module_path", Type: PropString},
	}},
}

// RelDefs is the relationship schema. Order matters for stores that
// create tables: node tables must exist first.
var RelDefs = []RelDef{
	{Type: RelContains, Endpoints: [][2]Label{
		{LabelProject, LabelFile},
		{LabelFile, LabelClass},
		{LabelFile, LabelFunction},
		{LabelClass, LabelFunction},
	}, Properties: []Property{graphIDProp}},
	{Type: RelExtends, Endpoints: [][2]Label{{LabelClass, LabelClass}}, Properties: []Property{graphIDProp}},
	{Type: RelImplements, Endpoints: [][2]Label{{LabelClass, LabelClass}}, Properties: []Property{graphIDProp}},
	{Type: RelCalls, Endpoints: [][2]Label{{LabelFunction, LabelFunction}}, Properties: []Property{graphIDProp}},
	{Type: RelImports, Endpoints: [][2]Label{{LabelFile, LabelImport}}, Properties: []Property{
		graphIDProp,
		{Name: "alias", Type: PropString},
		{Name: "resolved_path", Type: PropString},
	}},
}

func nodeDef(label Label) (NodeDef, bool) {
	for _, d := range NodeDefs {
		if d.Label == label {
			return d, true
		}
	}
	return NodeDef{}, false
}

func relDef(t RelType) (RelDef, bool) {
	for _, d := range RelDefs {
		if d.Type == t {
			return d, true
		}
	}
	return RelDef{}, false
}

func findProperty(props []Property, name string) (Property, bool) {
	for _, p := range props {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

func (d RelDef) allows(from, to Label) bool {
	for _, e := range d.Endpoints {
		if e[0] == from && e[1] == to {
			return true
		}
	}
	return false
}

// coerce converts v to the Go type a backend expects for the column:
// string, int64, or bool.
func coerce(p Property, v any) (any, error) {
	switch p.Type {
	case PropString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return toString(v), nil
	case PropInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		}
	case PropBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("property %s: cannot store %T as %s", p.Name, v, p.Type)
}

// validateNode checks n against the schema and returns its properties
// coerced to column types. Create-only properties are returned separately.
func validateNode(n Node) (props, createProps map[string]any, err error) {
	def, ok := nodeDef(n.Label)
	if !ok {
		return nil, nil, fmt.Errorf("label %q: %w", n.Label, ErrUnknownSchema)
	}
	if n.ID == "" {
		return nil, nil, fmt.Errorf("%s node without id", n.Label)
	}
	conv := func(in map[string]any) (map[string]any, error) {
		out := make(map[string]any, len(in))
		for k, v := range in {
			p, ok := findProperty(def.Properties, k)
			if !ok {
				return nil, fmt.Errorf("%s.%s: %w", n.Label, k, ErrUnknownSchema)
			}
			c, err := coerce(p, v)
			if err != nil {
				return nil, err
			}
			out[k] = c
		}
		return out, nil
	}
	if props, err = conv(n.Props); err != nil {
		return nil, nil, err
	}
	if createProps, err = conv(n.CreateProps); err != nil {
		return nil, nil, err
	}
	return props, createProps, nil
}

// validateRelationship checks r against the schema and returns its
// properties coerced to column types.
func validateRelationship(r Relationship) (map[string]any, error) {
	def, ok := relDef(r.Type)
	if !ok {
		return nil, fmt.Errorf("relationship %q: %w", r.Type, ErrUnknownSchema)
	}
	if !def.allows(r.FromLabel, r.ToLabel) {
		return nil, fmt.Errorf("%s from %s to %s: %w", r.Type, r.FromLabel, r.ToLabel, ErrUnknownSchema)
	}
	out := make(map[string]any, len(r.Props))
	for k, v := range r.Props {
		p, ok := findProperty(def.Properties, k)
		if !ok {
			return nil, fmt.Errorf("%s.%s: %w", r.Type, k, ErrUnknownSchema)
		}
		c, err := coerce(p, v)
		if err != nil {
			return nil, err
		}
		out[k] = c
	}
	return out, nil
}

// --- Identity keys ---

// Keys are deterministic so that re-ingesting the same snapshot upserts the
// same nodes. Each key starts with its label, which lets readers recover a
// node's label from a relationship endpoint.

const keySep = "|"

func key(label Label, parts ...string) string {
	return string(label) + keySep + strings.Join(parts, keySep)
}

// ProjectKey identifies the Project node of a graph snapshot.
func ProjectKey(graphID string) string { return key(LabelProject, graphID) }

// FileKey identifies a File node.
func FileKey(graphID, path string) string { return key(LabelFile, graphID, path) }

// ClassKey identifies a Class node.
func ClassKey(graphID, filePath, qualifiedName string) string {
	return key(LabelClass, graphID, filePath, qualifiedName)
}

// FunctionKey identifies a Function node. Methods use "Class.method" as
// their qualified name.
func FunctionKey(graphID, filePath, qualifiedName string) string {
	return key(LabelFunction, graphID, filePath, qualifiedName)
}

// ImportKey identifies an Import node.
func ImportKey(graphID, modulePath string) string { return key(LabelImport, graphID, modulePath) }

// LabelOfKey returns the label prefix of an identity key.
func LabelOfKey(id string) Label {
	if i := strings.Index(id, keySep); i >= 0 {
		return Label(id[:i])
	}
	return ""
}

// NewGraphID returns a fresh snapshot identifier.
func NewGraphID() string {
	return uuid.NewString()
}

// FallbackGraphID is the deterministic graph id used for a project that
// has no Project node yet.
func FallbackGraphID(projectID string) string {
	return "project_" + projectID + "_graph"
}
