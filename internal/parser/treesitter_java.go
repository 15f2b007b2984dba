package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// javaExtractor extracts classes, interfaces, enums, records, and imports
// from Java source. Java has no top-level functions.
type javaExtractor struct{}

func (e *javaExtractor) Extract(root *tree_sitter.Node, source []byte, res *ParseResult) {
	for _, child := range namedChildren(root) {
		switch child.Kind() {
		case "import_declaration":
			if ref, ok := e.extractImport(child, source); ok {
				res.Imports = append(res.Imports, ref)
			}
		case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
			e.extractType(child, "", source, res)
		}
	}
}

func (e *javaExtractor) extractImport(node *tree_sitter.Node, source []byte) (ImportRef, bool) {
	target := childOfKind(node, "scoped_identifier", "identifier")
	if target == nil {
		return ImportRef{}, false
	}
	path := text(target, source)
	if hasChildKind(node, "asterisk") {
		path += ".*"
	}
	return ImportRef{ModulePath: path}, true
}

// extractType appends the declaration and its nested types to res.Classes.
func (e *javaExtractor) extractType(node *tree_sitter.Node, outer string, source []byte, res *ParseResult) {
	name := text(node.ChildByFieldName("name"), source)
	if name == "" {
		return
	}
	cls := ClassLike{
		Name:      name,
		Kind:      ClassKindClass,
		Modifiers: javaModifiers(node, source),
		Range:     nodeRange(node),
	}
	if outer != "" {
		cls.QualifiedName = outer + "." + name
	}

	switch node.Kind() {
	case "interface_declaration":
		cls.Kind = ClassKindInterface
		// Interface supertypes are all interfaces.
		if ext := childOfKind(node, "extends_interfaces"); ext != nil {
			cls.Interfaces = javaTypeList(ext, source)
		}
	case "enum_declaration":
		cls.Kind = ClassKindEnum
	case "record_declaration":
		cls.Modifiers = appendUnique(cls.Modifiers, "record")
		for _, p := range e.parameters(node.ChildByFieldName("parameters"), source) {
			cls.Attributes = append(cls.Attributes, Field(p))
		}
	}

	if sc := node.ChildByFieldName("superclass"); sc != nil {
		if t := sc.NamedChild(0); t != nil {
			cls.Superclass = collapseSpace(text(t, source))
		}
	}
	if ifaces := node.ChildByFieldName("interfaces"); ifaces != nil {
		for _, t := range javaTypeList(ifaces, source) {
			cls.Interfaces = appendUnique(cls.Interfaces, t)
		}
	}

	body := node.ChildByFieldName("body")
	members := namedChildren(body)
	if body != nil && body.Kind() == "enum_body" {
		// Enum members after the constants live in enum_body_declarations.
		if decls := childOfKind(body, "enum_body_declarations"); decls != nil {
			members = namedChildren(decls)
		} else {
			members = nil
		}
	}

	var nested []*tree_sitter.Node
	for _, m := range members {
		switch m.Kind() {
		case "field_declaration", "constant_declaration":
			cls.Attributes = append(cls.Attributes, e.fields(m, source)...)
		case "method_declaration", "constructor_declaration", "compact_constructor_declaration":
			if fn, ok := e.extractMethod(m, name, source); ok {
				cls.Methods = append(cls.Methods, fn)
			}
		case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
			nested = append(nested, m)
		}
	}

	res.Classes = append(res.Classes, cls)
	for _, n := range nested {
		e.extractType(n, cls.FullName(), source, res)
	}
}

func (e *javaExtractor) extractMethod(node *tree_sitter.Node, className string, source []byte) (FunctionLike, bool) {
	name := text(node.ChildByFieldName("name"), source)
	if name == "" {
		return FunctionLike{}, false
	}
	fn := FunctionLike{
		Name:       name,
		Parameters: e.parameters(node.ChildByFieldName("parameters"), source),
		Modifiers:  javaModifiers(node, source),
		Range:      nodeRange(node),
	}
	switch node.Kind() {
	case "method_declaration":
		fn.ReturnType = collapseSpace(text(node.ChildByFieldName("type"), source))
	default:
		fn.Modifiers = appendUnique(fn.Modifiers, "constructor")
		fn.ReturnType = className
	}

	var calls callSites
	walk(node.ChildByFieldName("body"), func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "class_body":
			// Anonymous and local class bodies own their calls.
			return false
		case "method_invocation":
			calls.add(text(n.ChildByFieldName("name"), source))
		case "object_creation_expression":
			calls.add(SimpleTypeName(text(n.ChildByFieldName("type"), source)))
		}
		return true
	})
	fn.CallSites = calls.list()
	return fn, true
}

func (e *javaExtractor) parameters(params *tree_sitter.Node, source []byte) []Parameter {
	var out []Parameter
	for _, p := range namedChildren(params) {
		switch p.Kind() {
		case "formal_parameter":
			out = append(out, Parameter{
				Name:         text(p.ChildByFieldName("name"), source),
				DeclaredType: collapseSpace(text(p.ChildByFieldName("type"), source)),
			})
		case "spread_parameter":
			var typ, name string
			for _, c := range namedChildren(p) {
				switch c.Kind() {
				case "modifiers":
				case "variable_declarator":
					name = text(c.ChildByFieldName("name"), source)
				default:
					if typ == "" {
						typ = text(c, source)
					}
				}
			}
			out = append(out, Parameter{Name: name, DeclaredType: collapseSpace(typ) + "..."})
		}
	}
	return out
}

// fields expands "int a, b;" into one Field per declarator.
func (e *javaExtractor) fields(node *tree_sitter.Node, source []byte) []Field {
	typ := collapseSpace(text(node.ChildByFieldName("type"), source))
	var out []Field
	for _, c := range namedChildren(node) {
		if c.Kind() != "variable_declarator" {
			continue
		}
		out = append(out, Field{
			Name:         text(c.ChildByFieldName("name"), source),
			DeclaredType: typ,
		})
	}
	return out
}

// javaModifiers returns keyword modifiers and "@Annotation" names.
func javaModifiers(node *tree_sitter.Node, source []byte) []string {
	mods := childOfKind(node, "modifiers")
	if mods == nil {
		return nil
	}
	var out []string
	for _, c := range children(mods) {
		switch c.Kind() {
		case "marker_annotation", "annotation":
			out = append(out, "@"+text(c.ChildByFieldName("name"), source))
		default:
			if kw := strings.TrimSpace(text(c, source)); kw != "" {
				out = append(out, kw)
			}
		}
	}
	return out
}

// javaTypeList returns the type names under a super_interfaces or
// extends_interfaces node.
func javaTypeList(node *tree_sitter.Node, source []byte) []string {
	list := childOfKind(node, "type_list")
	if list == nil {
		list = node
	}
	var out []string
	for _, t := range namedChildren(list) {
		out = appendUnique(out, collapseSpace(text(t, source)))
	}
	return out
}
