package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// ktExtractor extracts classes, objects, top-level functions, and imports
// from Kotlin source.
//
// Declaration names come from the "name" field. Supertypes are located by
// kind: in a delegation list, a constructor invocation ("Base()") is the
// superclass and a bare type is an interface.
type ktExtractor struct{}

var ktTypeKinds = map[string]bool{
	"user_type":          true,
	"nullable_type":      true,
	"function_type":      true,
	"parenthesized_type": true,
	"non_nullable_type":  true,
}

func (e *ktExtractor) Extract(root *tree_sitter.Node, source []byte, res *ParseResult) {
	for _, child := range namedChildren(root) {
		switch child.Kind() {
		case "import":
			if ref, ok := e.extractImport(child, source); ok {
				res.Imports = append(res.Imports, ref)
			}
		case "class_declaration", "object_declaration":
			e.extractClass(child, "", source, res)
		case "function_declaration":
			fn, receiver, ok := e.extractFunction(child, source)
			if !ok {
				continue
			}
			if receiver != "" {
				fn.QualifiedName = SimpleTypeName(receiver) + "." + fn.Name
			}
			res.Functions = append(res.Functions, fn)
		}
	}
}

func (e *ktExtractor) extractImport(node *tree_sitter.Node, source []byte) (ImportRef, bool) {
	path := childOfKind(node, "qualified_identifier")
	if path == nil {
		return ImportRef{}, false
	}
	ref := ImportRef{ModulePath: collapseSpace(text(path, source))}
	if hasChildKind(node, "*") {
		ref.ModulePath += ".*"
	}
	// "import a.B as C": the alias is the identifier after the path.
	if alias := childOfKind(node, "identifier"); alias != nil {
		ref.Alias = text(alias, source)
	}
	return ref, true
}

func (e *ktExtractor) extractClass(node *tree_sitter.Node, outer string, source []byte, res *ParseResult) {
	name := text(node.ChildByFieldName("name"), source)
	if name == "" {
		return
	}
	cls := ClassLike{
		Name:      name,
		Kind:      ClassKindClass,
		Modifiers: ktModifiers(node, source),
		Range:     nodeRange(node),
	}
	if outer != "" {
		cls.QualifiedName = outer + "." + name
	}

	switch {
	case node.Kind() == "object_declaration":
		cls.Kind = ClassKindObject
	case hasChildKind(node, "interface"):
		cls.Kind = ClassKindInterface
	case hasChildKind(node, "enum_class_body"), containsString(cls.Modifiers, "enum"):
		cls.Kind = ClassKindEnum
	}

	for _, spec := range ktDelegationSpecifiers(node) {
		switch spec.Kind() {
		case "constructor_invocation":
			t := ktFirstType(spec)
			if t == nil {
				continue
			}
			if cls.Superclass == "" && cls.Kind != ClassKindInterface {
				cls.Superclass = collapseSpace(text(t, source))
			} else {
				cls.Interfaces = appendUnique(cls.Interfaces, collapseSpace(text(t, source)))
			}
		case "explicit_delegation":
			// "Repo by delegate": the delegated type is still an interface.
			if t := ktFirstType(spec); t != nil {
				cls.Interfaces = appendUnique(cls.Interfaces, collapseSpace(text(t, source)))
			}
		default:
			cls.Interfaces = appendUnique(cls.Interfaces, collapseSpace(text(spec, source)))
		}
	}

	if ctor := childOfKind(node, "primary_constructor"); ctor != nil {
		walk(ctor, func(n *tree_sitter.Node) bool {
			if n.Kind() != "class_parameter" {
				return true
			}
			// Only val/var constructor parameters declare properties.
			if hasChildKind(n, "val") || hasChildKind(n, "var") {
				cls.Attributes = append(cls.Attributes, Field{
					Name:         text(childOfKind(n, "identifier"), source),
					DeclaredType: ktTypeOf(n, source),
				})
			}
			return false
		})
	}

	var nested []*tree_sitter.Node
	body := childOfKind(node, "class_body", "enum_class_body")
	for _, m := range namedChildren(body) {
		switch m.Kind() {
		case "function_declaration":
			if fn, _, ok := e.extractFunction(m, source); ok {
				cls.Methods = append(cls.Methods, fn)
			}
		case "property_declaration":
			cls.Attributes = append(cls.Attributes, e.properties(m, source)...)
		case "secondary_constructor":
			fn := FunctionLike{
				Name:       "constructor",
				Parameters: e.parameters(childOfKind(m, "function_value_parameters"), source),
				Modifiers:  appendUnique(ktModifiers(m, source), "constructor"),
				ReturnType: name,
				Range:      nodeRange(m),
				CallSites:  ktCalls(m, source),
			}
			cls.Methods = append(cls.Methods, fn)
		case "companion_object":
			// Companion members are exposed through the enclosing class.
			for _, cm := range namedChildren(childOfKind(m, "class_body")) {
				if cm.Kind() != "function_declaration" {
					continue
				}
				if fn, _, ok := e.extractFunction(cm, source); ok {
					fn.Modifiers = appendUnique(fn.Modifiers, "companion")
					cls.Methods = append(cls.Methods, fn)
				}
			}
		case "class_declaration", "object_declaration":
			nested = append(nested, m)
		}
	}

	res.Classes = append(res.Classes, cls)
	for _, n := range nested {
		e.extractClass(n, cls.FullName(), source, res)
	}
}

// ktDelegationSpecifiers returns the supertype entries after ":" in a class
// or object header, with any leading annotations dropped.
func ktDelegationSpecifiers(node *tree_sitter.Node) []*tree_sitter.Node {
	var out []*tree_sitter.Node
	for _, spec := range namedChildren(childOfKind(node, "delegation_specifiers")) {
		if spec.Kind() != "delegation_specifier" {
			continue
		}
		var last *tree_sitter.Node
		for _, c := range namedChildren(spec) {
			if c.Kind() != "annotation" {
				last = c
			}
		}
		if last != nil {
			out = append(out, last)
		}
	}
	return out
}

// ktFirstType returns the first type child of n.
func ktFirstType(n *tree_sitter.Node) *tree_sitter.Node {
	for _, c := range namedChildren(n) {
		if ktTypeKinds[c.Kind()] {
			return c
		}
	}
	return nil
}

// extractFunction also returns the extension receiver type, if any.
func (e *ktExtractor) extractFunction(node *tree_sitter.Node, source []byte) (FunctionLike, string, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return FunctionLike{}, "", false
	}
	// A type before the name is the extension receiver; the type after the
	// parameter list is the return type.
	var (
		receiver, returnType string
		params               *tree_sitter.Node
	)
	for _, c := range namedChildren(node) {
		switch {
		case c.Kind() == "function_value_parameters":
			params = c
		case ktTypeKinds[c.Kind()]:
			if c.StartByte() < nameNode.StartByte() {
				receiver = collapseSpace(text(c, source))
			} else if params != nil && returnType == "" {
				returnType = collapseSpace(text(c, source))
			}
		}
	}
	fn := FunctionLike{
		Name:       text(nameNode, source),
		Parameters: e.parameters(params, source),
		ReturnType: returnType,
		Modifiers:  ktModifiers(node, source),
		Range:      nodeRange(node),
		CallSites:  ktCalls(childOfKind(node, "function_body"), source),
	}
	if receiver != "" {
		fn.Modifiers = append(fn.Modifiers, "extension:"+receiver)
	}
	return fn, receiver, true
}

func (e *ktExtractor) parameters(params *tree_sitter.Node, source []byte) []Parameter {
	var out []Parameter
	for _, p := range namedChildren(params) {
		if p.Kind() != "parameter" {
			continue
		}
		out = append(out, Parameter{
			Name:         text(childOfKind(p, "identifier"), source),
			DeclaredType: ktTypeOf(p, source),
		})
	}
	return out
}

func (e *ktExtractor) properties(node *tree_sitter.Node, source []byte) []Field {
	var out []Field
	for _, c := range namedChildren(node) {
		switch c.Kind() {
		case "variable_declaration":
			out = append(out, Field{
				Name:         text(childOfKind(c, "identifier"), source),
				DeclaredType: ktTypeOf(c, source),
			})
		case "multi_variable_declaration":
			for _, v := range namedChildren(c) {
				if v.Kind() == "variable_declaration" {
					out = append(out, Field{
						Name:         text(childOfKind(v, "identifier"), source),
						DeclaredType: ktTypeOf(v, source),
					})
				}
			}
		}
	}
	return out
}

// ktTypeOf returns the first type child of a parameter or declaration.
func ktTypeOf(node *tree_sitter.Node, source []byte) string {
	for _, c := range namedChildren(node) {
		if ktTypeKinds[c.Kind()] {
			return collapseSpace(text(c, source))
		}
	}
	return ""
}

func ktCalls(body *tree_sitter.Node, source []byte) []string {
	var calls callSites
	walk(body, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "class_declaration", "object_declaration", "object_literal":
			return false
		case "call_expression":
			callee := n.NamedChild(0)
			if callee == nil {
				return true
			}
			switch callee.Kind() {
			case "identifier":
				calls.add(text(callee, source))
			case "navigation_expression":
				// "a.b.c()" nests as ((a.b).c); the member name is the last child.
				if cnt := callee.NamedChildCount(); cnt > 0 {
					if last := callee.NamedChild(cnt - 1); last != nil && last.Kind() == "identifier" {
						calls.add(text(last, source))
					}
				}
			}
		}
		return true
	})
	return calls.list()
}

// ktModifiers flattens the modifiers node: "data", "private", "@Inject".
func ktModifiers(node *tree_sitter.Node, source []byte) []string {
	mods := childOfKind(node, "modifiers")
	if mods == nil {
		return nil
	}
	var out []string
	for _, c := range namedChildren(mods) {
		m := collapseSpace(text(c, source))
		if c.Kind() == "annotation" {
			if i := strings.Index(m, "("); i >= 0 {
				m = m[:i]
			}
		}
		out = appendUnique(out, m)
	}
	return out
}
