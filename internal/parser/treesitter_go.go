package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// goExtractor extracts structs, interfaces, functions, and imports from Go
// source files.
//
// Methods attach to their receiver type when it is declared in the same
// file. Otherwise they are kept as top-level functions carrying a
// "receiver:<Type>" modifier.
type goExtractor struct{}

func (e *goExtractor) Extract(root *tree_sitter.Node, source []byte, res *ParseResult) {
	type pendingMethod struct {
		receiver string
		fn       FunctionLike
	}
	var methods []pendingMethod

	for _, child := range namedChildren(root) {
		switch child.Kind() {
		case "import_declaration":
			walk(child, func(n *tree_sitter.Node) bool {
				if n.Kind() == "import_spec" {
					if ref, ok := e.extractImport(n, source); ok {
						res.Imports = append(res.Imports, ref)
					}
					return false
				}
				return true
			})
		case "function_declaration":
			if fn, ok := e.extractFunction(child, source); ok {
				res.Functions = append(res.Functions, fn)
			}
		case "method_declaration":
			if fn, ok := e.extractFunction(child, source); ok {
				methods = append(methods, pendingMethod{receiver: e.receiverType(child, source), fn: fn})
			}
		case "type_declaration":
			for _, spec := range namedChildren(child) {
				if spec.Kind() != "type_spec" {
					continue
				}
				if cls, ok := e.extractTypeSpec(spec, source); ok {
					res.Classes = append(res.Classes, cls)
				}
			}
		}
	}

	index := make(map[string]int, len(res.Classes))
	for i, c := range res.Classes {
		index[c.Name] = i
	}
	for _, m := range methods {
		if i, ok := index[m.receiver]; ok {
			res.Classes[i].Methods = append(res.Classes[i].Methods, m.fn)
			continue
		}
		m.fn.Modifiers = append(m.fn.Modifiers, "receiver:"+m.receiver)
		m.fn.QualifiedName = m.receiver + "." + m.fn.Name
		res.Functions = append(res.Functions, m.fn)
	}
}

func (e *goExtractor) extractFunction(node *tree_sitter.Node, source []byte) (FunctionLike, bool) {
	name := text(node.ChildByFieldName("name"), source)
	if name == "" {
		return FunctionLike{}, false
	}
	fn := FunctionLike{
		Name:       name,
		Parameters: e.parameters(node.ChildByFieldName("parameters"), source),
		ReturnType: collapseSpace(text(node.ChildByFieldName("result"), source)),
		Range:      nodeRange(node),
	}
	if isGoExported(name) {
		fn.Modifiers = []string{"exported"}
	}

	var calls callSites
	walk(node.ChildByFieldName("body"), func(n *tree_sitter.Node) bool {
		if n.Kind() != "call_expression" {
			return true
		}
		// Best-effort: only simple identifiers and selector expressions.
		target := n.ChildByFieldName("function")
		switch {
		case target == nil:
		case target.Kind() == "identifier":
			calls.add(text(target, source))
		case target.Kind() == "selector_expression":
			calls.add(text(target.ChildByFieldName("field"), source))
		}
		return true
	})
	fn.CallSites = calls.list()
	return fn, true
}

// parameters expands grouped declarations: "a, b int" yields two entries.
func (e *goExtractor) parameters(params *tree_sitter.Node, source []byte) []Parameter {
	var out []Parameter
	for _, p := range namedChildren(params) {
		switch p.Kind() {
		case "parameter_declaration", "variadic_parameter_declaration":
		default:
			continue
		}
		typ := collapseSpace(text(p.ChildByFieldName("type"), source))
		if p.Kind() == "variadic_parameter_declaration" {
			typ = "..." + typ
		}
		var names []string
		for _, c := range namedChildren(p) {
			if c.Kind() == "identifier" {
				names = append(names, text(c, source))
			}
		}
		if len(names) == 0 {
			out = append(out, Parameter{DeclaredType: typ})
			continue
		}
		for _, n := range names {
			out = append(out, Parameter{Name: n, DeclaredType: typ})
		}
	}
	return out
}

// receiverType returns the base type name of a method receiver:
// "(s *Store[K])" -> "Store".
func (e *goExtractor) receiverType(node *tree_sitter.Node, source []byte) string {
	recv := node.ChildByFieldName("receiver")
	for _, p := range namedChildren(recv) {
		if p.Kind() == "parameter_declaration" {
			return SimpleTypeName(text(p.ChildByFieldName("type"), source))
		}
	}
	return ""
}

func (e *goExtractor) extractTypeSpec(node *tree_sitter.Node, source []byte) (ClassLike, bool) {
	name := text(node.ChildByFieldName("name"), source)
	typeNode := node.ChildByFieldName("type")
	if name == "" || typeNode == nil {
		return ClassLike{}, false
	}

	cls := ClassLike{
		Name:  name,
		Range: nodeRange(node),
	}
	if isGoExported(name) {
		cls.Modifiers = []string{"exported"}
	}

	switch typeNode.Kind() {
	case "struct_type":
		cls.Kind = ClassKindStruct
		for _, f := range namedChildren(childOfKind(typeNode, "field_declaration_list")) {
			if f.Kind() != "field_declaration" {
				continue
			}
			typ := collapseSpace(text(f.ChildByFieldName("type"), source))
			var names []string
			for _, c := range namedChildren(f) {
				if c.Kind() == "field_identifier" {
					names = append(names, text(c, source))
				}
			}
			if len(names) == 0 {
				// Embedded types are recorded as interfaces.
				cls.Interfaces = appendUnique(cls.Interfaces, strings.TrimPrefix(typ, "*"))
				continue
			}
			for _, n := range names {
				cls.Attributes = append(cls.Attributes, Field{Name: n, DeclaredType: typ})
			}
		}
	case "interface_type":
		cls.Kind = ClassKindInterface
		for _, m := range namedChildren(typeNode) {
			switch m.Kind() {
			case "method_elem", "method_spec":
				name := text(m.ChildByFieldName("name"), source)
				if name == "" {
					continue
				}
				cls.Methods = append(cls.Methods, FunctionLike{
					Name:       name,
					Parameters: e.parameters(m.ChildByFieldName("parameters"), source),
					ReturnType: collapseSpace(text(m.ChildByFieldName("result"), source)),
					Modifiers:  []string{"abstract"},
					Range:      nodeRange(m),
				})
			case "type_elem", "constraint_elem":
				cls.Interfaces = appendUnique(cls.Interfaces, collapseSpace(text(m, source)))
			}
		}
	default:
		// Named non-struct types ("type Celsius float64") can still carry
		// methods, so they are kept as structs.
		cls.Kind = ClassKindStruct
		cls.Modifiers = append(cls.Modifiers, "underlying:"+collapseSpace(text(typeNode, source)))
	}
	return cls, true
}

func (e *goExtractor) extractImport(node *tree_sitter.Node, source []byte) (ImportRef, bool) {
	pathNode := node.ChildByFieldName("path")
	if pathNode == nil {
		pathNode = childOfKind(node, "interpreted_string_literal", "raw_string_literal")
	}
	path := trimQuotes(text(pathNode, source))
	if path == "" {
		return ImportRef{}, false
	}
	return ImportRef{ModulePath: path, Alias: text(node.ChildByFieldName("name"), source)}, true
}

// isGoExported returns true if the first rune of name is an uppercase letter.
func isGoExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
