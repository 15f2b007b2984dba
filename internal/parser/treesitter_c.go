package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// cExtractor extracts structs, unions, function definitions, and #include
// directives from C source. Structs have no methods.
type cExtractor struct{}

func (e *cExtractor) Extract(root *tree_sitter.Node, source []byte, res *ParseResult) {
	seen := map[string]bool{}
	walk(root, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "preproc_include":
			if path := trimQuotes(text(n.ChildByFieldName("path"), source)); path != "" {
				res.Imports = append(res.Imports, ImportRef{ModulePath: path})
			}
			return false
		case "function_definition":
			if fn, ok := e.extractFunction(n, source); ok {
				res.Functions = append(res.Functions, fn)
			}
			// Structs declared inside function bodies are not tracked.
			return false
		case "struct_specifier", "union_specifier":
			if cls, ok := e.extractStruct(n, source); ok && !seen[cls.Name] {
				seen[cls.Name] = true
				res.Classes = append(res.Classes, cls)
			}
			// Nested struct bodies are walked for their own declarations.
			return true
		}
		return true
	})
}

// extractStruct handles "struct Name {...}" and "typedef struct {...} Name".
// Forward declarations without a body are skipped.
func (e *cExtractor) extractStruct(node *tree_sitter.Node, source []byte) (ClassLike, bool) {
	body := node.ChildByFieldName("body")
	if body == nil {
		return ClassLike{}, false
	}
	name := text(node.ChildByFieldName("name"), source)
	if parent := node.Parent(); parent != nil && parent.Kind() == "type_definition" {
		if alias := text(parent.ChildByFieldName("declarator"), source); alias != "" && isIdentifier(alias) {
			name = alias
		}
	}
	if name == "" {
		return ClassLike{}, false
	}

	cls := ClassLike{
		Name:  name,
		Kind:  ClassKindStruct,
		Range: nodeRange(node),
	}
	if node.Kind() == "union_specifier" {
		cls.Modifiers = []string{"union"}
	}
	for _, f := range namedChildren(body) {
		if f.Kind() != "field_declaration" {
			continue
		}
		base := collapseSpace(text(f.ChildByFieldName("type"), source))
		for _, d := range namedChildren(f) {
			switch d.Kind() {
			case "field_identifier", "pointer_declarator", "array_declarator", "function_declarator":
				name, typ := cDeclarator(d, base, source)
				if name != "" {
					cls.Attributes = append(cls.Attributes, Field{Name: name, DeclaredType: typ})
				}
			}
		}
	}
	return cls, true
}

func (e *cExtractor) extractFunction(node *tree_sitter.Node, source []byte) (FunctionLike, bool) {
	decl := node.ChildByFieldName("declarator")
	returnType := collapseSpace(text(node.ChildByFieldName("type"), source))
	// Pointer return types wrap the function declarator.
	for decl != nil && decl.Kind() != "function_declarator" {
		switch decl.Kind() {
		case "pointer_declarator":
			returnType += "*"
		case "parenthesized_declarator", "attributed_declarator":
		default:
			return FunctionLike{}, false
		}
		next := decl.ChildByFieldName("declarator")
		if next == nil {
			next = decl.NamedChild(0)
		}
		decl = next
	}
	if decl == nil {
		return FunctionLike{}, false
	}
	name := text(decl.ChildByFieldName("declarator"), source)
	if !isIdentifier(name) {
		return FunctionLike{}, false
	}

	fn := FunctionLike{
		Name:       name,
		ReturnType: returnType,
		Range:      nodeRange(node),
	}
	for _, c := range namedChildren(node) {
		switch c.Kind() {
		case "storage_class_specifier", "type_qualifier", "function_specifier":
			fn.Modifiers = appendUnique(fn.Modifiers, text(c, source))
		}
	}
	for _, p := range namedChildren(decl.ChildByFieldName("parameters")) {
		switch p.Kind() {
		case "parameter_declaration":
			base := collapseSpace(text(p.ChildByFieldName("type"), source))
			d := p.ChildByFieldName("declarator")
			if d == nil {
				// "void" or an unnamed parameter.
				if base != "void" {
					fn.Parameters = append(fn.Parameters, Parameter{DeclaredType: base})
				}
				continue
			}
			name, typ := cDeclarator(d, base, source)
			fn.Parameters = append(fn.Parameters, Parameter{Name: name, DeclaredType: typ})
		case "variadic_parameter":
			fn.Parameters = append(fn.Parameters, Parameter{Name: "..."})
		}
	}

	var calls callSites
	walk(node.ChildByFieldName("body"), func(n *tree_sitter.Node) bool {
		if n.Kind() != "call_expression" {
			return true
		}
		target := n.ChildByFieldName("function")
		switch {
		case target == nil:
		case target.Kind() == "identifier":
			calls.add(text(target, source))
		case target.Kind() == "field_expression":
			calls.add(text(target.ChildByFieldName("field"), source))
		}
		return true
	})
	fn.CallSites = calls.list()
	return fn, true
}

// cDeclarator unwraps pointer and array declarators, returning the declared
// identifier and the full type ("char" + "*name[4]" -> "name", "char*[]").
func cDeclarator(d *tree_sitter.Node, base string, source []byte) (string, string) {
	var suffix strings.Builder
	for d != nil {
		switch d.Kind() {
		case "identifier", "field_identifier", "type_identifier":
			return text(d, source), base + suffix.String()
		case "pointer_declarator", "abstract_pointer_declarator":
			suffix.WriteString("*")
		case "array_declarator", "abstract_array_declarator":
			suffix.WriteString("[]")
		case "function_declarator":
			suffix.WriteString("()")
		}
		next := d.ChildByFieldName("declarator")
		if next == nil {
			next = d.NamedChild(0)
		}
		if next != nil && sameNode(next, d) {
			break
		}
		d = next
	}
	return "", base + suffix.String()
}
