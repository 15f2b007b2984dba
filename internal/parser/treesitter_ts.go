package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// tsExtractor extracts classes, interfaces, enums, functions, and imports
// from TypeScript source files. Arrow functions and function expressions
// bound with const/let at module level count as top-level functions.
type tsExtractor struct{}

func (e *tsExtractor) Extract(root *tree_sitter.Node, source []byte, res *ParseResult) {
	for _, child := range namedChildren(root) {
		e.extractStatement(child, nil, source, res)
	}
}

func (e *tsExtractor) extractStatement(node *tree_sitter.Node, mods []string, source []byte, res *ParseResult) {
	switch node.Kind() {
	case "import_statement":
		if ref, ok := e.extractImport(node, source); ok {
			res.Imports = append(res.Imports, ref)
		}
	case "export_statement":
		exportMods := append(append([]string{}, mods...), "export")
		exportMods = append(exportMods, tsDecorators(node, source)...)
		if decl := node.ChildByFieldName("declaration"); decl != nil {
			e.extractStatement(decl, exportMods, source, res)
		}
	case "class_declaration", "abstract_class_declaration":
		e.extractClass(node, mods, source, res)
	case "interface_declaration":
		e.extractInterface(node, mods, source, res)
	case "enum_declaration":
		if name := text(node.ChildByFieldName("name"), source); name != "" {
			res.Classes = append(res.Classes, ClassLike{
				Name:      name,
				Kind:      ClassKindEnum,
				Modifiers: mods,
				Range:     nodeRange(node),
			})
		}
	case "function_declaration", "generator_function_declaration":
		if fn, ok := e.extractFunction(node, text(node.ChildByFieldName("name"), source), mods, source); ok {
			res.Functions = append(res.Functions, fn)
		}
	case "lexical_declaration", "variable_declaration":
		for _, decl := range namedChildren(node) {
			if decl.Kind() != "variable_declarator" {
				continue
			}
			value := decl.ChildByFieldName("value")
			if value == nil {
				continue
			}
			switch value.Kind() {
			case "arrow_function", "function_expression", "function":
				name := text(decl.ChildByFieldName("name"), source)
				if fn, ok := e.extractFunction(value, name, mods, source); ok {
					fn.Range = nodeRange(node)
					res.Functions = append(res.Functions, fn)
				}
			}
		}
	}
}

func (e *tsExtractor) extractImport(node *tree_sitter.Node, source []byte) (ImportRef, bool) {
	path := trimQuotes(text(node.ChildByFieldName("source"), source))
	if path == "" {
		return ImportRef{}, false
	}
	ref := ImportRef{ModulePath: path}
	if clause := childOfKind(node, "import_clause"); clause != nil {
		if ns := childOfKind(clause, "namespace_import"); ns != nil {
			ref.Alias = text(childOfKind(ns, "identifier"), source)
		}
	}
	return ref, true
}

func (e *tsExtractor) extractClass(node *tree_sitter.Node, mods []string, source []byte, res *ParseResult) {
	name := text(node.ChildByFieldName("name"), source)
	if name == "" {
		return
	}
	cls := ClassLike{
		Name:      name,
		Kind:      ClassKindClass,
		Modifiers: append(append([]string{}, mods...), tsDecorators(node, source)...),
		Range:     nodeRange(node),
	}
	if node.Kind() == "abstract_class_declaration" {
		cls.Modifiers = appendUnique(cls.Modifiers, "abstract")
	}

	if heritage := childOfKind(node, "class_heritage"); heritage != nil {
		if ext := childOfKind(heritage, "extends_clause"); ext != nil {
			if v := ext.ChildByFieldName("value"); v != nil {
				cls.Superclass = collapseSpace(text(v, source))
			} else if v := ext.NamedChild(0); v != nil {
				cls.Superclass = collapseSpace(text(v, source))
			}
		}
		if impl := childOfKind(heritage, "implements_clause"); impl != nil {
			for _, t := range namedChildren(impl) {
				cls.Interfaces = appendUnique(cls.Interfaces, collapseSpace(text(t, source)))
			}
		}
	}

	// Member decorators precede the member inside class_body.
	var pending []string
	for _, m := range namedChildren(node.ChildByFieldName("body")) {
		switch m.Kind() {
		case "decorator":
			pending = append(pending, tsDecoratorName(m, source))
			continue
		case "method_definition", "abstract_method_signature", "method_signature":
			name := text(m.ChildByFieldName("name"), source)
			if fn, ok := e.extractFunction(m, name, append(tsMemberModifiers(m, source), pending...), source); ok {
				if m.Kind() != "method_definition" {
					fn.Modifiers = appendUnique(fn.Modifiers, "abstract")
				}
				cls.Methods = append(cls.Methods, fn)
			}
		case "public_field_definition", "property_declaration":
			cls.Attributes = append(cls.Attributes, Field{
				Name:         text(m.ChildByFieldName("name"), source),
				DeclaredType: tsTypeAnnotation(m.ChildByFieldName("type"), source),
			})
		}
		pending = nil
	}
	res.Classes = append(res.Classes, cls)
}

func (e *tsExtractor) extractInterface(node *tree_sitter.Node, mods []string, source []byte, res *ParseResult) {
	name := text(node.ChildByFieldName("name"), source)
	if name == "" {
		return
	}
	cls := ClassLike{
		Name:      name,
		Kind:      ClassKindInterface,
		Modifiers: mods,
		Range:     nodeRange(node),
	}
	if ext := childOfKind(node, "extends_type_clause"); ext != nil {
		for _, t := range namedChildren(ext) {
			cls.Interfaces = appendUnique(cls.Interfaces, collapseSpace(text(t, source)))
		}
	}
	for _, m := range namedChildren(node.ChildByFieldName("body")) {
		switch m.Kind() {
		case "method_signature":
			name := text(m.ChildByFieldName("name"), source)
			if fn, ok := e.extractFunction(m, name, []string{"abstract"}, source); ok {
				cls.Methods = append(cls.Methods, fn)
			}
		case "property_signature":
			cls.Attributes = append(cls.Attributes, Field{
				Name:         text(m.ChildByFieldName("name"), source),
				DeclaredType: tsTypeAnnotation(m.ChildByFieldName("type"), source),
			})
		}
	}
	res.Classes = append(res.Classes, cls)
}

func (e *tsExtractor) extractFunction(node *tree_sitter.Node, name string, mods []string, source []byte) (FunctionLike, bool) {
	if name == "" {
		return FunctionLike{}, false
	}
	fn := FunctionLike{
		Name:       name,
		ReturnType: tsTypeAnnotation(node.ChildByFieldName("return_type"), source),
		Modifiers:  append([]string{}, mods...),
		Range:      nodeRange(node),
	}
	if hasChildKind(node, "async") {
		fn.Modifiers = appendUnique(fn.Modifiers, "async")
	}

	params := node.ChildByFieldName("parameters")
	if params == nil {
		// Single-parameter arrow function without parentheses.
		if p := node.ChildByFieldName("parameter"); p != nil {
			fn.Parameters = append(fn.Parameters, Parameter{Name: text(p, source)})
		}
	}
	for _, p := range namedChildren(params) {
		switch p.Kind() {
		case "required_parameter", "optional_parameter":
			pname := text(p.ChildByFieldName("pattern"), source)
			if p.Kind() == "optional_parameter" {
				pname += "?"
			}
			fn.Parameters = append(fn.Parameters, Parameter{
				Name:         pname,
				DeclaredType: tsTypeAnnotation(p.ChildByFieldName("type"), source),
			})
		}
	}

	var calls callSites
	walk(node.ChildByFieldName("body"), func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "class_declaration", "class":
			return false
		case "call_expression":
			target := n.ChildByFieldName("function")
			switch {
			case target == nil:
			case target.Kind() == "identifier":
				calls.add(text(target, source))
			case target.Kind() == "member_expression":
				calls.add(text(target.ChildByFieldName("property"), source))
			}
		case "new_expression":
			calls.add(SimpleTypeName(text(n.ChildByFieldName("constructor"), source)))
		}
		return true
	})
	fn.CallSites = calls.list()
	return fn, true
}

// tsMemberModifiers collects accessibility and keyword modifiers on a class
// member: "private", "static", "readonly", "async", "override".
func tsMemberModifiers(node *tree_sitter.Node, source []byte) []string {
	var out []string
	for _, c := range children(node) {
		switch c.Kind() {
		case "accessibility_modifier", "override_modifier", "static", "readonly", "abstract", "get", "set":
			out = appendUnique(out, text(c, source))
		}
	}
	return out
}

func tsDecorators(node *tree_sitter.Node, source []byte) []string {
	var out []string
	for _, c := range namedChildren(node) {
		if c.Kind() == "decorator" {
			out = append(out, tsDecoratorName(c, source))
		}
	}
	return out
}

func tsDecoratorName(node *tree_sitter.Node, source []byte) string {
	d := strings.TrimSpace(text(node, source))
	if i := strings.Index(d, "("); i >= 0 {
		d = d[:i]
	}
	return d
}

// tsTypeAnnotation strips the leading colon from a type_annotation node.
func tsTypeAnnotation(node *tree_sitter.Node, source []byte) string {
	t := strings.TrimSpace(text(node, source))
	t = strings.TrimPrefix(t, ":")
	return collapseSpace(t)
}
