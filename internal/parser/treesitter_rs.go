package parser

import (
	"strconv"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// rsExtractor extracts structs, enums, traits, functions, and use
// declarations from Rust source files.
//
// impl blocks attach their methods to a type declared in the same file;
// "impl Trait for Type" also records Trait as one of Type's interfaces.
// Methods of types declared elsewhere become top-level functions with an
// "impl:<Type>" modifier.
type rsExtractor struct{}

type rsImpl struct {
	typeName string
	trait    string
	methods  []FunctionLike
}

func (e *rsExtractor) Extract(root *tree_sitter.Node, source []byte, res *ParseResult) {
	var impls []rsImpl
	e.extractItems(root, source, res, &impls)

	index := make(map[string]int, len(res.Classes))
	for i, c := range res.Classes {
		index[c.Name] = i
	}
	for _, impl := range impls {
		i, ok := index[impl.typeName]
		if !ok {
			for _, m := range impl.methods {
				m.Modifiers = append(m.Modifiers, "impl:"+impl.typeName)
				m.QualifiedName = impl.typeName + "." + m.Name
				res.Functions = append(res.Functions, m)
			}
			continue
		}
		if impl.trait != "" {
			res.Classes[i].Interfaces = appendUnique(res.Classes[i].Interfaces, impl.trait)
		}
		res.Classes[i].Methods = append(res.Classes[i].Methods, impl.methods...)
	}
}

// extractItems handles the items of a source file or an inline module.
func (e *rsExtractor) extractItems(parent *tree_sitter.Node, source []byte, res *ParseResult, impls *[]rsImpl) {
	// Outer attributes (#[derive(...)]) are siblings preceding the item.
	var attrs []string
	for _, node := range namedChildren(parent) {
		switch node.Kind() {
		case "attribute_item":
			attrs = append(attrs, collapseSpace(text(node, source)))
			continue
		case "use_declaration":
			res.Imports = append(res.Imports, e.extractUse(node, source)...)
		case "function_item":
			if fn, ok := e.extractFunction(node, attrs, source); ok {
				res.Functions = append(res.Functions, fn)
			}
		case "struct_item", "union_item":
			if cls, ok := e.extractStruct(node, attrs, source); ok {
				res.Classes = append(res.Classes, cls)
			}
		case "enum_item":
			if name := text(node.ChildByFieldName("name"), source); name != "" {
				res.Classes = append(res.Classes, ClassLike{
					Name:      name,
					Kind:      ClassKindEnum,
					Modifiers: append(rsVisibility(node, source), attrs...),
					Range:     nodeRange(node),
				})
			}
		case "trait_item":
			if cls, ok := e.extractTrait(node, attrs, source); ok {
				res.Classes = append(res.Classes, cls)
			}
		case "impl_item":
			*impls = append(*impls, e.extractImpl(node, source))
		case "mod_item":
			if body := node.ChildByFieldName("body"); body != nil {
				e.extractItems(body, source, res, impls)
			}
		}
		attrs = nil
	}
}

func (e *rsExtractor) extractStruct(node *tree_sitter.Node, attrs []string, source []byte) (ClassLike, bool) {
	name := text(node.ChildByFieldName("name"), source)
	if name == "" {
		return ClassLike{}, false
	}
	cls := ClassLike{
		Name:      name,
		Kind:      ClassKindStruct,
		Modifiers: append(rsVisibility(node, source), attrs...),
		Range:     nodeRange(node),
	}
	body := node.ChildByFieldName("body")
	if body == nil {
		return cls, true
	}
	switch body.Kind() {
	case "field_declaration_list":
		for _, f := range namedChildren(body) {
			if f.Kind() != "field_declaration" {
				continue
			}
			cls.Attributes = append(cls.Attributes, Field{
				Name:         text(f.ChildByFieldName("name"), source),
				DeclaredType: collapseSpace(text(f.ChildByFieldName("type"), source)),
			})
		}
	case "ordered_field_declaration_list":
		// Tuple struct fields are positional: "0", "1", ...
		i := 0
		for _, f := range namedChildren(body) {
			if f.Kind() == "visibility_modifier" || f.Kind() == "attribute_item" {
				continue
			}
			cls.Attributes = append(cls.Attributes, Field{
				Name:         strconv.Itoa(i),
				DeclaredType: collapseSpace(text(f, source)),
			})
			i++
		}
	}
	return cls, true
}

func (e *rsExtractor) extractTrait(node *tree_sitter.Node, attrs []string, source []byte) (ClassLike, bool) {
	name := text(node.ChildByFieldName("name"), source)
	if name == "" {
		return ClassLike{}, false
	}
	cls := ClassLike{
		Name:      name,
		Kind:      ClassKindInterface,
		Modifiers: append(rsVisibility(node, source), attrs...),
		Range:     nodeRange(node),
	}
	if bounds := node.ChildByFieldName("bounds"); bounds != nil {
		for _, b := range namedChildren(bounds) {
			cls.Interfaces = appendUnique(cls.Interfaces, collapseSpace(text(b, source)))
		}
	}
	for _, m := range namedChildren(node.ChildByFieldName("body")) {
		switch m.Kind() {
		case "function_signature_item":
			if fn, ok := e.extractFunction(m, nil, source); ok {
				fn.Modifiers = appendUnique(fn.Modifiers, "abstract")
				cls.Methods = append(cls.Methods, fn)
			}
		case "function_item":
			if fn, ok := e.extractFunction(m, nil, source); ok {
				cls.Methods = append(cls.Methods, fn)
			}
		}
	}
	return cls, true
}

func (e *rsExtractor) extractImpl(node *tree_sitter.Node, source []byte) rsImpl {
	impl := rsImpl{
		typeName: SimpleTypeName(text(node.ChildByFieldName("type"), source)),
		trait:    collapseSpace(text(node.ChildByFieldName("trait"), source)),
	}
	var attrs []string
	for _, m := range namedChildren(node.ChildByFieldName("body")) {
		switch m.Kind() {
		case "attribute_item":
			attrs = append(attrs, collapseSpace(text(m, source)))
			continue
		case "function_item":
			if fn, ok := e.extractFunction(m, attrs, source); ok {
				impl.methods = append(impl.methods, fn)
			}
		}
		attrs = nil
	}
	return impl
}

func (e *rsExtractor) extractFunction(node *tree_sitter.Node, attrs []string, source []byte) (FunctionLike, bool) {
	name := text(node.ChildByFieldName("name"), source)
	if name == "" {
		return FunctionLike{}, false
	}
	fn := FunctionLike{
		Name:       name,
		ReturnType: collapseSpace(text(node.ChildByFieldName("return_type"), source)),
		Modifiers:  rsVisibility(node, source),
		Range:      nodeRange(node),
	}
	if fm := childOfKind(node, "function_modifiers"); fm != nil {
		for _, m := range strings.Fields(text(fm, source)) {
			fn.Modifiers = appendUnique(fn.Modifiers, m)
		}
	}
	fn.Modifiers = append(fn.Modifiers, attrs...)

	for _, p := range namedChildren(node.ChildByFieldName("parameters")) {
		switch p.Kind() {
		case "parameter":
			fn.Parameters = append(fn.Parameters, Parameter{
				Name:         text(p.ChildByFieldName("pattern"), source),
				DeclaredType: collapseSpace(text(p.ChildByFieldName("type"), source)),
			})
		case "self_parameter":
			// Receivers are implied by the enclosing impl.
		}
	}

	var calls callSites
	walk(node.ChildByFieldName("body"), func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "function_item", "impl_item":
			return false
		case "call_expression":
			target := n.ChildByFieldName("function")
			if target != nil && target.Kind() == "generic_function" {
				target = target.ChildByFieldName("function")
			}
			switch {
			case target == nil:
			case target.Kind() == "identifier":
				calls.add(text(target, source))
			case target.Kind() == "scoped_identifier":
				calls.add(text(target.ChildByFieldName("name"), source))
			case target.Kind() == "field_expression":
				calls.add(text(target.ChildByFieldName("field"), source))
			}
		}
		return true
	})
	fn.CallSites = calls.list()
	return fn, true
}

func (e *rsExtractor) extractUse(node *tree_sitter.Node, source []byte) []ImportRef {
	arg := node.ChildByFieldName("argument")
	if arg == nil {
		return nil
	}
	if arg.Kind() == "use_as_clause" {
		return []ImportRef{{
			ModulePath: collapseSpace(text(arg.ChildByFieldName("path"), source)),
			Alias:      text(arg.ChildByFieldName("alias"), source),
		}}
	}
	return []ImportRef{{ModulePath: collapseSpace(text(arg, source))}}
}

// rsVisibility returns ["pub"] (or "pub(crate)") when the item has a
// visibility modifier.
func rsVisibility(node *tree_sitter.Node, source []byte) []string {
	if vm := childOfKind(node, "visibility_modifier"); vm != nil {
		return []string{collapseSpace(text(vm, source))}
	}
	return nil
}
