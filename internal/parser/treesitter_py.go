package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// pyExtractor extracts classes, functions, and imports from Python source.
//
// Python has no interface declarations: the first base class becomes the
// superclass and the remaining bases are recorded as interfaces.
type pyExtractor struct{}

func (e *pyExtractor) Extract(root *tree_sitter.Node, source []byte, res *ParseResult) {
	for _, child := range namedChildren(root) {
		e.extractTopLevel(child, nil, source, res)
	}

	// Imports may sit inside try/except or if TYPE_CHECKING blocks.
	walk(root, func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "import_statement":
			res.Imports = append(res.Imports, e.extractImport(n, source)...)
			return false
		case "import_from_statement":
			res.Imports = append(res.Imports, e.extractFromImport(n, source)...)
			return false
		}
		return true
	})
}

func (e *pyExtractor) extractTopLevel(node *tree_sitter.Node, decorators []string, source []byte, res *ParseResult) {
	switch node.Kind() {
	case "function_definition":
		if fn, ok := e.extractFunction(node, decorators, false, source); ok {
			res.Functions = append(res.Functions, fn)
		}
	case "class_definition":
		e.extractClass(node, decorators, "", source, res)
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			e.extractTopLevel(def, pyDecorators(node, source), source, res)
		}
	}
}

// extractClass appends the class and any nested classes to res.Classes.
func (e *pyExtractor) extractClass(node *tree_sitter.Node, decorators []string, outer string, source []byte, res *ParseResult) {
	name := text(node.ChildByFieldName("name"), source)
	if name == "" {
		return
	}
	cls := ClassLike{
		Name:      name,
		Kind:      ClassKindClass,
		Modifiers: decorators,
		Range:     nodeRange(node),
	}
	if outer != "" {
		cls.QualifiedName = outer + "." + name
	}

	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		for _, base := range namedChildren(supers) {
			switch base.Kind() {
			case "identifier", "attribute", "subscript":
			default:
				// keyword_argument (metaclass=...) and splats are not bases.
				continue
			}
			ref := text(base, source)
			if ref == "object" {
				continue
			}
			if cls.Superclass == "" {
				cls.Superclass = ref
			} else {
				cls.Interfaces = appendUnique(cls.Interfaces, ref)
			}
		}
	}

	var nested []pendingPyClass
	attrs := map[string]bool{}
	addAttr := func(f Field) {
		if f.Name == "" || attrs[f.Name] {
			return
		}
		attrs[f.Name] = true
		cls.Attributes = append(cls.Attributes, f)
	}

	body := node.ChildByFieldName("body")
	for _, member := range namedChildren(body) {
		def, decs := member, []string(nil)
		if member.Kind() == "decorated_definition" {
			def = member.ChildByFieldName("definition")
			decs = pyDecorators(member, source)
			if def == nil {
				continue
			}
		}
		switch def.Kind() {
		case "function_definition":
			fn, ok := e.extractFunction(def, decs, true, source)
			if !ok {
				continue
			}
			cls.Methods = append(cls.Methods, fn)
			for _, f := range e.selfAttributes(def, source) {
				addAttr(f)
			}
		case "class_definition":
			nested = append(nested, pendingPyClass{node: def, decorators: decs})
		case "expression_statement":
			for _, a := range namedChildren(def) {
				if a.Kind() != "assignment" {
					continue
				}
				left := a.ChildByFieldName("left")
				if left != nil && left.Kind() == "identifier" {
					addAttr(Field{
						Name:         text(left, source),
						DeclaredType: collapseSpace(text(a.ChildByFieldName("type"), source)),
					})
				}
			}
		}
	}

	res.Classes = append(res.Classes, cls)
	for _, p := range nested {
		e.extractClass(p.node, p.decorators, cls.FullName(), source, res)
	}
}

type pendingPyClass struct {
	node       *tree_sitter.Node
	decorators []string
}

func (e *pyExtractor) extractFunction(node *tree_sitter.Node, decorators []string, method bool, source []byte) (FunctionLike, bool) {
	name := text(node.ChildByFieldName("name"), source)
	if name == "" {
		return FunctionLike{}, false
	}
	fn := FunctionLike{
		Name:       name,
		ReturnType: collapseSpace(text(node.ChildByFieldName("return_type"), source)),
		Range:      nodeRange(node),
	}
	if hasChildKind(node, "async") {
		fn.Modifiers = append(fn.Modifiers, "async")
	}
	fn.Modifiers = append(fn.Modifiers, decorators...)

	for i, p := range e.parameters(node.ChildByFieldName("parameters"), source) {
		if method && i == 0 && (p.Name == "self" || p.Name == "cls") {
			continue
		}
		fn.Parameters = append(fn.Parameters, p)
	}

	var calls callSites
	walk(node.ChildByFieldName("body"), func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "class_definition":
			return false
		case "call":
			fnNode := n.ChildByFieldName("function")
			switch {
			case fnNode == nil:
			case fnNode.Kind() == "identifier":
				calls.add(text(fnNode, source))
			case fnNode.Kind() == "attribute":
				calls.add(text(fnNode.ChildByFieldName("attribute"), source))
			}
		}
		return true
	})
	fn.CallSites = calls.list()
	return fn, true
}

func (e *pyExtractor) parameters(params *tree_sitter.Node, source []byte) []Parameter {
	var out []Parameter
	for _, p := range namedChildren(params) {
		switch p.Kind() {
		case "identifier":
			out = append(out, Parameter{Name: text(p, source)})
		case "typed_parameter":
			// The name is the first named child; it may be a splat pattern.
			var name string
			if first := p.NamedChild(0); first != nil {
				name = text(first, source)
			}
			out = append(out, Parameter{
				Name:         name,
				DeclaredType: collapseSpace(text(p.ChildByFieldName("type"), source)),
			})
		case "default_parameter", "typed_default_parameter":
			out = append(out, Parameter{
				Name:         text(p.ChildByFieldName("name"), source),
				DeclaredType: collapseSpace(text(p.ChildByFieldName("type"), source)),
			})
		case "list_splat_pattern", "dictionary_splat_pattern":
			out = append(out, Parameter{Name: text(p, source)})
		}
	}
	return out
}

// selfAttributes collects "self.x = ..." assignments in a method body.
func (e *pyExtractor) selfAttributes(fn *tree_sitter.Node, source []byte) []Field {
	var out []Field
	walk(fn.ChildByFieldName("body"), func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "function_definition", "class_definition", "lambda":
			return false
		case "assignment", "augmented_assignment":
			left := n.ChildByFieldName("left")
			if left == nil || left.Kind() != "attribute" {
				return true
			}
			obj := left.ChildByFieldName("object")
			if obj == nil || text(obj, source) != "self" {
				return true
			}
			out = append(out, Field{
				Name:         text(left.ChildByFieldName("attribute"), source),
				DeclaredType: collapseSpace(text(n.ChildByFieldName("type"), source)),
			})
		}
		return true
	})
	return out
}

func (e *pyExtractor) extractImport(node *tree_sitter.Node, source []byte) []ImportRef {
	var refs []ImportRef
	// import_statement children: "import" keyword then dotted_name or
	// aliased_import entries.
	for _, child := range namedChildren(node) {
		switch child.Kind() {
		case "dotted_name":
			refs = append(refs, ImportRef{ModulePath: text(child, source)})
		case "aliased_import":
			refs = append(refs, ImportRef{
				ModulePath: text(child.ChildByFieldName("name"), source),
				Alias:      text(child.ChildByFieldName("alias"), source),
			})
		}
	}
	return refs
}

// extractFromImport records one ref per imported name, qualified by the
// source module: "from a.b import c as d" -> {a.b.c, d}.
func (e *pyExtractor) extractFromImport(node *tree_sitter.Node, source []byte) []ImportRef {
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return nil
	}
	module := text(moduleNode, source)
	join := func(name string) string {
		if strings.HasSuffix(module, ".") {
			return module + name
		}
		return module + "." + name
	}

	var refs []ImportRef
	for _, child := range namedChildren(node) {
		if sameNode(child, moduleNode) {
			continue
		}
		switch child.Kind() {
		case "dotted_name":
			refs = append(refs, ImportRef{ModulePath: join(text(child, source))})
		case "aliased_import":
			refs = append(refs, ImportRef{
				ModulePath: join(text(child.ChildByFieldName("name"), source)),
				Alias:      text(child.ChildByFieldName("alias"), source),
			})
		case "wildcard_import":
			refs = append(refs, ImportRef{ModulePath: join("*")})
		}
	}
	if len(refs) == 0 {
		refs = append(refs, ImportRef{ModulePath: module})
	}
	return refs
}

// pyDecorators returns "@name" for each decorator on a decorated_definition,
// without call arguments.
func pyDecorators(node *tree_sitter.Node, source []byte) []string {
	var out []string
	for _, child := range namedChildren(node) {
		if child.Kind() != "decorator" {
			continue
		}
		d := strings.TrimSpace(text(child, source))
		if i := strings.Index(d, "("); i >= 0 {
			d = d[:i]
		}
		out = append(out, d)
	}
	return out
}
