package parser

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// Shared AST helpers used by every extractor.

func text(n *tree_sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	return n.Utf8Text(source)
}

func startLine(n *tree_sitter.Node) int {
	return int(n.StartPosition().Row) + 1
}

func nodeRange(n *tree_sitter.Node) SourceRange {
	return SourceRange{
		StartLine: int(n.StartPosition().Row) + 1,
		EndLine:   int(n.EndPosition().Row) + 1,
	}
}

func sameNode(a, b *tree_sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Kind() == b.Kind()
}

// children returns all direct children, named and anonymous.
func children(n *tree_sitter.Node) []*tree_sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*tree_sitter.Node, 0, n.ChildCount())
	for i := uint(0); i < n.ChildCount(); i++ {
		if c := n.Child(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func namedChildren(n *tree_sitter.Node) []*tree_sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*tree_sitter.Node, 0, n.NamedChildCount())
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// childOfKind returns the first direct child whose kind is one of kinds.
func childOfKind(n *tree_sitter.Node, kinds ...string) *tree_sitter.Node {
	for _, c := range children(n) {
		for _, k := range kinds {
			if c.Kind() == k {
				return c
			}
		}
	}
	return nil
}

// hasChildKind reports whether any direct child (including anonymous
// keyword tokens) has the given kind.
func hasChildKind(n *tree_sitter.Node, kind string) bool {
	return childOfKind(n, kind) != nil
}

// walk visits n and its descendants in pre-order. visit returns false to
// skip the children of the node it was given.
func walk(n *tree_sitter.Node, visit func(*tree_sitter.Node) bool) {
	if n == nil {
		return
	}
	cursor := n.Walk()
	defer cursor.Close()
	walkCursor(cursor, visit)
}

func walkCursor(cursor *tree_sitter.TreeCursor, visit func(*tree_sitter.Node) bool) {
	if !visit(cursor.Node()) {
		return
	}
	if cursor.GotoFirstChild() {
		walkCursor(cursor, visit)
		for cursor.GotoNextSibling() {
			walkCursor(cursor, visit)
		}
		cursor.GotoParent()
	}
}

// callSites accumulates callee names in first-seen order without duplicates.
type callSites struct {
	seen  map[string]bool
	names []string
}

func (c *callSites) add(name string) {
	name = calleeName(name)
	if name == "" {
		return
	}
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	if c.seen[name] {
		return
	}
	c.seen[name] = true
	c.names = append(c.names, name)
}

func (c *callSites) list() []string {
	return c.names
}

// calleeName reduces a call target expression to its last identifier:
// "self.repo.save" -> "save", "std::mem::swap" -> "swap".
func calleeName(expr string) string {
	expr = strings.TrimSpace(expr)
	if i := strings.IndexAny(expr, "(<["); i >= 0 {
		expr = expr[:i]
	}
	for _, sep := range []string{"::", "->", "?.", "."} {
		if i := strings.LastIndex(expr, sep); i >= 0 {
			expr = expr[i+len(sep):]
		}
	}
	expr = strings.TrimSpace(expr)
	if !isIdentifier(expr) {
		return ""
	}
	return expr
}

// SimpleTypeName strips qualifiers, generic arguments, pointer and
// nullability markers from a type reference: "pkg.Base<T>?" -> "Base".
// It is used to match declared supertypes against class names.
func SimpleTypeName(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimLeft(ref, "*&")
	ref = strings.TrimPrefix(ref, "mut ")
	if i := strings.IndexAny(ref, "<[("); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.TrimRight(ref, "?!* ")
	for _, sep := range []string{"::", "."} {
		if i := strings.LastIndex(ref, sep); i >= 0 {
			ref = ref[i+len(sep):]
		}
	}
	return strings.TrimSpace(ref)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		case r > 127:
		default:
			return false
		}
	}
	return true
}

// appendUnique appends s to list unless it is empty or already present.
func appendUnique(list []string, s string) []string {
	if s == "" {
		return list
	}
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// trimQuotes removes surrounding quote or angle-bracket delimiters.
func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') ||
			(first == '`' && last == '`') || (first == '<' && last == '>') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// collapseSpace folds runs of whitespace so multi-line type text reads on
// one line.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
