package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unsafe"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
	tree_sitter_kotlin "github.com/tree-sitter-grammars/tree-sitter-kotlin/bindings/go"
)

// extractor fills a ParseResult from a parsed tree-sitter AST.
type extractor interface {
	Extract(root *tree_sitter.Node, source []byte, res *ParseResult)
}

// TreeSitterParser implements Parser for a single language using a
// tree-sitter grammar and a language-specific extractor.
// A new tree-sitter parser is created per Parse call, so one instance may be
// shared by concurrent goroutines.
type TreeSitterParser struct {
	lang    Language
	grammar *tree_sitter.Language
	ext     extractor
}

// Compile-time check that TreeSitterParser satisfies Parser.
var _ Parser = (*TreeSitterParser)(nil)

func newTreeSitterParser(lang Language, grammar unsafe.Pointer, ext extractor) *TreeSitterParser {
	return &TreeSitterParser{
		lang:    lang,
		grammar: tree_sitter.NewLanguage(grammar),
		ext:     ext,
	}
}

// NewPythonParser returns the Python adapter.
func NewPythonParser() *TreeSitterParser {
	return newTreeSitterParser(LangPython, tree_sitter_python.Language(), &pyExtractor{})
}

// NewJavaParser returns the Java adapter.
func NewJavaParser() *TreeSitterParser {
	return newTreeSitterParser(LangJava, tree_sitter_java.Language(), &javaExtractor{})
}

// NewKotlinParser returns the Kotlin adapter.
func NewKotlinParser() *TreeSitterParser {
	return newTreeSitterParser(LangKotlin, tree_sitter_kotlin.Language(), &ktExtractor{})
}

// NewCParser returns the C adapter.
func NewCParser() *TreeSitterParser {
	return newTreeSitterParser(LangC, tree_sitter_c.Language(), &cExtractor{})
}

// NewGoParser returns the Go adapter.
func NewGoParser() *TreeSitterParser {
	return newTreeSitterParser(LangGo, tree_sitter_go.Language(), &goExtractor{})
}

// NewTypeScriptParser returns the TypeScript adapter.
func NewTypeScriptParser() *TreeSitterParser {
	return newTreeSitterParser(LangTypeScript, tree_sitter_typescript.LanguageTypescript(), &tsExtractor{})
}

// NewRustParser returns the Rust adapter.
func NewRustParser() *TreeSitterParser {
	return newTreeSitterParser(LangRust, tree_sitter_rust.Language(), &rsExtractor{})
}

// Language returns the tag this adapter handles.
func (p *TreeSitterParser) Language() Language {
	return p.lang
}

// Parse extracts structure from a single source file. It never panics.
func (p *TreeSitterParser) Parse(ctx context.Context, path string, source []byte) (res *ParseResult) {
	res = newResult(path, p.lang, source)

	if err := ctx.Err(); err != nil {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{Message: "parse skipped: " + err.Error()})
		return res
	}
	if len(bytes.TrimSpace(source)) == 0 {
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res = newResult(path, p.lang, source)
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Message: fmt.Sprintf("%s extractor panic: %v", p.lang, r),
			})
		}
	}()

	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(p.grammar); err != nil {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Message: fmt.Sprintf("set language %s: %v", p.lang, err),
		})
		return res
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{Message: "tree-sitter returned nil tree"})
		return res
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.IsError() {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{Line: 1, Message: "unrecoverable syntax error"})
		return res
	}

	p.ext.Extract(root, source, res)

	switch {
	case root.HasError():
		line := firstErrorLine(root)
		if res.Empty() {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Line: line, Message: "unrecoverable syntax error"})
		} else {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{Line: line, Message: "partial parse: syntax error"})
		}
	case res.Empty():
		if decl := firstDeclarationLike(root); decl != nil {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				Line:    startLine(decl),
				Message: fmt.Sprintf("no structure extracted from %s node", decl.Kind()),
			})
		}
	}
	return res
}

// declarationHints are substrings of top-level node kinds that every
// grammar uses for declarations an extractor is expected to handle.
var declarationHints = []string{
	"class", "function", "method", "import", "include", "struct",
	"interface", "object", "enum", "trait", "impl", "use_declaration",
	"type_declaration",
}

// firstDeclarationLike returns the first top-level node that looks like a
// declaration, or nil. An empty result next to such a node means the
// extractor did not recognize the grammar's output.
func firstDeclarationLike(root *tree_sitter.Node) *tree_sitter.Node {
	for _, c := range namedChildren(root) {
		kind := c.Kind()
		for _, h := range declarationHints {
			if strings.Contains(kind, h) {
				return c
			}
		}
	}
	return nil
}

// newResult returns a ParseResult with non-nil, empty collections.
func newResult(path string, lang Language, source []byte) *ParseResult {
	return &ParseResult{
		FilePath:  path,
		Language:  lang,
		LOC:       countLOC(source),
		Classes:   []ClassLike{},
		Functions: []FunctionLike{},
		Imports:   []ImportRef{},
	}
}

// firstErrorLine descends along error-bearing children to the first ERROR or
// MISSING node and returns its 1-based line.
func firstErrorLine(n *tree_sitter.Node) int {
	for {
		if n.IsError() || n.IsMissing() {
			return startLine(n)
		}
		var next *tree_sitter.Node
		for i := uint(0); i < n.ChildCount(); i++ {
			c := n.Child(i)
			if c != nil && (c.HasError() || c.IsMissing()) {
				next = c
				break
			}
		}
		if next == nil {
			return startLine(n)
		}
		n = next
	}
}

// countLOC counts the number of lines in source by counting newline bytes
// and adding one for the final line if the source is non-empty.
func countLOC(source []byte) int {
	if len(source) == 0 {
		return 0
	}
	return bytes.Count(source, []byte{'\n'}) + 1
}
