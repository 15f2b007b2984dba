package graph

import (
	"path"
	"sort"
	"strings"

	"github.com/dusk-indust/codegraph/internal/parser"
)

// ImportResolver maps raw import module paths (as extracted by the parser
// adapters) onto files of the same snapshot. It never touches the
// filesystem: resolution only checks the set of ingested paths.
//
// A resolved target is stored as the resolved_path property of the
// IMPORTS relationship. Unresolvable imports (stdlib, external packages)
// keep an empty resolved_path.
type ImportResolver struct {
	fileSet map[string]bool
	dirs    map[string][]string // dir -> sorted files
	// suffixes maps every trailing segment run of an extensionless path
	// ("com/example/Dog", "example/Dog", "Dog") to the first file, in
	// sorted order, that ends with it.
	suffixes map[string]string
	dirKeys  []string // sorted keys of dirs
}

// NewImportResolver indexes the given slash-separated repo-relative paths.
func NewImportResolver(paths []string) *ImportResolver {
	sorted := append([]string{}, paths...)
	sort.Strings(sorted)

	r := &ImportResolver{
		fileSet:  make(map[string]bool, len(sorted)),
		dirs:     make(map[string][]string),
		suffixes: make(map[string]string),
	}
	for _, p := range sorted {
		r.fileSet[p] = true
		dir := path.Dir(p)
		r.dirs[dir] = append(r.dirs[dir], p)

		segs := strings.Split(strings.TrimSuffix(p, path.Ext(p)), "/")
		for i := range segs {
			suffix := strings.Join(segs[i:], "/")
			if _, ok := r.suffixes[suffix]; !ok {
				r.suffixes[suffix] = p
			}
		}
	}
	for dir := range r.dirs {
		r.dirKeys = append(r.dirKeys, dir)
	}
	sort.Strings(r.dirKeys)
	return r
}

// Resolve returns the ingested file an import refers to.
func (r *ImportResolver) Resolve(modulePath, sourceFile string, lang parser.Language) (string, bool) {
	if r == nil || modulePath == "" {
		return "", false
	}
	switch lang {
	case parser.LangPython:
		return r.resolvePython(modulePath, sourceFile)
	case parser.LangTypeScript:
		return r.resolveTS(modulePath, sourceFile)
	case parser.LangGo:
		return r.resolveGo(modulePath)
	case parser.LangRust:
		return r.resolveRust(modulePath, sourceFile)
	case parser.LangJava, parser.LangKotlin:
		return r.resolveDotted(modulePath)
	case parser.LangC:
		return r.resolveC(modulePath, sourceFile)
	}
	return "", false
}

// --- Python resolution ---

// resolvePython handles "pkg.mod", "pkg.mod.Name", and relative ".mod.Name"
// forms, dropping trailing segments until a module file matches.
func (r *ImportResolver) resolvePython(importPath, sourceFile string) (string, bool) {
	dots := len(importPath) - len(strings.TrimLeft(importPath, "."))
	modulePart := strings.TrimSuffix(importPath[dots:], ".*")

	if dots == 0 {
		// Absolute imports resolve from the repo root, then from the
		// importing file's directory (script-style sibling imports).
		segs := strings.Split(modulePart, ".")
		for n := len(segs); n > 0; n-- {
			rel := strings.Join(segs[:n], "/")
			for _, base := range []string{rel, path.Join(path.Dir(sourceFile), rel)} {
				if p, ok := r.lookupFile(base, ".py", "/__init__.py"); ok {
					return p, true
				}
			}
		}
		return "", false
	}

	// One dot = current package, two dots = parent, etc.
	baseDir := path.Dir(sourceFile)
	for i := 1; i < dots; i++ {
		baseDir = path.Dir(baseDir)
	}
	if modulePart == "" {
		return r.lookupFile(path.Join(baseDir, "__init__"), ".py")
	}
	segs := strings.Split(modulePart, ".")
	for n := len(segs); n > 0; n-- {
		base := path.Join(baseDir, strings.Join(segs[:n], "/"))
		if p, ok := r.lookupFile(base, ".py", "/__init__.py"); ok {
			return p, true
		}
	}
	return "", false
}

// --- TypeScript resolution ---

var tsExtensions = []string{".ts", ".tsx", ".js", ".jsx", "/index.ts", "/index.tsx", "/index.js"}

func (r *ImportResolver) resolveTS(importPath, sourceFile string) (string, bool) {
	importPath = trimQuotes(importPath)
	if !strings.HasPrefix(importPath, "./") && !strings.HasPrefix(importPath, "../") {
		return "", false // package import
	}
	base := path.Join(path.Dir(sourceFile), importPath)
	return r.lookupFile(base, tsExtensions...)
}

// --- Go resolution ---

// resolveGo matches the longest trailing directory run of the import path
// against ingested directories, then picks the first non-test file.
func (r *ImportResolver) resolveGo(importPath string) (string, bool) {
	return r.firstInDir(trimQuotes(importPath), func(f string) bool {
		return strings.HasSuffix(f, ".go") && !strings.HasSuffix(f, "_test.go")
	})
}

// firstInDir returns the first accepted file in the ingested directory
// sharing the longest trailing run of segments with dir.
func (r *ImportResolver) firstInDir(dir string, accept func(string) bool) (string, bool) {
	segs := strings.Split(dir, "/")
	for i := range segs {
		for _, f := range r.dirs[strings.Join(segs[i:], "/")] {
			if accept(f) {
				return f, true
			}
		}
	}
	return "", false
}

// --- Rust resolution ---

func (r *ImportResolver) resolveRust(importPath, sourceFile string) (string, bool) {
	// Strip use-list braces: "crate::model::{Repository, User}" -> "crate::model"
	if idx := strings.Index(importPath, "::{"); idx != -1 {
		importPath = importPath[:idx]
	}

	var bases []string
	var rest string
	switch {
	case strings.HasPrefix(importPath, "crate::"):
		rest = strings.TrimPrefix(importPath, "crate::")
		bases = []string{"src", ""}
		if root := findCrateRoot(sourceFile); root != "" {
			bases = append(bases, root)
		}
	case strings.HasPrefix(importPath, "self::"):
		rest = strings.TrimPrefix(importPath, "self::")
		bases = []string{path.Dir(sourceFile)}
	case strings.HasPrefix(importPath, "super::"):
		rest = strings.TrimPrefix(importPath, "super::")
		bases = []string{path.Dir(path.Dir(sourceFile))}
	default:
		return "", false // external crate
	}

	// "crate::model::User" names an item; drop segments until a module matches.
	segs := strings.Split(rest, "::")
	for n := len(segs); n > 0; n-- {
		rel := strings.Join(segs[:n], "/")
		for _, base := range bases {
			if p, ok := r.lookupFile(path.Join(base, rel), ".rs", "/mod.rs"); ok {
				return p, true
			}
		}
	}
	return "", false
}

// findCrateRoot walks up from a file path to the nearest "src" directory,
// the conventional Rust crate source root.
func findCrateRoot(filePath string) string {
	dir := path.Dir(filePath)
	for dir != "." && dir != "/" && dir != "" {
		if path.Base(dir) == "src" {
			return dir
		}
		dir = path.Dir(dir)
	}
	return ""
}

// --- Java / Kotlin resolution ---

// resolveDotted maps "com.example.Dog" onto any file ending in
// "com/example/Dog.<ext>". Wildcard imports resolve to the first file of
// the package directory.
func (r *ImportResolver) resolveDotted(importPath string) (string, bool) {
	if pkg, ok := strings.CutSuffix(importPath, ".*"); ok {
		pkgPath := strings.ReplaceAll(pkg, ".", "/")
		for _, dir := range r.dirKeys {
			if dir == pkgPath || strings.HasSuffix(dir, "/"+pkgPath) {
				return r.dirs[dir][0], true
			}
		}
		return "", false
	}
	p, ok := r.suffixes[strings.ReplaceAll(importPath, ".", "/")]
	return p, ok
}

// --- C resolution ---

func (r *ImportResolver) resolveC(include, sourceFile string) (string, bool) {
	if p, ok := r.lookupFile(path.Join(path.Dir(sourceFile), include)); ok {
		return p, true
	}
	if r.fileSet[include] {
		return include, true
	}
	p, ok := r.suffixes[strings.TrimSuffix(include, path.Ext(include))]
	if ok && path.Base(p) == path.Base(include) {
		return p, true
	}
	return "", false
}

// --- Shared helpers ---

// lookupFile checks if basePath (with any of the given extensions appended)
// exists in the known file set.
func (r *ImportResolver) lookupFile(basePath string, extensions ...string) (string, bool) {
	if r.fileSet[basePath] {
		return basePath, true
	}
	for _, ext := range extensions {
		candidate := basePath + ext
		if r.fileSet[candidate] {
			return candidate, true
		}
	}
	return "", false
}

func trimQuotes(s string) string {
	return strings.Trim(s, "\"'`")
}
