package parser

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Registry maps language tags to parser adapters. It is safe for
// concurrent use; registration normally happens once at startup.
type Registry struct {
	mu      sync.RWMutex
	parsers map[Language]Parser
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[Language]Parser)}
}

// Default returns a registry with every built-in adapter registered.
func Default() *Registry {
	r := NewRegistry()
	r.Register(NewPythonParser())
	r.Register(NewJavaParser())
	r.Register(NewKotlinParser())
	r.Register(NewCParser())
	r.Register(NewGoParser())
	r.Register(NewTypeScriptParser())
	r.Register(NewRustParser())
	return r
}

// Register adds p under its own language tag, replacing any previous
// adapter for that tag.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[p.Language()] = p
}

// Get returns the adapter for lang. A missing adapter is not an error;
// callers skip the file.
func (r *Registry) Get(lang Language) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[lang]
	return p, ok
}

// Languages returns the registered tags in sorted order.
func (r *Registry) Languages() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Language, 0, len(r.parsers))
	for l := range r.parsers {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var extLanguages = map[string]Language{
	".py":   LangPython,
	".pyi":  LangPython,
	".java": LangJava,
	".kt":   LangKotlin,
	".kts":  LangKotlin,
	".c":    LangC,
	".h":    LangC,
	".go":   LangGo,
	".ts":   LangTypeScript,
	".tsx":  LangTypeScript,
	".rs":   LangRust,
}

// LanguageForPath infers a language tag from a file extension.
func LanguageForPath(path string) (Language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extLanguages[ext]
	return lang, ok
}

// ParseLanguage validates a user-supplied tag such as "Kotlin" or "py".
func ParseLanguage(s string) (Language, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "py":
		return LangPython, true
	case "kt":
		return LangKotlin, true
	case "ts":
		return LangTypeScript, true
	case "rs":
		return LangRust, true
	case "golang":
		return LangGo, true
	}
	switch l := Language(s); l {
	case LangPython, LangJava, LangKotlin, LangC, LangGo, LangTypeScript, LangRust:
		return l, true
	}
	return "", false
}
