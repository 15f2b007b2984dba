// Package discover walks a repository checkout and collects the source
// files the ingestion pipeline can parse.
package discover

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	ignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"

	"github.com/dusk-indust/codegraph/internal/ingest"
	"github.com/dusk-indust/codegraph/internal/parser"
)

// DefaultMaxFileSize skips generated or vendored blobs.
const DefaultMaxFileSize = 1 << 20

// skipDirs is the set of directory names never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"dist":         true,
	"build":        true,
	".next":        true,
	"target":       true,
	".ckg":         true,
}

// Options controls which files Walk returns.
type Options struct {
	// ExcludeDirs adds directory names to the built-in skip list.
	ExcludeDirs []string
	// Languages restricts results; empty means every known extension.
	Languages []parser.Language
	// MaxFileSize in bytes; 0 means DefaultMaxFileSize.
	MaxFileSize int64
	Logger      *zap.Logger
}

// Walk returns every parseable file below root, sorted by path. Paths are
// relative to root and slash-separated. Hidden directories, skipped
// directories, and paths matched by any .gitignore on the way down are
// left out, as are binary, non-UTF-8, and oversized files.
func Walk(ctx context.Context, root string, opts Options) ([]ingest.File, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("discover: %s is not a directory", root)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	exclude := make(map[string]bool, len(opts.ExcludeDirs))
	for _, d := range opts.ExcludeDirs {
		exclude[d] = true
	}
	var langs map[parser.Language]bool
	if len(opts.Languages) > 0 {
		langs = make(map[parser.Language]bool, len(opts.Languages))
		for _, l := range opts.Languages {
			langs[l] = true
		}
	}

	ignores := newIgnoreSet()
	var files []ingest.File

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Debug("discover: unreadable entry", zap.String("path", p), zap.Error(err))
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			if rel == "." {
				ignores.load(root, "")
				return nil
			}
			if skipDirs[name] || exclude[name] || strings.HasPrefix(name, ".") || ignores.match(rel, true) {
				return filepath.SkipDir
			}
			ignores.load(p, rel)
			return nil
		}
		if !d.Type().IsRegular() || ignores.match(rel, false) {
			return nil
		}

		lang, ok := parser.LanguageForPath(name)
		if !ok || (langs != nil && !langs[lang]) {
			return nil
		}
		fi, err := d.Info()
		if err != nil || fi.Size() > maxSize {
			logger.Debug("discover: skipping file", zap.String("path", rel))
			return nil
		}
		content, err := os.ReadFile(p)
		if err != nil {
			logger.Debug("discover: read failed", zap.String("path", rel), zap.Error(err))
			return nil
		}
		if !isText(content) {
			return nil
		}
		files = append(files, ingest.File{Path: rel, Language: lang, Content: content})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover: walk %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func isText(b []byte) bool {
	head := b
	if len(head) > 8000 {
		head = head[:8000]
	}
	return bytes.IndexByte(head, 0) < 0 && utf8.Valid(b)
}

// ignoreSet holds the .gitignore matchers found so far, keyed by the
// slash-separated directory they apply to ("" for the root).
type ignoreSet struct {
	byDir map[string]*ignore.GitIgnore
}

func newIgnoreSet() *ignoreSet {
	return &ignoreSet{byDir: make(map[string]*ignore.GitIgnore)}
}

func (s *ignoreSet) load(absDir, relDir string) {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(absDir, ".gitignore"))
	if err != nil {
		return
	}
	s.byDir[relDir] = gi
}

// match reports whether rel is ignored by a .gitignore in any ancestor.
func (s *ignoreSet) match(rel string, isDir bool) bool {
	dir := path.Dir(rel)
	for {
		key := dir
		if key == "." {
			key = ""
		}
		if gi, ok := s.byDir[key]; ok {
			sub := rel
			if key != "" {
				sub = strings.TrimPrefix(rel, key+"/")
			}
			if gi.MatchesPath(sub) || (isDir && gi.MatchesPath(sub+"/")) {
				return true
			}
		}
		if key == "" {
			return false
		}
		dir = path.Dir(dir)
	}
}
