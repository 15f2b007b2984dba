package parser

import (
	"context"
	"errors"
)

// ErrUnsupportedLanguage is returned by callers that need an error value for
// a file whose language has no registered adapter. The registry itself
// reports this condition as a boolean.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Parser turns one source file into a language-neutral ParseResult.
// Implementations: TreeSitterParser (one instance per language).
//
// Parse never fails: grammar errors, nil trees, and extractor panics are
// reported as Diagnostics on a result with empty collections.
type Parser interface {
	// Language returns the tag this adapter handles.
	Language() Language

	// Parse extracts classes, functions, and imports from source.
	// path is the caller's relative file path and is copied into the result.
	Parse(ctx context.Context, path string, source []byte) *ParseResult
}
