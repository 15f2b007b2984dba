package ingest

import (
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"

	"github.com/dusk-indust/codegraph/internal/parser"
)

// DefaultCacheSize is the number of parse results kept by NewParseCache
// when size is not positive.
const DefaultCacheSize = 4096

// ParseCache keeps recent parse results keyed by language, path, and a
// content hash, so unchanged files are not re-parsed across runs.
// Cached results are shared and must be treated as read-only.
type ParseCache struct {
	entries *lru.Cache[string, *parser.ParseResult]
}

// NewParseCache returns a cache holding up to size results.
func NewParseCache(size int) (*ParseCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, *parser.ParseResult](size)
	if err != nil {
		return nil, fmt.Errorf("parse cache: %w", err)
	}
	return &ParseCache{entries: c}, nil
}

// Key derives the cache key of one source file.
func (c *ParseCache) Key(lang parser.Language, path string, content []byte) string {
	h := xxh3.Hash128(content).Bytes()
	return string(lang) + ":" + path + ":" + hex.EncodeToString(h[:])
}

// Get returns the cached result for key.
func (c *ParseCache) Get(key string) (*parser.ParseResult, bool) {
	if c == nil {
		return nil, false
	}
	return c.entries.Get(key)
}

// Add stores res under key.
func (c *ParseCache) Add(key string, res *parser.ParseResult) {
	if c == nil || res == nil {
		return
	}
	c.entries.Add(key, res)
}

// Len returns the number of cached results.
func (c *ParseCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
