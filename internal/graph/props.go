package graph

import (
	"fmt"
	"strings"
)

// ---------- Type coercion helpers ----------
// Backends return typed Go values (int64, float64, bool, string) and Neo4j
// may return int64 where Kuzu returns int32. These helpers safely coerce
// any -> concrete type.

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case int32:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}

// JoinList encodes a list-valued property. Backends store scalars only.
func JoinList(items []string) string {
	return strings.Join(items, ",")
}

// SplitList decodes a property written by JoinList.
func SplitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

func copyProps(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
