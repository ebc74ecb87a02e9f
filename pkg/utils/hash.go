package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:16])
}

// CanonicalParams renders params as sorted, lower-cased key=value pairs so two
// requests that differ only in key order or letter case share a cache key.
// Empty values are dropped.
func CanonicalParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if strings.TrimSpace(v) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(strings.ToLower(strings.TrimSpace(k)))
		b.WriteByte('=')
		b.WriteString(strings.ToLower(strings.TrimSpace(params[k])))
	}
	return b.String()
}

// ParamsKey is the cache key for a tool call: "<kind>:<hash of params>".
func ParamsKey(kind string, params map[string]string) string {
	return kind + ":" + HashString(CanonicalParams(params))
}
