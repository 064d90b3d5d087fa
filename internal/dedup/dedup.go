// Package dedup removes repeated records while keeping first-seen order.
package dedup

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// By returns records with repeats of key dropped. The first record for a key
// wins. Records with an empty key are always kept.
func By[T any](records []T, key func(T) string) []T {
	seen := make(map[string]struct{}, len(records))
	out := make([]T, 0, len(records))
	for _, r := range records {
		k := key(r)
		if k == "" {
			out = append(out, r)
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

// ByField deduplicates raw JSON objects on the string value at path
// (gjson syntax, e.g. "url" or "primary_venue.id").
func ByField(records []json.RawMessage, path string) []json.RawMessage {
	return By(records, func(r json.RawMessage) string {
		return gjson.GetBytes(r, path).String()
	})
}
