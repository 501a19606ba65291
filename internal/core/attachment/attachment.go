// Package attachment contains the pure rules for attachment ids and digests.
package attachment

import (
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Digest returns the content digest stored alongside an attachment, in the
// "md5-<base64>" form used by CouchDB-compatible stores.
func Digest(blob []byte) string {
	sum := md5.Sum(blob)
	return "md5-" + base64.StdEncoding.EncodeToString(sum[:])
}

// ParseIndex extracts n from an id of the form "<fieldID>_<n>".
func ParseIndex(fieldID, id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, fieldID+"_")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 || strconv.Itoa(n) != rest {
		return 0, false
	}
	return n, true
}

// NextIndex returns one more than the highest index in use for fieldID, or 0.
// Gaps left by deleted attachments are never refilled.
func NextIndex(fieldID string, ids []string) int {
	next := 0
	for _, id := range ids {
		if n, ok := ParseIndex(fieldID, id); ok && n+1 > next {
			next = n + 1
		}
	}
	return next
}

// NextID returns the id for the next photo of a multi-value field.
func NextID(fieldID string, ids []string) string {
	return fmt.Sprintf("%s_%d", fieldID, NextIndex(fieldID, ids))
}

// Matches reports whether id belongs to the logical attachment prefix: the
// prefix itself, an indexed photo "<prefix>_<n>", or a nested per-item key
// "<prefix>.x" / "<prefix>[x]".
func Matches(prefix, id string) bool {
	if id == prefix {
		return true
	}
	if _, ok := ParseIndex(prefix, id); ok {
		return true
	}
	return strings.HasPrefix(id, prefix+".") || strings.HasPrefix(id, prefix+"[")
}

// Select returns the ids in ids that belong to prefix, ordered by photo
// index and then lexically.
func Select(prefix string, ids []string) []string {
	var out []string
	for _, id := range ids {
		if Matches(prefix, id) {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, aok := ParseIndex(prefix, out[i])
		b, bok := ParseIndex(prefix, out[j])
		if aok && bok {
			return a < b
		}
		if aok != bok {
			return aok
		}
		return out[i] < out[j]
	})
	return out
}

// Keys returns the keys of an attachment-like map.
func Keys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
