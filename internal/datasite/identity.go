package datasite

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the canonical form of a datasite identity: NFC
// normalised, trimmed and lower-cased. Two identities name the same
// datasite iff their normalised forms are equal.
func Normalize(id string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(id)))
}

// IsIdentity reports whether s looks like a datasite identity
// (a single path segment of the form local@domain).
func IsIdentity(s string) bool {
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return false
	}
	if strings.IndexByte(s[at+1:], '@') >= 0 {
		return false
	}
	return !strings.ContainsAny(s, "/\\ \t\n")
}

// Extract returns the last identity-shaped segment of path, or "" if none.
//
// Join markers encode the project author this way:
//
//	<me>/public/fedreduce/join/<author>/<project>.yaml.join
func Extract(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if IsIdentity(parts[i]) {
			return parts[i]
		}
	}
	return ""
}

// Owner returns the datasite that owns rel, a path relative to the sync
// root: its first segment.
func Owner(rel string) string {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")
	if i := strings.IndexByte(rel, '/'); i >= 0 {
		return rel[:i]
	}
	return rel
}

// Dedupe returns the sorted set of normalised identities in ids.
func Dedupe(ids ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range ids {
		for _, id := range list {
			n := Normalize(id)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	sortStrings(out)
	return out
}
