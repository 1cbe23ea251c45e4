package datasite

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
)

// Match is one discovery hit: the datasite that owns the file and its
// absolute path.
type Match struct {
	Datasite string
	Path     string
}

// Glob walks every datasite under the sync folder and returns the files
// whose slash-separated path relative to the sync folder matches pattern.
//
// Pattern segments follow path.Match, and a "**" segment matches zero or
// more directories. Results are sorted by path so discovery is
// deterministic.
func (c *Client) Glob(pattern string) ([]Match, error) {
	segs := splitPattern(pattern)
	for _, s := range segs {
		if s == "**" {
			continue
		}
		if _, err := path.Match(s, ""); err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
	}

	var out []Match
	err := filepath.WalkDir(c.SyncFolder, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Files vanish under us while the sync layer works; skip them.
			if p != c.SyncFolder {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != c.SyncFolder {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := c.Rel(p)
		if err != nil {
			return nil
		}
		if matchSegments(segs, strings.Split(rel, "/")) {
			out = append(out, Match{Datasite: Owner(rel), Path: p})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	return out, nil
}

func splitPattern(pattern string) []string {
	pattern = strings.Trim(filepath.ToSlash(pattern), "/")
	var segs []string
	for _, s := range strings.Split(pattern, "/") {
		// Collapse runs of "**" so matching stays linear in practice.
		if s == "**" && len(segs) > 0 && segs[len(segs)-1] == "**" {
			continue
		}
		segs = append(segs, s)
	}
	return segs
}

func matchSegments(pat, name []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			rest := pat[1:]
			for i := 0; i <= len(name); i++ {
				if matchSegments(rest, name[i:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		ok, err := path.Match(pat[0], name[0])
		if err != nil || !ok {
			return false
		}
		pat, name = pat[1:], name[1:]
	}
	return len(name) == 0
}
