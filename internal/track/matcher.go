package track

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/text/unicode/norm"
)

// Matcher decides which relative paths are left out of a scan.
//
// Patterns containing a slash are matched against the whole relative path;
// patterns without one are matched against the base name at any depth. A
// leading slash anchors a pattern at the root.
// Both sides are NFC normalized, so a decomposed file name still matches a
// pattern typed in composed form.
type Matcher struct {
	full []glob.Glob
	base []glob.Glob
}

// NewMatcher compiles exclude patterns. Blank lines and lines starting with
// '#' are ignored so the list can be read from an ignore file verbatim.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}
		pattern = norm.NFC.String(strings.TrimSuffix(filepath.ToSlash(pattern), "/"))
		anchored := strings.HasPrefix(pattern, "/")
		pattern = strings.TrimLeft(pattern, "/")
		if pattern == "" {
			continue
		}

		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		if anchored || strings.Contains(pattern, "/") {
			m.full = append(m.full, g)
		} else {
			m.base = append(m.base, g)
		}
	}
	return m, nil
}

// Match reports whether rel (slash separated) is excluded.
func (m *Matcher) Match(rel string) bool {
	if m.Empty() {
		return false
	}
	rel = norm.NFC.String(rel)
	for _, g := range m.full {
		if g.Match(rel) {
			return true
		}
	}
	if len(m.base) == 0 {
		return false
	}
	name := path.Base(rel)
	for _, g := range m.base {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Empty reports whether the matcher excludes nothing.
func (m *Matcher) Empty() bool {
	return m == nil || len(m.full)+len(m.base) == 0
}
