// Package pathset implements foldiff's Path type: a forward-slash
// separated, relative path with no leading "./" and no trailing "/",
// plus the reversed-segment ordering used throughout the manifest to
// guarantee byte-determinism.
package pathset

import (
	"sort"
	"strings"

	"github.com/foldiff/foldiff/internal/foldifferr"
)

// Path is a validated, "/"-separated path relative to a scan root.
// Two Paths with the same string representation are equal; the zero
// value is not a valid Path.
type Path string

// New validates s as a relative, "/"-separated path: no empty
// segments, no "." or ".." segments, no leading or trailing "/".
// Callers that already have host-native separators should use
// FromOSPath instead.
func New(s string) (Path, error) {
	if s == "" {
		return "", foldifferr.Newf(foldifferr.Input, "path is empty")
	}
	if strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return "", foldifferr.Newf(foldifferr.Input, "path %q has a leading or trailing separator", s)
	}
	for _, seg := range strings.Split(s, "/") {
		switch seg {
		case "":
			return "", foldifferr.Newf(foldifferr.Input, "path %q contains an empty segment", s)
		case ".", "..":
			return "", foldifferr.Newf(foldifferr.Input, "path %q contains a %q segment", s, seg)
		}
	}
	return Path(s), nil
}

// FromOSPath builds a Path from an absolute OS path abs known to live
// under root, translating the host path separator to "/".
func FromOSPath(root, abs string, separator byte) (Path, error) {
	rel := strings.TrimPrefix(abs, root)
	rel = strings.TrimPrefix(rel, string(separator))
	if separator != '/' {
		rel = strings.ReplaceAll(rel, string(separator), "/")
	}
	return New(rel)
}

// ToOSPath joins the path onto root using the host's separator.
func (p Path) ToOSPath(root string, separator byte) string {
	s := string(p)
	if separator != '/' {
		s = strings.ReplaceAll(s, "/", string(separator))
	}
	return root + string(separator) + s
}

// Segments splits the path on "/".
func (p Path) Segments() []string {
	return strings.Split(string(p), "/")
}

// Compare implements the reversed-segment order: split the path into
// "/"-separated segments, reverse the segment list, and compare
// lexicographically segment by segment. This guarantees that paths
// sharing a filename (or deep suffix) sort adjacently regardless of
// their directory prefix, which is what makes the manifest's
// iteration order a deterministic function of path content rather
// than directory layout.
func Compare(a, b Path) int {
	as, bs := a.Segments(), b.Segments()
	ai, bi := len(as)-1, len(bs)-1
	for ai >= 0 && bi >= 0 {
		if as[ai] != bs[bi] {
			if as[ai] < bs[bi] {
				return -1
			}
			return 1
		}
		ai--
		bi--
	}
	switch {
	case ai >= 0:
		return 1 // a has more segments remaining: a is "longer" from the root.
	case bi >= 0:
		return -1
	default:
		return 0
	}
}

// Less reports whether a sorts before b under Compare.
func Less(a, b Path) bool { return Compare(a, b) < 0 }

// SortPaths sorts a slice of Path in place using Compare.
func SortPaths(paths []Path) {
	sort.Slice(paths, func(i, j int) bool { return Less(paths[i], paths[j]) })
}
