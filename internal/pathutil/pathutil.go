// Package pathutil validates paths accepted from the wire protocol, matches
// them against a configured blacklist, and computes common ancestors.
//
// The containment check cleans, joins, and requires a trailing-separator
// prefix match, so a sibling directory that merely shares a prefix (e.g.
// "/data-backup" against "/data") never passes as contained.
package pathutil

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Othernet-Project/fsal/internal/fsalerr"
)

// ValidateInternal validates a user-supplied relative path against a base
// path: trims whitespace, strips leading/trailing separators, joins with
// base, canonicalises, and checks containment. Returns the canonical
// rel-path (relative to base) on success.
func ValidateInternal(basePath, rawPath string) (string, error) {
	trimmed := strings.TrimSpace(rawPath)
	if trimmed == "" {
		return "", fsalerr.New(fsalerr.InvalidPath, "empty path")
	}
	trimmed = strings.Trim(trimmed, string(filepath.Separator))

	absBase, err := filepath.Abs(filepath.Clean(basePath))
	if err != nil {
		return "", fsalerr.Wrap(fsalerr.InvalidPath, err, "resolve base path %q", basePath)
	}

	joined := filepath.Join(absBase, filepath.Clean(trimmed))
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", fsalerr.Wrap(fsalerr.InvalidPath, err, "resolve path %q", rawPath)
	}

	if absJoined != absBase && !strings.HasPrefix(absJoined, absBase+string(filepath.Separator)) {
		return "", fsalerr.New(fsalerr.InvalidPath, "path %q escapes base %q", rawPath, basePath)
	}

	if absJoined == absBase {
		return ".", nil
	}
	rel, err := filepath.Rel(absBase, absJoined)
	if err != nil {
		return "", fsalerr.Wrap(fsalerr.InvalidPath, err, "relativize %q", rawPath)
	}
	return rel, nil
}

// ValidateExternal validates an absolute path supplied for transfer: trims
// and canonicalises, with no containment check.
func ValidateExternal(rawPath string) (string, error) {
	trimmed := strings.TrimSpace(rawPath)
	if trimmed == "" {
		return "", fsalerr.New(fsalerr.InvalidPath, "empty path")
	}
	if !filepath.IsAbs(trimmed) {
		return "", fsalerr.New(fsalerr.InvalidPath, "path %q is not absolute", rawPath)
	}
	abs, err := filepath.Abs(filepath.Clean(trimmed))
	if err != nil {
		return "", fsalerr.Wrap(fsalerr.InvalidPath, err, "resolve path %q", rawPath)
	}
	return abs, nil
}

// Blacklist is a compiled, case-insensitive set of regular expressions
// matched from the beginning of a path.
type Blacklist struct {
	patterns []*regexp.Regexp
}

// CompileBlacklist compiles the configured pattern strings. Each pattern is
// anchored at the start of the path and matched case-insensitively; patterns
// are not otherwise anchored at the end, so "^tmp/" matches "tmp/x" and
// "tmp/x/y" alike.
func CompileBlacklist(patterns []string) (*Blacklist, error) {
	bl := &Blacklist{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		anchored := p
		if !strings.HasPrefix(anchored, "^") {
			anchored = "^" + anchored
		}
		re, err := regexp.Compile("(?i)" + anchored)
		if err != nil {
			return nil, fsalerr.Wrap(fsalerr.InvalidPath, err, "compile blacklist pattern %q", p)
		}
		bl.patterns = append(bl.patterns, re)
	}
	return bl, nil
}

// Matches reports whether relPath is blacklisted.
func (b *Blacklist) Matches(relPath string) bool {
	if b == nil {
		return false
	}
	for _, re := range b.patterns {
		if re.MatchString(relPath) {
			return true
		}
	}
	return false
}

// CommonAncestor returns the longest shared path-segment prefix of paths,
// split on the OS separator. Returns "" for an empty input.
func CommonAncestor(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	split := make([][]string, len(paths))
	for i, p := range paths {
		split[i] = strings.Split(filepath.Clean(p), string(filepath.Separator))
	}
	common := split[0]
	for _, segs := range split[1:] {
		common = commonPrefix(common, segs)
		if len(common) == 0 {
			break
		}
	}
	if len(common) == 0 {
		return ""
	}
	return strings.Join(common, string(filepath.Separator))
}

func commonPrefix(a, b []string) []string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}
