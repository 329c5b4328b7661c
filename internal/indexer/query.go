package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Othernet-Project/fsal/internal/fsobject"
	"github.com/Othernet-Project/fsal/internal/pathutil"
)

// GetFSO resolves an indexed path to its object value, or (zero, false)
// when the path is invalid or unindexed.
func (ix *Indexer) GetFSO(ctx context.Context, relPath string) (fsobject.Object, bool) {
	clean, err := pathutil.ValidateInternal(ix.PrimaryBase(), relPath)
	if err != nil {
		return fsobject.Object{}, false
	}
	if clean == "." {
		return fsobject.RootDir(ix.PrimaryBase()), true
	}
	row, err := ix.store.GetByPath(ctx, ix.PrimaryBase(), clean)
	if err != nil {
		return fsobject.Object{}, false
	}
	return row.Object(), true
}

// ListDir lists the direct children of an indexed directory. ok is false
// when the path is not found or not a directory.
func (ix *Indexer) ListDir(ctx context.Context, relPath string) (ok bool, children []fsobject.Object) {
	obj, found := ix.GetFSO(ctx, relPath)
	if !found || !obj.IsDir() {
		return false, nil
	}
	var parentID int64
	if obj.RelPath != "." {
		row, err := ix.store.GetByPath(ctx, ix.PrimaryBase(), obj.RelPath)
		if err != nil {
			return false, nil
		}
		parentID = row.ID
	}
	rows, err := ix.store.ListChildren(ctx, ix.PrimaryBase(), parentID)
	if err != nil {
		return false, nil
	}
	out := make([]fsobject.Object, len(rows))
	for i, r := range rows {
		out[i] = r.Object()
	}
	return true, out
}

// Exists reports whether relPath is present. When unindexed is true, disk
// is queried directly across every configured base instead of the index.
func (ix *Indexer) Exists(ctx context.Context, relPath string, unindexed bool) bool {
	if unindexed {
		for _, b := range ix.bases {
			clean, err := pathutil.ValidateInternal(b.Path, relPath)
			if err != nil {
				continue
			}
			if _, err := os.Stat(filepath.Join(b.Path, clean)); err == nil {
				return true
			}
		}
		return false
	}
	_, ok := ix.GetFSO(ctx, relPath)
	return ok
}

// IsDir reports whether relPath is an indexed directory.
func (ix *Indexer) IsDir(ctx context.Context, relPath string) bool {
	obj, ok := ix.GetFSO(ctx, relPath)
	return ok && obj.IsDir()
}

// IsFile reports whether relPath is an indexed file.
func (ix *Indexer) IsFile(ctx context.Context, relPath string) bool {
	obj, ok := ix.GetFSO(ctx, relPath)
	return ok && obj.IsFile()
}

// SearchResult is the result of Search: IsMatch is true when query named an
// indexed directory exactly, in which case Objects is its listing.
type SearchResult struct {
	IsMatch bool
	Objects []fsobject.Object
}

// Search resolves a query against the index: an exact directory match
// short-circuits to its listing; otherwise a keyword LIKE search over entry
// names, with an exclude-pattern filter applied to results.
func (ix *Indexer) Search(ctx context.Context, query string, wholeWords bool, excludes []string) (SearchResult, error) {
	if ok, children := ix.ListDir(ctx, query); ok {
		return SearchResult{IsMatch: true, Objects: children}, nil
	}

	keywords := strings.Fields(query)
	rows, err := ix.store.SearchByKeywords(ctx, ix.PrimaryBase(), keywords, wholeWords)
	if err != nil {
		return SearchResult{}, err
	}

	excludeRe, err := compileExcludes(excludes)
	if err != nil {
		return SearchResult{}, err
	}

	objects := make([]fsobject.Object, 0, len(rows))
	for _, r := range rows {
		if excludeRe != nil && excludeRe.MatchString(r.Name) {
			continue
		}
		objects = append(objects, r.Object())
	}
	return SearchResult{IsMatch: false, Objects: objects}, nil
}

// compileExcludes builds the anchored exclude-name regex,
// ^(name1|name2)$ with metacharacters escaped, so excludes match whole
// literal filenames rather than substrings.
func compileExcludes(excludes []string) (*regexp.Regexp, error) {
	if len(excludes) == 0 {
		return nil, nil
	}
	escaped := make([]string, len(excludes))
	for i, e := range excludes {
		escaped[i] = regexp.QuoteMeta(e)
	}
	pattern := fmt.Sprintf("^(%s)$", strings.Join(escaped, "|"))
	return regexp.Compile(pattern)
}

// GetPathSize returns the recursive disk size of an indexed path.
func (ix *Indexer) GetPathSize(relPath string) (int64, error) {
	clean, err := pathutil.ValidateInternal(ix.PrimaryBase(), relPath)
	if err != nil {
		return 0, err
	}
	abs := filepath.Join(ix.PrimaryBase(), clean)
	var total int64
	err = filepath.WalkDir(abs, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("indexer: get_path_size %s: %w", relPath, err)
	}
	return total, nil
}
