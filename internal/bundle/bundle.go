// Package bundle recognizes and extracts zip bundle archives dropped into a
// base path's configured bundles directory. Recognition is by
// directory-prefix-plus-extension, not magic bytes, and a successful
// extraction deletes the source archive.
package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Othernet-Project/fsal/internal/pathutil"
)

// Extracter recognizes and extracts bundle archives under one base path.
type Extracter struct {
	basePath   string
	bundlesDir string
	extensions map[string]struct{}
	logger     *log.Logger
}

// New builds an Extracter for basePath. bundlesDir is relative to basePath;
// extensions is the configured allow-list, compared without a leading dot.
func New(basePath, bundlesDir string, extensions []string, logger *log.Logger) *Extracter {
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Extracter{basePath: basePath, bundlesDir: filepath.Clean(bundlesDir), extensions: exts, logger: logger}
}

// IsBundle reports whether relPath names a bundle: a regular file, under
// the configured bundles directory, with an allow-listed extension.
func (e *Extracter) IsBundle(relPath string) bool {
	abs := filepath.Join(e.basePath, relPath)
	info, err := os.Lstat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if pathutil.CommonAncestor([]string{filepath.Clean(relPath), e.bundlesDir}) != e.bundlesDir {
		return false
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(relPath), "."))
	_, ok := e.extensions[ext]
	return ok
}

// Extract extracts a recognized bundle into the base path, deleting the
// source archive on success. Returns the rel-paths of every
// extracted entry. On any failure it returns (false, nil) and logs — the
// caller (the indexer's scan) never treats this as a hard error.
func (e *Extracter) Extract(relPath string) (bool, []string) {
	if !e.IsBundle(relPath) {
		e.logger.Printf("bundle: %s is not a recognized bundle", relPath)
		return false, nil
	}
	abs := filepath.Join(e.basePath, relPath)
	extracted, err := extractZip(abs, e.basePath)
	if err != nil {
		e.logger.Printf("bundle: error extracting %s: %v", relPath, err)
		return false, nil
	}
	if err := os.Remove(abs); err != nil {
		e.logger.Printf("bundle: extracted %s but failed to remove source: %v", relPath, err)
	}
	return true, extracted
}

// extractZip extracts every entry of the zip at bundlePath into destDir,
// staging under a uuid-named scratch directory first so a concurrently
// scheduled extraction of a different bundle never observes a partially
// written tree (the scheduler only ever runs one indexing job at a time,
// see internal/scheduler, but bundle extraction itself may still be
// interrupted mid-write by a process crash).
func extractZip(bundlePath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", bundlePath, err)
	}
	defer r.Close()

	staging := filepath.Join(destDir, ".bundle-staging-"+uuid.NewString())
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	var extracted []string
	for _, f := range r.File {
		name := filepath.Clean(f.Name)
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return nil, fmt.Errorf("zip entry %q escapes destination", f.Name)
		}
		stagedPath := filepath.Join(staging, name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(stagedPath, 0o755); err != nil {
				return nil, fmt.Errorf("create dir %s: %w", name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(stagedPath), 0o755); err != nil {
			return nil, fmt.Errorf("create parent dir for %s: %w", name, err)
		}
		if err := extractOne(f, stagedPath); err != nil {
			return nil, fmt.Errorf("extract %s: %w", name, err)
		}
		extracted = append(extracted, name)
	}

	for _, name := range extracted {
		src := filepath.Join(staging, name)
		dst := filepath.Join(destDir, name)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, fmt.Errorf("create parent dir for %s: %w", name, err)
		}
		if err := os.Rename(src, dst); err != nil {
			return nil, fmt.Errorf("move extracted %s into place: %w", name, err)
		}
	}
	return extracted, nil
}

func extractOne(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
