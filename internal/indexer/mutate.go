package indexer

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Othernet-Project/fsal/internal/event"
	"github.com/Othernet-Project/fsal/internal/fsalerr"
	"github.com/Othernet-Project/fsal/internal/pathutil"
)

// Remove deletes relPath from disk and the index: synthesizes a deleted
// event per descendant (children before parent), removes the subtree from
// disk, deletes the matching rows, and enqueues the collected events. The
// disk-and-index mutation runs on the scheduler so it never overlaps a
// scan or another remove/transfer.
func (ix *Indexer) Remove(ctx context.Context, relPath string) (bool, string) {
	obj, ok := ix.GetFSO(ctx, relPath)
	if !ok {
		return false, fmt.Sprintf("No such file or directory %q", relPath)
	}
	if obj.RelPath == "." {
		return false, "cannot remove the virtual root"
	}

	err := ix.sched.SubmitWait("remove", func(jobCtx context.Context) error {
		return ix.removeFSO(jobCtx, obj.RelPath, obj.IsDir())
	})
	if err != nil {
		return false, err.Error()
	}
	return true, ""
}

func (ix *Indexer) removeFSO(ctx context.Context, relPath string, isDir bool) error {
	base := ix.PrimaryBase()
	rows, err := ix.store.ListDescendants(ctx, base, relPath)
	if err != nil {
		return err
	}

	events := make([]event.Event, 0, len(rows))
	for _, row := range rows {
		if row.IsDir {
			events = append(events, event.DirDeleted(row.RelPath))
		} else {
			events = append(events, event.FileDeleted(row.RelPath))
		}
	}

	abs := filepath.Join(base, relPath)
	var removeErr error
	if isDir {
		removeErr = os.RemoveAll(abs)
	} else {
		removeErr = os.Remove(abs)
	}
	if removeErr != nil {
		ix.logger.Printf("indexer: remove %s failed: %v; scheduling full reconcile", relPath, removeErr)
		ix.sched.Submit("remove-failure-reconcile", ix.refreshDB)
		return fsalerr.Wrap(fsalerr.FilesystemError, removeErr, "remove %s", relPath)
	}

	txErr := ix.store.WithTx(ctx, func(tx *sql.Tx) error {
		return ix.store.DeleteSubtree(ctx, tx, base, relPath, isDir)
	})
	if txErr != nil {
		ix.logger.Printf("indexer: remove %s: index cleanup failed: %v; scheduling full reconcile", relPath, txErr)
		ix.sched.Submit("remove-failure-reconcile", ix.refreshDB)
		return fsalerr.Wrap(fsalerr.FilesystemError, txErr, "remove index rows for %s", relPath)
	}

	if err := ix.queue.AddMany(ctx, events); err != nil {
		return err
	}
	return nil
}

// Transfer validates an external source and an internal destination, moves
// src into the destination base, and schedules a re-scan rooted at the
// deepest indexed ancestor of the new location.
func (ix *Indexer) Transfer(ctx context.Context, srcAbs, destRel string) (bool, string) {
	src, err := pathutil.ValidateExternal(srcAbs)
	if err != nil {
		return false, err.Error()
	}
	if _, statErr := os.Stat(src); statErr != nil {
		return false, fmt.Sprintf("source %q does not exist", src)
	}
	for _, b := range ix.bases {
		if _, inErr := pathutil.ValidateInternal(b.Path, mustRel(b.Path, src)); inErr == nil {
			return false, fmt.Sprintf("source %q is already inside the index", src)
		}
	}

	destBase := ix.DefaultTransferBase()
	dest, err := pathutil.ValidateInternal(destBase, destRel)
	if err != nil {
		return false, err.Error()
	}

	realDest := filepath.Join(destBase, dest)
	if dest == "." {
		realDest = destBase
	}
	if info, statErr := os.Stat(realDest); statErr == nil && info.IsDir() {
		realDest = filepath.Join(realDest, filepath.Base(src))
	}
	if _, statErr := os.Stat(realDest); statErr == nil {
		return false, fmt.Sprintf("Destination path %q already exists", realDest)
	}

	if err := checkTransferPathLengths(src, realDest); err != nil {
		return false, err.Error()
	}

	err = ix.sched.SubmitWait("transfer", func(jobCtx context.Context) error {
		if err := os.Rename(src, realDest); err != nil {
			return fsalerr.Wrap(fsalerr.FilesystemError, err, "move %s to %s", src, realDest)
		}
		newRel, relErr := filepath.Rel(destBase, realDest)
		if relErr != nil {
			return nil
		}
		root := ix.deepestIndexedParent(destBase, filepath.Dir(newRel))
		ix.sched.Submit("transfer-rescan", func(scanCtx context.Context) error {
			return ix.updateDB(scanCtx, destBase, root)
		})
		return nil
	})
	if err != nil {
		return false, err.Error()
	}
	return true, ""
}

// checkTransferPathLengths walks src and rejects the move if any entry's
// destination path would exceed the 32767-byte limit. The check runs before
// the move, so a rejection leaves both source and destination unchanged.
func checkTransferPathLengths(src, realDest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fsalerr.Wrap(fsalerr.FilesystemError, err, "stat %s", src)
	}
	if !info.IsDir() {
		if len(realDest) > maxTransferLen {
			return fsalerr.New(fsalerr.LimitExceeded, "destination path %q exceeds %d bytes", realDest, maxTransferLen)
		}
		return nil
	}
	return filepath.WalkDir(src, func(path string, _ os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(realDest, rel)
		if len(target) > maxTransferLen {
			return fsalerr.New(fsalerr.LimitExceeded, "destination path %q exceeds %d bytes", target, maxTransferLen)
		}
		return nil
	})
}

// RefreshPath schedules an asynchronous re-scan rooted at relPath.
func (ix *Indexer) RefreshPath(relPath string) (bool, string) {
	clean, err := pathutil.ValidateInternal(ix.PrimaryBase(), relPath)
	if err != nil {
		return false, err.Error()
	}
	base := ix.PrimaryBase()
	ix.sched.Submit("refresh-path", func(ctx context.Context) error {
		return ix.updateDB(ctx, base, clean)
	})
	return true, ""
}

// Refresh schedules a full reconcile (prune, extract bundles, scan) across
// every configured base.
func (ix *Indexer) Refresh() {
	ix.sched.Submit("refresh", ix.refreshDB)
}

// GetChanges returns up to limit pending change events without removing
// them.
func (ix *Indexer) GetChanges(ctx context.Context, limit int) ([]event.Event, error) {
	return ix.queue.Peek(ctx, limit)
}

// ConfirmChanges drains up to limit of the oldest pending change events,
// acknowledging them.
func (ix *Indexer) ConfirmChanges(ctx context.Context, limit int) error {
	_, err := ix.queue.Drain(ctx, limit)
	return err
}

// Consolidate walks every configured base and removes now-empty
// directories, scheduled asynchronously like the other disk-mutating
// operations.
func (ix *Indexer) Consolidate() {
	ix.sched.Submit("consolidate", func(ctx context.Context) error {
		for _, b := range ix.bases {
			if err := removeEmptyDirs(b.Path); err != nil {
				ix.logger.Printf("indexer: consolidate %s: %v", b.Path, err)
			}
		}
		return nil
	})
}

func removeEmptyDirs(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(root, e.Name())
		if err := removeEmptyDirs(path); err != nil {
			return err
		}
		children, err := os.ReadDir(path)
		if err != nil {
			continue
		}
		if len(children) == 0 {
			_ = os.Remove(path)
		}
	}
	return nil
}

// Copy asynchronously copies a file or directory tree between two absolute
// paths, logging failures rather than surfacing them; no caller waits on
// the result.
func (ix *Indexer) Copy(source, dest string) {
	ix.sched.Submit("copy", func(ctx context.Context) error {
		info, err := os.Stat(source)
		if err != nil {
			ix.logger.Printf("indexer: copy %s -> %s: %v", source, dest, err)
			return nil
		}
		if info.IsDir() {
			err = copyTree(source, dest)
		} else {
			err = copyFile(source, dest, info.Mode())
		}
		if err != nil {
			ix.logger.Printf("indexer: copy %s -> %s: %v", source, dest, err)
		}
		return nil
	})
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
