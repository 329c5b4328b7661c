package indexer

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Othernet-Project/fsal/internal/event"
	"github.com/Othernet-Project/fsal/internal/fsobject"
	"github.com/Othernet-Project/fsal/internal/store"
)

// updateDB walks base/root, reconciling every visited entry against its
// existing index row and enqueuing created/modified events in walk order.
func (ix *Indexer) updateDB(ctx context.Context, base, root string) error {
	absRoot := filepath.Join(base, root)
	if root == "." {
		absRoot = base
	}

	type visit struct {
		relPath string
		info    os.FileInfo
	}
	var visits []visit

	err := filepath.WalkDir(absRoot, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // unreadable entries are skipped, not fatal to the whole scan
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if path == base {
			return nil // never index the base path itself as an entry
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if ix.blacklist.Matches(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		visits = append(visits, visit{relPath: rel, info: info})
		return nil
	})
	if err != nil {
		return fmt.Errorf("indexer: walk %s: %w", absRoot, err)
	}

	var events []event.Event
	err = ix.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, v := range visits {
			obj := fsobject.FromStat(base, v.relPath, v.info)
			evt, err := ix.reconcileEntry(ctx, tx, base, obj)
			if err != nil {
				return err
			}
			if evt != nil {
				events = append(events, *evt)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(events) > 0 {
		if err := ix.queue.AddMany(ctx, events); err != nil {
			return err
		}
	}
	return ix.recordOpTime(ctx)
}

// reconcileEntry stats one visited entry against its index row: insert and
// emit created when absent, update in place and emit modified when the stat
// no longer matches, no-op otherwise.
func (ix *Indexer) reconcileEntry(ctx context.Context, tx *sql.Tx, base string, obj fsobject.Object) (*event.Event, error) {
	parentRel := filepath.Dir(obj.RelPath)
	parentID := ix.resolveParentID(ctx, tx, base, parentRel)

	existing, err := ix.store.GetByPathTx(ctx, tx, base, obj.RelPath)
	row := store.EntryRow{
		ParentID:   parentID,
		BasePath:   base,
		RelPath:    obj.RelPath,
		Name:       obj.Name,
		Size:       obj.Size,
		CreateTime: obj.CreateDate,
		ModifyTime: obj.ModifyDate,
		IsDir:      obj.IsDir(),
	}

	var evt *event.Event
	if err != nil {
		// No existing row: created.
		id, upsertErr := ix.store.UpsertEntry(ctx, tx, row)
		if upsertErr != nil {
			return nil, upsertErr
		}
		if obj.IsDir() {
			ix.cacheParent(base, obj.RelPath, id)
		}
		e := eventFor(event.Created, obj)
		evt = &e
	} else if !existing.Object().Equal(obj) {
		row.ParentID = existing.ParentID
		id, upsertErr := ix.store.UpsertEntry(ctx, tx, row)
		if upsertErr != nil {
			return nil, upsertErr
		}
		if obj.IsDir() {
			ix.cacheParent(base, obj.RelPath, id)
		}
		e := eventFor(event.Modified, obj)
		evt = &e
	} else if obj.IsDir() {
		ix.cacheParent(base, obj.RelPath, existing.ID)
	}
	return evt, nil
}

func eventFor(typ event.Type, obj fsobject.Object) event.Event {
	return event.Event{Type: typ, Src: obj.RelPath, IsDir: obj.IsDir()}
}

func (ix *Indexer) cacheParent(base, relPath string, id int64) {
	ix.parentCache.Put(cacheKey(base, relPath), id)
}

func (ix *Indexer) resolveParentID(ctx context.Context, tx *sql.Tx, base, parentRel string) int64 {
	if parentRel == "." {
		return 0
	}
	if id, ok := ix.parentCache.Get(cacheKey(base, parentRel)); ok {
		return id
	}
	row, err := ix.store.GetByPathTx(ctx, tx, base, parentRel)
	if err != nil {
		return 0
	}
	ix.cacheParent(base, parentRel, row.ID)
	return row.ID
}

func cacheKey(base, relPath string) string {
	return base + "\x00" + relPath
}

// pruneDB streams every indexed path and removes rows whose base is no
// longer configured, whose disk path no longer exists, or that are now
// blacklisted, flushing in batches and emitting a deleted event per row.
func (ix *Indexer) pruneDB(ctx context.Context) error {
	all, err := ix.store.AllPaths(ctx)
	if err != nil {
		return err
	}
	configured := make(map[string]bool, len(ix.bases))
	for _, b := range ix.bases {
		configured[b.Path] = true
	}

	var batch [][2]string
	var events []event.Event

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ix.store.WithTx(ctx, func(tx *sql.Tx) error {
			return ix.store.DeletePaths(ctx, tx, batch)
		}); err != nil {
			return err
		}
		if err := ix.queue.AddMany(ctx, events); err != nil {
			return err
		}
		batch = nil
		events = nil
		return nil
	}

	for _, row := range all {
		stale := !configured[row.BasePath]
		if !stale {
			abs := filepath.Join(row.BasePath, row.RelPath)
			if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
				stale = true
			} else if ix.blacklist.Matches(row.RelPath) {
				stale = true
			}
		}
		if !stale {
			continue
		}
		batch = append(batch, [2]string{row.BasePath, row.RelPath})
		if row.IsDir {
			events = append(events, event.DirDeleted(row.RelPath))
		} else {
			events = append(events, event.FileDeleted(row.RelPath))
		}
		if len(batch) >= pruneBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func (ix *Indexer) recordOpTime(ctx context.Context) error {
	now := float64(time.Now().UnixNano()) / 1e9
	return ix.store.SetOpTime(ctx, now)
}
