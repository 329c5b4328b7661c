// Package indexer is the core of the daemon: it maintains a relational
// mirror of one or more configured directory trees, reconciling it against
// live disk state through scheduled scans, and exposes the query/mutation
// operations the wire server dispatches into.
package indexer

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"

	"github.com/Othernet-Project/fsal/internal/bundle"
	"github.com/Othernet-Project/fsal/internal/event"
	"github.com/Othernet-Project/fsal/internal/notify"
	"github.com/Othernet-Project/fsal/internal/pathutil"
	"github.com/Othernet-Project/fsal/internal/scheduler"
	"github.com/Othernet-Project/fsal/internal/store"
)

const (
	fileType = 0
	dirType  = 1

	pruneBatchSize = 1000
	maxTransferLen = 32767
)

// BaseConfig describes one configured base path and its bundle settings.
type BaseConfig struct {
	Path        string
	BundlesDir  string
	BundlesExts []string
}

// Indexer owns the configured base paths, the compiled blacklist, the
// database handle, the event queue, a bundle extracter per base, and the
// task scheduler that serialises every mutation.
type Indexer struct {
	bases      []BaseConfig
	blacklist  *pathutil.Blacklist
	store      *store.Store
	queue      *event.Queue
	extracters map[string]*bundle.Extracter
	sched      *scheduler.Scheduler
	logger     *log.Logger

	watcher *fsnotify.Watcher

	parentCache *fifoCache
}

// New builds an Indexer. Every base path in bases must already exist as a
// directory; New returns an error otherwise.
func New(bases []BaseConfig, blacklistPatterns []string, st *store.Store, sched *scheduler.Scheduler, logger *log.Logger) (*Indexer, error) {
	if len(bases) == 0 {
		return nil, fmt.Errorf("indexer: at least one base path is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	for i, b := range bases {
		abs, err := filepath.Abs(b.Path)
		if err != nil {
			return nil, fmt.Errorf("indexer: resolve base path %q: %w", b.Path, err)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("indexer: invalid base path %q", b.Path)
		}
		bases[i].Path = abs
	}

	bl, err := pathutil.CompileBlacklist(blacklistPatterns)
	if err != nil {
		return nil, err
	}

	extracters := make(map[string]*bundle.Extracter, len(bases))
	for _, b := range bases {
		extracters[b.Path] = bundle.New(b.Path, b.BundlesDir, b.BundlesExts, logger)
	}

	ix := &Indexer{
		bases:       bases,
		blacklist:   bl,
		store:       st,
		queue:       event.NewQueue(st),
		extracters:  extracters,
		sched:       sched,
		logger:      logger,
		parentCache: newFIFOCache(1024),
	}
	return ix, nil
}

// PrimaryBase is the first configured base path, the one wire paths are
// validated and resolved against.
func (ix *Indexer) PrimaryBase() string {
	return ix.bases[0].Path
}

// DefaultTransferBase is the last configured base path, the destination
// Transfer moves external sources into.
func (ix *Indexer) DefaultTransferBase() string {
	return ix.bases[len(ix.bases)-1].Path
}

// ListBasePaths returns the configured base paths in order (list_base_paths).
func (ix *Indexer) ListBasePaths() []string {
	out := make([]string, len(ix.bases))
	for i, b := range ix.bases {
		out[i] = b.Path
	}
	return out
}

// Start performs the initial full refresh and starts the fsnotify watcher.
// The watcher is best-effort: when it cannot start, scheduled refreshes are
// the only reconciliation mechanism.
func (ix *Indexer) Start(ctx context.Context) error {
	if err := ix.refreshDB(ctx); err != nil {
		return err
	}
	ix.startWatcher()
	return nil
}

// Stop releases the fsnotify watcher, if any.
func (ix *Indexer) Stop() error {
	if ix.watcher != nil {
		return ix.watcher.Close()
	}
	return nil
}

// WaitForIdle blocks until every job submitted to the scheduler so far has
// completed. The scheduler runs one job at a time in queue order, so a
// no-op submitted now runs after any Refresh/RefreshPath already in the
// queue; a Submit that found the queue full is enqueued from a goroutine
// and may land after the barrier. Tests use it as a synchronization point.
func (ix *Indexer) WaitForIdle(ctx context.Context) error {
	return ix.sched.SubmitWait("idle-barrier", func(context.Context) error { return nil })
}

// NotificationCallback returns the function to pass to notify.New: resolves
// the notified path, extracts it if it is a bundle, and schedules an
// asynchronous update rooted at the deepest indexed ancestor. A failure in
// one notification never interrupts the rest of the batch.
func (ix *Indexer) NotificationCallback() notify.Callback {
	return func(fc notify.FileComplete) {
		if err := ix.handleNotification(fc.Path); err != nil {
			ix.logger.Printf("indexer: notification for %s failed: %v", fc.Path, err)
		}
	}
}

func (ix *Indexer) handleNotification(absPath string) error {
	base, relPath, ok := ix.resolveBase(absPath)
	if !ok {
		return fmt.Errorf("path %q is not under any configured base", absPath)
	}

	scanRoot := relPath
	if ex, ok := ix.extracters[base]; ok && ex.IsBundle(relPath) {
		success, extracted := ex.Extract(relPath)
		if success && len(extracted) > 0 {
			scanRoot = pathutil.CommonAncestor(extracted)
		}
	}

	root := ix.deepestIndexedParent(base, scanRoot)
	ix.sched.Submit("notification-update", func(ctx context.Context) error {
		return ix.updateDB(ctx, base, root)
	})
	return nil
}

// resolveBase finds which configured base contains absPath, returning the
// base and the path relative to it.
func (ix *Indexer) resolveBase(absPath string) (base, relPath string, ok bool) {
	abs, err := filepath.Abs(absPath)
	if err != nil {
		return "", "", false
	}
	for _, b := range ix.bases {
		rel, err := pathutil.ValidateInternal(b.Path, mustRel(b.Path, abs))
		if err != nil {
			continue
		}
		return b.Path, rel, true
	}
	return "", "", false
}

func mustRel(base, abs string) string {
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return abs
	}
	return rel
}

func (ix *Indexer) startWatcher() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		ix.logger.Printf("indexer: fsnotify unavailable (%v); relying on scheduled refreshes only", err)
		return
	}
	ix.watcher = w
	for _, b := range ix.bases {
		if err := addWatchRecursive(w, b.Path); err != nil {
			ix.logger.Printf("indexer: failed to watch %s: %v", b.Path, err)
		}
	}
	go ix.watchLoop()
}

func addWatchRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			_ = w.Add(path)
		}
		return nil
	})
}

// watchLoop translates raw fsnotify events into scheduled per-subtree
// updates, so local filesystem changes land in the index between full
// reconciles without waiting for a caller-driven Refresh.
func (ix *Indexer) watchLoop() {
	for {
		select {
		case evt, ok := <-ix.watcher.Events:
			if !ok {
				return
			}
			ix.onFSEvent(evt)
		case err, ok := <-ix.watcher.Errors:
			if !ok {
				return
			}
			ix.logger.Printf("indexer: watcher error: %v", err)
		}
	}
}

func (ix *Indexer) onFSEvent(evt fsnotify.Event) {
	base, relPath, ok := ix.resolveBase(evt.Name)
	if !ok {
		return
	}
	root := ix.deepestIndexedParent(base, relPath)
	ix.sched.Submit("fsnotify-update", func(ctx context.Context) error {
		return ix.updateDB(ctx, base, root)
	})
	if evt.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			_ = ix.watcher.Add(evt.Name)
		}
	}
}

// refreshDB is the full reconcile sequence: prune, extract bundles, then
// scan. When no base extracted a bundle, every base is scanned from its
// root; otherwise only the bases that extracted bundles are scanned, each
// rooted at the deepest indexed parent of its bundles' common ancestor.
func (ix *Indexer) refreshDB(ctx context.Context) error {
	start := time.Now()
	if err := ix.pruneDB(ctx); err != nil {
		return err
	}
	scanRoots := ix.extractAllBundles(ctx)
	if len(scanRoots) == 0 {
		for _, b := range ix.bases {
			if err := ix.updateDB(ctx, b.Path, "."); err != nil {
				return err
			}
		}
	} else {
		for base, root := range scanRoots {
			if err := ix.updateDB(ctx, base, ix.deepestIndexedParent(base, root)); err != nil {
				return err
			}
		}
	}
	count, totalSize, statsErr := ix.store.Totals(ctx)
	if statsErr != nil {
		ix.logger.Printf("indexer: refreshed in %s", time.Since(start))
		return nil
	}
	ix.logger.Printf("indexer: refreshed in %s, %d entries indexed, %s total",
		time.Since(start), count, humanize.Bytes(uint64(totalSize)))
	return nil
}

// extractAllBundles walks each base's configured bundles directory,
// extracts every recognized bundle, and returns the common ancestor of
// extracted files per base as the subsequent scan root.
func (ix *Indexer) extractAllBundles(ctx context.Context) map[string]string {
	roots := make(map[string]string)
	for _, b := range ix.bases {
		ex := ix.extracters[b.Path]
		bundlesAbs := filepath.Join(b.Path, b.BundlesDir)
		entries, err := os.ReadDir(bundlesAbs)
		if err != nil {
			continue
		}
		var extracted []string
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			rel := filepath.Join(b.BundlesDir, entry.Name())
			if !ex.IsBundle(rel) {
				continue
			}
			success, files := ex.Extract(rel)
			if success {
				extracted = append(extracted, files...)
			}
		}
		if len(extracted) > 0 {
			roots[b.Path] = pathutil.CommonAncestor(extracted)
		}
	}
	return roots
}

// deepestIndexedParent ascends parent components of relPath until it finds
// an ancestor that is indexed, or reaches the virtual root, which always
// counts as indexed.
func (ix *Indexer) deepestIndexedParent(base, relPath string) string {
	rel := filepath.Clean(relPath)
	for rel != "." && rel != string(filepath.Separator) {
		if _, err := ix.store.GetByPath(context.Background(), base, rel); err == nil {
			return rel
		}
		parent := filepath.Dir(rel)
		if parent == rel {
			break
		}
		rel = parent
	}
	return "."
}
