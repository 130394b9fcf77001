package content

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventUnknown is published for changes that are neither documents nor
// directories, such as edited images.
const EventUnknown = "unknown"

const (
	defaultDebounce = 75 * time.Millisecond
	rebuildTimeout  = 5 * time.Second
)

// watcher turns fsnotify events into service events. Editors often write a
// file several times per save, so events are coalesced per path and handled
// once the path has been quiet for the debounce interval.
type watcher struct {
	svc      *Service
	fsw      *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	ops     map[string]fsnotify.Op
}

func newWatcher(svc *Service) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &watcher{
		svc:      svc,
		fsw:      fsw,
		debounce: svc.opts.Debounce,
		pending:  make(map[string]*time.Timer),
		ops:      make(map[string]fsnotify.Op),
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	if err := w.addTree(svc.root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *watcher) close() error {
	w.mu.Lock()
	for name, t := range w.pending {
		t.Stop()
		delete(w.pending, name)
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

func (w *watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.schedule(ctx, evt)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.svc.logger.Error("watcher error", slog.Any("err", err))
		}
	}
}

// addTree watches dir and every directory below it that the tree would
// include.
func (w *watcher) addTree(dir string) error {
	opts := w.svc.treeOptions()
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.svc.root && opts.SkipsDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			w.svc.logger.Warn("failed to watch directory", slog.String("path", p), slog.Any("err", err))
		}
		return nil
	})
}

func (w *watcher) schedule(ctx context.Context, evt fsnotify.Event) {
	if evt.Name == "" || evt.Op == fsnotify.Chmod {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.ops[evt.Name] |= evt.Op
	if t, ok := w.pending[evt.Name]; ok {
		t.Reset(w.debounce)
		return
	}
	name := evt.Name
	w.pending[name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		op := w.ops[name]
		delete(w.ops, name)
		delete(w.pending, name)
		w.mu.Unlock()
		if ctx.Err() == nil {
			w.handle(ctx, name, op)
		}
	})
}

// handle applies one coalesced change: cache invalidation, new directory
// watches, a tree rebuild and finally the broadcast.
func (w *watcher) handle(ctx context.Context, name string, op fsnotify.Op) {
	svc := w.svc
	rel := svc.relative(name)
	svc.logger.Debug("file change", slog.String("path", rel), slog.String("op", op.String()))

	markdown := isMarkdownPath(name)
	if markdown {
		svc.renderer.Invalidate(rel)
	}

	info, statErr := os.Stat(name)
	isDir := statErr == nil && info.IsDir()
	if isDir && op.Has(fsnotify.Create) {
		if err := w.addTree(name); err != nil {
			svc.logger.Warn("failed to watch new directory", slog.String("path", rel), slog.Any("err", err))
		}
	}

	kind := classify(op, markdown, isDir, statErr != nil)

	rctx, cancel := context.WithTimeout(ctx, rebuildTimeout)
	defer cancel()
	if err := svc.rebuild(rctx); err != nil {
		svc.logger.Error("rebuild tree failed", slog.Any("err", err))
		if kind == EventTreeUpdated || kind == EventDeleted {
			return
		}
	}
	svc.publish(Event{Timestamp: time.Now(), Type: kind, Path: rel})
}

// classify names the event for a coalesced op. gone reports that the path no
// longer exists once the burst has settled.
func classify(op fsnotify.Op, markdown, isDir, gone bool) string {
	switch {
	case gone && (markdown || op.Has(fsnotify.Remove|fsnotify.Rename)):
		return EventDeleted
	case isDir:
		return EventTreeUpdated
	case markdown && op.Has(fsnotify.Create|fsnotify.Rename):
		return EventTreeUpdated
	case markdown:
		return EventPageUpdated
	default:
		return EventUnknown
	}
}
