// Package content serves the documentation tree: it renders pages on demand,
// keeps a navigation snapshot and notifies subscribers when files change.
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/euforicio/docsite/internal/content/tree"
	"github.com/euforicio/docsite/internal/renderer"
)

// Event types broadcast to subscribers. The browser runtime listens for
// these names on the event stream.
const (
	EventTreeUpdated = "treeUpdated"
	EventDeleted     = "deleted"
	EventPageUpdated = "pageUpdated"
)

// subscriberBuffer is how many events a slow subscriber may fall behind
// before further events are dropped for it.
const subscriberBuffer = 8

// Event is a change notification. Path is relative to the docs root.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Path      string    `json:"path,omitempty"`
}

// Options configures the content service.
type Options struct {
	ExcludeDirs   []string
	IncludeHidden bool
	// DisableWatch skips the file watcher; the tree is built once.
	DisableWatch bool
	// Debounce coalesces bursts of file events per path. Zero uses
	// defaultDebounce.
	Debounce time.Duration
}

// Service owns the docs root: rendering, the navigation snapshot and change
// fan-out.
type Service struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
	renderer *renderer.Service
	watch    *watcher
	root     string
	opts     Options
	tree     atomic.Pointer[tree.Node]

	rebuildMu sync.Mutex

	subsMu sync.Mutex
	subs   map[chan Event]context.Context
}

// NewService builds the initial tree for root and, unless disabled, starts
// watching it. The service stops when parentCtx is done or Close is called.
func NewService(parentCtx context.Context, root string, rendererSvc *renderer.Service, logger *slog.Logger, opts Options) (*Service, error) {
	if root == "" {
		return nil, errors.New("root directory must be provided")
	}
	if rendererSvc == nil {
		return nil, errors.New("renderer service must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s := &Service{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With("component", "content"),
		renderer: rendererSvc,
		root:     abs,
		opts:     opts,
		subs:     make(map[chan Event]context.Context),
	}

	if err := s.rebuild(ctx); err != nil {
		cancel()
		return nil, err
	}
	if !opts.DisableWatch {
		w, err := newWatcher(s)
		if err != nil {
			cancel()
			return nil, err
		}
		s.watch = w
		go w.run(ctx)
	}
	go func() {
		<-ctx.Done()
		s.closeSubscribers()
	}()
	return s, nil
}

// Root returns the absolute docs root.
func (s *Service) Root() string {
	return s.root
}

// Close stops the watcher and closes every subscription.
func (s *Service) Close() error {
	s.cancel()
	if s.watch != nil {
		return s.watch.close()
	}
	return nil
}

// CurrentTree returns the latest navigation snapshot.
func (s *Service) CurrentTree(ctx context.Context) (*tree.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := s.tree.Load(); n != nil {
		return n, nil
	}
	return nil, errors.New("tree not initialized")
}

// Document renders the markdown file at relPath. The .md extension may be
// omitted. Missing documents yield an error wrapping os.ErrNotExist; paths
// outside the root wrap ErrInvalidPath.
func (s *Service) Document(ctx context.Context, relPath string) (renderer.Document, error) {
	if err := ctx.Err(); err != nil {
		return renderer.Document{}, err
	}
	rel, err := documentPath(relPath)
	if err != nil {
		return renderer.Document{}, err
	}

	root, err := os.OpenRoot(s.root)
	if err != nil {
		return renderer.Document{}, fmt.Errorf("open root: %w", err)
	}
	defer root.Close()

	info, err := root.Stat(rel)
	if err != nil {
		return renderer.Document{}, fmt.Errorf("stat document: %w", err)
	}
	if info.IsDir() {
		return renderer.Document{}, fmt.Errorf("%w: %s is a directory", ErrInvalidPath, rel)
	}
	data, err := root.ReadFile(rel)
	if err != nil {
		return renderer.Document{}, fmt.Errorf("read document: %w", err)
	}
	return s.renderer.Render(ctx, rel, info.ModTime(), data)
}

// Subscribe returns a channel of change events. It is closed when ctx or the
// service is done. Events are dropped for subscribers that fall behind.
func (s *Service) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	s.subsMu.Lock()
	s.subs[ch] = ctx
	s.subsMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.unsubscribe(ch)
		case <-s.ctx.Done():
		}
	}()
	return ch
}

func (s *Service) unsubscribe(ch chan Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
}

func (s *Service) closeSubscribers() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

func (s *Service) publish(evt Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch, ctx := range s.subs {
		if ctx.Err() != nil {
			delete(s.subs, ch)
			close(ch)
			continue
		}
		select {
		case ch <- evt:
		default:
			s.logger.Debug("dropping event for slow subscriber", slog.String("type", evt.Type), slog.String("path", evt.Path))
		}
	}
}

// rebuild swaps in a fresh navigation tree.
func (s *Service) rebuild(ctx context.Context) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	node, err := tree.Build(ctx, s.root, s.treeOptions())
	if err != nil {
		return fmt.Errorf("build tree: %w", err)
	}
	s.tree.Store(node)
	return nil
}

func (s *Service) treeOptions() tree.Options {
	return tree.Options{
		Renderer:      s.renderer,
		IncludeHidden: s.opts.IncludeHidden,
		ExcludeDirs:   s.opts.ExcludeDirs,
	}
}

// relative maps an absolute file name to its slash-separated path under the
// root.
func (s *Service) relative(name string) string {
	rel, err := filepath.Rel(s.root, name)
	if err != nil {
		return filepath.ToSlash(name)
	}
	return filepath.ToSlash(rel)
}
