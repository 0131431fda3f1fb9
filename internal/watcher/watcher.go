// Package watcher rebuilds the archive after changes under the source tree settle.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

// RebuildFunc regenerates the archive from the whole source tree.
type RebuildFunc func(ctx context.Context) error

// Watcher watches a source tree recursively and calls its rebuild function once per burst of
// changes. Rebuilds never overlap; changes made during a rebuild trigger another one.
type Watcher struct {
	root     string
	rebuild  RebuildFunc
	debounce time.Duration
	ignore   []string
	logger   *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	started  bool
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	runs     int
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for events and rebuild outcomes.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long the tree must stay quiet before a rebuild.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIgnore skips events under the given paths, e.g. an archive directory inside the source root.
func WithIgnore(paths ...string) Option {
	return func(w *Watcher) {
		for _, p := range paths {
			if p == "" {
				continue
			}
			if abs, err := filepath.Abs(p); err == nil {
				w.ignore = append(w.ignore, abs)
			}
		}
	}
}

// New returns a watcher for root. Call Start to begin watching.
func New(root string, rebuild RebuildFunc, opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		rebuild:  rebuild,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if abs, err := filepath.Abs(root); err == nil {
		w.root = abs
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers every directory under the root and watches until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw
	if err := w.addTree(w.root); err != nil {
		_ = fw.Close()
		w.watcher = nil
		return err
	}
	w.started = true
	w.logger.Info("watching source tree", zap.String("root", w.root), zap.Duration("debounce", w.debounce))
	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for a running rebuild to return.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		started := w.started
		w.mu.Unlock()
		if started {
			<-w.stopped
		}
	})
}

// Runs returns the number of rebuilds started so far.
func (w *Watcher) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.stopped)
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.handleEvent(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.runRebuild(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// handleEvent registers new directories and reports whether ev should schedule a rebuild.
func (w *Watcher) handleEvent(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod || w.ignored(ev.Name) {
		return false
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("cannot watch new directory", zap.String("path", ev.Name), zap.Error(err))
			}
			w.mu.Unlock()
		}
	}
	return true
}

func (w *Watcher) runRebuild(ctx context.Context) {
	w.mu.Lock()
	w.runs++
	run := w.runs
	w.mu.Unlock()

	started := time.Now()
	w.logger.Info("source changed, rebuilding archive", zap.Int("run", run))
	if err := w.rebuild(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.logger.Error("rebuild failed", zap.Int("run", run), zap.Error(err))
		return
	}
	w.logger.Info("rebuild finished", zap.Int("run", run), zap.Duration("took", time.Since(started)))
}

// ignored reports hidden files, editor backups and paths under an ignored directory.
func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return true
	}
	for _, dir := range w.ignore {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// addTree watches dir and every directory below it. w.mu must be held.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.logger.Debug("watching directory", zap.String("path", path))
		return nil
	})
}
