// Package watch re-runs analysis when Java sources change.
package watch

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"

	"github.com/panbanda/locksmith/pkg/config"
	"github.com/panbanda/locksmith/pkg/parser"
)

// DefaultDebounce is the quiet period before a batch of changes fires.
const DefaultDebounce = 500 * time.Millisecond

// Callback receives the changed files of one batch, sorted. The whole
// program is re-analyzed, so one call covers every file in the batch.
type Callback func(ctx context.Context, changed []string)

// Watcher monitors a source tree and triggers analysis.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	config    *config.Config
	debounce  time.Duration
	path      string
	callback  Callback
	out       io.Writer
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time
	// running serializes callbacks; a batch waits for the previous run.
	running sync.Mutex
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOutput sets where status lines go.
func WithOutput(out io.Writer) Option {
	return func(w *Watcher) { w.out = out }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher creates a new file watcher rooted at path.
func NewWatcher(path string, cfg *config.Config, opts ...Option) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		config:    cfg,
		debounce:  DefaultDebounce,
		path:      path,
		out:       os.Stdout,
		logger:    slog.Default(),
		pending:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// SetCallback sets the function to call when files change.
func (w *Watcher) SetCallback(cb Callback) {
	w.callback = cb
}

// Start watches until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.path); err != nil {
		return err
	}

	color.New(color.FgCyan).Fprintf(w.out, "Watching for changes in %s...\n", w.path)
	color.New(color.FgCyan).Fprintln(w.out, "Press Ctrl+C to stop")

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// addTree adds every non-excluded directory under root.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.path && w.excluded(path, true) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) excluded(path string, isDir bool) bool {
	rel, err := filepath.Rel(w.path, path)
	if err != nil {
		rel = path
	}
	return w.config.ShouldExclude(rel, isDir)
}

// handleEvent records a change to a Java file. Removals count as changes:
// dropping a file changes the program.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	path := event.Name

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.excluded(path, true) {
				if err := w.addTree(path); err != nil {
					w.logger.Warn("watch directory", "path", path, "error", err)
				}
			}
			return
		}
	}

	if w.excluded(path, false) {
		return
	}
	if parser.DetectLanguage(path) == parser.LangUnknown {
		return
	}

	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

// processPending fires once the most recent change is older than the
// debounce period. Files changed within the window join the batch.
func (w *Watcher) processPending(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	now := time.Now()
	for _, lastMod := range w.pending {
		if now.Sub(lastMod) < w.debounce {
			w.mu.Unlock()
			return
		}
	}
	batch := make([]string, 0, len(w.pending))
	for path := range w.pending {
		batch = append(batch, path)
	}
	w.pending = make(map[string]time.Time)
	w.mu.Unlock()

	sort.Strings(batch)
	if w.callback != nil {
		go w.runCallback(ctx, batch)
	}
}

func (w *Watcher) runCallback(ctx context.Context, changed []string) {
	w.running.Lock()
	defer w.running.Unlock()
	if ctx.Err() != nil {
		return
	}

	for _, path := range changed {
		rel, err := filepath.Rel(w.path, path)
		if err != nil {
			rel = path
		}
		color.New(color.FgYellow).Fprintf(w.out, "File changed: %s\n", rel)
	}
	w.logger.Info("re-analyzing", "changed", len(changed))
	w.callback(ctx, changed)
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.fsWatcher.WatchList()
}
