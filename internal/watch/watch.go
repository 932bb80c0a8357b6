// Package watch reruns a build whenever project files change. Events are
// debounced so an editor's save burst triggers a single rebuild.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/masonbuild/mason/internal/ctxlog"
)

// DefaultDebounce is the quiet period required after the last event before
// a rebuild starts.
const DefaultDebounce = 250 * time.Millisecond

// Runner is the rebuild callback. Errors are logged, not fatal: the watch
// keeps going so the next edit can fix the build.
type Runner func(ctx context.Context) error

// Watcher triggers a Runner on filesystem changes.
type Watcher struct {
	run      Runner
	debounce time.Duration
}

// New creates a watcher. A non-positive debounce selects DefaultDebounce.
func New(run Runner, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{run: run, debounce: debounce}
}

// Watch blocks until ctx is canceled, rebuilding after changes anywhere
// under dirs. The ignore directory (the build tree) is excluded so build
// outputs cannot retrigger the build that wrote them.
func (w *Watcher) Watch(ctx context.Context, dirs []string, ignore string) error {
	logger := ctxlog.FromContext(ctx)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, dir := range dirs {
		if err := addTree(fsw, dir, ignore); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	logger.Info("Watching for changes.", "roots", len(dirs), "debounce", w.debounce.String())

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event, ignore) {
				continue
			}
			logger.Debug("Change detected.", "path", event.Name, "op", event.Op.String())
			// New files may be new directories worth watching.
			if event.Op.Has(fsnotify.Create) {
				if err := addTree(fsw, event.Name, ignore); err != nil {
					logger.Debug("Not watching new path.", "path", event.Name, "error", err)
				}
			}
			pending = time.After(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error.", "error", err)

		case <-pending:
			pending = nil
			logger.Info("Rebuilding after change.")
			if err := w.run(ctx); err != nil {
				logger.Error("Rebuild failed.", "error", err)
			}
		}
	}
}

// relevant filters out chmod noise and anything inside the ignored tree.
func (w *Watcher) relevant(event fsnotify.Event, ignore string) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if ignore != "" && (event.Name == ignore || strings.HasPrefix(event.Name, ignore+string(filepath.Separator))) {
		return false
	}
	return true
}

// addTree registers dir and every subdirectory, skipping the ignored tree
// and hidden directories. Non-directories are fine to pass: they are
// silently skipped by the walk of their parent.
func addTree(fsw *fsnotify.Watcher, dir, ignore string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path == ignore {
			return filepath.SkipDir
		}
		if name := d.Name(); strings.HasPrefix(name, ".") && path != dir {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
