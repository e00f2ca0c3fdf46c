// Package watch monitors a single file for changes using fsnotify and
// invokes a callback when the file is written, created, or renamed into
// place. It is used by the viewer to notice when the capture log has
// grown so it can trigger a re-cook.
package watch

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches one file's containing directory and fires OnChange
// whenever that specific file is written or (re)created. Watching the
// directory rather than the file itself survives editors and log
// rotators that replace a file instead of writing in place.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	done      chan struct{}
}

// New starts watching path and invokes onChange on every write/create
// event that touches it. onChange is called from the watcher's own
// goroutine and should return quickly.
func New(path string, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}

	w := &Watcher{
		fsWatcher: fw,
		done:      make(chan struct{}),
	}

	target := filepath.Base(path)
	go w.processEvents(target, onChange)

	slog.Debug("file watcher started", "path", path)
	return w, nil
}

func (w *Watcher) processEvents(target string, onChange func()) {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			slog.Debug("watched file changed", "path", event.Name)
			onChange()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("file watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// Close stops the watcher goroutine and releases resources. Safe to call
// multiple times.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	return w.fsWatcher.Close()
}
