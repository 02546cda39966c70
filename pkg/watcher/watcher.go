// Package watcher adapts fsnotify filesystem notifications into the file
// events consumed by the trigger engine.
package watcher

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/loomworks/weft/pkg/models"
)

// FileEvent is one observed filesystem change.
type FileEvent struct {
	Path string
	Kind models.FileEventKind
	At   time.Time
}

// Watcher forwards events for a watched directory into a channel drained by
// the runtime driver.
type Watcher struct {
	logger *slog.Logger
	inner  *fsnotify.Watcher
	events chan FileEvent
}

func NewWatcher(logger *slog.Logger, dir string) (*Watcher, error) {
	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := inner.Add(dir); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		logger: logger.With("module", "file_watcher", "dir", dir),
		inner:  inner,
		events: make(chan FileEvent, 256),
	}

	go w.pump()

	return w, nil
}

// Events returns the channel of translated file events.
func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

func (w *Watcher) pump() {
	defer close(w.events)

	for {
		select {
		case event, ok := <-w.inner.Events:
			if !ok {
				return
			}

			kind, relevant := translateOp(event.Op)
			if !relevant {
				continue
			}

			select {
			case w.events <- FileEvent{Path: event.Name, Kind: kind, At: time.Now()}:
			default:
				w.logger.Warn("Dropping file event, queue full", "path", event.Name)
			}
		case err, ok := <-w.inner.Errors:
			if !ok {
				return
			}

			w.logger.Error("File watcher error", "error", err)
		}
	}
}

func translateOp(op fsnotify.Op) (models.FileEventKind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return models.FileEventCreated, true
	case op.Has(fsnotify.Write):
		return models.FileEventModified, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return models.FileEventDeleted, true
	}

	return "", false
}

func (w *Watcher) Close() error {
	return w.inner.Close()
}
