package daemon

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// FsWatcher abstracts filesystem event monitoring, satisfied by
// *fsnotify.Watcher. Tests substitute a fake implementation.
type FsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWrapper struct {
	w *fsnotify.Watcher
}

func (f *fsnotifyWrapper) Add(name string) error         { return f.w.Add(name) }
func (f *fsnotifyWrapper) Close() error                  { return f.w.Close() }
func (f *fsnotifyWrapper) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWrapper) Errors() <-chan error          { return f.w.Errors }

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &fsnotifyWrapper{w: w}, nil
}

// WatcherFactory constructs a fresh FsWatcher. Overridable in tests.
type WatcherFactory func() (FsWatcher, error)

// FSWatchTask watches the roots published on subscriber and fires trigger
// on every non-access filesystem event under them. When the root list
// changes, the current watcher is torn down and a fresh one built for the
// new roots rather than mutated in place.
func FSWatchTask(ctx context.Context, subscriber *RootsSubscriber, trigger *TriggerSender,
	newWatcher WatcherFactory, logger *slog.Logger) {
	for {
		roots, changed := subscriber.Get()

		watcher, err := newWatcher()
		if err != nil {
			logger.Error("daemon: fs-watch: creating watcher", "error", err)
			return
		}

		for _, root := range roots {
			if err := watcher.Add(root); err != nil {
				logger.Warn("daemon: fs-watch: failed to add watch", "path", root, "error", err)
			}
		}

		if watchUntilRootsChange(ctx, watcher, changed, trigger, logger) {
			watcher.Close()
			return
		}
		watcher.Close()
	}
}

// watchUntilRootsChange drains watcher's events/errors, firing trigger on
// every event that isn't a pure access (read) notification, until ctx is
// cancelled (returns true) or the roots change (returns false, so the
// caller rebuilds the watcher for the new roots).
func watchUntilRootsChange(ctx context.Context, watcher FsWatcher, changed <-chan struct{},
	trigger *TriggerSender, logger *slog.Logger) bool {
	for {
		select {
		case <-ctx.Done():
			return true

		case <-changed:
			return false

		case ev, ok := <-watcher.Events():
			if !ok {
				return true
			}
			if ev.Op&fsnotify.Chmod != 0 && ev.Op == fsnotify.Chmod {
				continue // pure metadata/access notification, not a content change
			}
			trigger.Trigger()

		case err, ok := <-watcher.Errors():
			if !ok {
				return true
			}
			logger.Error("daemon: fs-watch: watcher error", "error", err)
		}
	}
}
