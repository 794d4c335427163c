// Package watch triggers a callback when schema files under a directory
// change, after a quiet period.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithFilter limits the paths that count as a change.
func WithFilter(match func(path string) bool) Option {
	return func(w *Watcher) { w.match = match }
}

// Watcher watches root and every directory below it.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   *slog.Logger
	match    func(string) bool
	onChange func(ctx context.Context)
}

func New(root string, onChange func(ctx context.Context), opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		debounce: 500 * time.Millisecond,
		logger:   slog.Default(),
		match:    func(string) bool { return true },
		onChange: onChange,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run blocks until ctx is done. onChange runs on the Run goroutine, so a
// slow callback delays the next one instead of overlapping it.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create fsnotify: %w", err)
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.root); err != nil {
		return err
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if err := w.addTree(fsw, ev.Name); err != nil {
					w.logger.Debug("watch: add failed", "path", ev.Name, "err", err)
				}
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !w.match(ev.Name) {
				continue
			}
			w.logger.Debug("schema file changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "err", err)

		case <-timer.C:
			w.logger.Info("schema files changed", "root", w.root)
			w.onChange(ctx)
		}
	}
}

// addTree registers dir and its subdirectories; regular files are ignored.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
