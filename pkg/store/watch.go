package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/fsnotify.v1"
)

// ErrNotWatchable is returned by Watch when the source has no directory.
var ErrNotWatchable = errors.New("store: source cannot be watched")

// rooted is implemented by sources backed by a directory on disk.
type rooted interface {
	Root() string
}

// Watch reloads the store whenever anything below the source directory is
// created, written, removed or renamed. Events are debounced so that a burst
// of writes triggers one load. Watch returns once the watcher is running;
// it stops when ctx is cancelled. Reload failures are logged and the
// current snapshot kept.
func (s *Store) Watch(ctx context.Context) error {
	r, ok := s.src.(rooted)
	if !ok {
		return ErrNotWatchable
	}
	dir := r.Root()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := addTree(watcher, dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}

	go s.watchLoop(ctx, watcher)
	s.logger.InfoContext(ctx, "watching city directory", "dir", dir, "debounce", s.debounce)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	timer := time.NewTimer(s.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				// New subdirectories are watched too.
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(watcher, event.Name); err != nil {
						s.logger.WarnContext(ctx, "watching new directory", "dir", event.Name, "error", err)
					}
				}
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.logger.DebugContext(ctx, "city directory changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(s.debounce)

		case <-timer.C:
			if _, err := s.Load(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "reloading cities", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.WarnContext(ctx, "city directory watcher", "error", err)
		}
	}
}

// addTree watches dir and every directory below it.
func addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
