//
//  Copyright © Manetu Inc. All rights reserved.
//

package registry

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchOptions selects how reloads are triggered.
type WatchOptions struct {
	// Files reloads when a domain file changes.
	Files bool
	// Interval reloads periodically when positive, e.g. to pick up tag changes in redis.
	Interval time.Duration
	// Debounce coalesces bursts of file events.
	Debounce time.Duration
}

// Watch reloads the store until ctx is cancelled.  Reload failures are logged and leave the
// active snapshot in place.
func (s *Store) Watch(ctx context.Context, opts WatchOptions) error {
	var events <-chan fsnotify.Event
	var watchErrors <-chan error

	if opts.Files {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer func() { _ = watcher.Close() }()

		for _, dir := range s.watchDirs() {
			if err := watcher.Add(dir); err != nil {
				return err
			}
			logger.Debugf(agent, "watch", "watching %s", dir)
		}
		events = watcher.Events
		watchErrors = watcher.Errors
	}

	var tick <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	var pending <-chan time.Time

	reload := func(reason string) {
		logger.Debugf(agent, "watch", "reload triggered by %s", reason)
		_ = s.Reload(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if s.relevant(ev) {
				pending = time.After(debounce)
			}

		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			logger.Warnf(agent, "watch", "file watcher: %v", err)

		case <-pending:
			pending = nil
			reload("file change")

		case <-tick:
			reload("interval")
		}
	}
}

// watchDirs returns the directories to watch.  Files are watched through their parent so that
// editors that replace files atomically are noticed.
func (s *Store) watchDirs() []string {
	seen := make(map[string]struct{})
	var dirs []string
	for _, p := range s.paths {
		dir := p
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			dir = filepath.Dir(p)
		}
		if _, ok := seen[dir]; !ok {
			seen[dir] = struct{}{}
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func (s *Store) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	ext := filepath.Ext(ev.Name)
	return ext == ".yml" || ext == ".yaml"
}
