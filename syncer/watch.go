package syncer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ebogdum/cloudbox/locks"
)

// DefaultDebounce is the quiet period after the last local change before a
// new run starts
const DefaultDebounce = 2 * time.Second

// RunFunc observes the outcome of every run made by Watch
type RunFunc func(report *Report, err error)

// Watch runs once, then again after every burst of local changes below
// opts.LocalRoot. It returns when ctx is cancelled.
func (r *Runner) Watch(ctx context.Context, opts Options, debounce time.Duration, onRun RunFunc) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if onRun == nil {
		onRun = func(*Report, error) {}
	}

	report, err := r.Run(ctx, opts)
	onRun(report, err)
	if err != nil && !errors.Is(err, locks.ErrLockHeld) {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := r.addWatchPaths(watcher, opts.LocalRoot, opts.Recursive); err != nil {
		return err
	}
	r.logger.Info("Watching local root", zap.String("local_root", opts.LocalRoot), zap.Duration("debounce", debounce))

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == fsnotify.Create && opts.Recursive {
				// New directories need their own watch
				_ = r.addWatchPaths(watcher, event.Name, true)
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("Watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			report, err := r.Run(ctx, opts)
			if err != nil {
				r.logger.Warn("Sync run failed", zap.Error(err))
			}
			onRun(report, err)
		}
	}
}

func (r *Runner) addWatchPaths(watcher *fsnotify.Watcher, root string, recursive bool) error {
	if !recursive {
		if err := watcher.Add(root); err != nil {
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
		}
		return nil
	})
}
