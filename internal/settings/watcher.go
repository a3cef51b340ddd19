package settings

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses editor save bursts into one reload.
const DefaultDebounce = 500 * time.Millisecond

// Watch reloads the store whenever its file changes, until ctx is cancelled.
// The parent directory is watched so that atomic rename-on-save is seen.
func (s *Store) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	target, err := filepath.Abs(s.path)
	if err != nil {
		return err
	}
	target = filepath.Clean(target)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(target)); err != nil {
		_ = w.Close()
		return err
	}

	go s.watchLoop(ctx, w, target, debounce)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, w *fsnotify.Watcher, target string, debounce time.Duration) {
	defer w.Close()

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if ctx.Err() != nil {
					return
				}
				_ = s.Reload(ctx)
			})
			mu.Unlock()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}
