package library

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 300 * time.Millisecond

// Watch calls onChange whenever songs or playlists change on disk, coalescing
// bursts of events. It blocks until ctx is done.
func (l *Library) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := l.watchAll(watcher); err != nil {
		return err
	}

	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			// new playlist directories need their own watch
			if event.Op&fsnotify.Create != 0 {
				_ = l.watchAll(watcher)
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.log.Warn("library watch error", "error", err)
		}
	}
}

func (l *Library) watchAll(watcher *fsnotify.Watcher) error {
	dirs := []string{l.SongsPath(), l.PlaylistsPath()}
	playlists, err := l.Playlists()
	if err != nil {
		return err
	}
	for _, p := range playlists {
		dirs = append(dirs, l.playlistPath(p.Name))
	}

	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return nil
}
