package skills

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Watch hot-reloads the skill set when files in the user skills
// directory change. It returns a channel that emits after each reload,
// buffered so a slow consumer never blocks the watcher. The watcher
// runs until the context is canceled.
func (l *Loader) Watch(ctx context.Context) <-chan struct{} {
	reloaded := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("failed to create skills watcher", "error", err)
		close(reloaded)
		return reloaded
	}
	if err := watcher.Add(l.userDir); err != nil {
		slog.Warn("could not watch skills directory", "dir", l.userDir, "error", err)
	}

	go func() {
		defer watcher.Close()
		defer close(reloaded)

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, ".md") {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, func() {
					slog.Info("skills changed, reloading", "file", event.Name)
					l.LoadAll()
					select {
					case reloaded <- struct{}{}:
					default:
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("skills watcher error", "error", err)
			}
		}
	}()

	return reloaded
}
