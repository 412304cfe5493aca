package phase

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// waitForSettle holds finalize back until the project root has been
// quiet for the configured delay. Build tooling and editor saves can
// still be flushing when finalize is invoked; watching for filesystem
// events lets the wait extend once if writes are observed during the
// window. Watcher failures degrade to a plain sleep.
func waitForSettle(ctx context.Context, root string, delay time.Duration, logger *zap.Logger) {
	if delay <= 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Debug("fs watcher unavailable, sleeping instead", zap.Error(err))
		sleep(ctx, delay)
		return
	}
	defer watcher.Close()
	if err := watcher.Add(root); err != nil {
		logger.Debug("fs watch failed, sleeping instead", zap.Error(err))
		sleep(ctx, delay)
		return
	}

	// At most one extension: a busy tree should surface in the staging
	// loop, not stall finalize forever.
	for extensions := 0; ; {
		timer := time.NewTimer(delay)
		eventSeen := false
	window:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case ev := <-watcher.Events:
				logger.Debug("write activity during settle window", zap.String("path", ev.Name))
				eventSeen = true
			case <-watcher.Errors:
			case <-timer.C:
				break window
			}
		}
		if !eventSeen || extensions >= 1 {
			return
		}
		extensions++
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
