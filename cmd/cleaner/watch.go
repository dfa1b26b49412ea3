package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JonMunkholm/datacleaner/internal/handler"
)

// dirWatcher reports settled changes to input files in one directory.
type dirWatcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	onChange func(ctx context.Context, paths []string)

	mu          sync.Mutex
	debounceMap map[string]time.Time
	debounceDur time.Duration

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func newDirWatcher(dir string, debounce time.Duration, onChange func(ctx context.Context, paths []string)) (*dirWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &dirWatcher{
		dir:         dir,
		watcher:     fw,
		onChange:    onChange,
		debounceMap: make(map[string]time.Time),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start runs the event loop until ctx is done or Stop is called.
func (dw *dirWatcher) Start(ctx context.Context) {
	slog.Info("watching for changes", "dir", dw.dir, "debounce", dw.debounceDur.String())
	go dw.run(ctx)
}

// Stop ends the event loop and releases the watcher. Start must have been called.
func (dw *dirWatcher) Stop() {
	dw.stopOnce.Do(func() {
		close(dw.stopCh)
		<-dw.doneCh
		dw.watcher.Close()
	})
}

func (dw *dirWatcher) run(ctx context.Context) {
	defer close(dw.doneCh)

	tick := dw.debounceDur / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	debounceTicker := time.NewTicker(tick)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-dw.stopCh:
			return

		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			dw.handleEvent(event)

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", "error", err)

		case <-debounceTicker.C:
			dw.processDebouncedEvents(ctx)
		}
	}
}

func (dw *dirWatcher) handleEvent(event fsnotify.Event) {
	if !handler.IsInputFile(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	slog.Debug("file event", "path", event.Name, "op", event.Op.String())

	dw.mu.Lock()
	dw.debounceMap[event.Name] = time.Now()
	dw.mu.Unlock()
}

// processDebouncedEvents reports paths whose last event is older than the
// debounce window, all in one call.
func (dw *dirWatcher) processDebouncedEvents(ctx context.Context) {
	now := time.Now()
	var settled []string

	dw.mu.Lock()
	for path, eventTime := range dw.debounceMap {
		if now.Sub(eventTime) >= dw.debounceDur {
			settled = append(settled, path)
			delete(dw.debounceMap, path)
		}
	}
	dw.mu.Unlock()

	if len(settled) == 0 {
		return
	}
	sort.Strings(settled)
	dw.onChange(ctx, settled)
}
