package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yourusername/lolo-bridge/internal/output"
)

// DefaultDebounce collapses the burst of writes editors produce on save
const DefaultDebounce = 300 * time.Millisecond

// Watcher reports bundle ids whose source file was written
type Watcher struct {
	dir      string
	logger   output.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher starts watching dir
func NewWatcher(dir string, logger output.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:      dir,
		logger:   logger,
		debounce: DefaultDebounce,
		watcher:  fw,
	}, nil
}

// SetDebounce changes how long a file must stay quiet before it is reported
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Run sends a bundle id on changed once its file has settled. It returns
// when ctx is cancelled and closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context, changed chan<- string) error {
	defer func() {
		if err := w.watcher.Close(); err != nil {
			w.logger.Warning("Error closing plugin watcher: %v", err)
		}
	}()

	tick := w.debounce / 3
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if id, ok := w.bundleFor(event); ok {
				pending[id] = time.Now()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Plugin watcher error: %v", err)

		case now := <-ticker.C:
			for id, seen := range pending {
				if now.Sub(seen) < w.debounce {
					continue
				}
				delete(pending, id)
				select {
				case changed <- id:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// bundleFor maps a write or create of <dir>/<id>.go to id
func (w *Watcher) bundleFor(event fsnotify.Event) (string, bool) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return "", false
	}
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
		return "", false
	}
	id := strings.TrimSuffix(name, ".go")
	if !bundleID.MatchString(id) {
		return "", false
	}
	return id, true
}
