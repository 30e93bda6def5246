package config

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches <workspace>/.noeta/config.json and config.yaml for
// edits and reloads the configuration through Load, handing the result
// to onReload. Grounded on the teacher's internal/core/MangleWatcher,
// which debounces rapid filesystem events around a directory the same
// way: this trims that shape down to the two files Load actually reads.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	onReload    func(Config, error)
	debounceDur time.Duration
	pending     bool
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewWatcher creates a Watcher for the current workspace's .noeta
// directory. onReload is called, from the watcher's own goroutine,
// every time a debounced batch of edits settles.
func NewWatcher(onReload func(Config, error)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     w,
		onReload:    onReload,
		debounceDur: 300 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. The .noeta directory is created if it doesn't
// exist yet so the watch can be registered immediately; it is non-blocking,
// running its event loop in a goroutine.
func (w *Watcher) Start() error {
	dir, err := WorkspaceDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	go w.run()
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() {
	select {
	case <-w.stopCh:
		return // already stopped
	default:
		close(w.stopCh)
	}
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isConfigFile(event.Name) {
				continue
			}
			w.mu.Lock()
			if !w.pending {
				w.pending = true
				debounce.Reset(w.debounceDur)
			}
			w.mu.Unlock()

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

		case <-debounce.C:
			w.mu.Lock()
			w.pending = false
			w.mu.Unlock()
			cfg, err := Load()
			w.onReload(cfg, err)
		}
	}
}

func isConfigFile(name string) bool {
	base := filepath.Base(name)
	return base == "config.json" || base == "config.yaml"
}
