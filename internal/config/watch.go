package config

import (
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	apperrors "github.com/sentinel-ir/core/internal/errors"
)

// Watcher holds the live Config and reloads it whenever path changes on
// disk, swapping it in atomically (spec §6: "hot reload for non-structural
// knobs" — timeouts and thresholds may change without a restart; the
// listen ports and module wiring a reload would touch are read once at
// startup by the composition root, not through the Watcher). Mirrors the
// teacher's internal/config + fsnotify pairing.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	onReload func(*Config)
	onError  func(error)
}

// NewWatcher loads path once, then starts an fsnotify watch on it. onReload,
// if non-nil, is invoked with the newly loaded Config after every
// successful reload. onError, if non-nil, is invoked with any error
// encountered while reloading (a bad edit leaves the previous Config live).
func NewWatcher(path string, onReload func(*Config), onError func(error)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to start config watcher")
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to watch config file")
	}

	w := &Watcher{path: path, watcher: fw, onReload: onReload, onError: onError}
	w.current.Store(cfg)
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	cfg, err := Load(w.path)
	if err != nil {
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	w.current.Store(cfg)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
