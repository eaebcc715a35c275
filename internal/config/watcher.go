package config

import (
	"os"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/Biometria-se/grizzly-lsp/internal/logging"
)

// Watcher holds the active Config behind an atomic pointer and re-decodes it
// whenever the backing file changes on disk, so in-flight requests never observe a half-applied reload.
type Watcher struct {
	current atomic.Pointer[Config]
	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher decodes path once (if it exists) and starts watching it for
// changes. path may be empty, in which case Watcher serves Default() forever
// and Close is a no-op.
func NewWatcher(path string) (*Watcher, error) {
	w := &Watcher{path: path, done: make(chan struct{})}

	cfg, err := w.load()
	if err != nil {
		return nil, err
	}
	w.current.Store(cfg)

	if path == "" {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	w.watcher = fw
	go w.run()
	return w, nil
}

// Get returns the currently active Config.
func (w *Watcher) Get() *Config {
	return w.current.Load()
}

// Close stops the filesystem watch.
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) load() (*Config, error) {
	if w.path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(w.path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeTOML(raw)
}

func (w *Watcher) run() {
	log := logging.Named("config").Sugar()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := w.load()
			if err != nil {
				log.Warnw("config reload failed, keeping previous config", "path", w.path, "error", err)
				continue
			}
			w.current.Store(cfg)
			log.Infow("config reloaded", "path", w.path)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnw("config watcher error", "error", err)
		}
	}
}
