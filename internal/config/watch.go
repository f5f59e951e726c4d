package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads Config from disk whenever the underlying file changes,
// swapping the new values into the shared Config and then calling
// onChange from its own goroutine. Nothing holds the reload back until a
// chat-round boundary: whatever onChange does (e.g. an MCP Manager.Reload)
// happens as soon as the file change is seen.
type Watcher struct {
	path    string
	cfg     *Config
	watcher *fsnotify.Watcher
	onChange func(*Config)
}

// NewWatcher starts watching path for changes, applying them onto cfg via
// ReplaceFrom. onChange, if non-nil, is invoked after each successful
// reload (e.g. to trigger an MCP Manager.Reload).
func NewWatcher(path string, cfg *Config, onChange func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{path: path, cfg: cfg, watcher: fsw, onChange: onChange}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	lastHash := w.cfg.Hash()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			next, err := Load(w.path)
			if err != nil {
				slog.Warn("config.reload_failed", "path", w.path, "error", err)
				continue
			}
			if next.Hash() == lastHash {
				continue
			}
			w.cfg.ReplaceFrom(next)
			lastHash = next.Hash()
			slog.Info("config.reloaded", "path", w.path)
			if w.onChange != nil {
				w.onChange(w.cfg)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config.watch_error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
