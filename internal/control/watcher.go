package control

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"oceancl/internal/ocean"
)

// Watcher reloads a config file whenever it changes and pushes the
// parameter differences as edits. Construction-time settings cannot change
// while running; edits to them are logged and ignored.
type Watcher struct {
	path    string
	sink    EditSink
	log     *slog.Logger
	initial ocean.Config
	params  ocean.Params
	watcher *fsnotify.Watcher
}

// NewWatcher watches path, which was loaded into initial.
func NewWatcher(path string, initial ocean.Config, sink EditSink, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	// Editors often replace the file, so the directory is watched.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}
	return &Watcher{
		path:    filepath.Clean(path),
		sink:    sink,
		log:     logger,
		initial: initial,
		params:  initial.Params,
		watcher: fw,
	}, nil
}

// Run handles file events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", "err", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := ocean.LoadConfig(w.path)
	if err != nil {
		w.log.Warn("config reload failed", "path", w.path, "err", err)
		return
	}
	fixed, was := cfg, w.initial
	fixed.Params, was.Params = ocean.Params{}, ocean.Params{}
	if fixed != was {
		w.log.Warn("config changes other than params need a restart", "path", w.path)
	}
	edits := w.params.Diff(cfg.Params)
	if len(edits) == 0 {
		return
	}
	if err := w.sink.Push(edits...); err != nil {
		w.log.Warn("config reload rejected", "path", w.path, "err", err)
		return
	}
	w.params = cfg.Params
	w.log.Info("config reloaded", "path", w.path, "edits", len(edits))
}

// Close stops watching.
func (w *Watcher) Close() error { return w.watcher.Close() }
