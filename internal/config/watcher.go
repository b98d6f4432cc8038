package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dontbeterm/dontbeterm/internal/logging"
	"github.com/dontbeterm/dontbeterm/internal/platform"
)

var configLog = logging.ForComponent(logging.CompConfig)

const reloadDebounce = 200 * time.Millisecond

// Watcher reloads the config when config.toml changes on disk and delivers
// the fresh config on Changes. Editors often write through a temp file and
// rename, so the directory is watched rather than the file.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	changes chan *Config
	warning string

	closeCh   chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// NewWatcher watches the config directory, creating it if needed.
func NewWatcher() (*Watcher, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return newWatcher(path)
}

func newWatcher(path string) (*Watcher, error) {
	dir := filepath.Dir(path)
	if err := mkdirAll(dir); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		watcher: fw,
		changes: make(chan *Config, 1),
		warning: platform.CheckFsnotifySupport(dir),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	if w.warning != "" {
		configLog.Warn("config_watcher_unreliable_fs", slog.String("dir", dir), slog.String("warning", w.warning))
	}
	go w.loop()
	return w, nil
}

// Changes delivers the reloaded config after each change. Only the latest
// config is kept if the consumer falls behind.
func (w *Watcher) Changes() <-chan *Config {
	return w.changes
}

// Warning is non-empty when the config lives on a filesystem where change
// events are unreliable.
func (w *Watcher) Warning() string {
	return w.warning
}

// Close stops the watcher. Safe to call multiple times.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.closeCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			cfg, err := Reload()
			if err != nil {
				configLog.Warn("config_reload_failed", slog.String("error", err.Error()))
			} else {
				configLog.Info("config_reloaded", slog.String("path", w.path))
			}
			w.publish(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			configLog.Warn("config_watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) publish(cfg *Config) {
	for {
		select {
		case w.changes <- cfg:
			return
		default:
		}
		// Drop the stale pending config and retry with the new one.
		select {
		case <-w.changes:
		default:
		}
	}
}
