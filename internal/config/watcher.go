package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	. "github.com/roelfdiedericks/voicenav/internal/logging"
)

// DefaultDebounce collapses the burst of events an editor save produces
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a config file when it changes on disk. The parent
// directory is watched so editors that replace the file are noticed.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	onChange func(*Config)
	stopCh   chan struct{}
	stopOnce sync.Once

	mu           sync.Mutex
	pendingTimer *time.Timer
	reloads      int
}

// NewWatcher watches path and calls onChange with each successfully
// reloaded config. Invalid edits are logged and skipped.
func NewWatcher(path string, debounce time.Duration, onChange func(*Config)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config: nothing to watch, no config file in use")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(dir, filepath.Base(abs))
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(abs)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		watcher:  fsWatcher,
		path:     abs,
		debounce: debounce,
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching in a goroutine
func (w *Watcher) Start() {
	L_debug("config: watching for changes", "path", w.path)
	go w.run()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			L_trace("config: file event", "path", event.Name, "op", event.Op.String())
			w.triggerReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			L_warn("config: watcher error", "error", err)
		}
	}
}

func (w *Watcher) triggerReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pendingTimer != nil {
		w.pendingTimer.Stop()
	}
	w.pendingTimer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	w.pendingTimer = nil
	w.mu.Unlock()

	cfg, _, err := Load(w.path)
	if err != nil {
		L_warn("config: reload failed, keeping previous config", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	L_info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Reloads returns how many times the config was reloaded successfully
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Stop stops watching
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		if w.pendingTimer != nil {
			w.pendingTimer.Stop()
		}
		w.mu.Unlock()
		err = w.watcher.Close()
	})
	return err
}
