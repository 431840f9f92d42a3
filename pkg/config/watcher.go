package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	reloadDebounce     = 500 * time.Millisecond
	reloadPollInterval = 5 * time.Second
)

// Watcher reloads the config file when it changes and passes the new
// config to the listener. Invalid files are logged and ignored.
//
// fsnotify gives instant detection; a slow mtime poll catches the changes
// it misses after atomic renames.
type Watcher struct {
	path     string
	onReload func(Config)
	debounce time.Duration
	poll     time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewWatcher creates a watcher for path
func NewWatcher(path string, onReload func(Config)) *Watcher {
	return &Watcher{
		path:     path,
		onReload: onReload,
		debounce: reloadDebounce,
		poll:     reloadPollInterval,
	}
}

// Start begins watching. The directory is watched as well so the file may
// be created after start.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	if _, err := os.Stat(w.path); err == nil {
		if err := fw.Add(w.path); err != nil {
			log.Printf("[config] could not watch %s: %v", w.path, err)
		}
	}

	w.mu.Lock()
	w.watcher = fw
	w.stop = make(chan struct{})
	w.mu.Unlock()

	go w.loop(fw, w.stop)
	log.Printf("[config] watching %s", w.path)
	return nil
}

// Stop ends watching
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
}

func (w *Watcher) reload(fw *fsnotify.Watcher) {
	cfg, err := Load(w.path)
	if err != nil {
		log.Printf("[config] reload failed, keeping previous config: %v", err)
		return
	}

	// Atomic writes replace the inode, so re-add the file watch
	_ = fw.Remove(w.path)
	if err := fw.Add(w.path); err != nil {
		log.Printf("[config] could not re-watch %s: %v", w.path, err)
	}

	log.Printf("[config] reloaded %s", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

func (w *Watcher) loop(fw *fsnotify.Watcher, stop chan struct{}) {
	var debounceTimer *time.Timer
	pollTicker := time.NewTicker(w.poll)
	defer pollTicker.Stop()

	var lastModTime time.Time
	if info, err := os.Stat(w.path); err == nil {
		lastModTime = info.ModTime()
	}

	trigger := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(w.debounce, func() { w.reload(fw) })
	}

	for {
		select {
		case <-stop:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if info, err := os.Stat(w.path); err == nil {
					lastModTime = info.ModTime()
				}
				trigger()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-pollTicker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}
			if info.ModTime() != lastModTime {
				lastModTime = info.ModTime()
				log.Printf("[config] change detected by poll")
				trigger()
			}
		}
	}
}
