package config

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/stormline/internal/renderer/core"
)

// DefaultDebounce coalesces the burst of events an editor produces when
// saving a file.
const DefaultDebounce = 100 * time.Millisecond

// ErrWatcherClosed is returned when using a closed watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// Watcher reloads the configuration file when it changes on disk.
//
// The containing directory is watched rather than the file itself so that
// editors which save by renaming a temporary file are followed.
type Watcher struct {
	loader   *Loader
	file     string
	delay    time.Duration
	onChange func(*Config)
	onError  func(error)

	fsw *fsnotify.Watcher

	mu     sync.Mutex
	timer  *time.Timer
	closed bool

	closeCh  chan struct{}
	closedWg sync.WaitGroup

	reloads  atomic.Uint64
	failures atomic.Uint64
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the delay between the last change and the reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.delay = d
		}
	}
}

// WithErrorHandler receives reload and watch errors.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// NewWatcher watches the loader's file and calls onChange with every
// successfully reloaded configuration. Invalid files are reported to the
// error handler and the previous configuration stays in effect.
func NewWatcher(loader *Loader, onChange func(*Config), opts ...WatcherOption) (*Watcher, error) {
	if loader == nil || loader.Path() == "" || onChange == nil {
		return nil, core.Errorf("config", core.ErrInvalidParameter, "watcher needs a file and a callback")
	}
	file, err := filepath.Abs(loader.Path())
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(file)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		loader:   loader,
		file:     file,
		delay:    DefaultDebounce,
		onChange: onChange,
		fsw:      fsw,
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.closedWg.Add(1)
	go w.processLoop()
	return w, nil
}

func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.file {
				continue
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
				w.schedule()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.report(err)
		}
	}
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return
	}

	cfg, err := w.loader.Load()
	if err != nil {
		w.failures.Add(1)
		w.report(err)
		return
	}
	w.reloads.Add(1)
	w.onChange(cfg)
}

func (w *Watcher) report(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}

// Reloads returns the number of successful reloads.
func (w *Watcher) Reloads() uint64 {
	return w.reloads.Load()
}

// Failures returns the number of rejected reloads.
func (w *Watcher) Failures() uint64 {
	return w.failures.Load()
}

// Close stops watching. A pending reload is cancelled.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.closeCh)
	w.mu.Unlock()

	w.closedWg.Wait()
	return w.fsw.Close()
}
