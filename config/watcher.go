package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/advdv/twine/vhost"
	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for writes to settle before reloading.
const DefaultDebounce = 100 * time.Millisecond

// WatchOption configures a [Watcher].
type WatchOption func(*Watcher)

func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithReloadHook calls fn after every reload attempt with its result.
func WithReloadHook(fn func(error)) WatchOption {
	return func(w *Watcher) { w.hook = fn }
}

// Watcher reloads the registry in a store when the configuration file changes. A file that fails to load
// is logged and the store keeps the registry it has.
type Watcher struct {
	path     string
	store    *vhost.Store
	logs     *zap.Logger
	debounce time.Duration
	hook     func(error)

	fsw  *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string, store *vhost.Store, logs *zap.Logger, opts ...WatchOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "resolve config path")
	}

	if logs == nil {
		logs = zap.NewNop()
	}

	w := &Watcher{
		path:     abs,
		store:    store,
		logs:     logs.Named("config"),
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start watches the directory of the file, so a file replaced by an editor is picked up as well.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		_ = fsw.Close()
		return errors.Wrap(err, "watch config directory")
	}

	w.fsw = fsw
	w.wg.Add(1)
	go w.loop()

	w.logs.Info("watching config", zap.String("path", w.path))

	return nil
}

// Close stops watching. Pending reloads are dropped.
func (w *Watcher) Close() error {
	if w.fsw == nil {
		return nil
	}

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	return errors.Wrap(err, "close watcher")
}

// Reload loads the file and swaps its registry into the store.
func (w *Watcher) Reload() error {
	reg, err := Load(w.path)
	if err != nil {
		w.logs.Error("config reload failed, keeping the current domains", zap.Error(err))
	} else {
		w.store.Swap(reg)
		w.logs.Info("config reloaded", zap.String("path", w.path), zap.Int("domains", len(reg.All())))
	}

	if w.hook != nil {
		w.hook(err)
	}

	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			if filepath.Clean(ev.Name) != w.path {
				continue
			}

			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				w.schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}

			w.logs.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
		default:
			_ = w.Reload()
		}
	})
}
