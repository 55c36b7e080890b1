package xconf

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchCallback 重载结束后调用；err 非 nil 时配置保持重载前的内容。
type WatchCallback func(cfg Config, err error)

// WatchOption 监视器选项。
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
}

// WithDebounce 设置防抖时间，窗口内的多次变更只触发一次重载。默认 100ms，非正值被忽略。
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// Watcher 监视配置文件并自动重载。
//
// 监视的是文件所在目录而非文件本身：编辑器和 ConfigMap 挂载常以
// 写临时文件再 rename 的方式更新，直接监视文件会丢失事件。
type Watcher struct {
	cfg      *koanfConfig
	fs       *fsnotify.Watcher
	callback WatchCallback
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	closed  bool
	running bool
	// 回调执行期间持有，Close 借此保证返回后没有回调在跑
	cbMu sync.Mutex
}

// Watch 为从文件创建的 cfg 创建监视器。调用 [Watcher.Run] 开始监视。
func Watch(cfg Config, callback WatchCallback, opts ...WatchOption) (*Watcher, error) {
	kc, ok := cfg.(*koanfConfig)
	if !ok {
		return nil, fmt.Errorf("xconf: unsupported config type %T", cfg)
	}
	if kc.path == "" {
		return nil, ErrNotReloadable
	}

	o := &watchOptions{debounce: 100 * time.Millisecond}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("xconf: create watcher: %w", err)
	}
	dir := filepath.Dir(kc.path)
	if err := fs.Add(dir); err != nil {
		return nil, errors.Join(fmt.Errorf("xconf: watch directory %s: %w", dir, err), fs.Close())
	}

	return &Watcher{
		cfg:      kc,
		fs:       fs,
		callback: callback,
		debounce: o.debounce,
	}, nil
}

// Run 阻塞监视直到 ctx 结束，返回前关闭监视器。
// 不可重复调用；已关闭时返回 [ErrWatcherClosed]。
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.closed || w.running {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	w.running = true
	w.mu.Unlock()

	defer func() { _ = w.Close() }()

	filename := filepath.Base(w.cfg.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if w.relevant(event, filename) {
				w.schedule()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.notify(fmt.Errorf("xconf: watch error: %w", err))
		}
	}
}

// Close 停止监视，幂等。返回后不会再有回调执行；不要在回调内调用。
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	err := w.fs.Close()
	// 等待可能已在执行的回调
	w.cbMu.Lock()
	defer w.cbMu.Unlock()
	return err
}

func (w *Watcher) relevant(event fsnotify.Event, filename string) bool {
	if filepath.Base(event.Name) != filename {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.notify(w.cfg.Reload())
	})
}

func (w *Watcher) notify(err error) {
	w.cbMu.Lock()
	defer w.cbMu.Unlock()
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed || w.callback == nil {
		return
	}
	w.callback(w.cfg, err)
}
