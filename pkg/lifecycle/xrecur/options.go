package xrecur

import (
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/omeyang/xrecur/pkg/observability/xlog"
	"github.com/omeyang/xrecur/pkg/observability/xmetrics"
)

const (
	defaultName        = "xrecur"
	defaultLockTTL     = 5 * time.Minute
	defaultLockTimeout = 5 * time.Second
)

// Option 配置 Scheduler。
type Option func(*options)

type options struct {
	name               string
	logger             xlog.Logger
	clock              clockwork.Clock
	trigger            Trigger
	errorHandler       ErrorHandler
	hooks              []Hook
	observer           xmetrics.Observer
	locker             Locker
	lockTTL            time.Duration
	lockTimeout        time.Duration
	finalRunOnShutdown bool
	newID              func() string
}

func defaultOptions() *options {
	return &options{
		name:        defaultName,
		clock:       clockwork.NewRealClock(),
		observer:    xmetrics.NoopObserver{},
		lockTTL:     defaultLockTTL,
		lockTimeout: defaultLockTimeout,
		newID:       uuid.NewString,
	}
}

// WithName 设置调度器名称，用于日志、span 属性、锁 key 和统计。默认 "xrecur"。
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger 设置日志记录器，默认 xlog.Default()。
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock 设置时钟。未指定 Trigger 时默认 Trigger 也使用该时钟。
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithTrigger 替换定时驱动。
func WithTrigger(t Trigger) Option {
	return func(o *options) {
		if t != nil {
			o.trigger = t
		}
	}
}

// WithErrorHandler 设置失败回调。未设置时失败被静默丢弃。
//
// 回调在尝试结束前同步执行，不要在其中同步等待 Stop 或 AwaitCurrent，否则会互相等待。
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) {
		o.errorHandler = h
	}
}

// WithHook 追加一个钩子。
func WithHook(h Hook) Option {
	return func(o *options) {
		if h != nil {
			o.hooks = append(o.hooks, h)
		}
	}
}

// WithHooks 追加多个钩子，nil 被跳过。
func WithHooks(hooks ...Hook) Option {
	return func(o *options) {
		for _, h := range hooks {
			if h != nil {
				o.hooks = append(o.hooks, h)
			}
		}
	}
}

// WithObserver 设置观测器：每次尝试一个 span，丢弃的 tick 与 lock skip 以事件计数。
func WithObserver(obs xmetrics.Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithLocker 为每次尝试加分布式锁，key 为调度器名称。
func WithLocker(l Locker) Option {
	return func(o *options) {
		o.locker = l
	}
}

// WithLockTTL 设置锁 TTL，默认 5 分钟。持锁期间每 TTL/3（至少 1 秒）续期一次。
func WithLockTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.lockTTL = ttl
		}
	}
}

// WithLockTimeout 设置单次加锁/续期/解锁调用的超时，默认 5 秒。
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithFinalRunOnShutdown 使 Run 在 ctx 结束后以 WithFinalRun 停止。
func WithFinalRunOnShutdown() Option {
	return func(o *options) {
		o.finalRunOnShutdown = true
	}
}

// StopOption 配置 Stop。
type StopOption func(*stopOptions)

type stopOptions struct {
	finalRun bool
}

// WithFinalRun 在在途尝试结束后再执行一次最终尝试。
func WithFinalRun() StopOption {
	return func(o *stopOptions) {
		o.finalRun = true
	}
}
