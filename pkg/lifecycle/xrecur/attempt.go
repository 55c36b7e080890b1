package xrecur

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/omeyang/xrecur/pkg/observability/xlog"
	"github.com/omeyang/xrecur/pkg/observability/xmetrics"
)

// runAttempt 执行一次尝试：加锁、span、钩子、任务、统计、解锁、错误回调，最后 settle。
func (s *Scheduler) runAttempt(exec *execution) {
	info := exec.info
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = withAttempt(ctx, info)
	ctx = xlog.ContextWithAttrs(ctx,
		xlog.AttemptID(info.ID),
		slog.String("attempt_kind", info.Kind.String()),
	)

	lease, ok := s.acquireLock(ctx, cancel)
	if !ok {
		s.settle(exec)
		return
	}

	ctx, span := xmetrics.Start(ctx, s.opts.observer, xmetrics.SpanOptions{
		Component: "xrecur",
		Operation: "attempt",
		Attrs: []xmetrics.Attr{
			xmetrics.String("scheduler", info.Name),
			xmetrics.String("attempt_id", info.ID),
			xmetrics.String("attempt_kind", info.Kind.String()),
			xmetrics.Int64("session", int64(info.Session)),
		},
	})

	for _, h := range s.opts.hooks {
		ctx = h.BeforeAttempt(ctx, info)
	}

	err := s.invoke(ctx)
	d := s.opts.clock.Since(info.StartedAt)

	for i := len(s.opts.hooks) - 1; i >= 0; i-- {
		s.opts.hooks[i].AfterAttempt(ctx, info, d, err)
	}
	span.End(xmetrics.Result{Err: err})
	s.stats.recordResult(d, err)

	s.logger.Debug(ctx, "attempt finished", xlog.Duration(d), slog.Bool("failed", err != nil))

	// 先释放锁，保证最终尝试能拿到同一把锁
	lease.release(ctx)

	if err != nil && s.opts.errorHandler != nil {
		s.opts.errorHandler(err)
	}
	s.settle(exec)
}

func (s *Scheduler) invoke(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return s.task.Run(ctx)
}

// lease 本次尝试持有的锁及其续期协程。nil 表示未配置 Locker。
type lease struct {
	s      *Scheduler
	handle LockHandle
	stop   chan struct{}
	done   chan struct{}
}

// acquireLock 未配置 Locker 时返回 (nil, true)。锁被占用或锁服务异常时返回 false，
// 此时尝试被记为 lock skipped。
func (s *Scheduler) acquireLock(ctx context.Context, cancelAttempt context.CancelFunc) (*lease, bool) {
	if s.opts.locker == nil {
		return nil, true
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.opts.lockTimeout)
	handle, err := s.opts.locker.TryLock(lockCtx, s.opts.name, s.opts.lockTTL)
	cancel()

	switch {
	case err != nil:
		s.logger.Warn(ctx, "lock acquire failed, attempt skipped", xlog.Err(err))
		s.stats.recordLockSkip(err)
		xmetrics.Count(ctx, s.opts.observer, "xrecur", "lock_error", 1,
			xmetrics.String("scheduler", s.opts.name))
		return nil, false
	case handle == nil:
		s.logger.Debug(ctx, "lock held elsewhere, attempt skipped")
		s.stats.recordLockSkip(nil)
		xmetrics.Count(ctx, s.opts.observer, "xrecur", "lock_skipped", 1,
			xmetrics.String("scheduler", s.opts.name))
		return nil, false
	}

	l := &lease{
		s:      s,
		handle: handle,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go l.renew(ctx, cancelAttempt)
	return l, true
}

// renew 每 TTL/3（至少 1 秒）续期一次；续期失败时取消尝试 ctx，
// 防止锁过期后其他副本并发执行。
func (l *lease) renew(ctx context.Context, cancelAttempt context.CancelFunc) {
	defer close(l.done)
	s := l.s
	interval := max(s.opts.lockTTL/3, time.Second)
	ticker := s.opts.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.Chan():
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.lockTimeout)
			err := l.handle.Renew(rctx, s.opts.lockTTL)
			cancel()
			if err != nil {
				s.logger.Error(ctx, "lock renewal failed, cancelling attempt", xlog.Err(err))
				cancelAttempt()
				return
			}
		}
	}
}

// release 停止续期并解锁。解锁失败只记录日志：锁终会按 TTL 过期。
// 锁已丢失（ErrLockNotHeld）不重试，其他错误有限次重试。
func (l *lease) release(ctx context.Context) {
	if l == nil {
		return
	}
	close(l.stop)
	<-l.done

	s := l.s
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.lockTimeout)
	defer cancel()

	err := retry.New(
		retry.Context(uctx),
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !errors.Is(err, ErrLockNotHeld) }),
	).Do(func() error {
		return l.handle.Unlock(uctx)
	})
	if err != nil {
		s.logger.Warn(ctx, "lock release failed", xlog.Err(err), slog.String("key", l.handle.Key()))
	}
}
