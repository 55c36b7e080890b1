package xrecur

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/omeyang/xrecur/pkg/observability/xlog"
	"github.com/omeyang/xrecur/pkg/observability/xmetrics"
)

// Scheduler 不重叠的周期调度器。零值不可用，使用 [New] 创建。
//
// status、session 与在途句柄由同一把锁保护：tick 的会话校验与句柄创建在同一
// 临界区内完成，同一周期不可能开始两次尝试。
type Scheduler struct {
	task   Task
	cfg    Config
	opts   *options
	stats  *Stats
	logger xlog.Logger

	mu      sync.Mutex
	status  Status
	session uint64
	disarm  func()
	current *execution
	// idle 在进入 Terminating 时创建，回到 Inactive 时关闭
	idle chan struct{}
}

// New 创建调度器，初始状态 Inactive。配置非法或 task 为 nil 时返回错误。
func New(task Task, cfg Config, opts ...Option) (*Scheduler, error) {
	if task == nil {
		return nil, ErrNilTask
	}
	if tf, ok := task.(TaskFunc); ok && tf == nil {
		return nil, ErrNilTask
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		if opt == nil {
			return nil, ErrNilOption
		}
		opt(o)
	}
	if o.trigger == nil {
		o.trigger = NewClockTrigger(o.clock)
	}

	logger := o.logger
	if logger == nil {
		logger = xlog.Default()
	}

	return &Scheduler{
		task:   task,
		cfg:    cfg,
		opts:   o,
		stats:  newStats(),
		logger: logger.With(xlog.Component("xrecur"), slog.String("scheduler", o.name)),
	}, nil
}

// Name 调度器名称。
func (s *Scheduler) Name() string { return s.opts.name }

// Config 构造时的配置。
func (s *Scheduler) Config() Config { return s.cfg }

// Stats 统计信息。
func (s *Scheduler) Stats() *Stats { return s.stats }

// Status 当前生命周期状态。
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start 从 Inactive 进入 Active：武装定时器，ImmediateFirstRun 时在返回前开始第一次尝试。
//
// 返回 true 表示本次调用完成了启动。已是 Active 时返回 false；
// 处于 Terminating 时先等待回到 Inactive 再重新判断，等待期间 ctx 结束则返回 ctx.Err()。
func (s *Scheduler) Start(ctx context.Context) (bool, error) {
	for {
		s.mu.Lock()
		switch s.status {
		case StatusActive:
			s.mu.Unlock()
			return false, nil
		case StatusTerminating:
			idle := s.idle
			s.mu.Unlock()
			if err := wait(ctx, idle); err != nil {
				return false, err
			}
			continue
		}

		s.session++
		sess := s.session
		s.status = StatusActive
		now := s.opts.clock.Now()
		s.disarm = s.opts.trigger.Arm(s.cfg.Interval, func(at time.Time) {
			s.onTick(sess, at)
		})
		if s.cfg.ImmediateFirstRun {
			s.beginLocked(AttemptImmediate, now)
		}
		s.mu.Unlock()

		s.logger.Info(ctx, "scheduler started",
			slog.Uint64("session", sess),
			slog.Duration("interval", s.cfg.Interval),
			slog.Bool("immediate_first_run", s.cfg.ImmediateFirstRun),
		)
		return true, nil
	}
}

// Stop 从 Active 进入 Terminating 并立即撤销定时器，等待在途尝试结束；
// 指定 [WithFinalRun] 时再执行恰好一次最终尝试，随后回到 Inactive。
//
// 返回 true 表示本次调用发起了关闭。Inactive 时返回 false；
// 已在 Terminating 时等待该次关闭完成并返回 false。
// ctx 结束只放弃等待并返回 ctx.Err()，关闭流程照常进行。
func (s *Scheduler) Stop(ctx context.Context, opts ...StopOption) (bool, error) {
	so := stopOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&so)
		}
	}

	s.mu.Lock()
	switch s.status {
	case StatusInactive:
		s.mu.Unlock()
		return false, nil
	case StatusTerminating:
		idle := s.idle
		s.mu.Unlock()
		return false, wait(ctx, idle)
	}

	// 离开 Active 后送达的 tick 都被 onTick 丢弃；下次 Start 换新会话号，
	// 旧会话迟到的 tick 同样失效
	s.status = StatusTerminating
	disarm := s.disarm
	s.disarm = nil
	idle := make(chan struct{})
	s.idle = idle
	var inflight <-chan struct{}
	if s.current != nil {
		inflight = s.current.done
	}
	s.mu.Unlock()

	if disarm != nil {
		disarm()
	}
	s.logger.Info(ctx, "scheduler stopping",
		slog.Bool("final_run", so.finalRun),
		slog.Bool("in_flight", inflight != nil),
	)

	go s.terminate(inflight, so.finalRun, idle)
	return true, wait(ctx, idle)
}

func (s *Scheduler) terminate(inflight <-chan struct{}, finalRun bool, idle chan struct{}) {
	if inflight != nil {
		<-inflight
	}
	if finalRun {
		s.mu.Lock()
		exec := s.beginLocked(AttemptFinal, time.Time{})
		s.mu.Unlock()
		<-exec.done
	}

	s.mu.Lock()
	s.status = StatusInactive
	s.idle = nil
	close(idle)
	s.mu.Unlock()

	s.logger.Info(context.Background(), "scheduler stopped")
}

func (s *Scheduler) onTick(sess uint64, at time.Time) {
	s.mu.Lock()
	if sess != s.session || s.status != StatusActive {
		s.mu.Unlock()
		return
	}
	busy := s.current != nil
	s.stats.recordTick(busy)
	var running AttemptInfo
	if busy {
		running = s.current.info
	} else {
		s.beginLocked(AttemptScheduled, at)
	}
	s.mu.Unlock()

	if busy {
		ctx := context.Background()
		s.logger.Debug(ctx, "tick skipped, previous attempt still running",
			xlog.AttemptID(running.ID),
			slog.Time("tick", at),
		)
		xmetrics.Count(ctx, s.opts.observer, "xrecur", "tick_skipped", 1,
			xmetrics.String("scheduler", s.opts.name))
	}
}

// Run 实现 xrun.Service：启动调度器并阻塞到 ctx 结束，随后停止
// （WithFinalRunOnShutdown 时带最终尝试）并等待关闭完成。
// 调度器已在运行时不会重复启动，但仍会在 ctx 结束时停止它。
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := s.Start(ctx); err != nil {
		return fmt.Errorf("xrecur: start %s: %w", s.opts.name, err)
	}
	<-ctx.Done()

	var stopOpts []StopOption
	if s.opts.finalRunOnShutdown {
		stopOpts = append(stopOpts, WithFinalRun())
	}
	if _, err := s.Stop(context.WithoutCancel(ctx), stopOpts...); err != nil {
		return fmt.Errorf("xrecur: stop %s: %w", s.opts.name, err)
	}
	return nil
}
