package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xrecur/pkg/config/xconf"
	"github.com/omeyang/xrecur/pkg/lifecycle/xrecur"
	"github.com/omeyang/xrecur/pkg/lifecycle/xrun"
	"github.com/omeyang/xrecur/pkg/observability/xlog"
	"github.com/omeyang/xrecur/pkg/observability/xmetrics"
)

const instrumentationName = "github.com/omeyang/xrecur/cmd/xrecurd"

// daemon 持有当前调度器及其依赖。
//
// 设计决策: 配置重载不修改运行中的调度器，而是停止旧调度器（等待在途尝试）
// 后启动按新配置构建的调度器，"同一时刻至多一个尝试" 在替换过程中依然成立。
// 统计随调度器一起重置。
type daemon struct {
	conf     xconf.Config
	logger   xlog.LoggerWithLevel
	observer xmetrics.Observer
	locker   xrecur.Locker
	closers  []func() error

	current atomic.Pointer[xrecur.Scheduler]

	// 串行化 Start、重载与关闭
	mu       sync.Mutex
	cfg      *daemonConfig
	started  bool
	stopping bool
}

func newDaemon(conf xconf.Config, dc *daemonConfig, logger xlog.LoggerWithLevel) (*daemon, error) {
	observer, err := xmetrics.NewOTelObserver(xmetrics.WithInstrumentationName(instrumentationName))
	if err != nil {
		return nil, fmt.Errorf("create observer: %w", err)
	}
	locker, closeLocker, err := buildLocker(dc.Locker)
	if err != nil {
		return nil, err
	}

	d := &daemon{
		conf:     conf,
		logger:   logger,
		observer: observer,
		locker:   locker,
		closers:  []func() error{closeLocker},
		cfg:      dc,
	}
	s, err := d.buildScheduler(dc)
	if err != nil {
		return nil, errors.Join(err, d.Close())
	}
	d.current.Store(s)
	return d, nil
}

// buildLocker 按配置创建分布式锁，返回的 closer 释放底层连接。
func buildLocker(sec lockerSection) (xrecur.Locker, func() error, error) {
	noop := func() error { return nil }
	switch sec.Type {
	case lockerNone:
		return nil, noop, nil
	case lockerRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     sec.Redis.Addr,
			Password: sec.Redis.Password,
			DB:       sec.Redis.DB,
		})
		var opts []xrecur.RedisLockerOption
		if sec.Redis.Prefix != "" {
			opts = append(opts, xrecur.WithRedisKeyPrefix(sec.Redis.Prefix))
		}
		return xrecur.NewRedisLocker(client, opts...), client.Close, nil
	case lockerK8s:
		locker, err := xrecur.NewK8sLocker(xrecur.K8sLockerOptions{
			Namespace: sec.K8s.Namespace,
			Prefix:    sec.K8s.Prefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create k8s locker: %w", err)
		}
		return locker, noop, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown locker type %q", errInvalidConfig, sec.Type)
	}
}

func (d *daemon) buildScheduler(dc *daemonConfig) (*xrecur.Scheduler, error) {
	opts := []xrecur.Option{
		xrecur.WithName(dc.Scheduler.Name),
		xrecur.WithLogger(d.logger),
		xrecur.WithObserver(d.observer),
		xrecur.WithErrorHandler(func(err error) {
			d.logger.Warn(context.Background(), "attempt failed",
				xlog.Component("xrecurd"), slog.String("scheduler", dc.Scheduler.Name), xlog.Err(err))
		}),
	}
	if d.locker != nil {
		opts = append(opts,
			xrecur.WithLocker(d.locker),
			xrecur.WithLockTTL(dc.Locker.TTL),
			xrecur.WithLockTimeout(dc.Locker.Timeout),
		)
	}
	s, err := xrecur.New(newCommandTask(dc.Task, d.logger), dc.Schedule, opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return s, nil
}

// Scheduler 当前调度器，重载后指向新实例。
func (d *daemon) Scheduler() *xrecur.Scheduler { return d.current.Load() }

// Run 实现 xrun.Service：启动调度器，ctx 结束后停止它，
// 配置了 final_run_on_shutdown 时执行最终尝试。
func (d *daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	d.started = true
	_, err := d.current.Load().Start(ctx)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopping = true
	var stopOpts []xrecur.StopOption
	if d.cfg.Scheduler.FinalRunOnShutdown {
		stopOpts = append(stopOpts, xrecur.WithFinalRun())
	}
	if _, err := d.current.Load().Stop(context.WithoutCancel(ctx), stopOpts...); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}

// reload 重新解析配置并替换调度器。新配置非法时保留旧调度器。
// 日志级别立即生效；锁后端与管理地址需要重启进程才会变更。
func (d *daemon) reload(ctx context.Context) error {
	dc, err := loadDaemonConfig(d.conf)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopping {
		return nil
	}
	if dc.Locker.Type != d.cfg.Locker.Type || dc.Admin.Addr != d.cfg.Admin.Addr {
		d.logger.Warn(ctx, "locker and admin changes require a restart", xlog.Component("xrecurd"))
	}
	if level, err := xlog.ParseLevel(dc.Log.Level); err == nil {
		d.logger.SetLevel(level)
	}

	next, err := d.buildScheduler(dc)
	if err != nil {
		return err
	}
	prev := d.current.Load()
	if _, err := prev.Stop(ctx); err != nil {
		return fmt.Errorf("stop previous scheduler: %w", err)
	}
	if d.started {
		if _, err := next.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	d.current.Store(next)
	d.cfg = dc

	d.logger.Info(ctx, "configuration reloaded", xlog.Component("xrecurd"),
		slog.String("scheduler", dc.Scheduler.Name),
		xlog.Duration(dc.Schedule.Interval))
	return nil
}

// watcher 配置文件变更时触发 reload。
func (d *daemon) watcher() (*xconf.Watcher, error) {
	return xconf.Watch(d.conf, func(_ xconf.Config, err error) {
		ctx := context.Background()
		if err == nil {
			err = d.reload(ctx)
		}
		if err != nil {
			d.logger.Error(ctx, "configuration reload failed", xlog.Component("xrecurd"), xlog.Err(err))
		}
	})
}

// services 组装 xrun 服务：调度器、可选的管理端点与配置监视。
func (d *daemon) services(watch bool) ([]xrun.Service, error) {
	services := []xrun.Service{xrun.Named("scheduler", d)}
	if d.cfg.Admin.Addr != "" {
		srv := newAdminServer(d.cfg.Admin.Addr, newAdminHandler(d.Scheduler))
		services = append(services, xrun.Named("admin", xrun.ServiceFunc(xrun.HTTPServer(srv, d.cfg.Admin.ShutdownTimeout))))
	}
	if watch {
		w, err := d.watcher()
		if err != nil {
			return nil, fmt.Errorf("watch config: %w", err)
		}
		services = append(services, xrun.Named("config-watch", xrun.ServiceFunc(w.Run)))
	}
	return services, nil
}

// Close 释放锁后端连接。
func (d *daemon) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	d.closers = nil
	return errors.Join(errs...)
}

// buildLogger 按 log 节创建 logger；配置了 file 时写入轮转文件，否则写 w。
func buildLogger(sec logSection, w io.Writer) (xlog.LoggerWithLevel, func() error, error) {
	b := xlog.New().
		SetOutput(w).
		SetLevelString(sec.Level).
		SetFormat(sec.Format).
		SetEnrich(true)
	if sec.File != "" {
		b.SetRotation(sec.File,
			xlog.WithMaxSizeMB(sec.MaxSizeMB),
			xlog.WithMaxBackups(sec.MaxBackups),
			xlog.WithMaxAgeDays(sec.MaxAgeDays),
			xlog.WithCompress(sec.Compress),
		)
	}
	return b.Build()
}
