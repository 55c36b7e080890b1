package xrun

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xrecur/pkg/observability/xlog"
)

// Group 在 errgroup 之上管理一组服务：任一服务出错或父 context 取消时，
// 所有服务收到取消信号。Wait 只应调用一次。
type Group struct {
	eg       *errgroup.Group
	ctx      context.Context
	causeCtx context.Context
	cancel   context.CancelCauseFunc
	opts     *groupOptions
}

// NewGroup 创建 Group，返回的 context 在任一服务出错时取消。
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	return &Group{eg: eg, ctx: egCtx, causeCtx: causeCtx, cancel: cancel, opts: o}, egCtx
}

// Go 启动 fn。fn 返回非 nil 错误时取消整个 Group。
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.GoWithName("", fn)
}

// GoWithName 与 Go 相同，额外记录服务名。
func (g *Group) GoWithName(name string, fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		logger := g.opts.log()
		attrs := []slog.Attr{slog.String("group", g.opts.name)}
		if name != "" {
			attrs = append(attrs, slog.String("service", name))
		}
		logger.Debug(g.ctx, "service starting", attrs...)

		err := fn(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn(g.ctx, "service exited with error", append(attrs, xlog.Err(err))...)
		} else {
			logger.Debug(g.ctx, "service stopped", attrs...)
		}
		return err
	})
}

// Wait 等待全部服务结束。
//
// Group 被主动取消（Cancel 或信号）时返回取消原因，原因为空则返回 nil；
// 服务自身返回的 context.Canceled 原样返回。
func (g *Group) Wait() error {
	defer g.cancel(nil)

	err := g.eg.Wait()
	g.opts.log().Debug(context.Background(), "all services stopped", slog.String("group", g.opts.name))

	cancelled := g.causeCtx.Err() != nil
	cause := context.Cause(g.causeCtx)
	explicit := cancelled && cause != nil && !errors.Is(cause, context.Canceled)

	switch {
	case errors.Is(err, context.Canceled) && cancelled:
		if explicit {
			return cause
		}
		return nil
	case err == nil && explicit:
		return cause
	default:
		return err
	}
}

// Cancel 以 cause 取消 Group。cause 不应包装 context.Canceled。
func (g *Group) Cancel(cause error) { g.cancel(cause) }

// Context 返回 Group 的 context。
func (g *Group) Context() context.Context { return g.ctx }

func (g *Group) watchSignals() {
	signals := g.opts.signals
	if len(signals) == 0 {
		signals = DefaultSignals()
	}
	g.Go(func(ctx context.Context) error {
		fake := testSigChan(ctx)
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, signals...)
		defer signal.Stop(ch)

		var sig os.Signal
		select {
		case sig = <-fake:
		case sig = <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		g.opts.log().Info(ctx, "received signal",
			slog.String("group", g.opts.name),
			slog.String("signal", sig.String()),
		)
		g.cancel(&SignalError{Signal: sig})
		return nil
	})
}

// Service 可被 Group 管理的服务，Run 阻塞到 ctx 取消或出错。
type Service interface {
	Run(ctx context.Context) error
}

// ServiceFunc 函数适配为 Service。
type ServiceFunc func(ctx context.Context) error

// Run 实现 Service。
func (f ServiceFunc) Run(ctx context.Context) error { return f(ctx) }

// Named 为服务附加日志名称。
func Named(name string, svc Service) Service {
	if svc == nil {
		return nil
	}
	return namedService{name: name, Service: svc}
}

type namedService struct {
	name string
	Service
}

// Run 运行 fns 并监听信号，收到信号时返回 *SignalError。
func Run(ctx context.Context, fns ...func(ctx context.Context) error) error {
	services := make([]Service, 0, len(fns))
	for _, fn := range fns {
		if fn == nil {
			services = append(services, nil)
			continue
		}
		services = append(services, ServiceFunc(fn))
	}
	return RunServicesWithOptions(ctx, nil, services...)
}

// RunServices 运行 services 并监听信号。
func RunServices(ctx context.Context, services ...Service) error {
	return RunServicesWithOptions(ctx, nil, services...)
}

// RunServicesWithOptions 与 RunServices 相同，支持选项。
func RunServicesWithOptions(ctx context.Context, opts []Option, services ...Service) error {
	g, _ := NewGroup(ctx, opts...)
	if !g.opts.noSignalHandler {
		g.watchSignals()
	}
	for _, svc := range services {
		switch s := svc.(type) {
		case nil:
			g.Go(func(context.Context) error { return ErrNilService })
		case namedService:
			g.GoWithName(s.name, s.Service.Run)
		default:
			g.Go(s.Run)
		}
	}
	return g.Wait()
}
