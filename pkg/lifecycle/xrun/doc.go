// Package xrun 基于 errgroup 的进程生命周期管理：并发运行多个服务、
// 监听退出信号并协调关闭。
//
//	err := xrun.RunServicesWithOptions(ctx,
//		[]xrun.Option{xrun.WithName("xrecurd"), xrun.WithLogger(logger)},
//		xrun.Named("scheduler", sched),
//		xrun.Named("admin", xrun.ServiceFunc(xrun.HTTPServer(srv, 5*time.Second))),
//	)
//	if errors.Is(err, xrun.ErrSignal) {
//		// 正常的信号退出
//	}
//
// 任一服务返回错误会取消其余服务；收到信号时返回 *SignalError。
package xrun
