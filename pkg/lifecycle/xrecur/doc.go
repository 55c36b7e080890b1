// Package xrecur 提供不重叠的周期任务调度器。
//
// Scheduler 以固定间隔触发同一个任务，并保证任意时刻最多只有一次尝试在执行：
// tick 到达时若上一次尝试尚未结束，本次 tick 直接丢弃，不排队、不补跑。
//
// # 生命周期
//
//	Inactive --Start--> Active --Stop--> Terminating --(在途尝试结束)--> Inactive
//
//   - 重复 Start/Stop 是空操作，返回 false
//   - Terminating 期间调用 Start 会等待回到 Inactive 后再启动
//   - Stop 立即撤销定时器，等待在途尝试结束；WithFinalRun 时再补一次最终尝试
//   - 调度器从不取消在途尝试，ctx 超时只放弃"等待"，不影响关闭流程
//
// # 用法
//
//	s, err := xrecur.New(xrecur.TaskFunc(func(ctx context.Context) error {
//		return syncInventory(ctx)
//	}), xrecur.Config{Interval: 30 * time.Second, ImmediateFirstRun: true},
//		xrecur.WithName("inventory-sync"),
//		xrecur.WithErrorHandler(func(err error) { log.Print(err) }),
//	)
//	if err != nil {
//		return err
//	}
//	_, _ = s.Start(ctx)
//	defer s.Stop(context.Background(), xrecur.WithFinalRun())
//
// # 错误
//
// 任务返回的错误和 panic（包装为 [*PanicError]）只交给 ErrorHandler，
// 不会中断调度。ErrorHandler 自身的 panic 不会被恢复。
//
// # 多副本
//
// WithLocker 为每次尝试加一把命名锁（Redis 或 K8s Lease），锁被其他副本持有时
// 本次尝试记为 lock skipped，既不调用任务也不调用 ErrorHandler。
//
// # 时间
//
// 定时由 [Trigger] 驱动，默认实现基于 clockwork.Clock；测试中注入
// clockwork.NewFakeClock() 即可精确推进时间。
package xrecur
