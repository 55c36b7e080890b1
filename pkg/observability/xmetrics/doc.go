// Package xmetrics 提供最小化的观测接口（tracing + metrics）。
//
// 调用方只依赖 [Observer]/[Span]/[Attr]；默认实现基于 OpenTelemetry。
//
//	obs, _ := xmetrics.NewOTelObserver()
//	ctx, span := xmetrics.Start(ctx, obs, xmetrics.SpanOptions{
//		Component: "xrecur",
//		Operation: "attempt",
//	})
//	err := run(ctx)
//	span.End(xmetrics.Result{Err: err})
//
// 不产生跨度的离散事件（被丢弃的 tick、被其他副本持有的锁）通过 [Count] 上报，
// 仅当 Observer 实现 [Counter] 时生效。
//
// # 指标命名
//
//   - <prefix>.operation.total、<prefix>.operation.duration：component / operation / status
//   - <prefix>.events.total：component / event
//
// prefix 默认 "xrecur"，可用 [WithMetricPrefix] 修改。
package xmetrics
