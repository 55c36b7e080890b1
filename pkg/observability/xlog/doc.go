// Package xlog 基于 log/slog 的结构化日志。
//
// # 创建 Logger
//
//	logger, cleanup, err := xlog.New().
//		SetLevelString("debug").
//		SetFormat("json").
//		SetRotation("/var/log/xrecurd/xrecurd.log", xlog.WithMaxSizeMB(50), xlog.WithMaxBackups(5)).
//		Build()
//	if err != nil {
//		return err
//	}
//	defer cleanup()
//
// Builder 采用 first-error-wins：第一个配置错误由 Build 返回。
// 文件轮转由 lumberjack 完成，cleanup 负责关闭文件。
//
// # Context 注入
//
// 默认启用 [EnrichHandler]：
//   - context 中存在有效的 OpenTelemetry span 时注入 trace_id、span_id
//   - [ContextWithAttrs] 附加的属性（xrecur 用它注入 attempt_id）
//
// # 级别
//
// [Level] 与 slog.Level 数值一致，实现 TextMarshaler/TextUnmarshaler。
// Build 返回 [LoggerWithLevel]，可在运行时 SetLevel；With/WithGroup 派生的 Logger 共享级别。
//
// # 全局 Logger
//
// [Default]、[SetDefault]、[ResetDefault] 以及包级 [Debug]、[Info]、[Warn]、[Error]
// 面向命令行工具。[Discard] 返回静默 Logger，常用于测试。
package xlog
