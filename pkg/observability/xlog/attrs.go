package xlog

import (
	"log/slog"
	"time"
)

// 标准字段名。
const (
	KeyError     = "error"
	KeyStack     = "stack"
	KeyDuration  = "duration"
	KeyCount     = "count"
	KeyComponent = "component"
	KeyOperation = "operation"
	KeyTraceID   = "trace_id"
	KeySpanID    = "span_id"
	KeyAttemptID = "attempt_id"
)

// Err 错误属性，err 为 nil 时返回空属性（slog 会忽略）。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Duration 人类可读的耗时（如 "1.5s"）。
// 需要数值时用 slog.Int64("duration_ms", d.Milliseconds())。
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Component 标识日志来源组件。
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation 标识当前操作。
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// Count 计数。
func Count(n int64) slog.Attr {
	return slog.Int64(KeyCount, n)
}

// AttemptID 一次调度尝试的唯一标识。
func AttemptID(id string) slog.Attr {
	return slog.String(KeyAttemptID, id)
}
