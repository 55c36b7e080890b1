package xlog

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// 全局 Logger 面向脚手架和命令行工具；库代码应通过选项注入 Logger。
var (
	globalLogger atomic.Pointer[LoggerWithLevel]
	globalMu     sync.Mutex
)

// Default 返回全局 Logger，首次调用时惰性创建（stderr、Info、text）。
func Default() LoggerWithLevel {
	if l := globalLogger.Load(); l != nil {
		return *l
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	if l := globalLogger.Load(); l != nil {
		return *l
	}
	// 默认参数不会出错，err 分支仅作兜底。
	logger, _, err := New().Build()
	if err != nil {
		logger = newFallback()
	}
	globalLogger.Store(&logger)
	return logger
}

// SetDefault 替换全局 Logger，nil 被忽略。
func SetDefault(l LoggerWithLevel) {
	if l == nil {
		return
	}
	globalLogger.Store(&l)
}

// ResetDefault 恢复到未初始化状态，仅用于测试。
func ResetDefault() {
	globalMu.Lock()
	globalLogger.Store(nil)
	globalMu.Unlock()
}

// Discard 返回丢弃所有输出的 Logger。
func Discard() LoggerWithLevel {
	logger, _, _ := New().SetOutput(io.Discard).SetEnrich(false).Build()
	return logger
}

func newFallback() LoggerWithLevel {
	return &xlogger{
		handler:        slog.NewTextHandler(io.Discard, nil),
		levelVar:       new(slog.LevelVar),
		errorCount:     new(atomic.Uint64),
		inErrorHandler: new(atomic.Bool),
	}
}

// Debug 使用全局 Logger。
func Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	emitGlobal(ctx, slog.LevelDebug, msg, attrs)
}

// Info 使用全局 Logger。
func Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	emitGlobal(ctx, slog.LevelInfo, msg, attrs)
}

// Warn 使用全局 Logger。
func Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	emitGlobal(ctx, slog.LevelWarn, msg, attrs)
}

// Error 使用全局 Logger。
func Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	emitGlobal(ctx, slog.LevelError, msg, attrs)
}

// emitGlobal 比实例方法多一层调用，源码位置需多跳一帧。
func emitGlobal(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	l := Default()
	if xl, ok := l.(*xlogger); ok {
		xl.emit(ctx, level, msg, attrs, 1)
		return
	}
	switch level {
	case slog.LevelDebug:
		l.Debug(ctx, msg, attrs...)
	case slog.LevelInfo:
		l.Info(ctx, msg, attrs...)
	case slog.LevelWarn:
		l.Warn(ctx, msg, attrs...)
	default:
		l.Error(ctx, msg, attrs...)
	}
}
