package xlog

// ErrorCount 返回 Logger 内部写入错误计数，非 Builder 构建的 Logger 返回 0。
func ErrorCount(l Logger) uint64 {
	if xl, ok := l.(*xlogger); ok {
		return xl.errorCount.Load()
	}
	return 0
}
