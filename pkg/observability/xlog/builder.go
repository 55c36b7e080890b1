package xlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Builder 日志构建器。
//
// first-error-wins：第一个配置错误会被记住并由 Build 返回，后续 Set 调用照常执行但不覆盖该错误。
// Builder 为一次性使用。
type Builder struct {
	output    io.Writer
	levelVar  *slog.LevelVar
	format    string
	addSource bool
	enrich    bool
	rotator   *lumberjack.Logger
	onError   func(error)
	err       error
}

// New 创建构建器，默认输出到 stderr、Info 级别、text 格式、启用 context 注入。
func New() *Builder {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	return &Builder{
		output:   os.Stderr,
		levelVar: levelVar,
		format:   "text",
		enrich:   true,
	}
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// SetOutput 设置输出目标，会覆盖之前的 SetRotation。
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w == nil {
		return b
	}
	b.output = w
	b.rotator = nil
	return b
}

// SetLevel 设置初始级别。
func (b *Builder) SetLevel(level Level) *Builder {
	b.levelVar.Set(slog.Level(level))
	return b
}

// SetLevelString 以字符串设置级别，无法识别时记录错误。
func (b *Builder) SetLevelString(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		return b.fail(err)
	}
	return b.SetLevel(level)
}

// SetFormat 设置输出格式：text 或 json，空串视为 text。
func (b *Builder) SetFormat(format string) *Builder {
	switch normalized := strings.ToLower(strings.TrimSpace(format)); normalized {
	case "":
		b.format = "text"
	case "text", "json":
		b.format = normalized
	default:
		return b.fail(fmt.Errorf("%w: %q", ErrUnknownFormat, format))
	}
	return b
}

// SetAddSource 是否输出源码位置。
func (b *Builder) SetAddSource(enable bool) *Builder {
	b.addSource = enable
	return b
}

// SetEnrich 是否从 context 注入 trace_id、span_id 以及 ContextWithAttrs 附加的属性。
func (b *Builder) SetEnrich(enable bool) *Builder {
	b.enrich = enable
	return b
}

// SetOnError 设置 Handler 写入失败时的回调。回调 panic 会被吞掉并计数。
func (b *Builder) SetOnError(fn func(error)) *Builder {
	b.onError = fn
	return b
}

// RotateOption 日志轮转参数。
type RotateOption func(*lumberjack.Logger)

// WithMaxSizeMB 单个文件的最大大小（MB），默认 100。
func WithMaxSizeMB(mb int) RotateOption {
	return func(l *lumberjack.Logger) { l.MaxSize = mb }
}

// WithMaxBackups 保留的历史文件数，0 表示不限。
func WithMaxBackups(n int) RotateOption {
	return func(l *lumberjack.Logger) { l.MaxBackups = n }
}

// WithMaxAgeDays 历史文件保留天数，0 表示不限。
func WithMaxAgeDays(days int) RotateOption {
	return func(l *lumberjack.Logger) { l.MaxAge = days }
}

// WithCompress 是否 gzip 压缩历史文件。
func WithCompress(compress bool) RotateOption {
	return func(l *lumberjack.Logger) { l.Compress = compress }
}

// WithLocalTime 历史文件名是否使用本地时间，默认 UTC。
func WithLocalTime(local bool) RotateOption {
	return func(l *lumberjack.Logger) { l.LocalTime = local }
}

// SetRotation 将日志写入按大小轮转的文件。
func (b *Builder) SetRotation(filename string, opts ...RotateOption) *Builder {
	if strings.TrimSpace(filename) == "" {
		return b.fail(fmt.Errorf("%w: empty filename", ErrInvalidRotation))
	}
	rotator := &lumberjack.Logger{
		Filename: filename,
		MaxSize:  100,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(rotator)
		}
	}
	if rotator.MaxSize < 0 || rotator.MaxBackups < 0 || rotator.MaxAge < 0 {
		return b.fail(fmt.Errorf("%w: negative size/backups/age", ErrInvalidRotation))
	}
	b.rotator = rotator
	b.output = rotator
	return b
}

// Build 构建 Logger。
//
// 返回的 cleanup 关闭轮转文件，可重复调用。
func (b *Builder) Build() (LoggerWithLevel, func() error, error) {
	if b.err != nil {
		return nil, nil, b.err
	}

	opts := &slog.HandlerOptions{
		Level:     b.levelVar,
		AddSource: b.addSource,
	}
	var handler slog.Handler
	if b.format == "json" {
		handler = slog.NewJSONHandler(b.output, opts)
	} else {
		handler = slog.NewTextHandler(b.output, opts)
	}
	if b.enrich {
		handler = &EnrichHandler{base: handler}
	}

	logger := &xlogger{
		handler:        handler,
		levelVar:       b.levelVar,
		onError:        b.onError,
		errorCount:     new(atomic.Uint64),
		inErrorHandler: new(atomic.Bool),
		addSource:      b.addSource,
	}

	var once sync.Once
	rotator := b.rotator
	cleanup := func() error {
		var err error
		once.Do(func() {
			if rotator != nil {
				err = rotator.Close()
			}
		})
		return err
	}
	return logger, cleanup, nil
}
