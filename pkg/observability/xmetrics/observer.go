package xmetrics

import (
	"context"
	"time"
)

// Kind 跨度类型。
type Kind int

const (
	KindInternal Kind = iota
	KindServer
	KindClient
	KindProducer
	KindConsumer
)

// Status 观测结果。
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
	// StatusSkipped 操作被有意跳过（如锁被其他副本持有），不计为失败。
	StatusSkipped Status = "skipped"
)

// Attr 观测属性。
type Attr struct {
	Key   string
	Value any
}

// String 字符串属性。
func String(key, value string) Attr { return Attr{Key: key, Value: value} }

// Bool 布尔属性。
func Bool(key string, value bool) Attr { return Attr{Key: key, Value: value} }

// Int64 整数属性。
func Int64(key string, value int64) Attr { return Attr{Key: key, Value: value} }

// Duration 时长属性，导出为纳秒。key 建议带单位。
func Duration(key string, value time.Duration) Attr { return Attr{Key: key, Value: value} }

// SpanOptions 创建跨度的参数。
type SpanOptions struct {
	Component string
	Operation string
	Kind      Kind
	Attrs     []Attr
}

// Result 跨度结束时的结果。Status 为空时由 Err 推导。
type Result struct {
	Status Status
	Err    error
	Attrs  []Attr
}

// Span 一次观测跨度。
type Span interface {
	End(result Result)
}

// Observer 统一观测接口：一次操作对应一个跨度以及 total/duration 两个指标。
type Observer interface {
	Start(ctx context.Context, opts SpanOptions) (context.Context, Span)
}

// Counter 可选能力：记录不产生跨度的离散事件（如被丢弃的 tick）。
// Observer 实现该接口时，调用方通过 [Count] 上报。
type Counter interface {
	Count(ctx context.Context, component, event string, n int64, attrs ...Attr)
}

// NoopObserver 空实现。
type NoopObserver struct{}

func (NoopObserver) Start(ctx context.Context, _ SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx, NoopSpan{}
}

// NoopSpan 空跨度。
type NoopSpan struct{}

func (NoopSpan) End(Result) {}

// Start 以 observer 开始一个跨度；observer 为 nil 或返回 nil 时兜底为空实现，
// 保证返回值都非 nil。
func Start(ctx context.Context, observer Observer, opts SpanOptions) (context.Context, Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	if observer == nil {
		return ctx, NoopSpan{}
	}
	retCtx, span := observer.Start(ctx, opts)
	if retCtx == nil {
		retCtx = ctx
	}
	if span == nil {
		span = NoopSpan{}
	}
	return retCtx, span
}

// Count 在 observer 支持 [Counter] 时上报事件，否则什么也不做。
func Count(ctx context.Context, observer Observer, component, event string, n int64, attrs ...Attr) {
	c, ok := observer.(Counter)
	if !ok || n <= 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.Count(ctx, component, event, n, attrs...)
}

func resolveStatus(result Result) Status {
	if result.Status != "" {
		return result.Status
	}
	if result.Err != nil {
		return StatusError
	}
	return StatusOK
}
