package xlog

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// ctxAttrsKey ContextWithAttrs 使用的 context key。
type ctxAttrsKey struct{}

// ContextWithAttrs 返回携带额外日志属性的 context。
//
// EnrichHandler 会把这些属性追加到经过该 context 的每一条日志上。
// 多次调用按顺序累积，不会修改父 context 中已有的切片。
func ContextWithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(attrs) == 0 {
		return ctx
	}
	prev := AttrsFromContext(ctx)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, ctxAttrsKey{}, merged)
}

// AttrsFromContext 返回 ContextWithAttrs 附加的属性，调用方不应修改返回值。
func AttrsFromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(ctxAttrsKey{}).([]slog.Attr)
	return attrs
}

// EnrichHandler 装饰底层 handler，在 Handle 时注入：
//   - trace_id、span_id：来自 context 中有效的 OpenTelemetry span
//   - ContextWithAttrs 附加的属性
//
// 设计决策: 对启用 enrich 的 logger 调用 WithGroup 后，注入字段会落在该 group 下，
// 这是 slog handler 链的固有行为。
type EnrichHandler struct {
	base slog.Handler
}

// NewEnrichHandler 包装 base。
func NewEnrichHandler(base slog.Handler) (*EnrichHandler, error) {
	if base == nil {
		return nil, ErrNilHandler
	}
	return &EnrichHandler{base: base}, nil
}

func (h *EnrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// Handle 按 slog 约定先 Clone 再追加属性。
func (h *EnrichHandler) Handle(ctx context.Context, r slog.Record) error {
	extra := AttrsFromContext(ctx)
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() && len(extra) == 0 {
		return h.base.Handle(ctx, r)
	}
	r = r.Clone()
	if sc.IsValid() {
		r.AddAttrs(
			slog.String(KeyTraceID, sc.TraceID().String()),
			slog.String(KeySpanID, sc.SpanID().String()),
		)
	}
	r.AddAttrs(extra...)
	return h.base.Handle(ctx, r)
}

func (h *EnrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EnrichHandler{base: h.base.WithAttrs(attrs)}
}

func (h *EnrichHandler) WithGroup(name string) slog.Handler {
	return &EnrichHandler{base: h.base.WithGroup(name)}
}
