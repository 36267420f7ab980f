package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const (
	traceIDKey contextKey = "logger-trace-id"
	spanIDKey  contextKey = "logger-span-id"
)

// ContextWithTrace stores an explicit trace id, used when no span is active.
func ContextWithTrace(ctx context.Context, traceID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceIDKey, traceID)
}

// ContextWithSpan stores an explicit span id, used when no span is active.
func ContextWithSpan(ctx context.Context, spanID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, spanIDKey, spanID)
}

// TraceIDFromContext returns the trace id of the active span, or the one
// stored with ContextWithTrace.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	v, _ := ctx.Value(traceIDKey).(string)
	return v
}

// SpanIDFromContext returns the span id of the active span, or the one
// stored with ContextWithSpan.
func SpanIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasSpanID() {
		return sc.SpanID().String()
	}
	v, _ := ctx.Value(spanIDKey).(string)
	return v
}

// WithTraceAndSpan decorates ctx with fresh trace and span ids so log lines
// can be correlated while tracing is off.
func WithTraceAndSpan(ctx context.Context) (context.Context, string, string) {
	traceID := NewTraceID()
	spanID := NewSpanID()
	ctx = ContextWithTrace(ctx, traceID)
	ctx = ContextWithSpan(ctx, spanID)
	return ctx, traceID, spanID
}

// NewTraceID returns 16 random bytes, hex encoded.
func NewTraceID() string {
	return randomHex(16)
}

// NewSpanID returns 8 random bytes, hex encoded.
func NewSpanID() string {
	return randomHex(8)
}

func randomHex(size int) string {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
