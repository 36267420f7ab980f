package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Config{Level: "chatty"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestContextHandlerAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Format: FormatJSON, Writer: &buf, Version: "test"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.WithComponent("relay").InfoContext(ctx, "hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec["trace_id"] != traceID.String() {
		t.Fatalf("trace_id = %v", rec["trace_id"])
	}
	if rec["span_id"] != spanID.String() {
		t.Fatalf("span_id = %v", rec["span_id"])
	}
	if rec["component"] != "relay" {
		t.Fatalf("component = %v", rec["component"])
	}
	if rec["service"] != "browserrelay" {
		t.Fatalf("service = %v", rec["service"])
	}
}

func TestContextHandlerWithoutSpan(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Format: FormatJSON, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	l.Info("plain")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if _, ok := rec["trace_id"]; ok {
		t.Fatal("unexpected trace_id without span")
	}
}

func TestCredentialsAreRedacted(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Format: FormatJSON, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	l.Info("upstream", "username", "alice", "password", "secret", "Proxy_Authorization", "Basic YWxpY2U6c2VjcmV0")
	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["password"] != "[redacted]" || rec["Proxy_Authorization"] != "[redacted]" {
		t.Fatalf("record leaked credentials: %v", rec)
	}
	if rec["username"] != "alice" {
		t.Fatalf("username = %v", rec["username"])
	}
}

func TestContextHandlerFallsBackToExplicitIDs(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Format: FormatJSON, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	ctx, traceID, spanID := WithTraceAndSpan(context.Background())
	if len(traceID) != 32 || len(spanID) != 16 {
		t.Fatalf("ids = %q, %q", traceID, spanID)
	}
	l.InfoContext(ctx, "keyed")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["trace_id"] != traceID || rec["span_id"] != spanID {
		t.Fatalf("record = %v", rec)
	}
}

func TestActiveSpanWinsOverExplicitIDs(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})

	ctx := ContextWithSpan(ContextWithTrace(context.Background(), "explicit-trace"), "explicit-span")
	if got := TraceIDFromContext(ctx); got != "explicit-trace" {
		t.Fatalf("trace id = %q", got)
	}
	ctx = trace.ContextWithSpanContext(ctx, sc)
	if got := TraceIDFromContext(ctx); got != traceID.String() {
		t.Fatalf("trace id = %q, want span's", got)
	}
	if got := SpanIDFromContext(ctx); got != spanID.String() {
		t.Fatalf("span id = %q, want span's", got)
	}
}
